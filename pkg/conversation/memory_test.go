package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryStoreGetSet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "U1"); ok || err != nil {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	if err := store.Set(ctx, "U1", "C1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	id, ok, err := store.Get(ctx, "U1")
	if err != nil || !ok || id != "C1" {
		t.Errorf("Get() = %q, %v, %v, want C1, true, nil", id, ok, err)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, "U1", "C1")
	_ = store.Set(ctx, "U1", "C2")

	id, _, _ := store.Get(ctx, "U1")
	if id != "C2" {
		t.Errorf("Get() = %s, want rotated id C2", id)
	}
	if _, ok, _ := store.Get(ctx, "U2"); ok {
		t.Error("Get() for another user should miss")
	}
}

func TestMemoryStoreConcurrentUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("U%d", i)
			_ = store.Set(ctx, user, "C-"+user)
			_, _, _ = store.Get(ctx, user)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		user := fmt.Sprintf("U%d", i)
		id, ok, _ := store.Get(ctx, user)
		if !ok || id != "C-"+user {
			t.Errorf("Get(%s) = %q, %v, want C-%s", user, id, ok, user)
		}
	}
}
