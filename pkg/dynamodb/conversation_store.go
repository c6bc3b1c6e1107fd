package dynamodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/models"
)

// ConversationStore keeps user to conversation id mappings in a DynamoDB
// table whose partition key is user_id. It lets several relay instances see
// the same ids, but writes are last-writer-wins with no coordination.
type ConversationStore struct {
	client    API
	tableName string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewConversationStore creates a new conversation store. A positive ttl
// stamps each item with an expiry for DynamoDB's TTL sweeper.
func NewConversationStore(client API, tableName string, ttl time.Duration, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		logger:    logger,
	}
}

// Get retrieves the conversation id for a user
func (s *ConversationStore) Get(ctx context.Context, userID string) (string, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("get item: %w", err)
	}

	if result.Item == nil {
		return "", false, nil
	}

	var entry models.ConversationEntry
	if err := attributevalue.UnmarshalMap(result.Item, &entry); err != nil {
		return "", false, fmt.Errorf("unmarshal conversation entry: %w", err)
	}

	if entry.ConversationID == "" {
		return "", false, nil
	}

	return entry.ConversationID, true, nil
}

// Set stores the conversation id for a user, overwriting any previous value
func (s *ConversationStore) Set(ctx context.Context, userID, conversationID string) error {
	entry := models.NewConversationEntry(userID, conversationID, s.ttl)

	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("marshal conversation entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}

	logging.FromContext(ctx, s.logger).Debug("saved conversation id", "user", userID, "table", s.tableName)
	return nil
}
