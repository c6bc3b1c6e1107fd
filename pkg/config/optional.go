package config

import "strings"

// Optional is a configuration string that may be absent. The zero value is
// unset; a blank value is treated as unset too.
type Optional struct {
	value string
	set   bool
}

// NewOptional wraps s, returning an unset Optional when s is blank
func NewOptional(s string) Optional {
	s = strings.TrimSpace(s)
	if s == "" {
		return Optional{}
	}
	return Optional{value: s, set: true}
}

// Get returns the value and whether it is set
func (o Optional) Get() (string, bool) {
	return o.value, o.set
}

// IsSet reports whether a value is present
func (o Optional) IsSet() bool {
	return o.set
}

// Value returns the value, or "" when unset
func (o Optional) Value() string {
	return o.value
}

// String masks the value so that secrets never reach logs
func (o Optional) String() string {
	if !o.set {
		return "<unset>"
	}
	return "<set>"
}
