package catalog

import "fmt"

// ValidationError rejects an operation's arguments before any write happens.
// The dispatcher feeds it back to the model instead of failing the turn.
type ValidationError struct {
	Op     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Field, e.Reason)
}

func invalid(op, field, reason string) error {
	return &ValidationError{Op: op, Field: field, Reason: reason}
}
