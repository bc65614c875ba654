package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/resumechat/resumechat/internal/catalog"
)

// Message is one entry of a model conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one operation request emitted by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Completion is the model's answer: either final text or a batch of tool
// calls, never both.
type Completion struct {
	Text             string
	ToolCalls        []ToolCall
	PromptTokens     int64
	CompletionTokens int64
}

// Capability is the model boundary. Implementations translate the
// conversation plus the advertised operations into one completion.
type Capability interface {
	Complete(ctx context.Context, msgs []Message, ops []catalog.OpDesc) (Completion, error)
}

// CapabilityError wraps a provider failure. Transient failures (timeouts,
// 5xx, rate limits) get one retry before the turn fails.
type CapabilityError struct {
	Provider  string
	Status    int
	Transient bool
	Err       error
}

func (e *CapabilityError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// ErrIterationCap means a turn ran out of tool iterations before the model
// produced final text.
var ErrIterationCap = errors.New("iteration cap exceeded")
