package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/resumechat/resumechat/config"
	"github.com/resumechat/resumechat/internal/catalog"
)

// OpenAIProvider implements Capability over the OpenAI chat completions API
// with native function calling.
type OpenAIProvider struct {
	cfg    config.LLMConfig
	client *http.Client
}

func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// NewCapability creates the configured provider.
func NewCapability(cfg config.LLMConfig) (Capability, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported capability provider: %s", cfg.Provider)
	}
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatMsg struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, msgs []Message, ops []catalog.OpDesc) (Completion, error) {
	apiKey := p.cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return Completion{}, &CapabilityError{Provider: "openai", Err: fmt.Errorf("API key not configured")}
	}

	reqMsgs := make([]chatMsg, 0, len(msgs))
	for _, m := range msgs {
		cm := chatMsg{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var raw chatToolCall
			raw.ID = tc.ID
			raw.Type = "function"
			raw.Function.Name = tc.Name
			raw.Function.Arguments = string(tc.Arguments)
			cm.ToolCalls = append(cm.ToolCalls, raw)
		}
		reqMsgs = append(reqMsgs, cm)
	}

	tools := make([]chatTool, 0, len(ops))
	for _, op := range ops {
		var t chatTool
		t.Type = "function"
		t.Function.Name = op.Name
		t.Function.Description = op.Description
		t.Function.Parameters = op.InputSchema
		tools = append(tools, t)
	}

	payload := map[string]any{
		"model":    p.cfg.Model,
		"messages": reqMsgs,
	}
	if len(tools) > 0 {
		payload["tools"] = tools
	}
	if p.cfg.Temperature > 0 {
		payload["temperature"] = p.cfg.Temperature
	}
	if p.cfg.MaxTokens > 0 {
		payload["max_tokens"] = p.cfg.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return Completion{}, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return Completion{}, &CapabilityError{Provider: "openai", Transient: true, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Completion{}, &CapabilityError{
			Provider:  "openai",
			Status:    resp.StatusCode,
			Transient: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("%s", snippet),
		}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content   string         `json:"content"`
				ToolCalls []chatToolCall `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Completion{}, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return Completion{}, &CapabilityError{Provider: "openai", Err: fmt.Errorf("no choices")}
	}

	msg := out.Choices[0].Message
	comp := Completion{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}
	if len(msg.ToolCalls) > 0 {
		for _, tc := range msg.ToolCalls {
			comp.ToolCalls = append(comp.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
		return comp, nil
	}
	comp.Text = msg.Content
	return comp, nil
}
