package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/resumechat/resumechat/config"
	"github.com/resumechat/resumechat/internal/catalog"
	"github.com/resumechat/resumechat/internal/store"
)

const capFallbackReply = "I couldn't finish that request within my step limit. Please try splitting it into smaller changes."

const degradedReply = "I'm having trouble reaching my language model right now. Your message was saved; please try again in a moment."

// Engine runs chat turns: persist the user message, assemble context, loop
// model completions against the operation catalog, persist exactly one
// assistant message. Turns within a session are serialized in-process;
// cross-instance races are caught by the document version check.
type Engine struct {
	store  *store.Store
	exec   *catalog.Executor
	cap    Capability
	asm    *Assembler
	cfg    config.AgentConfig
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// TurnResult reports one completed turn. NewDocumentVersion is zero when no
// edit landed during the turn.
type TurnResult struct {
	UserMessage        store.MessageRecord
	AssistantMessage   store.MessageRecord
	Iterations         int
	CapExceeded        bool
	NewDocumentVersion int64
}

func NewEngine(st *store.Store, exec *catalog.Executor, capability Capability, asm *Assembler, cfg config.AgentConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:  st,
		exec:   exec,
		cap:    capability,
		asm:    asm,
		cfg:    cfg,
		logger: logger,
		locks:  make(map[string]*sessionLock),
	}
}

// lockSession serializes turns per session. Entries are dropped when the
// last holder releases.
func (e *Engine) lockSession(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sessionLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

// HandleTurn processes one user message end to end. On iteration cap the
// assistant message is a fixed fallback and CapExceeded is set; the caller
// still gets a complete result.
func (e *Engine) HandleTurn(ctx context.Context, userID, sessionID, text string) (TurnResult, error) {
	unlock := e.lockSession(sessionID)
	defer unlock()

	if e.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TurnTimeout)
		defer cancel()
	}

	started := time.Now()
	result := TurnResult{}

	userMsg, err := e.store.AppendMessage(ctx, sessionID, store.RoleUser, text, nil)
	if err != nil {
		turnsTotal.WithLabelValues("store_error").Inc()
		return result, err
	}
	result.UserMessage = userMsg

	msgs, err := e.asm.Assemble(ctx, userID, sessionID)
	if err != nil {
		turnsTotal.WithLabelValues("store_error").Inc()
		return result, err
	}

	ops := catalog.Catalog()
	var trace []map[string]any
	var promptTokens, completionTokens int64

	for iter := 1; iter <= e.cfg.MaxIterations; iter++ {
		result.Iterations = iter

		comp, err := e.complete(ctx, msgs, ops)
		if err != nil {
			turnsTotal.WithLabelValues("capability_error").Inc()
			var capErr *CapabilityError
			if errors.As(err, &capErr) {
				// Provider is down after the retry. End the turn with a
				// degraded reply so the session still reads coherently.
				assistant, perr := e.finishTurn(ctx, sessionID, degradedReply, iter, trace, promptTokens, completionTokens, false)
				if perr != nil {
					e.logger.Printf("[AGENT] session %s: persisting degraded reply failed: %v", sessionID, perr)
					return result, err
				}
				result.AssistantMessage = assistant
			}
			return result, err
		}
		promptTokens += comp.PromptTokens
		completionTokens += comp.CompletionTokens

		if len(comp.ToolCalls) == 0 {
			assistant, err := e.finishTurn(ctx, sessionID, comp.Text, iter, trace, promptTokens, completionTokens, false)
			if err != nil {
				turnsTotal.WithLabelValues("store_error").Inc()
				return result, err
			}
			result.AssistantMessage = assistant
			turnsTotal.WithLabelValues("ok").Inc()
			turnDuration.Observe(time.Since(started).Seconds())
			return result, nil
		}

		msgs = append(msgs, Message{Role: RoleAssistant, ToolCalls: comp.ToolCalls})
		for _, tc := range comp.ToolCalls {
			outcome, entry, err := e.dispatch(ctx, userID, sessionID, tc)
			if err != nil {
				turnsTotal.WithLabelValues("store_error").Inc()
				return result, err
			}
			trace = append(trace, entry)
			if v, ok := entry["version"].(int64); ok {
				result.NewDocumentVersion = v
			}
			msgs = append(msgs, Message{Role: RoleTool, ToolCallID: tc.ID, Content: outcome})
		}
	}

	// Model never produced final text. Persist the fallback so the turn
	// still ends with exactly one assistant message.
	assistant, err := e.finishTurn(ctx, sessionID, capFallbackReply, e.cfg.MaxIterations, trace, promptTokens, completionTokens, true)
	if err != nil {
		turnsTotal.WithLabelValues("store_error").Inc()
		return result, err
	}
	result.AssistantMessage = assistant
	result.CapExceeded = true
	turnsTotal.WithLabelValues("iteration_cap").Inc()
	turnDuration.Observe(time.Since(started).Seconds())
	return result, ErrIterationCap
}

// complete invokes the model, retrying once on a transient provider failure.
func (e *Engine) complete(ctx context.Context, msgs []Message, ops []catalog.OpDesc) (Completion, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		comp, err := e.cap.Complete(ctx, msgs, ops)
		capabilityLatency.Observe(time.Since(start).Seconds())
		if err == nil {
			return comp, nil
		}
		var capErr *CapabilityError
		if errors.As(err, &capErr) && capErr.Transient && attempt == 0 && ctx.Err() == nil {
			e.logger.Printf("[AGENT] transient capability failure, retrying: %v", err)
			continue
		}
		return Completion{}, err
	}
}

// dispatch executes one tool call. Validation failures, unknown entities,
// and exhausted version conflicts are reported back to the model as
// structured tool output; infrastructure errors abort the turn.
func (e *Engine) dispatch(ctx context.Context, userID, sessionID string, tc ToolCall) (string, map[string]any, error) {
	entry := map[string]any{"operation": tc.Name, "arguments": json.RawMessage(tc.Arguments)}

	result, err := e.exec.Execute(ctx, userID, sessionID, tc.Name, tc.Arguments)
	switch {
	case err == nil:
		entry["status"] = "ok"
		// Mutations carry status "ok"; reads and no-op edits do not bump
		// the document version.
		if st, _ := result["status"].(string); st == "ok" {
			if v, ok := result["version"].(int64); ok {
				entry["version"] = v
			}
		}
		operationsTotal.WithLabelValues(tc.Name, "ok").Inc()
		return encodeToolResult(result), entry, nil

	case isValidationError(err):
		entry["status"] = "invalid"
		entry["error"] = err.Error()
		operationsTotal.WithLabelValues(tc.Name, "invalid").Inc()
		return encodeToolResult(map[string]any{"error": "validation", "message": err.Error()}), entry, nil

	case errors.Is(err, store.ErrVersionConflict):
		entry["status"] = "conflict"
		entry["error"] = err.Error()
		operationsTotal.WithLabelValues(tc.Name, "conflict").Inc()
		versionConflicts.Inc()
		return encodeToolResult(map[string]any{"error": "version_conflict", "message": "the document changed concurrently; read it again before editing"}), entry, nil

	case errors.Is(err, store.ErrNotFound):
		entry["status"] = "not_found"
		entry["error"] = err.Error()
		operationsTotal.WithLabelValues(tc.Name, "not_found").Inc()
		return encodeToolResult(map[string]any{"error": "not_found", "message": err.Error()}), entry, nil

	default:
		operationsTotal.WithLabelValues(tc.Name, "error").Inc()
		return "", nil, err
	}
}

func (e *Engine) finishTurn(ctx context.Context, sessionID, text string, iterations int, trace []map[string]any, promptTokens, completionTokens int64, capExceeded bool) (store.MessageRecord, error) {
	meta := map[string]interface{}{
		"iterations":        iterations,
		"prompt_tokens":     promptTokens,
		"completion_tokens": completionTokens,
	}
	if len(trace) > 0 {
		meta["tool_calls"] = trace
	}
	if capExceeded {
		meta["iteration_cap_exceeded"] = true
	}
	assistant, err := e.store.AppendMessage(ctx, sessionID, store.RoleAssistant, text, meta)
	if err != nil {
		return store.MessageRecord{}, err
	}
	if err := e.store.TouchSession(ctx, sessionID); err != nil {
		return store.MessageRecord{}, err
	}
	return assistant, nil
}

func isValidationError(err error) bool {
	var ve *catalog.ValidationError
	return errors.As(err, &ve)
}

func encodeToolResult(v map[string]any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return `{"error":"encoding","message":"unserializable tool result"}`
	}
	return string(raw)
}
