package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/resumechat/resumechat/config"
	"github.com/resumechat/resumechat/internal/resume"
	"github.com/resumechat/resumechat/internal/store"
)

const systemPreamble = `You are a resume editing assistant. You help the user build and refine their resume through conversation.

Rules:
- Use the provided tools to read and edit the resume. Never invent resume content the user did not give you.
- Read before you write when you need current values or entry ids.
- Experience and education entries are addressed by id, never by position.
- After editing, confirm to the user what changed in one or two sentences.
- If a tool reports a validation problem, fix your arguments and try again, or ask the user for the missing detail.`

// Assembler builds the model conversation for a turn: preamble with the
// document outline, at most one compaction summary, and the recent message
// window. Full document content never enters the context; the model pulls
// values through read operations.
type Assembler struct {
	store  *store.Store
	cap    Capability
	cfg    config.ContextConfig
	logger *log.Logger
}

func NewAssembler(st *store.Store, capability Capability, cfg config.ContextConfig, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.Default()
	}
	return &Assembler{store: st, cap: capability, cfg: cfg, logger: logger}
}

// Assemble returns the conversation to hand to the model. The just-persisted
// user message is expected to be the newest row in the session.
func (a *Assembler) Assemble(ctx context.Context, userID, sessionID string) ([]Message, error) {
	doc, err := a.loadDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	outline, err := json.Marshal(doc.Outline())
	if err != nil {
		return nil, fmt.Errorf("encode outline: %w", err)
	}

	msgs := []Message{{
		Role:    RoleSystem,
		Content: systemPreamble + "\n\nResume structure (counts only, use tools for content):\n" + string(outline),
	}}

	recent, err := a.store.ListRecentMessages(ctx, sessionID, a.cfg.RecentWindow)
	if err != nil {
		return nil, err
	}

	total, err := a.store.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if total > a.cfg.CompactThreshold && len(recent) > 0 {
		summary, err := a.summaryBefore(ctx, sessionID, recent[0].Seq-1)
		if err != nil {
			return nil, err
		}
		if summary != "" {
			msgs = append(msgs, Message{
				Role:    RoleSystem,
				Content: "Summary of the earlier conversation:\n" + summary,
			})
		}
	}

	for _, m := range recent {
		msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
	}
	return msgs, nil
}

func (a *Assembler) loadDocument(ctx context.Context, userID string) (resume.Document, error) {
	rec, err := a.store.GetDocument(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return resume.Empty(userID), nil
	}
	if err != nil {
		return resume.Document{}, err
	}
	return rec.Document()
}

// summaryBefore returns the compaction summary covering seq <= boundary,
// generating and memoising it on first use. Concurrent generators race
// benignly; the stored row wins.
func (a *Assembler) summaryBefore(ctx context.Context, sessionID string, boundary int64) (string, error) {
	if boundary <= 0 {
		return "", nil
	}
	summary, err := a.store.GetSummary(ctx, sessionID, boundary)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	older, err := a.store.ListMessagesUpTo(ctx, sessionID, boundary)
	if err != nil {
		return "", err
	}
	if len(older) == 0 {
		return "", nil
	}

	summary, err = a.summarize(ctx, older)
	if err != nil {
		// A failed summary should not sink the turn; proceed with the
		// recent window only.
		a.logger.Printf("[AGENT] compaction summary failed for session %s: %v", sessionID, err)
		return "", nil
	}
	if err := a.store.SaveSummary(ctx, sessionID, boundary, summary); err != nil {
		return "", err
	}
	return summary, nil
}

func (a *Assembler) summarize(ctx context.Context, msgs []store.MessageRecord) (string, error) {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	prompt := []Message{
		{Role: RoleSystem, Content: "Summarize this resume-editing conversation in under 200 words. Keep decisions made, edits applied, and the user's stated preferences. Drop pleasantries."},
		{Role: RoleUser, Content: sb.String()},
	}
	comp, err := a.cap.Complete(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	if comp.Text == "" {
		return "", fmt.Errorf("empty summary")
	}
	return comp.Text, nil
}
