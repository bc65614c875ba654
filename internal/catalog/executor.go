package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/resumechat/resumechat/internal/resume"
	"github.com/resumechat/resumechat/internal/search"
	"github.com/resumechat/resumechat/internal/store"
)

// Executor binds the operation catalog to the document store. Mutating
// operations run read-modify-write under the store's version check, with one
// re-read retry when a concurrent writer got there first.
type Executor struct {
	store  *store.Store
	logger *log.Logger
}

func NewExecutor(st *store.Store, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{store: st, logger: logger}
}

// Execute dispatches one operation call. Returned maps are serialized back
// to the model verbatim.
func (e *Executor) Execute(ctx context.Context, userID, sessionID, name string, args json.RawMessage) (map[string]any, error) {
	switch name {
	case OpResumeRead:
		return e.opResumeRead(ctx, userID)
	case OpResumeReadSection:
		return e.opReadSection(ctx, userID, args)
	case OpSummaryUpdate:
		return e.opSummaryUpdate(ctx, userID, sessionID, args)
	case OpContactUpdate:
		return e.opContactUpdate(ctx, userID, sessionID, args)
	case OpExperienceAdd:
		return e.opExperienceAdd(ctx, userID, sessionID, args)
	case OpExperienceUpdate:
		return e.opExperienceUpdate(ctx, userID, sessionID, args)
	case OpExperienceRemove:
		return e.opExperienceRemove(ctx, userID, sessionID, args)
	case OpEducationAdd:
		return e.opEducationAdd(ctx, userID, sessionID, args)
	case OpEducationUpdate:
		return e.opEducationUpdate(ctx, userID, sessionID, args)
	case OpEducationRemove:
		return e.opEducationRemove(ctx, userID, sessionID, args)
	case OpSkillsAdd:
		return e.opSkills(ctx, userID, sessionID, OpSkillsAdd, args)
	case OpSkillsRemove:
		return e.opSkills(ctx, userID, sessionID, OpSkillsRemove, args)
	case OpResumeSearch:
		return e.opResumeSearch(ctx, userID, args)
	default:
		return nil, invalid(name, "", "unknown operation")
	}
}

// loadDocument returns the user's document, or the empty zero-version
// document when none exists yet.
func (e *Executor) loadDocument(ctx context.Context, userID string) (resume.Document, error) {
	rec, err := e.store.GetDocument(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return resume.Empty(userID), nil
	}
	if err != nil {
		return resume.Document{}, err
	}
	return rec.Document()
}

// mutate runs one read-modify-write cycle. apply edits the document in place
// and may return extra result fields. A stale-version commit triggers one
// re-read and re-apply; a second conflict surfaces to the caller.
func (e *Executor) mutate(ctx context.Context, userID, sessionID, op string, apply func(doc *resume.Document) (map[string]any, error)) (map[string]any, error) {
	for attempt := 0; ; attempt++ {
		current, err := e.loadDocument(ctx, userID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		extra, err := apply(&next)
		if err != nil {
			return nil, err
		}

		changes := resume.Diff(current, next)
		if len(changes) == 0 {
			result := map[string]any{"status": "no_change", "version": current.Version}
			for k, v := range extra {
				result[k] = v
			}
			return result, nil
		}

		rec, err := e.store.SaveDocument(ctx, userID, store.Mutation{
			SessionID:       sessionID,
			Operation:       op,
			Actor:           store.ActorAgent,
			ExpectedVersion: current.Version,
			Document:        next,
			Changes:         changes,
		})
		if errors.Is(err, store.ErrVersionConflict) && attempt == 0 {
			e.logger.Printf("[CATALOG] %s: version conflict at v%d, retrying", op, current.Version)
			continue
		}
		if err != nil {
			// A cancelled write may still have landed. Probe before
			// reporting failure so the model never re-applies a
			// mutation that already took.
			if ctx.Err() != nil {
				if res, ok := e.resolveUnknown(userID, next, current.Version, changes, extra); ok {
					e.logger.Printf("[CATALOG] %s: write landed despite %v", op, ctx.Err())
					return res, nil
				}
			}
			return nil, err
		}

		result := map[string]any{"status": "ok", "version": rec.Version, "changes": changes}
		for k, v := range extra {
			result[k] = v
		}
		return result, nil
	}
}

// resolveUnknown re-reads the document on a fresh context after an
// interrupted commit. The write counts as landed when the stored version is
// exactly expected+1 and the stored body matches what we tried to write.
func (e *Executor) resolveUnknown(userID string, next resume.Document, expected int64, changes []resume.FieldChange, extra map[string]any) (map[string]any, bool) {
	probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stored, err := e.loadDocument(probeCtx, userID)
	if err != nil {
		return nil, false
	}
	if stored.Version != expected+1 || len(resume.Diff(stored, next)) != 0 {
		return nil, false
	}
	result := map[string]any{"status": "ok", "version": stored.Version, "changes": changes}
	for k, v := range extra {
		result[k] = v
	}
	return result, true
}

func (e *Executor) opResumeRead(ctx context.Context, userID string) (map[string]any, error) {
	doc, err := e.loadDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"version":    doc.Version,
		"exists":     doc.Version > 0,
		"contact":    doc.Contact,
		"summary":    doc.Summary,
		"experience": doc.Experience,
		"skills":     doc.Skills,
		"education":  doc.Education,
	}, nil
}

func (e *Executor) opReadSection(ctx context.Context, userID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Section string `json:"section"`
	}
	if err := decode(OpResumeReadSection, args, &in); err != nil {
		return nil, err
	}
	doc, err := e.loadDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	view, err := doc.Section(in.Section)
	if err != nil {
		return nil, invalid(OpResumeReadSection, "section", err.Error())
	}
	return map[string]any{"section": view.Section, "data": view.Data, "version": doc.Version}, nil
}

func (e *Executor) opSummaryUpdate(ctx context.Context, userID, sessionID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Summary string `json:"summary"`
	}
	if err := decode(OpSummaryUpdate, args, &in); err != nil {
		return nil, err
	}
	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		return nil, invalid(OpSummaryUpdate, "summary", "must not be empty")
	}
	return e.mutate(ctx, userID, sessionID, OpSummaryUpdate, func(doc *resume.Document) (map[string]any, error) {
		doc.Summary = summary
		return nil, nil
	})
}

func (e *Executor) opContactUpdate(ctx context.Context, userID, sessionID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Name     *string `json:"name"`
		Title    *string `json:"title"`
		Email    *string `json:"email"`
		Phone    *string `json:"phone"`
		Location *string `json:"location"`
		LinkedIn *string `json:"linkedin"`
		Website  *string `json:"website"`
	}
	if err := decode(OpContactUpdate, args, &in); err != nil {
		return nil, err
	}
	if in.Name == nil && in.Title == nil && in.Email == nil && in.Phone == nil &&
		in.Location == nil && in.LinkedIn == nil && in.Website == nil {
		return nil, invalid(OpContactUpdate, "", "at least one field is required")
	}
	return e.mutate(ctx, userID, sessionID, OpContactUpdate, func(doc *resume.Document) (map[string]any, error) {
		setIf(&doc.Contact.Name, in.Name)
		setIf(&doc.Contact.Title, in.Title)
		setIf(&doc.Contact.Email, in.Email)
		setIf(&doc.Contact.Phone, in.Phone)
		setIf(&doc.Contact.Location, in.Location)
		setIf(&doc.Contact.LinkedIn, in.LinkedIn)
		setIf(&doc.Contact.Website, in.Website)
		return nil, nil
	})
}

func (e *Executor) opExperienceAdd(ctx context.Context, userID, sessionID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Company     string `json:"company"`
		Role        string `json:"role"`
		Duration    string `json:"duration"`
		Description string `json:"description"`
		Location    string `json:"location"`
	}
	if err := decode(OpExperienceAdd, args, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Company) == "" {
		return nil, invalid(OpExperienceAdd, "company", "must not be empty")
	}
	if strings.TrimSpace(in.Role) == "" {
		return nil, invalid(OpExperienceAdd, "role", "must not be empty")
	}
	duration, err := resume.NormalizeDuration(in.Duration)
	if err != nil {
		return nil, invalid(OpExperienceAdd, "duration", err.Error())
	}
	id := uuid.NewString()
	return e.mutate(ctx, userID, sessionID, OpExperienceAdd, func(doc *resume.Document) (map[string]any, error) {
		doc.Experience = append(doc.Experience, resume.ExperienceEntry{
			ID:          id,
			Company:     strings.TrimSpace(in.Company),
			Role:        strings.TrimSpace(in.Role),
			Duration:    duration,
			Description: strings.TrimSpace(in.Description),
			Location:    strings.TrimSpace(in.Location),
		})
		return map[string]any{"id": id}, nil
	})
}

func (e *Executor) opExperienceUpdate(ctx context.Context, userID, sessionID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		ID          string  `json:"id"`
		Company     *string `json:"company"`
		Role        *string `json:"role"`
		Duration    *string `json:"duration"`
		Description *string `json:"description"`
		Location    *string `json:"location"`
	}
	if err := decode(OpExperienceUpdate, args, &in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, invalid(OpExperienceUpdate, "id", "is required")
	}
	var duration string
	if in.Duration != nil {
		var err error
		if duration, err = resume.NormalizeDuration(*in.Duration); err != nil {
			return nil, invalid(OpExperienceUpdate, "duration", err.Error())
		}
	}
	return e.mutate(ctx, userID, sessionID, OpExperienceUpdate, func(doc *resume.Document) (map[string]any, error) {
		i := doc.ExperienceByID(in.ID)
		if i < 0 {
			return nil, invalid(OpExperienceUpdate, "id", fmt.Sprintf("no experience entry %s", in.ID))
		}
		entry := &doc.Experience[i]
		setIf(&entry.Company, in.Company)
		setIf(&entry.Role, in.Role)
		if in.Duration != nil {
			entry.Duration = duration
		}
		setIf(&entry.Description, in.Description)
		setIf(&entry.Location, in.Location)
		return map[string]any{"id": in.ID}, nil
	})
}

func (e *Executor) opExperienceRemove(ctx context.Context, userID, sessionID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decode(OpExperienceRemove, args, &in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, invalid(OpExperienceRemove, "id", "is required")
	}
	return e.mutate(ctx, userID, sessionID, OpExperienceRemove, func(doc *resume.Document) (map[string]any, error) {
		i := doc.ExperienceByID(in.ID)
		if i < 0 {
			return nil, invalid(OpExperienceRemove, "id", fmt.Sprintf("no experience entry %s", in.ID))
		}
		doc.Experience = append(doc.Experience[:i], doc.Experience[i+1:]...)
		return map[string]any{"id": in.ID}, nil
	})
}

func (e *Executor) opEducationAdd(ctx context.Context, userID, sessionID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		School   string `json:"school"`
		Degree   string `json:"degree"`
		Duration string `json:"duration"`
		Notes    string `json:"notes"`
	}
	if err := decode(OpEducationAdd, args, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.School) == "" {
		return nil, invalid(OpEducationAdd, "school", "must not be empty")
	}
	if strings.TrimSpace(in.Degree) == "" {
		return nil, invalid(OpEducationAdd, "degree", "must not be empty")
	}
	duration, err := resume.NormalizeDuration(in.Duration)
	if err != nil {
		return nil, invalid(OpEducationAdd, "duration", err.Error())
	}
	id := uuid.NewString()
	return e.mutate(ctx, userID, sessionID, OpEducationAdd, func(doc *resume.Document) (map[string]any, error) {
		doc.Education = append(doc.Education, resume.EducationEntry{
			ID:       id,
			School:   strings.TrimSpace(in.School),
			Degree:   strings.TrimSpace(in.Degree),
			Duration: duration,
			Notes:    strings.TrimSpace(in.Notes),
		})
		return map[string]any{"id": id}, nil
	})
}

func (e *Executor) opEducationUpdate(ctx context.Context, userID, sessionID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		ID       string  `json:"id"`
		School   *string `json:"school"`
		Degree   *string `json:"degree"`
		Duration *string `json:"duration"`
		Notes    *string `json:"notes"`
	}
	if err := decode(OpEducationUpdate, args, &in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, invalid(OpEducationUpdate, "id", "is required")
	}
	var duration string
	if in.Duration != nil {
		var err error
		if duration, err = resume.NormalizeDuration(*in.Duration); err != nil {
			return nil, invalid(OpEducationUpdate, "duration", err.Error())
		}
	}
	return e.mutate(ctx, userID, sessionID, OpEducationUpdate, func(doc *resume.Document) (map[string]any, error) {
		i := doc.EducationByID(in.ID)
		if i < 0 {
			return nil, invalid(OpEducationUpdate, "id", fmt.Sprintf("no education entry %s", in.ID))
		}
		entry := &doc.Education[i]
		setIf(&entry.School, in.School)
		setIf(&entry.Degree, in.Degree)
		if in.Duration != nil {
			entry.Duration = duration
		}
		setIf(&entry.Notes, in.Notes)
		return map[string]any{"id": in.ID}, nil
	})
}

func (e *Executor) opEducationRemove(ctx context.Context, userID, sessionID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decode(OpEducationRemove, args, &in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, invalid(OpEducationRemove, "id", "is required")
	}
	return e.mutate(ctx, userID, sessionID, OpEducationRemove, func(doc *resume.Document) (map[string]any, error) {
		i := doc.EducationByID(in.ID)
		if i < 0 {
			return nil, invalid(OpEducationRemove, "id", fmt.Sprintf("no education entry %s", in.ID))
		}
		doc.Education = append(doc.Education[:i], doc.Education[i+1:]...)
		return map[string]any{"id": in.ID}, nil
	})
}

func (e *Executor) opSkills(ctx context.Context, userID, sessionID, op string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Category string   `json:"category"`
		Skills   []string `json:"skills"`
	}
	if err := decode(op, args, &in); err != nil {
		return nil, err
	}
	if !resume.ValidSkillCategory(in.Category) {
		return nil, invalid(op, "category", "must be technical or soft")
	}
	if len(in.Skills) == 0 {
		return nil, invalid(op, "skills", "must not be empty")
	}
	return e.mutate(ctx, userID, sessionID, op, func(doc *resume.Document) (map[string]any, error) {
		list := &doc.Skills.Technical
		if in.Category == resume.SkillSoft {
			list = &doc.Skills.Soft
		}
		if op == OpSkillsAdd {
			merged, added := resume.MergeSkills(*list, in.Skills)
			*list = merged
			return map[string]any{"added": added, "skipped": len(in.Skills) - len(added)}, nil
		}
		remaining, removed := resume.RemoveSkills(*list, in.Skills)
		*list = remaining
		return map[string]any{"removed": removed}, nil
	})
}

func (e *Executor) opResumeSearch(ctx context.Context, userID string, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := decode(OpResumeSearch, args, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, invalid(OpResumeSearch, "query", "must not be empty")
	}
	if in.K <= 0 {
		in.K = 5
	}
	doc, err := e.loadDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	hits, err := search.Search(doc, in.Query, in.K)
	if err != nil {
		return nil, fmt.Errorf("resume search: %w", err)
	}
	return map[string]any{"query": in.Query, "hits": hits, "version": doc.Version}, nil
}

func decode(op string, args json.RawMessage, out interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, out); err != nil {
		return invalid(op, "", "malformed arguments: "+err.Error())
	}
	return nil
}

func setIf(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
