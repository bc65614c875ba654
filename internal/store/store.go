package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/resumechat/resumechat/internal/resume"
)

// Store wraps the Postgres connection. All document writes go through
// SaveDocument so the version check and ledger insert stay in one
// transaction.
type Store struct {
	DB *sql.DB
}

// Message roles persisted in chat_messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Edit ledger actors.
const (
	ActorUser  = "user"
	ActorAgent = "agent"
)

// DocumentRecord is the persisted form of a resume document.
type DocumentRecord struct {
	ID        string
	UserID    string
	Version   int64
	Body      []byte
	UpdatedAt time.Time
}

// Document decodes the record into its domain form.
func (r DocumentRecord) Document() (resume.Document, error) {
	doc := resume.Document{ID: r.ID, UserID: r.UserID, Version: r.Version, UpdatedAt: r.UpdatedAt}
	if err := doc.UnmarshalBody(r.Body); err != nil {
		return resume.Document{}, err
	}
	return doc, nil
}

// EditRecordRow is one entry of the append-only edit ledger.
type EditRecordRow struct {
	ID            string
	DocumentID    string
	SessionID     string
	Operation     string
	Actor         string
	VersionBefore int64
	VersionAfter  int64
	Changes       []resume.FieldChange
	CreatedAt     time.Time
}

// SessionRecord is a persisted chat session.
type SessionRecord struct {
	ID           string
	UserID       string
	Title        string
	Status       string
	CreatedAt    time.Time
	LastActiveAt time.Time
	MessageCount int
}

// MessageRecord is one persisted chat message. Seq is a session-global
// monotonic ordinal used for windowing and compaction boundaries.
type MessageRecord struct {
	ID        string
	SessionID string
	Seq       int64
	Role      string
	Content   string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// Mutation describes one document write. ExpectedVersion 0 means the
// document must not exist yet. Actor defaults to ActorAgent.
type Mutation struct {
	SessionID       string
	Operation       string
	Actor           string
	ExpectedVersion int64
	Document        resume.Document
	Changes         []resume.FieldChange
}

// New opens the connection and verifies it.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id`,
		strings.ToLower(strings.TrimSpace(email)), hash).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", ErrEmailTaken
		}
		return "", err
	}
	return id, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email=$1`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return
}

// Document operations

// GetDocument fetches the user's resume. ErrNotFound means the user has no
// document yet; callers start from resume.Empty.
func (s *Store) GetDocument(ctx context.Context, userID string) (DocumentRecord, error) {
	var rec DocumentRecord
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, version, body, updated_at FROM resume_documents WHERE user_id=$1`,
		userID).Scan(&rec.ID, &rec.UserID, &rec.Version, &rec.Body, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentRecord{}, ErrNotFound
	}
	if err != nil {
		return DocumentRecord{}, err
	}
	return rec, nil
}

// SaveDocument applies one mutation under optimistic concurrency. The row
// update (or first insert) and the ledger entry commit together; any failure
// rolls both back. Version always advances by exactly 1.
func (s *Store) SaveDocument(ctx context.Context, userID string, mut Mutation) (DocumentRecord, error) {
	body, err := mut.Document.MarshalBody()
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("encode document: %w", err)
	}
	changes, err := json.Marshal(mut.Changes)
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("encode changes: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return DocumentRecord{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rec := DocumentRecord{UserID: userID, Body: body}
	if mut.ExpectedVersion == 0 {
		err = tx.QueryRowContext(ctx, `
INSERT INTO resume_documents (user_id, version, body)
VALUES ($1, 1, $2)
ON CONFLICT (user_id) DO NOTHING
RETURNING id, version, updated_at`, userID, body).Scan(&rec.ID, &rec.Version, &rec.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrVersionConflict
			return DocumentRecord{}, err
		}
		if err != nil {
			return DocumentRecord{}, err
		}
	} else {
		err = tx.QueryRowContext(ctx, `
UPDATE resume_documents SET body=$1, version=version+1, updated_at=NOW()
WHERE user_id=$2 AND version=$3
RETURNING id, version, updated_at`, body, userID, mut.ExpectedVersion).Scan(&rec.ID, &rec.Version, &rec.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			var current int64
			probe := tx.QueryRowContext(ctx, `SELECT version FROM resume_documents WHERE user_id=$1`, userID).Scan(&current)
			if errors.Is(probe, sql.ErrNoRows) {
				err = ErrNotFound
			} else if probe != nil {
				err = probe
			} else {
				err = ErrVersionConflict
			}
			return DocumentRecord{}, err
		}
		if err != nil {
			return DocumentRecord{}, err
		}
	}

	var sessionID sql.NullString
	if strings.TrimSpace(mut.SessionID) != "" {
		sessionID = sql.NullString{String: mut.SessionID, Valid: true}
	}
	actor := mut.Actor
	if actor == "" {
		actor = ActorAgent
	}
	if _, err = tx.ExecContext(ctx, `
INSERT INTO edit_records (document_id, session_id, operation, actor, version_before, version_after, changes)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, rec.ID, sessionID, mut.Operation, actor, rec.Version-1, rec.Version, changes); err != nil {
		return DocumentRecord{}, err
	}

	if err = tx.Commit(); err != nil {
		return DocumentRecord{}, err
	}
	return rec, nil
}

// ListEditRecords returns ledger entries for the user's document, newest
// first.
func (s *Store) ListEditRecords(ctx context.Context, userID string, limit, offset int) ([]EditRecordRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT e.id, e.document_id, COALESCE(e.session_id::text, ''), e.operation, e.actor, e.version_before, e.version_after, e.changes, e.created_at
FROM edit_records e
JOIN resume_documents d ON d.id = e.document_id
WHERE d.user_id = $1
ORDER BY e.version_after DESC
LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EditRecordRow
	for rows.Next() {
		var rec EditRecordRow
		var changes []byte
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.SessionID, &rec.Operation, &rec.Actor, &rec.VersionBefore, &rec.VersionAfter, &changes, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &rec.Changes); err != nil {
				return nil, fmt.Errorf("decode edit changes: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Session operations

func (s *Store) CreateSession(ctx context.Context, userID, title string) (SessionRecord, error) {
	var rec SessionRecord
	rec.UserID = userID
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO chat_sessions (user_id, title) VALUES ($1,$2)
RETURNING id, title, status, created_at, last_active_at`, userID, title).
		Scan(&rec.ID, &rec.Title, &rec.Status, &rec.CreatedAt, &rec.LastActiveAt)
	return rec, err
}

// GetSession fetches a session scoped to its owner.
func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.DB.QueryRowContext(ctx, `
SELECT s.id, s.user_id, s.title, s.status, s.created_at, s.last_active_at,
       (SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)
FROM chat_sessions s WHERE s.id=$1 AND s.user_id=$2`, sessionID, userID).
		Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Status, &rec.CreatedAt, &rec.LastActiveAt, &rec.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]SessionRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT s.id, s.user_id, s.title, s.status, s.created_at, s.last_active_at,
       (SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)
FROM chat_sessions s WHERE s.user_id=$1
ORDER BY s.last_active_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Status, &rec.CreatedAt, &rec.LastActiveAt, &rec.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TouchSession bumps last_active_at after a completed turn. A turn on an
// idle session reactivates it.
func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE chat_sessions SET last_active_at=NOW(), status='active' WHERE id=$1`, sessionID)
	return err
}

// DeleteSession removes the session; messages and summaries cascade.
func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE id=$1 AND user_id=$2`, sessionID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIdleSessionIDs returns active sessions last active before the cutoff.
// Used by the sweep job.
func (s *Store) ListIdleSessionIDs(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM chat_sessions WHERE status='active' AND last_active_at < $1`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkSessionsIdle flags sessions as idle without touching their messages.
// Sweep only.
func (s *Store) MarkSessionsIdle(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE chat_sessions SET status='idle' WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Message operations

// AppendMessage persists one message and returns it with its assigned seq.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]interface{}) (MessageRecord, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return MessageRecord{}, fmt.Errorf("encode metadata: %w", err)
	}
	rec := MessageRecord{SessionID: sessionID, Role: role, Content: content, Metadata: metadata}
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO chat_messages (session_id, role, content, metadata)
VALUES ($1,$2,$3,$4)
RETURNING id, seq, created_at`, sessionID, role, content, meta).
		Scan(&rec.ID, &rec.Seq, &rec.CreatedAt)
	return rec, err
}

// ListRecentMessages returns up to limit most recent messages in ascending
// seq order.
func (s *Store) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, session_id, seq, role, content, metadata, created_at
FROM (
  SELECT id, session_id, seq, role, content, metadata, created_at
  FROM chat_messages WHERE session_id=$1 ORDER BY seq DESC LIMIT $2
) recent ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListMessages pages through a session's history in ascending seq order.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]MessageRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, session_id, seq, role, content, metadata, created_at
FROM chat_messages WHERE session_id=$1
ORDER BY seq ASC LIMIT $2 OFFSET $3`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListMessagesUpTo returns every message with seq <= boundary in ascending
// order. Used to build compaction summaries.
func (s *Store) ListMessagesUpTo(ctx context.Context, sessionID string, boundarySeq int64) ([]MessageRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, session_id, seq, role, content, metadata, created_at
FROM chat_messages WHERE session_id=$1 AND seq <= $2
ORDER BY seq ASC`, sessionID, boundarySeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CountMessages returns the total message count for a session.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id=$1`, sessionID).Scan(&n)
	return n, err
}

func scanMessages(rows *sql.Rows) ([]MessageRecord, error) {
	var out []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var meta []byte
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Seq, &rec.Role, &rec.Content, &meta, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Compaction summaries

// GetSummary returns the memoised summary ending at boundarySeq, if any.
func (s *Store) GetSummary(ctx context.Context, sessionID string, boundarySeq int64) (string, error) {
	var summary string
	err := s.DB.QueryRowContext(ctx, `
SELECT summary FROM compaction_summaries
WHERE session_id=$1 AND boundary_seq=$2`, sessionID, boundarySeq).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return summary, err
}

// SaveSummary stores a compaction summary for its boundary. Concurrent
// writers of the same boundary are harmless; first write wins.
func (s *Store) SaveSummary(ctx context.Context, sessionID string, boundarySeq int64, summary string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO compaction_summaries (session_id, boundary_seq, summary)
VALUES ($1,$2,$3)
ON CONFLICT (session_id, boundary_seq) DO NOTHING`, sessionID, boundarySeq, summary)
	return err
}
