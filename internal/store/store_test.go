package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/resumechat/resumechat/internal/resume"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

var (
	updateDocQuery = regexp.QuoteMeta(`
UPDATE resume_documents SET body=$1, version=version+1, updated_at=NOW()
WHERE user_id=$2 AND version=$3
RETURNING id, version, updated_at`)
	insertDocQuery = regexp.QuoteMeta(`
INSERT INTO resume_documents (user_id, version, body)
VALUES ($1, 1, $2)
ON CONFLICT (user_id) DO NOTHING
RETURNING id, version, updated_at`)
	insertEditQuery = regexp.QuoteMeta(`
INSERT INTO edit_records (document_id, session_id, operation, actor, version_before, version_after, changes)
VALUES ($1,$2,$3,$4,$5,$6,$7)`)
)

func TestSaveDocumentBumpsVersionAndWritesLedger(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()

	doc := resume.Empty("user-1")
	doc.Summary = "Backend engineer."
	doc.Version = 3

	mock.ExpectBegin()
	mock.ExpectQuery(updateDocQuery).
		WithArgs(sqlmock.AnyArg(), "user-1", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "updated_at"}).AddRow("doc-1", int64(4), now))
	mock.ExpectExec(insertEditQuery).
		WithArgs("doc-1", sqlmock.AnyArg(), "summary_update", ActorAgent, int64(3), int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := st.SaveDocument(context.Background(), "user-1", Mutation{
		SessionID:       "sess-1",
		Operation:       "summary_update",
		ExpectedVersion: 3,
		Document:        doc,
		Changes:         []resume.FieldChange{{Path: "summary", After: "Backend engineer."}},
	})
	if err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if rec.Version != 4 {
		t.Fatalf("version = %d, want 4", rec.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveDocumentFirstWriteInserts(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()

	doc := resume.Empty("user-1")
	doc.Summary = "New summary."

	mock.ExpectBegin()
	mock.ExpectQuery(insertDocQuery).
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "updated_at"}).AddRow("doc-1", int64(1), now))
	mock.ExpectExec(insertEditQuery).
		WithArgs("doc-1", sqlmock.AnyArg(), "summary_update", ActorAgent, int64(0), int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := st.SaveDocument(context.Background(), "user-1", Mutation{
		Operation: "summary_update",
		Document:  doc,
		Changes:   []resume.FieldChange{{Path: "summary", After: "New summary."}},
	})
	if err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("version = %d, want 1", rec.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveDocumentStaleVersionConflicts(t *testing.T) {
	st, mock := newMockStore(t)

	doc := resume.Empty("user-1")
	doc.Version = 2

	mock.ExpectBegin()
	mock.ExpectQuery(updateDocQuery).
		WithArgs(sqlmock.AnyArg(), "user-1", int64(2)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM resume_documents WHERE user_id=$1`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(5)))
	mock.ExpectRollback()

	_, err := st.SaveDocument(context.Background(), "user-1", Mutation{
		Operation:       "summary_update",
		ExpectedVersion: 2,
		Document:        doc,
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveDocumentMissingRowIsNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	doc := resume.Empty("user-1")
	doc.Version = 2

	mock.ExpectBegin()
	mock.ExpectQuery(updateDocQuery).
		WithArgs(sqlmock.AnyArg(), "user-1", int64(2)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM resume_documents WHERE user_id=$1`)).
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := st.SaveDocument(context.Background(), "user-1", Mutation{
		Operation:       "summary_update",
		ExpectedVersion: 2,
		Document:        doc,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveDocumentLedgerFailureRollsBack(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()

	doc := resume.Empty("user-1")
	doc.Version = 1

	mock.ExpectBegin()
	mock.ExpectQuery(updateDocQuery).
		WithArgs(sqlmock.AnyArg(), "user-1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "updated_at"}).AddRow("doc-1", int64(2), now))
	mock.ExpectExec(insertEditQuery).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := st.SaveDocument(context.Background(), "user-1", Mutation{
		Operation:       "summary_update",
		ExpectedVersion: 1,
		Document:        doc,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, version, body, updated_at FROM resume_documents WHERE user_id=$1`)).
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)

	_, err := st.GetDocument(context.Background(), "user-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteSessionNotOwned(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM chat_sessions WHERE id=$1 AND user_id=$2`)).
		WithArgs("sess-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.DeleteSession(context.Background(), "user-2", "sess-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendMessageAssignsSeq(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO chat_messages (session_id, role, content, metadata)
VALUES ($1,$2,$3,$4)
RETURNING id, seq, created_at`)).
		WithArgs("sess-1", RoleUser, "hello", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seq", "created_at"}).AddRow("msg-1", int64(7), now))

	rec, err := st.AppendMessage(context.Background(), "sess-1", RoleUser, "hello", nil)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if rec.Seq != 7 {
		t.Fatalf("seq = %d, want 7", rec.Seq)
	}
}

func TestGetSummaryMiss(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT summary FROM compaction_summaries
WHERE session_id=$1 AND boundary_seq=$2`)).
		WithArgs("sess-1", int64(20)).
		WillReturnError(sql.ErrNoRows)

	_, err := st.GetSummary(context.Background(), "sess-1", 20)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
