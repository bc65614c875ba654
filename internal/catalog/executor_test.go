package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/resumechat/resumechat/internal/store"
)

var (
	execUpdateDocQuery = regexp.QuoteMeta(`
UPDATE resume_documents SET body=$1, version=version+1, updated_at=NOW()
WHERE user_id=$2 AND version=$3
RETURNING id, version, updated_at`)
	execInsertEditQuery = regexp.QuoteMeta(`
INSERT INTO edit_records (document_id, session_id, operation, actor, version_before, version_after, changes)
VALUES ($1,$2,$3,$4,$5,$6,$7)`)
	execProbeVersionQuery = regexp.QuoteMeta(`SELECT version FROM resume_documents WHERE user_id=$1`)
)

func newMockExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewExecutor(&store.Store{DB: db}, nil), mock
}

func TestCatalogNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Catalog() {
		if seen[d.Name] {
			t.Fatalf("duplicate operation %s", d.Name)
		}
		seen[d.Name] = true
		if d.Description == "" {
			t.Errorf("%s has no description", d.Name)
		}
		if d.InputSchema["type"] != "object" {
			t.Errorf("%s schema is not an object", d.Name)
		}
	}
}

func TestExecuteUnknownOperation(t *testing.T) {
	exec, _ := newMockExecutor(t)
	_, err := exec.Execute(context.Background(), "u", "s", "resume_delete", nil)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestValidationRejectsBeforeAnyQuery(t *testing.T) {
	exec, mock := newMockExecutor(t)
	ctx := context.Background()

	cases := []struct {
		op   string
		args string
	}{
		{OpSummaryUpdate, `{"summary":"   "}`},
		{OpExperienceAdd, `{"company":"Acme","role":"Eng","duration":"whenever"}`},
		{OpExperienceAdd, `{"company":"","role":"Eng","duration":"2020 - 2021"}`},
		{OpExperienceUpdate, `{"company":"Acme"}`},
		{OpSkillsAdd, `{"category":"languages","skills":["Go"]}`},
		{OpSkillsAdd, `{"category":"technical","skills":[]}`},
		{OpResumeSearch, `{"query":""}`},
		{OpContactUpdate, `{}`},
		{OpEducationRemove, `{}`},
	}
	for _, tc := range cases {
		_, err := exec.Execute(ctx, "u", "s", tc.op, json.RawMessage(tc.args))
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s %s: err = %v, want ValidationError", tc.op, tc.args, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database traffic: %v", err)
	}
}

func TestSkillsAddMergesAndRecordsEdit(t *testing.T) {
	exec, mock := newMockExecutor(t)
	now := time.Now()

	body := `{"contact":{"name":"","title":"","email":""},"summary":"","experience":[],"skills":{"technical":["Go"],"soft":[]},"education":[]}`
	expectGetDocument(mock, "u", body, 2, now)

	mock.ExpectBegin()
	mock.ExpectQuery(execUpdateDocQuery).
		WithArgs(sqlmock.AnyArg(), "u", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "updated_at"}).AddRow("doc-1", int64(3), now))
	mock.ExpectExec(execInsertEditQuery).
		WithArgs("doc-1", sqlmock.AnyArg(), OpSkillsAdd, store.ActorAgent, int64(2), int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := exec.Execute(context.Background(), "u", "s", OpSkillsAdd,
		json.RawMessage(`{"category":"technical","skills":["go","Python"]}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["status"] != "ok" {
		t.Fatalf("result = %v", result)
	}
	if result["version"] != int64(3) {
		t.Fatalf("version = %v", result["version"])
	}
	added, _ := result["added"].([]string)
	if len(added) != 1 || added[0] != "Python" {
		t.Fatalf("added = %v", result["added"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSkillsAddAllDuplicatesIsNoWrite(t *testing.T) {
	exec, mock := newMockExecutor(t)
	now := time.Now()

	body := `{"contact":{"name":"","title":"","email":""},"summary":"","experience":[],"skills":{"technical":["Go","Python"],"soft":[]},"education":[]}`
	expectGetDocument(mock, "u", body, 2, now)

	result, err := exec.Execute(context.Background(), "u", "s", OpSkillsAdd,
		json.RawMessage(`{"category":"technical","skills":["GO","python"]}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["status"] != "no_change" {
		t.Fatalf("result = %v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no transaction expected: %v", err)
	}
}

func TestExperienceUpdateUnknownID(t *testing.T) {
	exec, mock := newMockExecutor(t)
	now := time.Now()

	body := `{"contact":{"name":"","title":"","email":""},"summary":"","experience":[{"id":"a","company":"Acme","role":"Eng","duration":"2019 - 2020"}],"skills":{"technical":[],"soft":[]},"education":[]}`
	expectGetDocument(mock, "u", body, 1, now)

	_, err := exec.Execute(context.Background(), "u", "s", OpExperienceRemove,
		json.RawMessage(`{"id":"zzz"}`))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestResumeReadOnEmptyDocument(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, version, body, updated_at FROM resume_documents WHERE user_id=$1`)).
		WithArgs("u").
		WillReturnError(sql.ErrNoRows)

	result, err := exec.Execute(context.Background(), "u", "s", OpResumeRead, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["exists"] != false {
		t.Fatalf("result = %v", result)
	}
	if result["version"] != int64(0) {
		t.Fatalf("version = %v", result["version"])
	}
}

func TestMutateRetriesOnceAfterConflict(t *testing.T) {
	exec, mock := newMockExecutor(t)
	now := time.Now()

	body := `{"contact":{"name":"","title":"","email":""},"summary":"Old summary.","experience":[],"skills":{"technical":[],"soft":[]},"education":[]}`

	// first cycle loses the race: the CAS update misses, the probe shows a
	// newer version
	expectGetDocument(mock, "u", body, 2, now)
	mock.ExpectBegin()
	mock.ExpectQuery(execUpdateDocQuery).
		WithArgs(sqlmock.AnyArg(), "u", int64(2)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(execProbeVersionQuery).
		WithArgs("u").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(3)))
	mock.ExpectRollback()

	// retry re-reads the fresh version and commits at v4
	expectGetDocument(mock, "u", body, 3, now)
	mock.ExpectBegin()
	mock.ExpectQuery(execUpdateDocQuery).
		WithArgs(sqlmock.AnyArg(), "u", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "updated_at"}).AddRow("doc-1", int64(4), now))
	mock.ExpectExec(execInsertEditQuery).
		WithArgs("doc-1", sqlmock.AnyArg(), OpSummaryUpdate, store.ActorAgent, int64(3), int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := exec.Execute(context.Background(), "u", "s", OpSummaryUpdate,
		json.RawMessage(`{"summary":"New summary."}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["status"] != "ok" {
		t.Fatalf("result = %v", result)
	}
	if result["version"] != int64(4) {
		t.Fatalf("version = %v", result["version"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMutateSecondConflictSurfaces(t *testing.T) {
	exec, mock := newMockExecutor(t)
	now := time.Now()

	body := `{"contact":{"name":"","title":"","email":""},"summary":"Old summary.","experience":[],"skills":{"technical":[],"soft":[]},"education":[]}`

	for _, version := range []int64{2, 3} {
		expectGetDocument(mock, "u", body, version, now)
		mock.ExpectBegin()
		mock.ExpectQuery(execUpdateDocQuery).
			WithArgs(sqlmock.AnyArg(), "u", version).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(execProbeVersionQuery).
			WithArgs("u").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(version + 1))
		mock.ExpectRollback()
	}

	_, err := exec.Execute(context.Background(), "u", "s", OpSummaryUpdate,
		json.RawMessage(`{"summary":"New summary."}`))
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func expectGetDocument(mock sqlmock.Sqlmock, userID, body string, version int64, now time.Time) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, version, body, updated_at FROM resume_documents WHERE user_id=$1`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "version", "body", "updated_at"}).
			AddRow("doc-1", userID, version, []byte(body), now))
}
