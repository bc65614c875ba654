package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/resumechat/resumechat/internal/store"
)

var (
	getSessionQuery = regexp.QuoteMeta(`
SELECT s.id, s.user_id, s.title, s.status, s.created_at, s.last_active_at,
       (SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)
FROM chat_sessions s WHERE s.id=$1 AND s.user_id=$2`)
	listSessionsQuery = regexp.QuoteMeta(`
SELECT s.id, s.user_id, s.title, s.status, s.created_at, s.last_active_at,
       (SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)
FROM chat_sessions s WHERE s.user_id=$1
ORDER BY s.last_active_at DESC`)
	listMessagesQuery = regexp.QuoteMeta(`
SELECT id, session_id, seq, role, content, metadata, created_at
FROM chat_messages WHERE session_id=$1
ORDER BY seq ASC LIMIT $2 OFFSET $3`)
)

func newSessionsHandler(t *testing.T) (*SessionsHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &SessionsHandler{Store: &store.Store{DB: db}}, mock
}

func sessionContext(e *echo.Echo, method, target string, rec *httptest.ResponseRecorder, sessionID string) echo.Context {
	req := httptest.NewRequest(method, target, nil)
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	if sessionID != "" {
		ctx.SetParamNames("id")
		ctx.SetParamValues(sessionID)
	}
	return ctx
}

func TestSessionDetailNotFound(t *testing.T) {
	handler, mock := newSessionsHandler(t)
	e := echo.New()

	mock.ExpectQuery(getSessionQuery).
		WithArgs("sess-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "status", "created_at", "last_active_at", "count"}))

	rec := httptest.NewRecorder()
	ctx := sessionContext(e, http.MethodGet, "/api/chat/sessions/sess-1", rec, "sess-1")

	err := handler.detail(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
}

func TestSessionList(t *testing.T) {
	handler, mock := newSessionsHandler(t)
	e := echo.New()

	now := time.Now()
	mock.ExpectQuery(listSessionsQuery).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "status", "created_at", "last_active_at", "count"}).
			AddRow("sess-2", "user-1", "tweak my summary", "active", now, now, 7).
			AddRow("sess-1", "user-1", "add a job", "idle", now.Add(-time.Hour), now.Add(-time.Hour), 4))

	rec := httptest.NewRecorder()
	ctx := sessionContext(e, http.MethodGet, "/api/chat/sessions", rec, "")

	if err := handler.list(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	var out []SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[0].ID != "sess-2" || out[0].MessageCount != 7 {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestSessionMessagesPaging(t *testing.T) {
	handler, mock := newSessionsHandler(t)
	handler.MaxPageSize = 100
	e := echo.New()

	now := time.Now()
	mock.ExpectQuery(getSessionQuery).
		WithArgs("sess-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "status", "created_at", "last_active_at", "count"}).
			AddRow("sess-1", "user-1", "add a job", "active", now, now, 2))
	mock.ExpectQuery(listMessagesQuery).
		WithArgs("sess-1", 2, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "seq", "role", "content", "metadata", "created_at"}).
			AddRow("m2", "sess-1", int64(2), store.RoleAssistant, "done", []byte(`{"iterations":1}`), now).
			AddRow("m3", "sess-1", int64(3), store.RoleUser, "thanks", []byte("null"), now))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/chat/sessions/sess-1/messages?limit=2&offset=1", nil)
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("sess-1")

	if err := handler.messages(ctx); err != nil {
		t.Fatalf("messages: %v", err)
	}
	var out []MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[0].Seq != 2 || out[1].Role != store.RoleUser {
		t.Fatalf("unexpected payload: %+v", out)
	}
}

func TestSessionRemoveNotOwned(t *testing.T) {
	handler, mock := newSessionsHandler(t)
	e := echo.New()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM chat_sessions WHERE id=$1 AND user_id=$2`)).
		WithArgs("sess-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := httptest.NewRecorder()
	ctx := sessionContext(e, http.MethodDelete, "/api/chat/sessions/sess-1", rec, "sess-1")

	err := handler.remove(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
}
