package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/resumechat/resumechat/internal/runtime"
	"github.com/resumechat/resumechat/internal/store"
)

// SessionsHandler exposes session listing, inspection, and deletion.
type SessionsHandler struct {
	Store       *store.Store
	MaxPageSize int
}

func (h *SessionsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.GET("/:id/messages", h.messages)
	g.DELETE("/:id", h.remove)
}

// ListSessions
//
//	@Summary	List chat sessions
//	@Tags		sessions
//	@Produce	json
//	@Success	200	{array}	SessionResponse
//	@Router		/api/chat/sessions [get]
func (h *SessionsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	sessions, err := h.Store.ListSessions(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

// SessionDetail
//
//	@Summary	Get one chat session
//	@Tags		sessions
//	@Produce	json
//	@Param		id	path		string	true	"Session ID"
//	@Success	200	{object}	SessionResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/chat/sessions/{id} [get]
func (h *SessionsHandler) detail(c echo.Context) error {
	userID := c.Get("user_id").(string)
	sess, err := h.Store.GetSession(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sessionResponse(sess))
}

// SessionMessages
//
//	@Summary	Page through a session's messages
//	@Tags		sessions
//	@Produce	json
//	@Param		id		path	string	true	"Session ID"
//	@Param		limit	query	int		false	"Page size"
//	@Param		offset	query	int		false	"Offset"
//	@Success	200	{array}	MessageResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/chat/sessions/{id}/messages [get]
func (h *SessionsHandler) messages(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()

	if _, err := h.Store.GetSession(ctx, userID, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	limit, offset := h.page(c)
	msgs, err := h.Store.ListMessages(ctx, c.Param("id"), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			ID: m.ID, Seq: m.Seq, Role: m.Role, Content: m.Content,
			Metadata: m.Metadata, CreatedAt: m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteSession
//
//	@Summary	Delete a chat session and its messages
//	@Tags		sessions
//	@Param		id	path	string	true	"Session ID"
//	@Success	204	{string}	string	"No Content"
//	@Failure	404	{object}	HTTPError
//	@Router		/api/chat/sessions/{id} [delete]
func (h *SessionsHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.Store.DeleteSession(c.Request().Context(), userID, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionsHandler) page(c echo.Context) (limit, offset int) {
	maxPage := h.MaxPageSize
	if maxPage <= 0 {
		maxPage = 100
	}
	limit = 50
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPage {
		limit = maxPage
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func sessionResponse(s store.SessionRecord) SessionResponse {
	return SessionResponse{
		ID: s.ID, Title: s.Title, Status: s.Status, CreatedAt: s.CreatedAt,
		LastActiveAt: s.LastActiveAt, MessageCount: s.MessageCount,
	}
}
