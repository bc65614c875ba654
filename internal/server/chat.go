package server

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/resumechat/resumechat/internal/agent"
	"github.com/resumechat/resumechat/internal/runtime"
	"github.com/resumechat/resumechat/internal/store"
)

// ChatHandler runs chat turns against the agent engine.
type ChatHandler struct {
	Store  *store.Store
	Engine *agent.Engine
}

func (h *ChatHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("", h.chat)
}

// Chat
//
//	@Summary		Send a chat message
//	@Description	Runs one conversational turn; omit session_id to start a new session
//	@Tags			chat
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		ChatRequest	true	"Chat payload"
//	@Success		200		{object}	ChatResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		404		{object}	HTTPError
//	@Failure		502		{object}	HTTPError
//	@Router			/api/chat [post]
func (h *ChatHandler) chat(c echo.Context) error {
	userID := c.Get("user_id").(string)

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()
	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := h.Store.CreateSession(ctx, userID, sessionTitle(text))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		sessionID = sess.ID
	} else {
		if _, err := h.Store.GetSession(ctx, userID, sessionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "session not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	result, err := h.Engine.HandleTurn(ctx, userID, sessionID, text)
	if err != nil && !errors.Is(err, agent.ErrIterationCap) {
		var capErr *agent.CapabilityError
		if errors.As(err, &capErr) {
			if result.AssistantMessage.ID == "" {
				return echo.NewHTTPError(http.StatusBadGateway, "model provider unavailable")
			}
			// Degraded reply was persisted; the turn still completed.
		} else {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusOK, ChatResponse{
		SessionID:          sessionID,
		MessageID:          result.AssistantMessage.ID,
		Reply:              result.AssistantMessage.Content,
		Iterations:         result.Iterations,
		Truncated:          result.CapExceeded,
		NewDocumentVersion: result.NewDocumentVersion,
	})
}

// sessionTitle derives a short title from the opening message. The cut never
// splits a UTF-8 sequence.
func sessionTitle(text string) string {
	const max = 60
	title := strings.Join(strings.Fields(text), " ")
	if len(title) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title
}
