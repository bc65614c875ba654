package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/resumechat/resumechat/internal/resume"
	"github.com/resumechat/resumechat/internal/runtime"
	"github.com/resumechat/resumechat/internal/store"
)

// ResumeHandler exposes read-only document views; all mutation goes through
// the chat engine.
type ResumeHandler struct {
	Store       *store.Store
	MaxPageSize int
}

func (h *ResumeHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.document)
	g.GET("/section/:name", h.section)
	g.GET("/history", h.history)
}

// GetResume
//
//	@Summary	Read the full resume document
//	@Tags		resume
//	@Produce	json
//	@Success	200	{object}	resume.Document
//	@Router		/api/resume [get]
func (h *ResumeHandler) document(c echo.Context) error {
	doc, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

// GetResumeSection
//
//	@Summary	Read one resume section
//	@Tags		resume
//	@Produce	json
//	@Param		name	path		string	true	"Section name"
//	@Success	200		{object}	resume.SectionView
//	@Failure	400		{object}	HTTPError
//	@Router		/api/resume/section/{name} [get]
func (h *ResumeHandler) section(c echo.Context) error {
	doc, err := h.load(c)
	if err != nil {
		return err
	}
	view, err := doc.Section(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, view)
}

// ResumeHistory
//
//	@Summary	Page through the document's edit ledger, newest first
//	@Tags		resume
//	@Produce	json
//	@Param		limit	query	int	false	"Page size"
//	@Param		offset	query	int	false	"Offset"
//	@Success	200	{array}	EditRecordResponse
//	@Router		/api/resume/history [get]
func (h *ResumeHandler) history(c echo.Context) error {
	userID := c.Get("user_id").(string)
	limit, offset := h.page(c)
	records, err := h.Store.ListEditRecords(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]EditRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, EditRecordResponse{
			ID: r.ID, SessionID: r.SessionID, Operation: r.Operation, Actor: r.Actor,
			VersionBefore: r.VersionBefore, VersionAfter: r.VersionAfter,
			Changes: r.Changes, CreatedAt: r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ResumeHandler) load(c echo.Context) (resume.Document, error) {
	userID := c.Get("user_id").(string)
	rec, err := h.Store.GetDocument(c.Request().Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return resume.Empty(userID), nil
	}
	if err != nil {
		return resume.Document{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	doc, err := rec.Document()
	if err != nil {
		return resume.Document{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return doc, nil
}

func (h *ResumeHandler) page(c echo.Context) (limit, offset int) {
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
