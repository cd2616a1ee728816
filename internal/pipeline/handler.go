package pipeline

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// HTTPHandler exposes the enqueue endpoint the dashboard uses to request
// report builds plus the queue's operational surface.
type HTTPHandler struct {
	publisher *Publisher
	engine    *Engine
}

func NewHandler(p *Publisher, e *Engine) *HTTPHandler {
	return &HTTPHandler{publisher: p, engine: e}
}

func (h *HTTPHandler) RegisterRoutes(api, ops *echo.Group) {
	api.POST("/reports/e2e", h.RequestReport)
	ops.GET("/queue/stats", h.QueueStats)
	ops.GET("/queue/dead-letters", h.DeadLetters)
}

type reportRequest struct {
	Date      string `json:"date"`
	RequestID string `json:"request_id"`
}

func (h *HTTPHandler) RequestReport(c echo.Context) error {
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
	}
	requestID, err := h.publisher.PublishE2EReport(c.Request().Context(), req.Date, req.RequestID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"date": req.Date, "request_id": requestID})
}

func (h *HTTPHandler) QueueStats(c echo.Context) error {
	stats, err := h.engine.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *HTTPHandler) DeadLetters(c echo.Context) error {
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	letters, err := h.engine.PeekDeadLetters(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, letters)
}
