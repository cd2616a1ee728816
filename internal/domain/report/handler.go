package report

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reports/e2e/:date", h.GetReport)
	api.DELETE("/reports/e2e/:date", h.DeleteReport)
}

func (h *Handler) GetReport(c echo.Context) error {
	date := c.Param("date")
	r, err := h.svc.GetReportByDate(c.Request().Context(), date)
	if err != nil {
		if strings.HasPrefix(err.Error(), "invalid date") {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if r == nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteReport(c echo.Context) error {
	date := c.Param("date")
	if err := h.svc.DeleteReportByDate(c.Request().Context(), date); err != nil {
		if strings.HasPrefix(err.Error(), "invalid date") {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
