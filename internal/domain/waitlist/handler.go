package waitlist

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caresuite/bedflow/internal/domain/patient"
	"github.com/caresuite/bedflow/pkg/pagination"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/waiting-list", h.List)
	api.POST("/waiting-list", h.Enter)
	api.DELETE("/waiting-list/:patientId", h.Withdraw)
}

// List returns the ranked waiting list with the score breakdown per entry,
// optionally narrowed by origin type and target service.
func (h *Handler) List(c echo.Context) error {
	ranked, err := h.mgr.Filter(c.Request().Context(),
		patient.OriginType(c.QueryParam("origin")),
		c.QueryParam("service"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	pg := pagination.FromContext(c)
	total := len(ranked)
	start := pg.Offset
	if start > total {
		start = total
	}
	end := start + pg.Limit
	if end > total {
		end = total
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(ranked[start:end], total, pg.Limit, pg.Offset))
}

func (h *Handler) Enter(c echo.Context) error {
	var req struct {
		PatientID     uuid.UUID `json:"patient_id"`
		Reason        string    `json:"reason"`
		TargetService string    `json:"target_service"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	ctx := c.Request().Context()
	if err := h.mgr.Enter(ctx, req.PatientID, req.Reason); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyWaiting):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, patient.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	if req.TargetService != "" {
		if err := h.mgr.SetTargetService(ctx, req.PatientID, req.TargetService); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusCreated)
}

func (h *Handler) Withdraw(c echo.Context) error {
	id, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if err := h.mgr.Withdraw(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotWaiting) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
