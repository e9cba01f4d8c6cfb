package bed

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/beds", h.List)
	api.GET("/beds/:id", h.Get)
	api.POST("/beds", h.Create)
	api.DELETE("/beds/:id", h.Delete)

	api.POST("/beds/:id/assign", h.Assign)
	api.POST("/beds/:id/block", h.Block)
	api.POST("/beds/:id/unblock", h.Unblock)
	api.POST("/beds/:id/request-new-bed", h.RequestNewBed)
	api.POST("/beds/:id/oxygen-weaning", h.PauseOxygenWeaning)

	api.POST("/beds/:id/reserve-incoming", h.ReserveIncoming)

	api.POST("/beds/:id/transfer", h.InitiateTransfer)
	api.POST("/beds/:id/transfer/confirm", h.ConfirmTransfer)
	api.POST("/beds/:id/transfer/complete", h.CompleteTransfer)
	api.POST("/beds/:id/transfer/cancel", h.CancelTransfer)

	api.POST("/beds/:id/discharge/suggest", h.SuggestDischarge)
	api.POST("/beds/:id/discharge/initiate", h.InitiateDischarge)
	api.POST("/beds/:id/discharge/execute", h.ExecuteDischarge)
	api.POST("/beds/:id/discharge/cancel", h.CancelDischarge)

	api.POST("/beds/:id/death", h.RecordDeath)
	api.POST("/beds/:id/death/complete", h.CompleteDeathDischarge)
	api.POST("/beds/:id/death/cancel", h.CancelDeath)
}

func (h *Handler) Create(c echo.Context) error {
	var b Bed
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateBed(c.Request().Context(), &b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBed(c.Request().Context(), id)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{
		Service: c.QueryParam("service"),
		Ward:    c.QueryParam("ward"),
		State:   State(c.QueryParam("state")),
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"beds": h.svc.ListBeds(c.Request().Context(), f),
	})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBed(c.Request().Context(), id); err != nil {
		return domainError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		PatientID uuid.UUID `json:"patient_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	ch, err := h.svc.AssignBed(c.Request().Context(), id, req.PatientID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) Block(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch, err := h.svc.BlockBed(c.Request().Context(), id, req.Reason)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) Unblock(c echo.Context) error {
	return h.single(c, h.svc.UnblockBed)
}

func (h *Handler) RequestNewBed(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ch, err := h.svc.RequestNewBed(c.Request().Context(), id, req.Reason)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) PauseOxygenWeaning(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.PauseOxygenWeaning(c.Request().Context(), id); err != nil {
		return domainError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

// ReserveIncoming books a free bed for a patient arriving from outside the
// hospital (ambulance transfer, accepted referral being escorted in).
func (h *Handler) ReserveIncoming(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var occ Occupant
	if err := c.Bind(&occ); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if occ.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	ch, err := h.svc.ReserveIncoming(c.Request().Context(), id, occ)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) InitiateTransfer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		DestinationBedID uuid.UUID `json:"destination_bed_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DestinationBedID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "destination_bed_id is required")
	}
	changes, err := h.svc.InitiateTransfer(c.Request().Context(), id, req.DestinationBedID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"changes": changes})
}

func (h *Handler) ConfirmTransfer(c echo.Context) error {
	return h.single(c, h.svc.ConfirmTransfer)
}

func (h *Handler) CompleteTransfer(c echo.Context) error {
	return h.pair(c, h.svc.CompleteTransfer)
}

func (h *Handler) CancelTransfer(c echo.Context) error {
	return h.pair(c, h.svc.CancelTransfer)
}

func (h *Handler) SuggestDischarge(c echo.Context) error {
	return h.single(c, h.svc.SuggestDischarge)
}

func (h *Handler) InitiateDischarge(c echo.Context) error {
	return h.single(c, h.svc.InitiateDischarge)
}

func (h *Handler) ExecuteDischarge(c echo.Context) error {
	return h.single(c, h.svc.ExecuteDischarge)
}

func (h *Handler) CancelDischarge(c echo.Context) error {
	return h.single(c, h.svc.CancelDischarge)
}

func (h *Handler) RecordDeath(c echo.Context) error {
	return h.single(c, h.svc.RecordDeath)
}

func (h *Handler) CompleteDeathDischarge(c echo.Context) error {
	return h.single(c, h.svc.CompleteDeathDischarge)
}

func (h *Handler) CancelDeath(c echo.Context) error {
	return h.single(c, h.svc.CancelDeath)
}

func (h *Handler) single(c echo.Context, op func(ctx context.Context, id uuid.UUID) (Change, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ch, err := op(c.Request().Context(), id)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) pair(c echo.Context, op func(ctx context.Context, id uuid.UUID) ([]Change, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	changes, err := op(c.Request().Context(), id)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"changes": changes})
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// domainError maps registry errors onto HTTP statuses.
func domainError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "bed not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrIncompatibleBed):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrPatientPlaced):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrManualModeRequired):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
