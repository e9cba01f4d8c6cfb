package referral

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caresuite/bedflow/internal/domain/bed"
	"github.com/caresuite/bedflow/internal/domain/patient"
	"github.com/caresuite/bedflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/referrals", h.List)
	api.GET("/referrals/:id", h.Get)
	api.POST("/referrals/search", h.Search)
	api.POST("/referrals", h.Create)
	api.POST("/referrals/:id/respond", h.Respond)
	api.POST("/referrals/:id/sync", h.Sync)
	api.POST("/referrals/:id/cancel", h.Cancel)
	api.POST("/referrals/:id/egress", h.ConfirmEgress)
}

// RegisterNetworkRoutes exposes the endpoints peer hospitals call.
func (h *Handler) RegisterNetworkRoutes(api *echo.Group) {
	api.GET("/network/beds", h.NetworkBeds)
	api.POST("/network/referrals", h.NetworkSubmit)
	api.GET("/network/referrals/:id", h.Get)
	api.POST("/network/referrals/:id/cancel", h.Cancel)
}

func (h *Handler) List(c echo.Context) error {
	if state := c.QueryParam("state"); state != "" {
		items, err := h.svc.ListByState(c.Request().Context(), State(state))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"referrals": items})
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return referralError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Search(c echo.Context) error {
	var body struct {
		PatientID uuid.UUID `json:"patient_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	result, err := h.svc.Search(c.Request().Context(), body.PatientID)
	if err != nil {
		return referralError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Create(c echo.Context) error {
	var params CreateParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if params.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	req, err := h.svc.Create(c.Request().Context(), params)
	if err != nil {
		return referralError(err)
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) Respond(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Accept bool   `json:"accept"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req, err := h.svc.Respond(c.Request().Context(), id, body.Accept, body.Reason)
	if err != nil {
		return referralError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Sync(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.SyncStatus(c.Request().Context(), id)
	if err != nil {
		return referralError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return referralError(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) ConfirmEgress(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	req, err := h.svc.ConfirmEgress(c.Request().Context(), id)
	if err != nil {
		return referralError(err)
	}
	return c.JSON(http.StatusOK, req)
}

// NetworkBeds answers a peer's bed search from the local registry.
func (h *Handler) NetworkBeds(c echo.Context) error {
	crit := Criteria{
		Complexity:        patient.ComplexityTier(c.QueryParam("complexity")),
		RequiresIsolation: c.QueryParam("isolation") == "true",
		Sex:               patient.Sex(c.QueryParam("sex")),
	}
	if crit.Complexity == "" {
		crit.Complexity = patient.ComplexityNone
	}
	return c.JSON(http.StatusOK, h.svc.LocalInventory(c.Request().Context(), crit))
}

// NetworkSubmit stores a referral submitted by a peer.
func (h *Handler) NetworkSubmit(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AcceptInbound(c.Request().Context(), &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, req)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func referralError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "referral not found")
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrLocalBedAvailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrAlreadyResolved):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrHospitalUnreachable):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, bed.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "bed not found")
	case errors.Is(err, bed.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
