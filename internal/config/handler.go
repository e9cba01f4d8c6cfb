package config

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SettingsHandler exposes the runtime settings over HTTP.
type SettingsHandler struct {
	settings *Settings
}

func NewSettingsHandler(settings *Settings) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/settings", h.Get)
	g.PUT("/settings", h.Update)
}

type settingsResponse struct {
	ManualMode                bool `json:"manual_mode"`
	CleaningDurationMinutes   int  `json:"cleaning_duration_minutes"`
	OxygenWeaningPauseMinutes int  `json:"oxygen_weaning_pause_minutes"`
}

type settingsUpdateRequest struct {
	ManualMode                *bool `json:"manual_mode"`
	CleaningDurationMinutes   *int  `json:"cleaning_duration_minutes"`
	OxygenWeaningPauseMinutes *int  `json:"oxygen_weaning_pause_minutes"`
}

func (h *SettingsHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.snapshot())
}

// Update applies a partial update; omitted fields keep their current value.
func (h *SettingsHandler) Update(c echo.Context) error {
	var req settingsUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.CleaningDurationMinutes != nil && *req.CleaningDurationMinutes <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "cleaning_duration_minutes must be positive")
	}
	if req.OxygenWeaningPauseMinutes != nil && *req.OxygenWeaningPauseMinutes <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "oxygen_weaning_pause_minutes must be positive")
	}

	if req.ManualMode != nil {
		h.settings.SetManualMode(*req.ManualMode)
	}
	if req.CleaningDurationMinutes != nil {
		h.settings.SetCleaningDurationMinutes(*req.CleaningDurationMinutes)
	}
	if req.OxygenWeaningPauseMinutes != nil {
		h.settings.SetOxygenWeaningPauseMinutes(*req.OxygenWeaningPauseMinutes)
	}

	return c.JSON(http.StatusOK, h.snapshot())
}

func (h *SettingsHandler) snapshot() settingsResponse {
	return settingsResponse{
		ManualMode:                h.settings.ManualMode(),
		CleaningDurationMinutes:   h.settings.CleaningDurationMinutes(),
		OxygenWeaningPauseMinutes: h.settings.OxygenWeaningPauseMinutes(),
	}
}
