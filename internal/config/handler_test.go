package config

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func settingsFixture() (*echo.Echo, *SettingsHandler, *Settings) {
	settings := NewSettings(&Config{
		ManualMode:                false,
		CleaningDurationMinutes:   30,
		OxygenWeaningPauseMinutes: 60,
	})
	return echo.New(), NewSettingsHandler(settings), settings
}

func TestSettingsHandler_Get(t *testing.T) {
	e, h, _ := settingsFixture()
	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Get(c); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"manual_mode":false`) {
		t.Errorf("expected manual_mode false in %s", body)
	}
	if !strings.Contains(body, `"cleaning_duration_minutes":30`) {
		t.Errorf("expected cleaning duration 30 in %s", body)
	}
}

func TestSettingsHandler_PartialUpdate(t *testing.T) {
	e, h, settings := settingsFixture()
	req := httptest.NewRequest(http.MethodPut, "/settings",
		strings.NewReader(`{"manual_mode":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Update(c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !settings.ManualMode() {
		t.Error("expected manual mode enabled")
	}
	if settings.CleaningDurationMinutes() != 30 {
		t.Errorf("expected cleaning duration untouched, got %d", settings.CleaningDurationMinutes())
	}
}

func TestSettingsHandler_UpdateDurations(t *testing.T) {
	e, h, settings := settingsFixture()
	req := httptest.NewRequest(http.MethodPut, "/settings",
		strings.NewReader(`{"cleaning_duration_minutes":45,"oxygen_weaning_pause_minutes":90}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Update(c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if settings.CleaningDurationMinutes() != 45 {
		t.Errorf("expected cleaning duration 45, got %d", settings.CleaningDurationMinutes())
	}
	if settings.OxygenWeaningPauseMinutes() != 90 {
		t.Errorf("expected oxygen weaning pause 90, got %d", settings.OxygenWeaningPauseMinutes())
	}
}

func TestSettingsHandler_RejectsNonPositiveDuration(t *testing.T) {
	e, h, settings := settingsFixture()
	req := httptest.NewRequest(http.MethodPut, "/settings",
		strings.NewReader(`{"cleaning_duration_minutes":0}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Update(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
	if settings.CleaningDurationMinutes() != 30 {
		t.Errorf("expected cleaning duration untouched, got %d", settings.CleaningDurationMinutes())
	}
}
