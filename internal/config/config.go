package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	// Identity of this node in the hospital network.
	HospitalID   string `mapstructure:"HOSPITAL_ID"`
	HospitalName string `mapstructure:"HOSPITAL_NAME"`

	// Comma-separated base URLs of the other hospitals reachable for
	// referral searches, e.g. "https://hosp-a.example:8000,https://hosp-b.example:8000".
	NetworkHospitals []string `mapstructure:"NETWORK_HOSPITALS"`

	// Per-hospital timeout for a network referral search call.
	ReferralTimeoutSeconds int `mapstructure:"REFERRAL_TIMEOUT_SECONDS"`

	ManualMode                bool `mapstructure:"MANUAL_MODE"`
	CleaningDurationMinutes   int  `mapstructure:"CLEANING_DURATION_MINUTES"`
	OxygenWeaningPauseMinutes int  `mapstructure:"OXYGEN_WEANING_PAUSE_MINUTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("HOSPITAL_ID", "local")
	v.SetDefault("HOSPITAL_NAME", "Local Hospital")
	v.SetDefault("REFERRAL_TIMEOUT_SECONDS", 10)
	v.SetDefault("MANUAL_MODE", false)
	v.SetDefault("CLEANING_DURATION_MINUTES", 30)
	v.SetDefault("OXYGEN_WEANING_PAUSE_MINUTES", 60)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("HOSPITAL_ID")
	v.BindEnv("HOSPITAL_NAME")
	v.BindEnv("NETWORK_HOSPITALS")
	v.BindEnv("REFERRAL_TIMEOUT_SECONDS")
	v.BindEnv("MANUAL_MODE")
	v.BindEnv("CLEANING_DURATION_MINUTES")
	v.BindEnv("OXYGEN_WEANING_PAUSE_MINUTES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.NetworkHospitals == nil {
		if peers := v.GetString("NETWORK_HOSPITALS"); peers != "" {
			cfg.NetworkHospitals = strings.Split(peers, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.HospitalID == "" {
		return fmt.Errorf("HOSPITAL_ID is required")
	}
	if c.CleaningDurationMinutes <= 0 {
		return fmt.Errorf("CLEANING_DURATION_MINUTES must be positive, got %d", c.CleaningDurationMinutes)
	}
	if c.OxygenWeaningPauseMinutes <= 0 {
		return fmt.Errorf("OXYGEN_WEANING_PAUSE_MINUTES must be positive, got %d", c.OxygenWeaningPauseMinutes)
	}
	if c.ReferralTimeoutSeconds <= 0 {
		return fmt.Errorf("REFERRAL_TIMEOUT_SECONDS must be positive, got %d", c.ReferralTimeoutSeconds)
	}
	for _, peer := range c.NetworkHospitals {
		if !strings.HasPrefix(peer, "http://") && !strings.HasPrefix(peer, "https://") {
			return fmt.Errorf("NETWORK_HOSPITALS entry %q must be an http(s) base URL", peer)
		}
	}
	return nil
}

// Settings holds the operational parameters that can be changed at runtime
// without restarting the server. Flipping ManualMode only gates whether
// manual-only transitions are permitted; it never touches in-flight state.
type Settings struct {
	mu                 sync.RWMutex
	manualMode         bool
	cleaningDuration   int // minutes
	oxygenWeaningPause int // minutes
}

// NewSettings seeds the runtime settings from the loaded configuration.
func NewSettings(cfg *Config) *Settings {
	return &Settings{
		manualMode:         cfg.ManualMode,
		cleaningDuration:   cfg.CleaningDurationMinutes,
		oxygenWeaningPause: cfg.OxygenWeaningPauseMinutes,
	}
}

func (s *Settings) ManualMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manualMode
}

func (s *Settings) SetManualMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manualMode = on
}

func (s *Settings) CleaningDurationMinutes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cleaningDuration
}

func (s *Settings) SetCleaningDurationMinutes(minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if minutes > 0 {
		s.cleaningDuration = minutes
	}
}

func (s *Settings) OxygenWeaningPauseMinutes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.oxygenWeaningPause
}

func (s *Settings) SetOxygenWeaningPauseMinutes(minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if minutes > 0 {
		s.oxygenWeaningPause = minutes
	}
}
