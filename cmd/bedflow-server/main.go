package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caresuite/bedflow/internal/config"
	"github.com/caresuite/bedflow/internal/domain/bed"
	"github.com/caresuite/bedflow/internal/domain/patient"
	"github.com/caresuite/bedflow/internal/domain/referral"
	"github.com/caresuite/bedflow/internal/domain/waitlist"
	"github.com/caresuite/bedflow/internal/platform/db"
	"github.com/caresuite/bedflow/internal/platform/events"
	"github.com/caresuite/bedflow/internal/platform/middleware"
	"github.com/caresuite/bedflow/internal/platform/timers"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bedflow-server",
		Short: "Hospital bed allocation and patient flow server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bed management API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return err
			}

			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	settings := config.NewSettings(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Platform pieces shared by the domain services.
	hub := events.NewHub(logger)
	scheduler := timers.NewScheduler(logger)
	defer scheduler.Shutdown()

	// Domain services. The bed service, waiting list and referral workflow
	// call into each other through narrow interfaces wired below.
	patientSvc := patient.NewService(patient.NewRepoPG(pool))

	registry := bed.NewRegistry(cfg.HospitalID)
	bedSvc := bed.NewService(registry, bed.NewRepoPG(pool), settings, hub, scheduler, logger)
	bedSvc.SetPatientDirectory(patientSvc)

	waitlistMgr := waitlist.NewManager(patientSvc, patientSvc, waitlist.NewRepoPG(pool), logger)
	bedSvc.SetWaitlist(waitlistMgr)

	referralClient := referral.NewHTTPHospitalClient(&http.Client{
		Timeout: time.Duration(cfg.ReferralTimeoutSeconds) * time.Second,
	})
	searcher := referral.NewSearcher(referralClient, cfg.NetworkHospitals,
		time.Duration(cfg.ReferralTimeoutSeconds)*time.Second, logger)
	referralSvc := referral.NewService(referral.NewRepoPG(pool), bedSvc, patientSvc,
		searcher, referralClient, cfg.HospitalID, cfg.HospitalName, logger)
	referralSvc.SetWaitlist(waitlistMgr)

	// Fired timers re-enter the bed service and contend for the same locks
	// as interactive callers.
	scheduler.SetHandler(bedSvc.HandleTimer)

	// Warm the in-memory state from the database.
	if n, err := bedSvc.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load beds")
	} else {
		logger.Info().Int("beds", n).Msg("bed registry loaded")
	}
	if n, err := waitlistMgr.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load waiting list")
	} else {
		logger.Info().Int("entries", n).Msg("waiting list loaded")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	apiV1 := e.Group("/v1")

	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	bed.NewHandler(bedSvc).RegisterRoutes(apiV1)
	waitlist.NewHandler(waitlistMgr).RegisterRoutes(apiV1)

	referralHandler := referral.NewHandler(referralSvc)
	referralHandler.RegisterRoutes(apiV1)
	referralHandler.RegisterNetworkRoutes(apiV1)

	config.NewSettingsHandler(settings).RegisterRoutes(apiV1)
	events.NewHandler(hub).RegisterRoutes(e.Group("/v1/events"))

	e.GET("/health/db", db.HealthHandler(pool))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("hospital", cfg.HospitalID).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
