package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medvault/medvault/internal/config"
	"github.com/medvault/medvault/internal/domain/consent"
	"github.com/medvault/medvault/internal/domain/emergency"
	"github.com/medvault/medvault/internal/domain/identity"
	"github.com/medvault/medvault/internal/domain/records"
	"github.com/medvault/medvault/internal/platform/access"
	"github.com/medvault/medvault/internal/platform/auth"
	"github.com/medvault/medvault/internal/platform/db"
	"github.com/medvault/medvault/internal/platform/middleware"
)

func main() {
	root := &cobra.Command{
		Use:   "medvault-server",
		Short: "Consent-based health record access service",
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			keys, err := cfg.SigningKeys()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				key, err := auth.GenerateKey()
				if err != nil {
					return err
				}
				keys = [][]byte{key}
				logger.Warn().Msg("using ephemeral signing key; all tokens die with this process")
			}
			signer, err := auth.NewSigner(keys)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			// Repositories.
			patientRepo := identity.NewRepoPG(pool)
			recordRepo := records.NewRepoPG(pool)
			consentRepo := consent.NewRepoPG(pool)
			emergencyRepo := emergency.NewRepoPG(pool)

			// The decision engine reads record snapshots and effective
			// consent scopes; nothing else decides access.
			engine := access.NewEngine(recordRepo, consent.NewEngineSource(consentRepo))

			// Services.
			recordSvc := records.NewService(recordRepo, engine, signer, patientRepo)
			consentSvc := consent.NewService(consentRepo, recordRepo, patientRepo)
			identitySvc := identity.NewService(patientRepo, recordSvc, consentSvc)
			emergencySvc := emergency.NewService(emergencyRepo)

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true

			e.Use(middleware.Recovery(logger))
			e.Use(middleware.RequestID())
			e.Use(middleware.Logger(logger))
			e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
				AllowOrigins: cfg.CORSOrigins,
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
				AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
			}))
			e.Use(middleware.SecurityHeaders())
			e.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimitRPS,
				BurstSize:         cfg.RateLimitBurst,
			}))
			e.Use(middleware.RequestTimeout(30 * time.Second))

			e.GET("/health", func(c echo.Context) error {
				return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
			})
			e.GET("/health/db", db.HealthHandler(pool))

			api := e.Group("/api/v1")
			prefixSkip := auth.Skipper(
				"/api/v1/auth/",
				"/api/v1/records/qr/",
			)
			api.Use(auth.Middleware(signer, func(c echo.Context) bool {
				// Break-glass entry presents a secret, not a session.
				return prefixSkip(c) || strings.HasSuffix(c.Request().URL.Path, "/emergency-access")
			}))
			api.Use(middleware.Audit(logger))

			sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour
			identity.NewHandler(identitySvc, signer, sessionTTL).RegisterRoutes(api)
			records.NewHandler(recordSvc).RegisterRoutes(api)
			consent.NewHandler(consentSvc).RegisterRoutes(api)
			emergency.NewHandler(emergencySvc, signer).RegisterRoutes(api)

			// Serve until interrupted.
			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
				errCh <- e.Start(":" + cfg.Port)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema",
	}

	withMigrator := func(run func(ctx context.Context, m *db.Migrator, logger zerolog.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			return run(ctx, db.NewMigrator(pool, "migrations"), logger)
		}
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator, logger zerolog.Logger) error {
			applied, err := m.Up(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("applied", applied).Msg("migrations complete")
			return nil
		}),
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator, logger zerolog.Logger) error {
			statuses, err := m.Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied at " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%03d %-30s %s\n", s.Version, s.Name, state)
			}
			return nil
		}),
	})

	return migrate
}
