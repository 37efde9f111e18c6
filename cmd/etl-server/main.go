package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/analytics/internal/config"
	"github.com/hms/analytics/internal/domain/insights"
	"github.com/hms/analytics/internal/domain/jobs"
	"github.com/hms/analytics/internal/domain/warehouse"
	"github.com/hms/analytics/internal/platform/db"
	"github.com/hms/analytics/internal/platform/middleware"
	"github.com/hms/analytics/internal/platform/scheduler"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "etl-server",
		Short: "Hospital analytics ETL scheduler and API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and the operator API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run lake schema migrations",
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
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [job-name]",
		Short: "Run one job (or all jobs) once and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			registry := buildRegistry(cfg, pool, nil, logger)

			var outcomes []jobs.Outcome
			if len(args) == 1 {
				outcome, err := registry.Trigger(ctx, args[0])
				if err != nil {
					return err
				}
				outcomes = []jobs.Outcome{outcome}
			} else {
				outcomes = registry.RunAll(ctx)
			}

			failed := false
			for _, o := range outcomes {
				fmt.Printf("%-28s %s %s\n", o.JobName, o.Status, o.Message)
				if o.Status == jobs.StatusFailed {
					failed = true
				}
			}
			if failed {
				return fmt.Errorf("one or more jobs failed")
			}
			return nil
		},
	}
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// buildRegistry wires the repositories, the job handlers, and the job
// definitions. Syncs register before the jobs that depend on them, which the
// registry requires for dependency declarations.
func buildRegistry(cfg *config.Config, pool *pgxpool.Pool, cron *scheduler.Cron, logger zerolog.Logger) *jobs.Registry {
	ledger := jobs.NewRunRepoPG(pool)
	registry := jobs.NewRegistry(ledger, cron, logger)

	whSvc := warehouse.NewService(
		warehouse.NewRepoPG(pool),
		ledger,
		time.Duration(cfg.DailyWindowHours)*time.Hour,
		time.Duration(cfg.HourlyWindowMins)*time.Minute,
		logger,
	)
	inSvc := insights.NewService(
		insights.NewRepoPG(pool),
		insights.NewRulePredictor(time.Now().UnixNano()),
		logger,
	)

	defs := []jobs.JobDefinition{
		{Name: warehouse.JobSyncVisits, Schedule: "0 1 * * *", Handler: whSvc.SyncPatientVisits},
		{Name: warehouse.JobSyncDispensing, Schedule: "0 2 * * *", Handler: whSvc.SyncDrugDispensing},
		{Name: warehouse.JobSyncClaims, Schedule: "0 3 * * *", Handler: whSvc.SyncInsuranceClaims},
		{Name: warehouse.JobSyncInventory, Schedule: "0 * * * *", Handler: whSvc.SyncInventoryMovements},
		{Name: warehouse.JobAggregateDaily, Schedule: "0 4 * * *", Handler: whSvc.AggregateDailyMetrics,
			DependsOn: []string{warehouse.JobSyncVisits, warehouse.JobSyncDispensing, warehouse.JobSyncClaims}},
		{Name: insights.JobForecastDemand, Schedule: "0 6 * * *", Handler: inSvc.ForecastDrugDemand,
			DependsOn: []string{warehouse.JobAggregateDaily}},
		{Name: insights.JobScoreRisk, Schedule: "0 7 * * *", Handler: inSvc.ScorePatientRisk,
			DependsOn: []string{warehouse.JobSyncVisits}},
		{Name: insights.JobDetectFraud, Schedule: "0 8 * * *", Handler: inSvc.DetectClaimFraud,
			DependsOn: []string{warehouse.JobSyncClaims}},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			logger.Fatal().Err(err).Str("job", def.Name).Msg("job registration failed")
		}
	}
	return registry
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	cron := scheduler.New(logger)
	registry := buildRegistry(cfg, pool, cron, logger)

	if cfg.SchedulerEnabled {
		cron.Start()
		defer cron.Stop()
		logger.Info().Int("jobs", cron.EntryCount()).Msg("scheduler started")
	} else {
		logger.Warn().Msg("scheduler disabled, jobs run only on manual trigger")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", db.HealthHandler(pool))

	etlGroup := e.Group("/etl")
	jobs.NewHTTPHandler(registry).RegisterRoutes(etlGroup)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}
