package main

import (
	"context"
	"errors"
	"fmt"
	"io"
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
	"golang.org/x/sync/errgroup"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/preference"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/openapi"
	"github.com/clinic/clinic/internal/platform/storage"
	"github.com/clinic/clinic/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore connects the configured backend. For postgres the returned pool
// is the store's own pool; it is nil for every other driver.
func openStore(ctx context.Context, cfg *config.Config) (storage.KV, *pgxpool.Pool, error) {
	kv, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	if pg, ok := kv.(*storage.Postgres); ok {
		return kv, pg.Pool(), nil
	}
	return kv, nil, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the postgres store",
	}

	// migrate up
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

			count, err := db.NewMigrator(pool, os.DirFS(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
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

			statuses, err := db.NewMigrator(pool, os.DirFS(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the saved clinic state (stop the server first)",
		Long: `Clear the saved clinic state so the next start loads the seed data.

A running server keeps its state in memory and writes it back on the next
change, which undoes this command. Stop the server before running it, or use
POST /api/v1/state/reset?confirm=true against a running server instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				fmt.Fprintln(cmd.ErrOrStderr(), "Reset demo data? (This clears saved data)")
				return errors.New("reset not confirmed, re-run with --yes")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			kv, _, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			repo := scheduling.NewKVRepository(kv, cfg.StateKey, zerolog.Nop())
			if err := repo.Clear(ctx); err != nil {
				return fmt.Errorf("clear state: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s from the %s store.\n", cfg.StateKey, cfg.StoreDriver)
			fmt.Fprintln(cmd.ErrOrStderr(), "Restart the server to load the seed data.")
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm the reset")
	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the daily appointment slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range scheduling.DailySlots() {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	freeCmd := &cobra.Command{
		Use:   "free",
		Short: "Preview where a booking would land against the saved state",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			date, _ := cmd.Flags().GetString("date")
			requested, _ := cmd.Flags().GetString("time")
			exclude, _ := cmd.Flags().GetString("exclude")
			if doctorID == "" || date == "" || requested == "" {
				return errors.New("--doctor, --date and --time are required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			kv, _, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			st, err := scheduling.NewKVRepository(kv, cfg.StateKey, zerolog.Nop()).Load(ctx)
			if err != nil && !errors.Is(err, scheduling.ErrNoState) {
				return err
			}
			if st == nil {
				st = &scheduling.State{}
			}

			slot, ok := scheduling.FindFreeSlot(doctorID, date, requested, scheduling.DailySlots(), st.Appts, exclude)
			out := cmd.OutOrStdout()
			switch {
			case !ok:
				fmt.Fprintln(out, "No free slots that day")
			case slot != requested:
				fmt.Fprintf(out, "%s (busy at %s)\n", slot, requested)
			default:
				fmt.Fprintln(out, slot)
			}
			return nil
		},
	}
	freeCmd.Flags().String("doctor", "", "Doctor ID")
	freeCmd.Flags().String("date", "", "Day as YYYY-MM-DD")
	freeCmd.Flags().String("time", "", "Requested time as HH:MM")
	freeCmd.Flags().String("exclude", "", "Appointment ID to ignore")
	cmd.AddCommand(freeCmd)

	return cmd
}

// newServer wires the services and routes onto a fresh echo instance and
// loads the saved state.
func newServer(ctx context.Context, cfg *config.Config, kv storage.KV, pool *pgxpool.Pool, logger zerolog.Logger) (*echo.Echo, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub(logger)

	repo := scheduling.NewKVRepository(kv, cfg.StateKey, logger)
	gate := scheduling.NewGate(cfg.GateMode, cfg.OperationLatency, cfg.OperationTimeout)
	schedSvc := scheduling.NewService(repo, gate, hub, loc, logger)
	if err := schedSvc.Load(ctx); err != nil {
		return nil, fmt.Errorf("load clinic state: %w", err)
	}
	prefSvc := preference.NewService(kv, cfg.ThemeKey, hub, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	rateLimitCfg.BurstSize = cfg.RateLimitBurst
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/health", db.HealthHandler(cfg.StoreDriver, kv, pool))

	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)
	preference.NewHandler(prefSvc).RegisterRoutes(apiV1)
	websocket.NewWebSocketHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)
	openapi.NewGenerator(e, "0.1.0", "http://localhost:"+cfg.Port).RegisterRoutes(apiV1)

	return e, nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, pool, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("connected to state store")

	if pool != nil {
		count, err := db.NewMigrator(pool, os.DirFS(cfg.MigrationsDir)).Up(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info().Int("applied", count).Msg("migrations up to date")
	}

	e, err := newServer(ctx, cfg, kv, pool, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("gate_mode", cfg.GateMode).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
