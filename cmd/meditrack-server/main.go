package main

import (
	"context"
	"fmt"
	"io/fs"
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

	"github.com/meditrack/meditrack/internal/config"
	"github.com/meditrack/meditrack/internal/domain/prescription"
	"github.com/meditrack/meditrack/internal/domain/scheduling"
	"github.com/meditrack/meditrack/internal/platform/auth"
	"github.com/meditrack/meditrack/internal/platform/cache"
	"github.com/meditrack/meditrack/internal/platform/db"
	"github.com/meditrack/meditrack/internal/platform/events"
	"github.com/meditrack/meditrack/internal/platform/middleware"
	"github.com/meditrack/meditrack/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "meditrack-server",
		Short: "MediTrack appointment scheduling API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationSource returns MIGRATIONS_DIR when set, otherwise the migrations
// compiled into the binary.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	openMigrator := func(ctx context.Context) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		pool, err := db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, migrationSource(cfg.MigrationsDir)), pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetInt("to")
			ctx := cmd.Context()

			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			var count int
			if target > 0 {
				count, err = migrator.UpTo(ctx, target)
			} else {
				count, err = migrator.Up(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Apply migrations up to and including this version")
	cmd.AddCommand(upCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

// slotsCmd runs the allocator without a database, for checking a doctor's
// configuration or a booking window by hand.
func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Compute availability offline",
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Estimate slot capacity for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			weekdaysFlag, _ := cmd.Flags().GetString("weekdays")
			anchorsFlag, _ := cmd.Flags().GetString("anchors")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")

			weekdays, err := parseWeekdays(weekdaysFlag)
			if err != nil {
				return err
			}
			from, to, err := scheduling.ParseDateRange(fromFlag, toFlag)
			if err != nil {
				return err
			}

			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()})
			alloc := scheduling.NewAllocator(scheduling.SystemClock(time.UTC), logger)
			av := scheduling.DoctorAvailability{Weekdays: weekdays, TimeSlots: splitList(anchorsFlag)}

			est, err := alloc.Estimate(av, from, to)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "business days: %d\n", est.BusinessDays)
			fmt.Fprintf(out, "anchors:       %d\n", est.Anchors)
			fmt.Fprintf(out, "estimated:     %d\n", est.Slots)
			return nil
		},
	}
	countCmd.Flags().String("weekdays", "", "Comma-separated weekdays, 0 = Sunday (default Mon-Fri)")
	countCmd.Flags().String("anchors", "", "Comma-separated HH:MM:SS anchors (default 09:00:00)")
	countCmd.Flags().String("from", "", "Start date YYYY-MM-DD")
	countCmd.Flags().String("to", "", "End date YYYY-MM-DD")
	cmd.AddCommand(countCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List bookable start times in a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			startFlag, _ := cmd.Flags().GetString("start")
			endFlag, _ := cmd.Flags().GetString("end")
			duration, _ := cmd.Flags().GetInt("duration")
			bookedFlag, _ := cmd.Flags().GetString("booked")

			start, err := scheduling.ParseClockTime(startFlag)
			if err != nil {
				return err
			}
			end, err := scheduling.ParseClockTime(endFlag)
			if err != nil {
				return err
			}
			booked, err := normalizeTimes(splitList(bookedFlag))
			if err != nil {
				return err
			}

			slots, err := scheduling.ListBookableStartTimes(start, end, duration, booked)
			if err != nil {
				return err
			}
			for _, s := range slots {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
	listCmd.Flags().String("start", "09:00:00", "Window start")
	listCmd.Flags().String("end", "17:00:00", "Window end")
	listCmd.Flags().Int("duration", 30, "Slot length in minutes")
	listCmd.Flags().String("booked", "", "Comma-separated booked start times")
	cmd.AddCommand(listCmd)

	return cmd
}

// tokenCmd mints a bearer token for local testing.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			doctorID, _ := cmd.Flags().GetInt64("doctor-id")
			patientID, _ := cmd.Flags().GetInt64("patient-id")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			p, err := principalFor(subject, role, doctorID, patientID)
			if err != nil {
				return err
			}
			jwtCfg := auth.JWTConfig{
				Issuer:     os.Getenv("AUTH_ISSUER"),
				Audience:   os.Getenv("AUTH_AUDIENCE"),
				SigningKey: []byte(os.Getenv("AUTH_SIGNING_KEY")),
			}
			token, err := jwtCfg.IssueToken(p, ttl)
			if err != nil {
				return fmt.Errorf("issue token (is AUTH_SIGNING_KEY set?): %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject (user id)")
	cmd.Flags().String("role", auth.RolePatient, "admin, doctor or patient")
	cmd.Flags().Int64("doctor-id", 0, "Doctor profile id for the doctor role")
	cmd.Flags().Int64("patient-id", 0, "Patient profile id for the patient role")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &logger

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}
	settings, err := settingsFromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid scheduling settings")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Repositories
	var doctors scheduling.DoctorRepository = scheduling.NewDoctorRepoPG(pool)
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "meditrack:")
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; doctor cache disabled")
		} else {
			defer rc.Close()
			doctors = scheduling.NewCachedDoctorRepository(doctors, rc, cfg.CacheTTL, logger)
			logger.Info().Dur("ttl", cfg.CacheTTL).Msg("doctor cache enabled")
		}
	}

	appointments := scheduling.NewAppointmentRepoPG(pool)
	txRunner := db.NewTxRunner(pool)
	sink := events.LogSink(logger)

	alloc := scheduling.NewAllocator(scheduling.SystemClock(loc), logger)
	svc := scheduling.NewService(
		doctors,
		scheduling.NewPatientRepoPG(pool),
		appointments,
		txRunner,
		alloc,
		sink,
		settings,
	)
	rxSvc := prescription.NewService(prescription.NewRepoPG(pool), appointments, txRunner, sink)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(15 * time.Second))

	scheduling.NewHandler(svc).RegisterRoutes(apiV1)
	prescription.NewHandler(rxSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("timezone", loc.String()).Msg("starting server")
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

// splitList splits a comma-separated flag, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
