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

	"github.com/skylab/dashboard/internal/config"
	"github.com/skylab/dashboard/internal/domain/app"
	"github.com/skylab/dashboard/internal/domain/notification"
	"github.com/skylab/dashboard/internal/domain/pullrequest"
	"github.com/skylab/dashboard/internal/domain/report"
	"github.com/skylab/dashboard/internal/pipeline"
	"github.com/skylab/dashboard/internal/platform/bus"
	"github.com/skylab/dashboard/internal/platform/cypress"
	"github.com/skylab/dashboard/internal/platform/db"
	"github.com/skylab/dashboard/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "dashboardd",
		Short: "Skylab dashboard API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(publishCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
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
			store, err := db.Open(ctx, cfg.MySQLDSN(), cfg.MySQLConnectionLimit)
			if err != nil {
				return err
			}
			defer store.Close()

			migrator := db.NewMigrator(store, dir)
			fmt.Printf("Running migrations on database: %s\n", cfg.MySQLDatabase)

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
			store, err := db.Open(ctx, cfg.MySQLDSN(), cfg.MySQLConnectionLimit)
			if err != nil {
				return err
			}
			defer store.Close()

			migrator := db.NewMigrator(store, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for database: %s\n", cfg.MySQLDatabase)
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

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore the schema from a backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

// publishCmd exposes the three bus producers as operator commands, so a
// report rebuild or a notification can be injected without going through
// the HTTP surface.
func publishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a message onto the bus",
	}

	e2eCmd := &cobra.Command{
		Use:   "e2e",
		Short: "Request an E2E report build for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			requestID, _ := cmd.Flags().GetString("request-id")
			if date == "" {
				return fmt.Errorf("--date is required")
			}

			return withPublisher(func(ctx context.Context, p *pipeline.Publisher) error {
				id, err := p.PublishE2EReport(ctx, date, requestID)
				if err != nil {
					return err
				}
				fmt.Printf("Published report request for %s (request ID %s)\n", date, id)
				return nil
			})
		},
	}
	e2eCmd.Flags().String("date", "", "Report date (YYYY-MM-DD)")
	e2eCmd.Flags().String("request-id", "", "Correlation ID (generated when empty)")
	cmd.AddCommand(e2eCmd)

	notifyCmd := &cobra.Command{
		Use:   "notification",
		Short: "Publish a dashboard notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			input := &pipeline.NotificationInput{}
			input.Title, _ = cmd.Flags().GetString("title")
			input.Message, _ = cmd.Flags().GetString("message")
			input.Link, _ = cmd.Flags().GetString("link")
			input.Type, _ = cmd.Flags().GetString("type")

			return withPublisher(func(ctx context.Context, p *pipeline.Publisher) error {
				if err := p.PublishNotification(ctx, input); err != nil {
					return err
				}
				fmt.Printf("Published notification %q\n", input.Title)
				return nil
			})
		},
	}
	notifyCmd.Flags().String("title", "", "Notification title")
	notifyCmd.Flags().String("message", "", "Notification body")
	notifyCmd.Flags().String("link", "", "Optional link target")
	notifyCmd.Flags().String("type", notification.TypeInfo, "Notification type (info|success|warning|error)")
	cmd.AddCommand(notifyCmd)

	prDeleteCmd := &cobra.Command{
		Use:   "pr-delete",
		Short: "Request deletion of a tracked pull request",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &pipeline.PullRequestDeletionRequest{}
			req.ID, _ = cmd.Flags().GetInt64("id")
			req.PullRequestNumber, _ = cmd.Flags().GetInt("number")
			req.Repository, _ = cmd.Flags().GetString("repo")
			req.Reason, _ = cmd.Flags().GetString("reason")

			return withPublisher(func(ctx context.Context, p *pipeline.Publisher) error {
				if err := p.PublishPullRequestDeletion(ctx, req); err != nil {
					return err
				}
				fmt.Printf("Published deletion request for pull request %d (%s#%d)\n",
					req.ID, req.Repository, req.PullRequestNumber)
				return nil
			})
		},
	}
	prDeleteCmd.Flags().Int64("id", 0, "Tracked pull request row ID")
	prDeleteCmd.Flags().Int("number", 0, "Pull request number")
	prDeleteCmd.Flags().String("repo", "", "Repository name")
	prDeleteCmd.Flags().String("reason", "", "Optional deletion reason")
	cmd.AddCommand(prDeleteCmd)

	return cmd
}

// withPublisher connects to the bus, runs fn with a ready Publisher and
// closes the connection again. Shared by the publish subcommands.
func withPublisher(fn func(ctx context.Context, p *pipeline.Publisher) error) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, err := bus.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer b.Close()

	return fn(ctx, pipeline.NewPublisher(b, logger))
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	// Database
	ctx := context.Background()
	store, err := db.Open(ctx, cfg.MySQLDSN(), cfg.MySQLConnectionLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	defer store.Close()
	logger.Info().Msg("connected to mysql")

	// Bus
	b, err := bus.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer b.Close()
	logger.Info().Msg("connected to redis")

	// Domain services
	appSvc := app.NewService(app.NewAppRepoMySQL(store))
	notifSvc := notification.NewService(notification.NewNotificationRepoMySQL(store))
	prSvc := pullrequest.NewService(pullrequest.NewPullRequestRepoMySQL(store))
	reportRepo := report.NewReportRepoMySQL(store)
	reportSvc := report.NewService(reportRepo)

	// Report builder over the Cypress Cloud API
	runs := cypress.NewClient(cfg.CypressBaseURL, cfg.CypressAPIKey,
		cypress.WithTimeout(time.Duration(cfg.CypressTimeoutMS)*time.Millisecond))
	builder := report.NewBuilder(reportRepo, &appDirectory{apps: appSvc}, runs, store, logger)

	// Queue engine and channel processors
	engine := pipeline.NewEngine(b, func(ctx context.Context, msg *pipeline.E2EReportMessage) error {
		return builder.Build(ctx, buildRequest(msg))
	}, logger,
		pipeline.WithMaxRetries(cfg.MaxRetries),
		pipeline.WithBaseDelay(time.Duration(cfg.BaseDelayMS)*time.Millisecond),
	)

	processors := []*pipeline.Processor{
		pipeline.NewProcessor("e2e_report", pipeline.ChannelE2EReport, b,
			pipeline.HandlerFunc(engine.HandleMessage), logger),
		pipeline.NewProcessor("notification", pipeline.ChannelNotification, b,
			pipeline.NewNotificationHandler(&notificationWriter{svc: notifSvc}, logger), logger),
		pipeline.NewProcessor("pull_request_delete", pipeline.ChannelPullRequestDelete, b,
			pipeline.NewPullRequestHandler(&pullRequestRemover{svc: prSvc}, logger), logger),
	}
	for _, p := range processors {
		if err := p.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start processor")
		}
	}
	engine.StartWheel(ctx)
	// Pick up queue entries left behind by a previous run.
	go engine.Drain(ctx)

	publisher := pipeline.NewPublisher(b, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	// API groups
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	ops := e.Group("/ops")

	notification.NewHandler(notifSvc).RegisterRoutes(apiV1)
	report.NewHandler(reportSvc).RegisterRoutes(apiV1)
	pipeline.NewHandler(publisher, engine).RegisterRoutes(apiV1, ops)

	// Health endpoints
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/readyz", readyz(store, b))
	e.GET("/readyz/db", db.HealthHandler(store))
	e.GET("/readyz/bus", bus.HealthHandler(b))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
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
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	for _, p := range processors {
		p.Stop()
	}
	engine.StopWheel()
	logger.Info().Msg("server stopped")
	return nil
}

// readyz reports ready only when both backing services answer a ping.
func readyz(store *db.Store, b bus.Bus) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		if err := store.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unready", "error": "mysql: " + err.Error(),
			})
		}
		if err := b.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unready", "error": "redis: " + err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
}

// buildRequest maps a queued report message onto the builder's request.
func buildRequest(msg *pipeline.E2EReportMessage) report.BuildRequest {
	return report.BuildRequest{
		Date:       msg.Date,
		AppIDs:     msg.AppIDs,
		RequestID:  msg.RequestID,
		RetryCount: msg.RetryCount,
	}
}

// appDirectory adapts the app service to the report builder's directory
// interface, keeping the report package free of an app import.
type appDirectory struct {
	apps *app.Service
}

func (d *appDirectory) GetByID(ctx context.Context, id int64) (*report.AppInfo, error) {
	a, err := d.apps.GetApp(ctx, id)
	if err != nil || a == nil {
		return nil, err
	}
	return &report.AppInfo{ID: a.ID, Name: a.Name}, nil
}

func (d *appDirectory) GetWatching(ctx context.Context) ([]report.AppInfo, error) {
	apps, err := d.apps.GetWatchingApps(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]report.AppInfo, 0, len(apps))
	for _, a := range apps {
		infos = append(infos, report.AppInfo{ID: a.ID, Name: a.Name})
	}
	return infos, nil
}

// notificationWriter adapts the notification service to the pipeline's
// writer interface.
type notificationWriter struct {
	svc *notification.Service
}

func (w *notificationWriter) Write(ctx context.Context, input *pipeline.NotificationInput) error {
	return w.svc.CreateNotification(ctx, newNotification(input))
}

// newNotification maps a channel payload onto a notification row. An
// empty link stays NULL rather than an empty string.
func newNotification(input *pipeline.NotificationInput) *notification.Notification {
	n := &notification.Notification{
		Title:   input.Title,
		Message: input.Message,
		Type:    input.Type,
	}
	if input.Link != "" {
		link := input.Link
		n.Link = &link
	}
	return n
}

// pullRequestRemover adapts the pull request service to the pipeline's
// remover interface.
type pullRequestRemover struct {
	svc *pullrequest.Service
}

func (r *pullRequestRemover) Remove(ctx context.Context, id int64) error {
	return r.svc.DeletePullRequest(ctx, id)
}
