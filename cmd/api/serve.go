package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"docapi/docs"
	"docapi/internal/config"
	"docapi/internal/database"
	"docapi/internal/database/migration"
	handlers "docapi/internal/http/handler"
	"docapi/internal/http/middleware"
	"docapi/internal/logger"
	"docapi/internal/otel"
	"docapi/internal/repository"
	"docapi/internal/repository/cache"
	"docapi/internal/repository/postgres"
	"docapi/internal/service"
	"docapi/internal/storage"
)

// multipartOverhead is the allowance for multipart boundaries and part headers on top of the file itself.
const multipartOverhead = 64 * 1024

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	log := logger.Stdout(cfg.Location())

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error("tracing_shutdown_failed", err, nil)
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Error("db_connect_failed", err, map[string]any{"db_host": database.HostOf(cfg.Database)})
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log, database.HostOf(cfg.Database)); err != nil {
		return err
	}

	// The local backend creates the upload directory here if it is missing.
	blobs, err := storage.New(cfg)
	if err != nil {
		log.Error("blob_store_init_failed", err, map[string]any{"backend": cfg.Upload.Backend})
		return fmt.Errorf("init blob store: %w", err)
	}

	var docRepo repository.DocumentRepository = postgres.NewDocumentPostgres(db)
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			// The cache only serves lookups by id; run without it.
			log.Error("cache_disabled", err, map[string]any{"redis_addr": cfg.Redis.Addr})
		} else {
			defer rc.Close()
			docRepo = cache.Wrap(docRepo, rc, time.Duration(cfg.Redis.TTLSec)*time.Second)
		}
	}

	docSvc := service.NewDocumentService(blobs, docRepo, cfg.Upload)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := newApp(cfg, db, docSvc, log, reg)
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	listenErr := make(chan error, 1)
	go func() {
		log.Info("server_starting", map[string]any{
			"addr":         addr,
			"blob_backend": cfg.Upload.Backend,
			"upload_dir":   cfg.Upload.Dir,
			"cache":        cfg.Redis.Addr != "",
		})
		listenErr <- app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			log.Error("server_failed", err, map[string]any{"addr": addr})
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server_stopping", nil)
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error("server_shutdown_failed", err, nil)
		return err
	}
	if err := <-listenErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newApp builds the Fiber application with middleware and routes.
func newApp(cfg *config.AppConfig, db *sql.DB, docSvc service.DocumentService, log *logger.Logger, reg *prometheus.Registry) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(cfg.Upload.MaxFileSize),
		BodyLimit:    int(cfg.Upload.MaxFileSize) + multipartOverhead,
	})

	prom, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	app.Use(cors.New())
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(log))
	app.Use(prom.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, db, docSvc, handlers.RouteConfig{
		MaxFileSize: cfg.Upload.MaxFileSize,
		Logger:      log,
	})

	return app, nil
}
