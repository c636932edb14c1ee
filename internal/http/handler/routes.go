package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"docapi/internal/logger"
	"docapi/internal/service"
)

// RouteConfig carries the settings handlers need beyond their dependencies.
type RouteConfig struct {
	MaxFileSize int64
	Logger      *logger.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService, cfg RouteConfig) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Post("/documents/upload", UploadDocument(docSvc, cfg.MaxFileSize))
	app.Get("/documents", ListDocuments(docSvc))
	app.Get("/documents/:id", DownloadDocument(docSvc, cfg.Logger))
	app.Delete("/documents/:id", DeleteDocument(docSvc))
}
