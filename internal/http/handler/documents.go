package handler

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"docapi/internal/config"
	"docapi/internal/http/middleware"
	"docapi/internal/logger"
	"docapi/internal/model"
	"docapi/internal/service"
)

// uploadData is the subset of a document returned after an upload.
type uploadData struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"filesize"`
	CreatedAt time.Time `json:"created_at"`
}

// Response shapes for the API docs.
type uploadResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    uploadData `json:"data"`
}

type listResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    []model.Document `json:"data"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// parseID reads the :id path parameter. Only positive base-10 integers are accepted.
func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// UploadDocument handles multipart uploads with the PDF in the "file" field.
//
// @Summary  Upload a PDF document
// @Tags     documents
// @Accept   multipart/form-data
// @Produce  json
// @Param    file formData file true "PDF file"
// @Success  201 {object} uploadResponse
// @Failure  400 {object} errorPayload
// @Failure  409 {object} errorPayload
// @Failure  500 {object} errorPayload
// @Router   /documents/upload [post]
func UploadDocument(docSvc service.DocumentService, maxFileSize int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, CodeInvalidRequest, "No file uploaded")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, CodeInvalidRequest, "Cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get(fiber.HeaderContentType)
		if ct == "" {
			ct = fiber.MIMEOctetStream
		}

		doc, err := docSvc.Upload(c.UserContext(), f, fh.Filename, ct, fh.Size)
		if err != nil {
			return writeAPIError(c, uploadError(err, maxFileSize))
		}
		return writeSuccess(c, fiber.StatusCreated, "File uploaded successfully", uploadData{
			ID:        doc.ID,
			Filename:  doc.Filename,
			Size:      doc.Size,
			CreatedAt: doc.CreatedAt,
		})
	}
}

// ListDocuments returns every document, newest first.
//
// @Summary  List documents
// @Tags     documents
// @Produce  json
// @Success  200 {object} listResponse
// @Failure  500 {object} errorPayload
// @Router   /documents [get]
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := docSvc.List(c.UserContext())
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, CodeDatabaseError, "Failed to retrieve documents")
		}
		if items == nil {
			items = []model.Document{}
		}
		return writeSuccess(c, fiber.StatusOK, "Documents retrieved successfully", items)
	}
}

// DownloadDocument streams the PDF as an attachment named after its display name.
//
// @Summary  Download a document
// @Tags     documents
// @Produce  application/pdf
// @Param    id path int true "Document ID"
// @Success  200 {file} file
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Failure  500 {object} errorPayload
// @Router   /documents/{id} [get]
func DownloadDocument(docSvc service.DocumentService, log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Stdout(time.UTC)
	}
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeAPIError(c, invalidIDError())
		}

		doc, rc, err := docSvc.Download(c.UserContext(), id)
		if err != nil {
			return writeAPIError(c, downloadError(err))
		}

		c.Set(fiber.HeaderContentType, config.PDFContentType)
		c.Set(fiber.HeaderContentDisposition, contentDisposition(doc.Filename))

		// The body is written after this handler returns; fasthttp closes the stream.
		return c.SendStream(&streamLogger{
			rc:  rc,
			log: log,
			fields: map[string]any{
				"request_id":  middleware.RequestIDFrom(c),
				"document_id": doc.ID,
			},
		}, int(doc.Size))
	}
}

// DeleteDocument removes a document and its file.
//
// @Summary  Delete a document
// @Tags     documents
// @Produce  json
// @Param    id path int true "Document ID"
// @Success  200 {object} messageResponse
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Failure  500 {object} errorPayload
// @Router   /documents/{id} [delete]
func DeleteDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeAPIError(c, invalidIDError())
		}

		if _, err := docSvc.Delete(c.UserContext(), id); err != nil {
			return writeAPIError(c, deleteError(err))
		}
		return writeSuccess(c, fiber.StatusOK, "Document deleted successfully", nil)
	}
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "")

// contentDisposition builds an attachment header with the display name as a quoted-string.
func contentDisposition(filename string) string {
	return `attachment; filename="` + quoteEscaper.Replace(filename) + `"`
}

// streamLogger logs the first read error of a download.
// Headers are already sent by then, so the response cannot be rewritten.
type streamLogger struct {
	rc     io.ReadCloser
	log    *logger.Logger
	fields map[string]any
	failed bool
}

func (s *streamLogger) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	if err != nil && err != io.EOF && !s.failed {
		s.failed = true
		s.log.Error("download_stream_failed", err, s.fields)
	}
	return n, err
}

func (s *streamLogger) Close() error {
	return s.rc.Close()
}
