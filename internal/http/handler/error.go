package handler

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"docapi/internal/http/middleware"
	"docapi/internal/service"
)

// Machine-readable error codes returned in the "error" field.
const (
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeInvalidFileType    = "INVALID_FILE_TYPE"
	CodeDuplicateFile      = "DUPLICATE_FILE"
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeFileNotFound       = "FILE_NOT_FOUND"
	CodeDeleteFailed       = "DELETE_FAILED"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// successPayload wraps every successful JSON response.
type successPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// apiError is a transport-level failure: status, code and a message safe to show clients.
type apiError struct {
	status  int
	code    string
	message string
}


// writeError writes a standardized JSON error response without leaking internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		Success:   false,
		Error:     code,
		Message:   message,
		RequestID: middleware.RequestIDFrom(c),
	})
}

func writeAPIError(c *fiber.Ctx, e apiError) error {
	return writeError(c, e.status, e.code, e.message)
}

func writeSuccess(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(successPayload{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func fileTooLargeMessage(maxFileSize int64) string {
	if maxFileSize > 0 && maxFileSize%(1024*1024) == 0 {
		return fmt.Sprintf("File size exceeds the maximum limit of %dMB", maxFileSize/(1024*1024))
	}
	if maxFileSize > 0 {
		return fmt.Sprintf("File size exceeds the maximum limit of %d bytes", maxFileSize)
	}
	return "File size exceeds the maximum limit"
}

func invalidIDError() apiError {
	return apiError{fiber.StatusBadRequest, CodeInvalidRequest, "Invalid document ID"}
}

// uploadError maps an Upload failure to its response.
func uploadError(err error, maxFileSize int64) apiError {
	switch {
	case errors.Is(err, service.ErrReaderNil):
		return apiError{fiber.StatusBadRequest, CodeInvalidRequest, "No file uploaded"}
	case errors.Is(err, service.ErrInvalidFileType):
		return apiError{fiber.StatusBadRequest, CodeInvalidFileType, "Only PDF files are allowed"}
	case errors.Is(err, service.ErrFileTooLarge):
		return apiError{fiber.StatusBadRequest, CodeFileTooLarge, fileTooLargeMessage(maxFileSize)}
	case errors.Is(err, service.ErrDuplicateFile):
		return apiError{fiber.StatusConflict, CodeDuplicateFile, "A document with this name already exists"}
	case errors.Is(err, service.ErrStorage):
		return apiError{fiber.StatusInternalServerError, CodeUploadFailed, "File upload failed"}
	default:
		return apiError{fiber.StatusInternalServerError, CodeDatabaseError, "Failed to save document metadata"}
	}
}

// downloadError maps a Download failure to its response.
// ErrBlobMissing is checked before ErrNotFound, which it also matches.
func downloadError(err error) apiError {
	switch {
	case errors.Is(err, service.ErrInvalidID):
		return invalidIDError()
	case errors.Is(err, service.ErrBlobMissing):
		return apiError{fiber.StatusNotFound, CodeFileNotFound, "File not found on server"}
	case errors.Is(err, service.ErrNotFound):
		return apiError{fiber.StatusNotFound, CodeFileNotFound, "Document not found"}
	case errors.Is(err, service.ErrStorage):
		return apiError{fiber.StatusInternalServerError, CodeFileNotFound, "Error streaming file"}
	default:
		return apiError{fiber.StatusInternalServerError, CodeDatabaseError, "Failed to retrieve document"}
	}
}

// deleteError maps a Delete failure to its response.
func deleteError(err error) apiError {
	switch {
	case errors.Is(err, service.ErrInvalidID):
		return invalidIDError()
	case errors.Is(err, service.ErrNotFound):
		return apiError{fiber.StatusNotFound, CodeFileNotFound, "Document not found"}
	default:
		return apiError{fiber.StatusInternalServerError, CodeDeleteFailed, "Failed to delete document"}
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
// Bodies rejected by the body limit are reported as FILE_TOO_LARGE.
func ErrorHandler(maxFileSize int64) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var e *fiber.Error
		if errors.As(err, &e) {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, CodeInvalidRequest, "Invalid request")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, fiber.StatusBadRequest, CodeFileTooLarge, fileTooLargeMessage(maxFileSize))
		case fiber.StatusNotFound:
			return writeError(c, status, CodeNotFound, "Resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, CodeMethodNotAllowed, "Method not allowed")
		default:
			return writeError(c, fiber.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
		}
	}
}
