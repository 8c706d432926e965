package handlers

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/ashmitsharp/homeledger-api/internal/logger"
	"github.com/ashmitsharp/homeledger-api/internal/services"
	"github.com/ashmitsharp/homeledger-api/internal/utils"
)

const (
	// PresignedURLExpiry is how long a presigned upload URL stays valid
	PresignedURLExpiry = 15 * time.Minute
)

// ImportHandler serves the upload, review and commit steps of a statement import
type ImportHandler struct {
	importer  Importer
	storage   StatementStorage
	validator *services.FileValidator
}

// NewImportHandler creates an import handler. storage may be nil when
// statements are not archived.
func NewImportHandler(importer Importer, storage StatementStorage, validator *services.FileValidator) *ImportHandler {
	return &ImportHandler{
		importer:  importer,
		storage:   storage,
		validator: validator,
	}
}

// PreviewRequest is the JSON form of a preview for a file already in storage
type PreviewRequest struct {
	FileKey       string `json:"file_key"`
	BankAccountID *int64 `json:"bank_account_id"`
}

// GetPresignedURL returns a presigned PUT URL for uploading a statement
// GET /v1/imports/presigned-url?filename=jan.csv&content_type=text/csv
func (h *ImportHandler) GetPresignedURL(c fiber.Ctx) error {
	// 1. Storage must be configured
	if h.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "statement storage is not configured",
		})
	}

	// 2. Validate query parameters
	filename := c.Query("filename")
	contentType := c.Query("content_type")
	if filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "filename is required",
		})
	}
	if contentType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "content_type is required",
		})
	}
	if err := h.validator.ValidateFilename(filename); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if !services.IsStatementContentType(contentType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unsupported file type",
		})
	}

	// 3. Key the upload under the caller
	owner, ok := ownerID(c)
	if !ok {
		return utils.NewUnauthorizedError("user_id not found")
	}
	key, err := h.storage.StatementKey(owner, filename)
	if err != nil {
		return utils.NewInternalError(err)
	}

	// 4. Presign
	url, err := h.storage.PresignUpload(c.Context(), key, contentType, PresignedURLExpiry)
	if err != nil {
		return utils.NewInternalError(err)
	}

	return c.JSON(fiber.Map{
		"upload_url": url,
		"file_key":   key,
		"expires_in": int(PresignedURLExpiry.Seconds()),
	})
}

// Preview parses and classifies a statement and returns the review form.
// POST /v1/imports/preview
// Multipart: file, bank_account_id (optional)
// JSON:      {"file_key": "...", "bank_account_id": 3}
func (h *ImportHandler) Preview(c fiber.Ctx) error {
	log := logger.FromContext(c.Context())

	owner, ok := ownerID(c)
	if !ok {
		return utils.NewUnauthorizedError("user_id not found")
	}

	// 1. Load and validate the file from the form or from storage
	var (
		data      []byte
		filename  string
		fileKey   string
		accountID *int64
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		header, err := c.FormFile("file")
		if err != nil {
			return uploadError(c, fiber.StatusBadRequest, "file is required")
		}
		if accountID, ok = optionalID(c.FormValue("bank_account_id")); !ok {
			return uploadError(c, fiber.StatusBadRequest, "bank_account_id must be a positive integer")
		}

		filename = filepath.Base(header.Filename)
		data, err = h.readUpload(header, filename)
		if err != nil {
			return uploadError(c, fiber.StatusBadRequest, err.Error())
		}

		// Archiving is best effort; the preview does not depend on it
		if h.storage != nil {
			if key, err := h.archive(c, owner, filename, header.Header.Get(fiber.HeaderContentType), data); err != nil {
				log.Warn().Err(err).Str("filename", filename).Msg("statement not archived")
			} else {
				fileKey = key
			}
		}
	} else {
		var req PreviewRequest
		if err := c.Bind().JSON(&req); err != nil {
			return uploadError(c, fiber.StatusBadRequest, "invalid request body")
		}
		if req.FileKey == "" {
			return uploadError(c, fiber.StatusBadRequest, "file or file_key is required")
		}
		if h.storage == nil {
			return uploadError(c, fiber.StatusServiceUnavailable, "statement storage is not configured")
		}
		if !services.OwnsKey(owner, req.FileKey) {
			return utils.NewForbiddenError("cannot access this file")
		}

		reader, err := h.storage.Open(c.Context(), req.FileKey)
		if err != nil {
			return uploadError(c, fiber.StatusNotFound, "file not found in storage")
		}
		defer reader.Close()

		filename = services.StatementFilename(req.FileKey)
		fileKey = req.FileKey
		accountID = req.BankAccountID
		if data, err = h.validate(reader, filename, ""); err != nil {
			return uploadError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	// 2. Parse, classify, flag duplicates
	result, err := h.importer.Preview(c.Context(), bytes.NewReader(data), filename, accountID)
	switch {
	case errors.Is(err, services.ErrEmptyImport):
		return uploadError(c, fiber.StatusUnprocessableEntity, "no transactions found in file")
	case errors.Is(err, services.ErrUnreadableStatement):
		return uploadError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUnknownBankAccount):
		return uploadError(c, fiber.StatusBadRequest, "unknown bank account")
	case err != nil:
		return utils.NewInternalError(err)
	}

	result.FileKey = fileKey
	return c.JSON(result)
}

// Commit validates the reviewed rows and writes them in one transaction
// POST /v1/imports/commit
func (h *ImportHandler) Commit(c fiber.Ctx) error {
	// 1. Parse request body
	var req services.CommitRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"state": services.StateReview,
			"error": "invalid request body",
		})
	}
	if len(req.Rows) == 0 {
		return uploadError(c, fiber.StatusBadRequest, "rows are required")
	}

	// 2. Commit
	summary, err := h.importer.Commit(c.Context(), req)

	var reviewErr *services.ReviewError
	switch {
	case errors.As(err, &reviewErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"state": services.StateReview,
			"error": "some rows need attention",
			"rows":  reviewErr.Rows,
		})
	case errors.Is(err, services.ErrUnknownBankAccount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"state": services.StateReview,
			"error": "unknown bank account",
		})
	case err != nil:
		return utils.NewInternalError(err)
	}

	return c.JSON(summary)
}

func (h *ImportHandler) readUpload(header *multipart.FileHeader, filename string) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// Clients that cannot tell send octet-stream; let the content decide
	contentType := header.Header.Get(fiber.HeaderContentType)
	if contentType == fiber.MIMEOctetStream {
		contentType = ""
	}
	return h.validate(file, filename, contentType)
}

func (h *ImportHandler) validate(r io.Reader, filename, contentType string) ([]byte, error) {
	result, data, err := h.validator.ValidateFile(r, filename, contentType)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

func (h *ImportHandler) archive(c fiber.Ctx, owner, filename, contentType string, data []byte) (string, error) {
	key, err := h.storage.StatementKey(owner, filename)
	if err != nil {
		return "", err
	}
	if err := h.storage.Archive(c.Context(), key, bytes.NewReader(data), contentType); err != nil {
		return "", err
	}
	return key, nil
}

// uploadError sends the flow back to the upload step
func uploadError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"state": services.StateUpload,
		"error": message,
	})
}
