package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/ashmitsharp/homeledger-api/internal/database/db"
	"github.com/ashmitsharp/homeledger-api/internal/utils"
)

// BatchHandler lists committed imports
type BatchHandler struct {
	store BatchReader
}

// NewBatchHandler creates a batch handler
func NewBatchHandler(store BatchReader) *BatchHandler {
	return &BatchHandler{store: store}
}

// ListBatches returns import batches, most recent first
// GET /v1/imports/batches?limit=20&offset=0
func (h *BatchHandler) ListBatches(c fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	batches, err := h.store.ListImportBatches(c.Context(), limit, offset)
	if err != nil {
		return utils.NewInternalError(err)
	}
	total, err := h.store.CountImportBatches(c.Context())
	if err != nil {
		return utils.NewInternalError(err)
	}

	return utils.PaginatedResponse(c, batches, limit, offset, total)
}

// GetBatch returns one batch with the expenses and incomes it created
// GET /v1/imports/batches/:id
func (h *BatchHandler) GetBatch(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.NewBadRequestError("invalid batch id", nil)
	}

	batch, err := h.store.GetImportBatch(c.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return utils.NewNotFoundError("import batch")
	}
	if err != nil {
		return utils.NewInternalError(err)
	}

	expenses, err := h.store.ListExpensesByBatch(c.Context(), id)
	if err != nil {
		return utils.NewInternalError(err)
	}
	incomes, err := h.store.ListIncomesByBatch(c.Context(), id)
	if err != nil {
		return utils.NewInternalError(err)
	}

	return utils.SuccessResponse(c, fiber.Map{
		"batch":      batch,
		"net_amount": batch.NetAmount(),
		"expenses":   expenses,
		"incomes":    incomes,
	})
}
