package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/database/db"
	"github.com/ashmitsharp/homeledger-api/internal/services"
	"github.com/ashmitsharp/homeledger-api/internal/utils"
)

// WithholdingHandler serves withholding buckets
type WithholdingHandler struct {
	withholdings Withholdings
}

// NewWithholdingHandler creates a withholding handler
func NewWithholdingHandler(withholdings Withholdings) *WithholdingHandler {
	return &WithholdingHandler{withholdings: withholdings}
}

// ListWithholdings returns buckets grouped by withholding account
// GET /v1/withholdings
func (h *WithholdingHandler) ListWithholdings(c fiber.Ctx) error {
	overview, err := h.withholdings.Overview(c.Context())
	if err != nil {
		return utils.NewInternalError(err)
	}
	return utils.SuccessResponse(c, overview)
}

// GetWithholding returns one bucket and its running-balance ledger
// GET /v1/withholdings/:id
func (h *WithholdingHandler) GetWithholding(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.NewBadRequestError("invalid bucket id", nil)
	}

	detail, err := h.withholdings.Detail(c.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return utils.NewNotFoundError("withholding bucket")
	}
	if err != nil {
		return utils.NewInternalError(err)
	}
	return utils.SuccessResponse(c, detail)
}

// RecordWithholdingRequest is the body for RecordTransaction
type RecordWithholdingRequest struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Payout bool            `json:"payout"`
	Note   string          `json:"note"`
}

// RecordTransaction adds a manual contribution or payout
// POST /v1/withholdings/:id/transactions
func (h *WithholdingHandler) RecordTransaction(c fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.NewBadRequestError("invalid bucket id", nil)
	}

	var req RecordWithholdingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return utils.NewBadRequestError("invalid request body", nil)
	}

	fields := map[string]string{}
	date, err := services.ParseDate(req.Date)
	if err != nil {
		fields["date"] = "enter a date as YYYY-MM-DD or MM/DD/YYYY"
	}
	if req.Amount.IsZero() {
		fields["amount"] = "amount is required"
	}
	if len(fields) > 0 {
		return utils.NewBadRequestError("invalid withholding transaction", fields)
	}

	txn, err := h.withholdings.Record(c.Context(), id, date, req.Amount, req.Payout, strings.TrimSpace(req.Note))
	if errors.Is(err, services.ErrNotWithholdingBucket) {
		return utils.NewUnprocessableError("bucket is not in a withholding account", nil)
	}
	if err != nil {
		return utils.NewInternalError(err)
	}
	return utils.CreatedResponse(c, txn)
}
