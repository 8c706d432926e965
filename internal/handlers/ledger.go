package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/models"
	"github.com/ashmitsharp/homeledger-api/internal/utils"
)

// LedgerHandler serves the categories and accounts the review form picks from
type LedgerHandler struct {
	store        LedgerStore
	withholdings Withholdings
}

// NewLedgerHandler creates a ledger handler
func NewLedgerHandler(store LedgerStore, withholdings Withholdings) *LedgerHandler {
	return &LedgerHandler{store: store, withholdings: withholdings}
}

// ListCategories returns the expense categories
// GET /v1/categories
func (h *LedgerHandler) ListCategories(c fiber.Ctx) error {
	categories, err := h.store.ListCategories(c.Context())
	if err != nil {
		return utils.NewInternalError(err)
	}
	return utils.SuccessResponse(c, categories)
}

// ListIncomeCategories returns the income sources
// GET /v1/income-categories
func (h *LedgerHandler) ListIncomeCategories(c fiber.Ctx) error {
	categories, err := h.store.ListIncomeCategories(c.Context())
	if err != nil {
		return utils.NewInternalError(err)
	}
	return utils.SuccessResponse(c, categories)
}

// ListBankAccounts returns every account, with withholding totals where they apply
// GET /v1/bank-accounts
func (h *LedgerHandler) ListBankAccounts(c fiber.Ctx) error {
	accounts, err := h.withholdings.Accounts(c.Context())
	if err != nil {
		return utils.NewInternalError(err)
	}
	return utils.SuccessResponse(c, accounts)
}

// CreateBankAccountRequest is the body for CreateBankAccount
type CreateBankAccountRequest struct {
	Name                 string          `json:"name"`
	Institution          string          `json:"institution"`
	AccountNumberLast4   string          `json:"account_number_last4"`
	AccountType          string          `json:"account_type"`
	IsWithholdingAccount bool            `json:"is_withholding_account"`
	CurrentBalance       decimal.Decimal `json:"current_balance"`
}

// CreateBankAccount adds an account
// POST /v1/bank-accounts
func (h *LedgerHandler) CreateBankAccount(c fiber.Ctx) error {
	var req CreateBankAccountRequest
	if err := c.Bind().JSON(&req); err != nil {
		return utils.NewBadRequestError("invalid request body", nil)
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return utils.NewBadRequestError("name is required", nil)
	}
	if len(req.AccountNumberLast4) > 4 {
		return utils.NewBadRequestError("account_number_last4 must be at most 4 characters", nil)
	}

	account := &models.BankAccount{
		Name:                 req.Name,
		Institution:          strings.TrimSpace(req.Institution),
		AccountNumberLast4:   req.AccountNumberLast4,
		AccountType:          strings.TrimSpace(req.AccountType),
		IsWithholdingAccount: req.IsWithholdingAccount,
		CurrentBalance:       req.CurrentBalance,
		IsActive:             true,
	}
	if err := h.store.CreateBankAccount(c.Context(), account); err != nil {
		return utils.NewInternalError(err)
	}

	account.UnallocatedBalance = account.CurrentBalance
	return utils.CreatedResponse(c, account)
}
