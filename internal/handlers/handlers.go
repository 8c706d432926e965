package handlers

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/models"
	"github.com/ashmitsharp/homeledger-api/internal/services"
)

// Importer runs the statement preview and commit steps
type Importer interface {
	Preview(ctx context.Context, file io.Reader, filename string, accountID *int64) (*services.PreviewResult, error)
	Commit(ctx context.Context, req services.CommitRequest) (*services.CommitSummary, error)
	Classify(ctx context.Context, description string, amount decimal.Decimal, direction models.Direction) (*services.ClassifyResult, error)
}

// StatementStorage archives statement files
type StatementStorage interface {
	StatementKey(owner, filename string) (string, error)
	PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	Archive(ctx context.Context, key string, body io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// RuleSource serves and reloads the active classification rules
type RuleSource interface {
	Rules() *services.RuleSet
	Reload() (*services.RuleSet, error)
	LastLoaded() time.Time
}

// BatchReader reads committed import batches and what they created
type BatchReader interface {
	ListImportBatches(ctx context.Context, limit, offset int) ([]models.ImportBatch, error)
	CountImportBatches(ctx context.Context) (int, error)
	GetImportBatch(ctx context.Context, id int64) (*models.ImportBatch, error)
	ListExpensesByBatch(ctx context.Context, batchID int64) ([]models.Expense, error)
	ListIncomesByBatch(ctx context.Context, batchID int64) ([]models.Income, error)
}

// LedgerStore reads the choices the review form offers and creates accounts
type LedgerStore interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListIncomeCategories(ctx context.Context) ([]models.IncomeCategory, error)
	CreateBankAccount(ctx context.Context, account *models.BankAccount) error
}

// Withholdings serves bucket balances and manual bucket movements
type Withholdings interface {
	Accounts(ctx context.Context) ([]models.BankAccount, error)
	Overview(ctx context.Context) ([]services.AccountBuckets, error)
	Detail(ctx context.Context, id int64) (*services.BucketDetail, error)
	Record(ctx context.Context, id int64, date time.Time, amount decimal.Decimal, payout bool, note string) (*models.WithholdingTransaction, error)
}

// ownerID returns the authenticated user set by the auth middleware
func ownerID(c fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("user_id").(string)
	return userID, ok && userID != ""
}

// paramID parses a positive integer route parameter
func paramID(c fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// optionalID parses an optional positive id. Empty means nil.
func optionalID(raw string) (*int64, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}
