package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/database/db"
	"github.com/ashmitsharp/homeledger-api/internal/models"
	"github.com/ashmitsharp/homeledger-api/internal/services"
	"github.com/ashmitsharp/homeledger-api/internal/utils"
)

// MockImporter is a mock implementation of Importer for testing
type MockImporter struct {
	PreviewFunc  func(ctx context.Context, file io.Reader, filename string, accountID *int64) (*services.PreviewResult, error)
	CommitFunc   func(ctx context.Context, req services.CommitRequest) (*services.CommitSummary, error)
	ClassifyFunc func(ctx context.Context, description string, amount decimal.Decimal, direction models.Direction) (*services.ClassifyResult, error)
}

func (m *MockImporter) Preview(ctx context.Context, file io.Reader, filename string, accountID *int64) (*services.PreviewResult, error) {
	if m.PreviewFunc != nil {
		return m.PreviewFunc(ctx, file, filename, accountID)
	}
	return nil, errors.New("preview failed")
}

func (m *MockImporter) Commit(ctx context.Context, req services.CommitRequest) (*services.CommitSummary, error) {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, req)
	}
	return nil, errors.New("commit failed")
}

func (m *MockImporter) Classify(ctx context.Context, description string, amount decimal.Decimal, direction models.Direction) (*services.ClassifyResult, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, description, amount, direction)
	}
	return nil, errors.New("classify failed")
}

// MockStorage is a mock implementation of StatementStorage for testing
type MockStorage struct {
	StatementKeyFunc  func(owner, filename string) (string, error)
	PresignUploadFunc func(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	ArchiveFunc       func(ctx context.Context, key string, body io.Reader, contentType string) error
	OpenFunc          func(ctx context.Context, key string) (io.ReadCloser, error)
}

func (m *MockStorage) StatementKey(owner, filename string) (string, error) {
	if m.StatementKeyFunc != nil {
		return m.StatementKeyFunc(owner, filename)
	}
	return fmt.Sprintf("statements/%s/2025-01/1735689600-abcd1234-%s", owner, filename), nil
}

func (m *MockStorage) PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if m.PresignUploadFunc != nil {
		return m.PresignUploadFunc(ctx, key, contentType, expiry)
	}
	return fmt.Sprintf("https://s3.amazonaws.com/bucket/%s?signature=mock", key), nil
}

func (m *MockStorage) Archive(ctx context.Context, key string, body io.Reader, contentType string) error {
	if m.ArchiveFunc != nil {
		return m.ArchiveFunc(ctx, key, body, contentType)
	}
	return nil
}

func (m *MockStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, key)
	}
	return nil, errors.New("file not found")
}

// MockRules is a mock implementation of RuleSource for testing
type MockRules struct {
	RuleSet    *services.RuleSet
	ReloadFunc func() (*services.RuleSet, error)
	Loaded     time.Time
}

func (m *MockRules) Rules() *services.RuleSet {
	return m.RuleSet
}

func (m *MockRules) Reload() (*services.RuleSet, error) {
	if m.ReloadFunc != nil {
		return m.ReloadFunc()
	}
	return m.RuleSet, nil
}

func (m *MockRules) LastLoaded() time.Time {
	return m.Loaded
}

// MockBatches is a mock implementation of BatchReader backed by a slice
type MockBatches struct {
	Batches  []models.ImportBatch
	Expenses map[int64][]models.Expense
	Incomes  map[int64][]models.Income
	Err      error
}

func (m *MockBatches) ListImportBatches(_ context.Context, limit, offset int) ([]models.ImportBatch, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if offset >= len(m.Batches) {
		return []models.ImportBatch{}, nil
	}
	end := min(offset+limit, len(m.Batches))
	return m.Batches[offset:end], nil
}

func (m *MockBatches) CountImportBatches(context.Context) (int, error) {
	return len(m.Batches), m.Err
}

func (m *MockBatches) GetImportBatch(_ context.Context, id int64) (*models.ImportBatch, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	for i := range m.Batches {
		if m.Batches[i].ID == id {
			return &m.Batches[i], nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *MockBatches) ListExpensesByBatch(_ context.Context, batchID int64) ([]models.Expense, error) {
	return m.Expenses[batchID], nil
}

func (m *MockBatches) ListIncomesByBatch(_ context.Context, batchID int64) ([]models.Income, error) {
	return m.Incomes[batchID], nil
}

// MockLedger is a mock implementation of LedgerStore for testing
type MockLedger struct {
	Categories       []models.Category
	IncomeCategories []models.IncomeCategory
	Created          []models.BankAccount
	Err              error
}

func (m *MockLedger) ListCategories(context.Context) ([]models.Category, error) {
	return m.Categories, m.Err
}

func (m *MockLedger) ListIncomeCategories(context.Context) ([]models.IncomeCategory, error) {
	return m.IncomeCategories, m.Err
}

func (m *MockLedger) CreateBankAccount(_ context.Context, account *models.BankAccount) error {
	if m.Err != nil {
		return m.Err
	}
	account.ID = int64(len(m.Created) + 1)
	m.Created = append(m.Created, *account)
	return nil
}

// MockWithholdings is a mock implementation of Withholdings for testing
type MockWithholdings struct {
	AccountsFunc func(ctx context.Context) ([]models.BankAccount, error)
	OverviewFunc func(ctx context.Context) ([]services.AccountBuckets, error)
	DetailFunc   func(ctx context.Context, id int64) (*services.BucketDetail, error)
	RecordFunc   func(ctx context.Context, id int64, date time.Time, amount decimal.Decimal, payout bool, note string) (*models.WithholdingTransaction, error)
}

func (m *MockWithholdings) Accounts(ctx context.Context) ([]models.BankAccount, error) {
	if m.AccountsFunc != nil {
		return m.AccountsFunc(ctx)
	}
	return []models.BankAccount{}, nil
}

func (m *MockWithholdings) Overview(ctx context.Context) ([]services.AccountBuckets, error) {
	if m.OverviewFunc != nil {
		return m.OverviewFunc(ctx)
	}
	return []services.AccountBuckets{}, nil
}

func (m *MockWithholdings) Detail(ctx context.Context, id int64) (*services.BucketDetail, error) {
	if m.DetailFunc != nil {
		return m.DetailFunc(ctx, id)
	}
	return nil, db.ErrNotFound
}

func (m *MockWithholdings) Record(ctx context.Context, id int64, date time.Time, amount decimal.Decimal, payout bool, note string) (*models.WithholdingTransaction, error) {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, id, date, amount, payout, note)
	}
	return nil, services.ErrNotWithholdingBucket
}

// newTestApp returns an app with the API error handler and an optional signed-in user
func newTestApp(userID string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: utils.ErrorHandler})
	if userID != "" {
		app.Use(func(c fiber.Ctx) error {
			// Simulate auth middleware setting user_id
			c.Locals("user_id", userID)
			return c.Next()
		})
	}
	return app
}
