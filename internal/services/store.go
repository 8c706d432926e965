package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// ImportStore is the persistence surface the import pipeline reads and writes.
// Lookups return db.ErrNotFound when the record does not exist.
type ImportStore interface {
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*models.Category, error)
	GetOrCreateIncomeCategory(ctx context.Context, name string) (*models.IncomeCategory, error)
	GetBankAccount(ctx context.Context, id int64) (*models.BankAccount, error)
	GetWithholdingCategory(ctx context.Context, id int64) (*models.WithholdingCategory, error)

	ExpenseExists(ctx context.Context, key models.ExpenseKey) (bool, error)
	IncomeExists(ctx context.Context, key models.IncomeKey) (bool, error)
	WithholdingTransactionExists(ctx context.Context, categoryID int64, date time.Time, amount decimal.Decimal) (bool, error)
	ListImportBatchesForAccount(ctx context.Context, accountID int64) ([]models.ImportBatch, error)

	CreateImportBatch(ctx context.Context, batch *models.ImportBatch) error
	CreateExpense(ctx context.Context, expense *models.Expense) error
	CreateIncome(ctx context.Context, income *models.Income) error
	CreateWithholdingTransaction(ctx context.Context, txn *models.WithholdingTransaction) error

	// WithinTx runs fn against a store bound to one database transaction.
	// The transaction commits only if fn returns nil.
	WithinTx(ctx context.Context, fn func(ImportStore) error) error
}
