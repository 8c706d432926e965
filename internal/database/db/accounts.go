package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

const bankAccountColumns = `id, name, institution, account_number_last4, account_type,
	is_withholding_account, current_balance, is_active`

func scanBankAccount(row pgx.Row) (*models.BankAccount, error) {
	var a models.BankAccount
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Institution,
		&a.AccountNumberLast4,
		&a.AccountType,
		&a.IsWithholdingAccount,
		&a.CurrentBalance,
		&a.IsActive,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

const listBankAccounts = `SELECT ` + bankAccountColumns + ` FROM bank_accounts ORDER BY name`

func (q *Queries) ListBankAccounts(ctx context.Context) ([]models.BankAccount, error) {
	rows, err := q.db.Query(ctx, listBankAccounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

const getBankAccount = `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE id = $1`

func (q *Queries) GetBankAccount(ctx context.Context, id int64) (*models.BankAccount, error) {
	return scanBankAccount(q.db.QueryRow(ctx, getBankAccount, id))
}

const createBankAccount = `
INSERT INTO bank_accounts (name, institution, account_number_last4, account_type,
	is_withholding_account, current_balance, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`

func (q *Queries) CreateBankAccount(ctx context.Context, a *models.BankAccount) error {
	return q.db.QueryRow(ctx, createBankAccount,
		a.Name,
		a.Institution,
		a.AccountNumberLast4,
		a.AccountType,
		a.IsWithholdingAccount,
		a.CurrentBalance,
		a.IsActive,
	).Scan(&a.ID)
}

const withholdingCategoryColumns = `id, account_id, name, target_amount, next_due_date`

func scanWithholdingCategory(row pgx.Row) (*models.WithholdingCategory, error) {
	var c models.WithholdingCategory
	if err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.TargetAmount, &c.NextDueDate); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

const listWithholdingCategories = `SELECT ` + withholdingCategoryColumns + ` FROM withholding_categories ORDER BY name`

func (q *Queries) ListWithholdingCategories(ctx context.Context) ([]models.WithholdingCategory, error) {
	rows, err := q.db.Query(ctx, listWithholdingCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.WithholdingCategory
	for rows.Next() {
		c, err := scanWithholdingCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

const getWithholdingCategory = `SELECT ` + withholdingCategoryColumns + ` FROM withholding_categories WHERE id = $1`

func (q *Queries) GetWithholdingCategory(ctx context.Context, id int64) (*models.WithholdingCategory, error) {
	return scanWithholdingCategory(q.db.QueryRow(ctx, getWithholdingCategory, id))
}

const listWithholdingTransactions = `
SELECT id, category_id, date, amount, note, created_at
FROM withholding_transactions
WHERE category_id = $1
ORDER BY date, id`

func (q *Queries) ListWithholdingTransactions(ctx context.Context, categoryID int64) ([]models.WithholdingTransaction, error) {
	rows, err := q.db.Query(ctx, listWithholdingTransactions, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.WithholdingTransaction
	for rows.Next() {
		var t models.WithholdingTransaction
		if err := rows.Scan(&t.ID, &t.CategoryID, &t.Date, &t.Amount, &t.Note, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const createWithholdingTransaction = `
INSERT INTO withholding_transactions (category_id, date, amount, note)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`

func (q *Queries) CreateWithholdingTransaction(ctx context.Context, t *models.WithholdingTransaction) error {
	return q.db.QueryRow(ctx, createWithholdingTransaction, t.CategoryID, t.Date, t.Amount, t.Note).
		Scan(&t.ID, &t.CreatedAt)
}

const withholdingTransactionExists = `
SELECT EXISTS (
	SELECT 1 FROM withholding_transactions
	WHERE category_id = $1 AND date = $2 AND amount = $3
)`

func (q *Queries) WithholdingTransactionExists(ctx context.Context, categoryID int64, date time.Time, amount decimal.Decimal) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, withholdingTransactionExists, categoryID, date, amount).Scan(&exists)
	return exists, err
}
