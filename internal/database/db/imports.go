package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

const importBatchColumns = `id, bank_account_id, imported_at, earliest_date, latest_date,
	total_transactions, total_income_amount, total_expense_amount, filename`

func scanImportBatch(row pgx.Row) (*models.ImportBatch, error) {
	var b models.ImportBatch
	err := row.Scan(
		&b.ID,
		&b.BankAccountID,
		&b.ImportedAt,
		&b.EarliestDate,
		&b.LatestDate,
		&b.TotalTransactions,
		&b.TotalIncomeAmount,
		&b.TotalExpenseAmount,
		&b.Filename,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (q *Queries) listImportBatches(ctx context.Context, query string, args ...interface{}) ([]models.ImportBatch, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ImportBatch
	for rows.Next() {
		b, err := scanImportBatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *b)
	}
	return items, rows.Err()
}

const listImportBatches = `SELECT ` + importBatchColumns + ` FROM import_batches ORDER BY imported_at DESC, id DESC LIMIT $1 OFFSET $2`

func (q *Queries) ListImportBatches(ctx context.Context, limit, offset int) ([]models.ImportBatch, error) {
	return q.listImportBatches(ctx, listImportBatches, limit, offset)
}

const countImportBatches = `SELECT COUNT(*) FROM import_batches`

func (q *Queries) CountImportBatches(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, countImportBatches).Scan(&n)
	return n, err
}

const listImportBatchesForAccount = `SELECT ` + importBatchColumns + ` FROM import_batches WHERE bank_account_id = $1 ORDER BY earliest_date`

func (q *Queries) ListImportBatchesForAccount(ctx context.Context, accountID int64) ([]models.ImportBatch, error) {
	return q.listImportBatches(ctx, listImportBatchesForAccount, accountID)
}

const getImportBatch = `SELECT ` + importBatchColumns + ` FROM import_batches WHERE id = $1`

func (q *Queries) GetImportBatch(ctx context.Context, id int64) (*models.ImportBatch, error) {
	return scanImportBatch(q.db.QueryRow(ctx, getImportBatch, id))
}

const createImportBatch = `
INSERT INTO import_batches (bank_account_id, imported_at, earliest_date, latest_date,
	total_transactions, total_income_amount, total_expense_amount, filename)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

func (q *Queries) CreateImportBatch(ctx context.Context, b *models.ImportBatch) error {
	return q.db.QueryRow(ctx, createImportBatch,
		b.BankAccountID,
		b.ImportedAt,
		b.EarliestDate,
		b.LatestDate,
		b.TotalTransactions,
		b.TotalIncomeAmount,
		b.TotalExpenseAmount,
		b.Filename,
	).Scan(&b.ID)
}

const createExpense = `
INSERT INTO expenses (date, vendor_name, category_id, amount, location, notes,
	bank_account_id, import_batch_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

func (q *Queries) CreateExpense(ctx context.Context, e *models.Expense) error {
	return q.db.QueryRow(ctx, createExpense,
		e.Date,
		e.VendorName,
		e.CategoryID,
		e.Amount,
		e.Location,
		e.Notes,
		e.BankAccountID,
		e.ImportBatchID,
	).Scan(&e.ID)
}

const expenseExists = `
SELECT EXISTS (
	SELECT 1 FROM expenses
	WHERE date = $1 AND amount = $2 AND category_id = $3 AND vendor_name = $4
)`

func (q *Queries) ExpenseExists(ctx context.Context, key models.ExpenseKey) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, expenseExists, key.Date, key.Amount, key.CategoryID, strings.TrimSpace(key.Vendor)).Scan(&exists)
	return exists, err
}

const listExpensesByBatch = `
SELECT e.id, e.date, e.vendor_name, e.category_id, c.name, e.amount, e.location, e.notes,
	e.bank_account_id, e.import_batch_id
FROM expenses e
JOIN categories c ON c.id = e.category_id
WHERE e.import_batch_id = $1
ORDER BY e.date, e.id`

func (q *Queries) ListExpensesByBatch(ctx context.Context, batchID int64) ([]models.Expense, error) {
	rows, err := q.db.Query(ctx, listExpensesByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Expense
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(
			&e.ID,
			&e.Date,
			&e.VendorName,
			&e.CategoryID,
			&e.CategoryName,
			&e.Amount,
			&e.Location,
			&e.Notes,
			&e.BankAccountID,
			&e.ImportBatchID,
		); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const createIncome = `
INSERT INTO incomes (date, amount, income_category_id, category, taxable, notes,
	bank_account_id, import_batch_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

func (q *Queries) CreateIncome(ctx context.Context, i *models.Income) error {
	return q.db.QueryRow(ctx, createIncome,
		i.Date,
		i.Amount,
		i.IncomeCategoryID,
		i.CategoryLabel,
		i.Taxable,
		i.Notes,
		i.BankAccountID,
		i.ImportBatchID,
	).Scan(&i.ID)
}

// Incomes whose category was deleted still match on the stored label
const incomeExists = `
SELECT EXISTS (
	SELECT 1 FROM incomes i
	LEFT JOIN income_categories ic ON ic.id = i.income_category_id
	WHERE i.date = $1 AND i.amount = $2
	  AND (ic.name = $3 OR (i.income_category_id IS NULL AND i.category = $3))
)`

func (q *Queries) IncomeExists(ctx context.Context, key models.IncomeKey) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, incomeExists, key.Date, key.Amount, key.Source).Scan(&exists)
	return exists, err
}

const listIncomesByBatch = `
SELECT id, date, amount, income_category_id, category, taxable, notes,
	bank_account_id, import_batch_id
FROM incomes
WHERE import_batch_id = $1
ORDER BY date, id`

func (q *Queries) ListIncomesByBatch(ctx context.Context, batchID int64) ([]models.Income, error) {
	rows, err := q.db.Query(ctx, listIncomesByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Income
	for rows.Next() {
		var i models.Income
		if err := rows.Scan(
			&i.ID,
			&i.Date,
			&i.Amount,
			&i.IncomeCategoryID,
			&i.CategoryLabel,
			&i.Taxable,
			&i.Notes,
			&i.BankAccountID,
			&i.ImportBatchID,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
