package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

const categoryColumns = `id, name, monthly_limit, savings_target_per_paycheque`

func scanCategory(row pgx.Row) (*models.Category, error) {
	var c models.Category
	var target decimal.NullDecimal
	if err := row.Scan(&c.ID, &c.Name, &c.MonthlyLimit, &target); err != nil {
		return nil, notFound(err)
	}
	if target.Valid {
		c.SavingsTargetPerPaycheque = &target.Decimal
	}
	return &c, nil
}

const listCategories = `SELECT ` + categoryColumns + ` FROM categories ORDER BY name`

func (q *Queries) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

const getCategory = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

func (q *Queries) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return scanCategory(q.db.QueryRow(ctx, getCategory, id))
}

const getCategoryByName = `SELECT ` + categoryColumns + ` FROM categories WHERE name = $1`

func (q *Queries) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	return scanCategory(q.db.QueryRow(ctx, getCategoryByName, name))
}

const incomeCategoryColumns = `id, name, monthly_target, taxable_default`

func scanIncomeCategory(row pgx.Row) (*models.IncomeCategory, error) {
	var c models.IncomeCategory
	if err := row.Scan(&c.ID, &c.Name, &c.MonthlyTarget, &c.TaxableDefault); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

const listIncomeCategories = `SELECT ` + incomeCategoryColumns + ` FROM income_categories ORDER BY name`

func (q *Queries) ListIncomeCategories(ctx context.Context) ([]models.IncomeCategory, error) {
	rows, err := q.db.Query(ctx, listIncomeCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.IncomeCategory
	for rows.Next() {
		c, err := scanIncomeCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// The no-op update makes RETURNING yield the existing row on conflict
const getOrCreateIncomeCategory = `
INSERT INTO income_categories (name, taxable_default)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING ` + incomeCategoryColumns

func (q *Queries) GetOrCreateIncomeCategory(ctx context.Context, name string) (*models.IncomeCategory, error) {
	taxable := name != models.EmploymentIncome
	return scanIncomeCategory(q.db.QueryRow(ctx, getOrCreateIncomeCategory, name, taxable))
}
