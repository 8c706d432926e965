package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// BatchAggregator accumulates totals over the rows accepted in one commit
type BatchAggregator struct {
	Expenses               int
	Incomes                int
	WithholdingAdjustments int
	ExpenseTotal           decimal.Decimal
	IncomeTotal            decimal.Decimal
	Earliest               time.Time
	Latest                 time.Time
}

// AddExpense counts an accepted expense
func (a *BatchAggregator) AddExpense(e *models.Expense) {
	a.Expenses++
	a.ExpenseTotal = a.ExpenseTotal.Add(e.Amount)
	a.trackDate(e.Date)
}

// AddIncome counts an accepted income
func (a *BatchAggregator) AddIncome(i *models.Income) {
	a.Incomes++
	a.IncomeTotal = a.IncomeTotal.Add(i.Amount)
	a.trackDate(i.Date)
}

// AddWithholding counts a bucket adjustment. Adjustments alone do not make a batch.
func (a *BatchAggregator) AddWithholding(*models.WithholdingTransaction) {
	a.WithholdingAdjustments++
}

// Transactions is the number of expenses and incomes accepted
func (a *BatchAggregator) Transactions() int {
	return a.Expenses + a.Incomes
}

// Batch builds the import batch record, or reports false when nothing was accepted
func (a *BatchAggregator) Batch(accountID *int64, filename string, now time.Time) (*models.ImportBatch, bool) {
	if a.Transactions() == 0 {
		return nil, false
	}
	return &models.ImportBatch{
		BankAccountID:      accountID,
		ImportedAt:         now,
		EarliestDate:       a.Earliest,
		LatestDate:         a.Latest,
		TotalTransactions:  a.Transactions(),
		TotalIncomeAmount:  a.IncomeTotal,
		TotalExpenseAmount: a.ExpenseTotal,
		Filename:           filename,
	}, true
}

func (a *BatchAggregator) trackDate(d time.Time) {
	if a.Earliest.IsZero() || d.Before(a.Earliest) {
		a.Earliest = d
	}
	if a.Latest.IsZero() || d.After(a.Latest) {
		a.Latest = d
	}
}
