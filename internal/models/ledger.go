package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmploymentIncome is the only income source whose taxable flag is not forced to true
const EmploymentIncome = "Employment Income"

// Category is an expense budget bucket
type Category struct {
	ID                        int64            `json:"id"`
	Name                      string           `json:"name"`
	MonthlyLimit              decimal.Decimal  `json:"monthly_limit"`
	SavingsTargetPerPaycheque *decimal.Decimal `json:"savings_target_per_paycheque,omitempty"`
}

// IncomeCategory is a named income source with a monthly target
type IncomeCategory struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	MonthlyTarget  decimal.Decimal `json:"monthly_target"`
	TaxableDefault bool            `json:"taxable_default"`
}

// BankAccount is a real-world account. Withholding accounts hold sub-buckets.
type BankAccount struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"name"`
	Institution          string          `json:"institution"`
	AccountNumberLast4   string          `json:"account_number_last4"`
	AccountType          string          `json:"account_type"`
	IsWithholdingAccount bool            `json:"is_withholding_account"`
	CurrentBalance       decimal.Decimal `json:"current_balance"`
	IsActive             bool            `json:"is_active"`

	// Derived for withholding accounts: sum of bucket balances and what is left over
	WithholdingTotal   decimal.Decimal `json:"withholding_total"`
	UnallocatedBalance decimal.Decimal `json:"unallocated_balance"`
}

// WithholdingCategory is a bucket of money set aside inside a withholding account.
// Balance is derived from its transactions and never stored.
type WithholdingCategory struct {
	ID           int64           `json:"id"`
	AccountID    *int64          `json:"account_id,omitempty"`
	Name         string          `json:"name"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	NextDueDate  *time.Time      `json:"next_due_date,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
}

// WithholdingTransaction moves money into (positive) or out of (negative) a bucket
type WithholdingTransaction struct {
	ID         int64           `json:"id"`
	CategoryID int64           `json:"category_id"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ImportBatch groups the records created by one committed statement import.
// It is written once and never updated.
type ImportBatch struct {
	ID                 int64           `json:"id"`
	BankAccountID      *int64          `json:"bank_account_id,omitempty"`
	ImportedAt         time.Time       `json:"imported_at"`
	EarliestDate       time.Time       `json:"earliest_date"`
	LatestDate         time.Time       `json:"latest_date"`
	TotalTransactions  int             `json:"total_transactions"`
	TotalIncomeAmount  decimal.Decimal `json:"total_income_amount"`
	TotalExpenseAmount decimal.Decimal `json:"total_expense_amount"`
	Filename           string          `json:"filename"`
}

// NetAmount is income minus expenses for the batch
func (b ImportBatch) NetAmount() decimal.Decimal {
	return b.TotalIncomeAmount.Sub(b.TotalExpenseAmount)
}

// Overlaps reports whether [from, to] intersects the batch date range
func (b ImportBatch) Overlaps(from, to time.Time) bool {
	return !from.After(b.LatestDate) && !to.Before(b.EarliestDate)
}

// Expense is money spent against a budget category
type Expense struct {
	ID            int64           `json:"id"`
	Date          time.Time       `json:"date"`
	VendorName    string          `json:"vendor_name"`
	CategoryID    int64           `json:"category_id"`
	CategoryName  string          `json:"category_name,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Location      string          `json:"location"`
	Notes         string          `json:"notes"`
	BankAccountID *int64          `json:"bank_account_id,omitempty"`
	ImportBatchID *int64          `json:"import_batch_id,omitempty"`
}

// Income is money received from an income source
type Income struct {
	ID               int64           `json:"id"`
	Date             time.Time       `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	IncomeCategoryID *int64          `json:"income_category_id,omitempty"`
	CategoryLabel    string          `json:"category"` // Denormalized copy of the income category name
	Taxable          bool            `json:"taxable"`
	Notes            string          `json:"notes"`
	BankAccountID    *int64          `json:"bank_account_id,omitempty"`
	ImportBatchID    *int64          `json:"import_batch_id,omitempty"`
}

// Normalize is the single writer of CategoryLabel and the taxable rule.
// It must run before every save.
func (i *Income) Normalize(category *IncomeCategory) {
	if category == nil {
		i.IncomeCategoryID = nil
		i.CategoryLabel = ""
	} else {
		id := category.ID
		i.IncomeCategoryID = &id
		i.CategoryLabel = category.Name
	}
	if i.CategoryLabel != EmploymentIncome {
		i.Taxable = true
	}
}
