package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseKey identifies an expense for duplicate detection. The bank account
// is deliberately not part of it so a manual entry and its imported copy collide.
type ExpenseKey struct {
	Date       time.Time
	Amount     decimal.Decimal
	CategoryID int64
	Vendor     string
}

func (k ExpenseKey) String() string {
	return fmt.Sprintf("expense|%s|%s|%d|%s", k.Date.Format("2006-01-02"), k.Amount.StringFixed(2), k.CategoryID, strings.TrimSpace(k.Vendor))
}

// IncomeKey identifies an income for duplicate detection by its source name
type IncomeKey struct {
	Date   time.Time
	Amount decimal.Decimal
	Source string
}

func (k IncomeKey) String() string {
	return fmt.Sprintf("income|%s|%s|%s", k.Date.Format("2006-01-02"), k.Amount.StringFixed(2), k.Source)
}

// WithholdingKey identifies a bucket movement for duplicate detection
type WithholdingKey struct {
	CategoryID int64
	Date       time.Time
	Amount     decimal.Decimal // signed
}

func (k WithholdingKey) String() string {
	return fmt.Sprintf("withholding|%d|%s|%s", k.CategoryID, k.Date.Format("2006-01-02"), k.Amount.StringFixed(2))
}
