package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the flow of money for a bank row
type Direction string

const (
	DirectionExpense Direction = "expense"
	DirectionIncome  Direction = "income"
)

// DefaultLocation is stamped on every imported expense unless the reviewer changes it
const DefaultLocation = "Ottawa"

// UnknownVendor names an expense whose statement row had no description
const UnknownVendor = "Unknown Vendor"

// VendorOrUnknown trims a vendor name and falls back to UnknownVendor
func VendorOrUnknown(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return UnknownVendor
}

// TransactionCandidate is a parsed statement row that has not been persisted yet.
// It is created by the parser, filled in by classification, edited during review,
// and consumed exactly once at commit.
type TransactionCandidate struct {
	Index       int             `json:"index"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"` // Always >= 0, direction says which way it moved
	Direction   Direction       `json:"direction"`

	CategoryID   *int64 `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	IncomeSource string `json:"income_source,omitempty"`

	Location string `json:"location"`
	Notes    string `json:"notes,omitempty"`

	WithholdingCategoryID   *int64 `json:"withholding_category_id,omitempty"`
	WithholdingContribution bool   `json:"withholding_contribution"`
	WithholdingPayout       bool   `json:"withholding_payout"`

	// AmbiguityKey is the keyword of the ambiguity group this row matched, resolved in a second pass
	AmbiguityKey string `json:"-"`

	PossibleDuplicate bool   `json:"possible_duplicate"`
	RawData           string `json:"raw_data,omitempty"`
}

// IsCategorized reports whether classification produced a usable outcome for the row
func (c *TransactionCandidate) IsCategorized() bool {
	if c.Direction == DirectionIncome {
		return c.IncomeSource != ""
	}
	return c.CategoryID != nil
}
