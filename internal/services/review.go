package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/database/db"
	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// ImportState is where an import sits in the upload → review → commit flow
type ImportState string

const (
	StateUpload    ImportState = "upload"
	StateReview    ImportState = "review"
	StateCommitted ImportState = "committed"
)

// ReviewRow is one editable row of the review form. Preview fills it from the
// classified candidate; the client sends it back, edited, to commit.
type ReviewRow struct {
	Index      int              `json:"index"`
	Skip       bool             `json:"skip"`
	EntryType  models.Direction `json:"entry_type"`
	Date       string           `json:"date"`
	VendorName string           `json:"vendor_name"`
	Amount     decimal.Decimal  `json:"amount"`
	CategoryID *int64           `json:"category_id,omitempty"`
	Source     string           `json:"source,omitempty"`
	Taxable    *bool            `json:"taxable,omitempty"`
	Location   string           `json:"location"`
	Notes      string           `json:"notes,omitempty"`

	WithholdingCategoryID   *int64 `json:"withholding_category_id,omitempty"`
	WithholdingContribution bool   `json:"withholding_contribution"`
	WithholdingPayout       bool   `json:"withholding_payout"`

	// Read-only hints from preview
	CategoryName      string `json:"category_name,omitempty"`
	PossibleDuplicate bool   `json:"possible_duplicate,omitempty"`
	RawData           string `json:"raw_data,omitempty"`
}

// ReviewRowFromCandidate pre-fills a review row from a classified candidate
func ReviewRowFromCandidate(c *models.TransactionCandidate) ReviewRow {
	return ReviewRow{
		Index:                   c.Index,
		EntryType:               c.Direction,
		Date:                    c.Date.Format("2006-01-02"),
		VendorName:              models.VendorOrUnknown(c.Description),
		Amount:                  c.Amount,
		CategoryID:              c.CategoryID,
		CategoryName:            c.CategoryName,
		Source:                  c.IncomeSource,
		Location:                c.Location,
		Notes:                   c.Notes,
		WithholdingCategoryID:   c.WithholdingCategoryID,
		WithholdingContribution: c.WithholdingContribution,
		WithholdingPayout:       c.WithholdingPayout,
		PossibleDuplicate:       c.PossibleDuplicate,
		RawData:                 c.RawData,
	}
}

// withholdingOnly reports whether the row only drains a bucket and creates no expense
func (r *ReviewRow) withholdingOnly() bool {
	return r.EntryType == models.DirectionExpense && r.WithholdingPayout && r.CategoryID == nil
}

// ReviewError carries per-row field errors. The whole submission is rejected
// when any row fails.
type ReviewError struct {
	Rows map[int]map[string]string `json:"rows"`
}

func (e *ReviewError) Error() string {
	indexes := make([]int, 0, len(e.Rows))
	for idx := range e.Rows {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	parts := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		fields := make([]string, 0, len(e.Rows[idx]))
		for field, msg := range e.Rows[idx] {
			fields = append(fields, field+": "+msg)
		}
		sort.Strings(fields)
		parts = append(parts, fmt.Sprintf("row %d (%s)", idx, strings.Join(fields, ", ")))
	}
	return "review validation failed: " + strings.Join(parts, "; ")
}

func (e *ReviewError) add(index int, field, msg string) {
	if e.Rows == nil {
		e.Rows = make(map[int]map[string]string)
	}
	if e.Rows[index] == nil {
		e.Rows[index] = make(map[string]string)
	}
	e.Rows[index][field] = msg
}

// validatedRow is a review row that passed validation, with parsed values
type validatedRow struct {
	row         *ReviewRow
	date        time.Time
	amount      decimal.Decimal
	category    *models.Category
	withholding *models.WithholdingCategory
}

// validateRows checks every non-skipped row. Lookups that hit the store go
// through the run caches.
func validateRows(ctx context.Context, run *importRun, rows []ReviewRow) ([]validatedRow, error) {
	verr := &ReviewError{}
	out := make([]validatedRow, 0, len(rows))

	for i := range rows {
		row := &rows[i]
		if row.Skip {
			continue
		}
		v := validatedRow{row: row}

		date, err := ParseDate(strings.TrimSpace(row.Date))
		if err != nil {
			verr.add(row.Index, "date", "enter a date as YYYY-MM-DD or MM/DD/YYYY")
		}
		v.date = date

		v.amount = row.Amount.Abs()

		if row.WithholdingContribution && row.WithholdingPayout {
			verr.add(row.Index, "withholding_payout", "a row cannot be both a contribution and a payout")
		}

		switch row.EntryType {
		case models.DirectionExpense:
			if row.CategoryID == nil && !row.withholdingOnly() {
				verr.add(row.Index, "category_id", "choose a category")
			}
			if row.CategoryID != nil {
				cat, err := run.categoryByID(ctx, *row.CategoryID)
				switch {
				case errors.Is(err, db.ErrNotFound):
					verr.add(row.Index, "category_id", "unknown category")
				case err != nil:
					return nil, fmt.Errorf("looking up category %d: %w", *row.CategoryID, err)
				}
				v.category = cat
			}
		case models.DirectionIncome:
			if strings.TrimSpace(row.Source) == "" {
				verr.add(row.Index, "source", "choose an income source")
			}
			if row.WithholdingContribution || row.WithholdingPayout {
				verr.add(row.Index, "withholding_category_id", "withholding applies to expense rows only")
			}
		default:
			verr.add(row.Index, "entry_type", "entry type must be expense or income")
		}

		if row.WithholdingContribution || row.WithholdingPayout {
			bucket, msg, err := lookupBucket(ctx, run, row.WithholdingCategoryID)
			if err != nil {
				return nil, err
			}
			if msg != "" {
				verr.add(row.Index, "withholding_category_id", msg)
			}
			if row.Amount.IsZero() {
				verr.add(row.Index, "amount", "a withholding movement needs a non-zero amount")
			}
			v.withholding = bucket
		}

		out = append(out, v)
	}

	if len(verr.Rows) > 0 {
		return nil, verr
	}
	return out, nil
}

// lookupBucket resolves a withholding bucket and checks it sits in a
// withholding account. A non-empty message is a field error.
func lookupBucket(ctx context.Context, run *importRun, id *int64) (*models.WithholdingCategory, string, error) {
	if id == nil {
		return nil, "choose a withholding bucket", nil
	}
	bucket, err := run.store.GetWithholdingCategory(ctx, *id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, "unknown withholding bucket", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("looking up withholding bucket %d: %w", *id, err)
	}
	if bucket.AccountID == nil {
		return nil, "bucket is not attached to a withholding account", nil
	}
	account, err := run.store.GetBankAccount(ctx, *bucket.AccountID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, "bucket is not attached to a withholding account", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("looking up bank account %d: %w", *bucket.AccountID, err)
	}
	if !account.IsWithholdingAccount {
		return nil, "bucket is not attached to a withholding account", nil
	}
	return bucket, "", nil
}
