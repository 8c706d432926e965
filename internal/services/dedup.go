package services

import (
	"context"
	"fmt"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// duplicateDetector checks keys against stored records and against keys
// already accepted earlier in the same run. A key is remembered only when
// the caller accepts it, so the first of two identical rows goes through.
type duplicateDetector struct {
	run *importRun
}

func newDuplicateDetector(run *importRun) *duplicateDetector {
	return &duplicateDetector{run: run}
}

func (d *duplicateDetector) expense(ctx context.Context, key models.ExpenseKey) (bool, error) {
	return d.check(ctx, key.String(), func() (bool, error) {
		return d.run.store.ExpenseExists(ctx, key)
	})
}

func (d *duplicateDetector) income(ctx context.Context, key models.IncomeKey) (bool, error) {
	return d.check(ctx, key.String(), func() (bool, error) {
		return d.run.store.IncomeExists(ctx, key)
	})
}

func (d *duplicateDetector) withholding(ctx context.Context, key models.WithholdingKey) (bool, error) {
	return d.check(ctx, key.String(), func() (bool, error) {
		return d.run.store.WithholdingTransactionExists(ctx, key.CategoryID, key.Date, key.Amount)
	})
}

func (d *duplicateDetector) check(ctx context.Context, key string, stored func() (bool, error)) (bool, error) {
	if _, ok := d.run.seen[key]; ok {
		return true, nil
	}
	exists, err := stored()
	if err != nil {
		return false, fmt.Errorf("checking duplicate %s: %w", key, err)
	}
	return exists, nil
}

// accept records a key as taken for the rest of the run
func (d *duplicateDetector) accept(keys ...fmt.Stringer) {
	for _, k := range keys {
		d.run.seen[k.String()] = struct{}{}
	}
}

// candidateKey builds the duplicate key a parsed row would have if committed
// as classified. Rows without a category or source have no key yet.
func candidateKey(c *models.TransactionCandidate) (fmt.Stringer, bool) {
	switch c.Direction {
	case models.DirectionExpense:
		if c.CategoryID == nil {
			return nil, false
		}
		return models.ExpenseKey{Date: c.Date, Amount: c.Amount, CategoryID: *c.CategoryID, Vendor: models.VendorOrUnknown(c.Description)}, true
	case models.DirectionIncome:
		if c.IncomeSource == "" {
			return nil, false
		}
		return models.IncomeKey{Date: c.Date, Amount: c.Amount, Source: c.IncomeSource}, true
	}
	return nil, false
}

// flagDuplicates marks candidates that already exist in the store or repeat
// an earlier row of the same file
func flagDuplicates(ctx context.Context, run *importRun, candidates []models.TransactionCandidate) (int, error) {
	d := newDuplicateDetector(run)
	flagged := 0
	for i := range candidates {
		key, ok := candidateKey(&candidates[i])
		if !ok {
			continue
		}

		var dup bool
		var err error
		switch k := key.(type) {
		case models.ExpenseKey:
			dup, err = d.expense(ctx, k)
		case models.IncomeKey:
			dup, err = d.income(ctx, k)
		}
		if err != nil {
			return flagged, err
		}

		if dup {
			candidates[i].PossibleDuplicate = true
			flagged++
			continue
		}
		d.accept(key)
	}
	return flagged, nil
}
