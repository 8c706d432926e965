package services

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// ambiguousRow is one (row index, amount) pair waiting on its group
type ambiguousRow struct {
	pos    int // position in the candidate slice
	amount decimal.Decimal
}

// resolveAmbiguities assigns categories to rows that matched an ambiguity
// group. It runs after every row has been classified because the outcome of
// a two-row group depends on both amounts.
func resolveAmbiguities(ctx context.Context, run *importRun, rules *RuleSet, candidates []models.TransactionCandidate) error {
	pending := make(map[string][]ambiguousRow)
	var keys []string
	for i := range candidates {
		key := candidates[i].AmbiguityKey
		if key == "" || candidates[i].Direction != models.DirectionExpense {
			continue
		}
		if _, ok := pending[key]; !ok {
			keys = append(keys, key)
		}
		pending[key] = append(pending[key], ambiguousRow{pos: i, amount: candidates[i].Amount})
	}

	for _, key := range keys {
		group, ok := rules.Group(key)
		if !ok {
			continue
		}
		for pos, name := range resolveGroup(group, pending[key]) {
			cat, err := run.category(ctx, name)
			if err != nil {
				return err
			}
			if cat == nil {
				continue
			}
			id := cat.ID
			candidates[pos].CategoryID = &id
			candidates[pos].CategoryName = cat.Name
		}
	}
	return nil
}

// resolveGroup maps each row position to a category name. Exactly two rows
// are ranked against each other; any other count uses the threshold per row.
func resolveGroup(group AmbiguityGroup, rows []ambiguousRow) map[int]string {
	out := make(map[int]string, len(rows))

	if len(rows) == 2 {
		ranked := []ambiguousRow{rows[0], rows[1]}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].amount.LessThan(ranked[j].amount)
		})
		out[ranked[0].pos] = group.Small
		out[ranked[1].pos] = group.Large
		return out
	}

	for _, row := range rows {
		out[row.pos] = group.byThreshold(row.amount)
	}
	return out
}

func (g AmbiguityGroup) byThreshold(amount decimal.Decimal) string {
	if amount.GreaterThan(g.Threshold) {
		return g.Large
	}
	return g.Small
}
