package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ashmitsharp/homeledger-api/internal/database/db"
	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// importRun holds the mutable state of one preview or commit: lookup caches,
// the set of category names the rules referenced but the store lacks, and the
// keys already accepted in this upload. It is built per call and never shared.
type importRun struct {
	store            ImportStore
	categories       map[string]*models.Category // nil value records a known miss
	categoriesByID   map[int64]*models.Category
	incomeCategories map[string]*models.IncomeCategory
	missing          map[string]struct{}
	seen             map[string]struct{}
}

func newImportRun(store ImportStore) *importRun {
	return &importRun{
		store:            store,
		categories:       make(map[string]*models.Category),
		categoriesByID:   make(map[int64]*models.Category),
		incomeCategories: make(map[string]*models.IncomeCategory),
		missing:          make(map[string]struct{}),
		seen:             make(map[string]struct{}),
	}
}

// withStore rebinds the run to a transactional store, keeping the caches
func (r *importRun) withStore(store ImportStore) *importRun {
	r.store = store
	return r
}

// category looks up an expense category by name. A missing category returns
// nil without error and is recorded for the end-of-run warning.
func (r *importRun) category(ctx context.Context, name string) (*models.Category, error) {
	if cat, ok := r.categories[name]; ok {
		return cat, nil
	}

	cat, err := r.store.GetCategoryByName(ctx, name)
	if errors.Is(err, db.ErrNotFound) {
		r.categories[name] = nil
		r.missing[name] = struct{}{}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up category %q: %w", name, err)
	}

	r.categories[name] = cat
	r.categoriesByID[cat.ID] = cat
	return cat, nil
}

// categoryByID looks up an expense category chosen by the reviewer
func (r *importRun) categoryByID(ctx context.Context, id int64) (*models.Category, error) {
	if cat, ok := r.categoriesByID[id]; ok {
		return cat, nil
	}
	cat, err := r.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	r.categoriesByID[id] = cat
	r.categories[cat.Name] = cat
	return cat, nil
}

// incomeCategory returns the income category for a source name, creating it if needed
func (r *importRun) incomeCategory(ctx context.Context, name string) (*models.IncomeCategory, error) {
	if cat, ok := r.incomeCategories[name]; ok {
		return cat, nil
	}
	cat, err := r.store.GetOrCreateIncomeCategory(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolving income category %q: %w", name, err)
	}
	r.incomeCategories[name] = cat
	return cat, nil
}

// missingCategories returns the names recorded as missing, sorted
func (r *importRun) missingCategories() []string {
	names := make([]string, 0, len(r.missing))
	for name := range r.missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
