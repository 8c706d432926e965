package services

import (
	"context"
	"sync"
	"time"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// Categorizer applies the ordered rule list to parsed candidates.
// The rule set can be swapped at runtime; each import works from the
// snapshot it started with.
type Categorizer struct {
	mu         sync.RWMutex
	rules      *RuleSet
	rulesPath  string
	lastLoaded time.Time
}

// NewCategorizer creates a categorizer over a compiled rule set
func NewCategorizer(rules *RuleSet, rulesPath string) *Categorizer {
	return &Categorizer{
		rules:      rules,
		rulesPath:  rulesPath,
		lastLoaded: time.Now(),
	}
}

// Rules returns the current rule set
func (c *Categorizer) Rules() *RuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

// Reload re-reads the rules file. On error the previous set stays active.
func (c *Categorizer) Reload() (*RuleSet, error) {
	rules, err := LoadRuleSet(c.rulesPath)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = rules
	c.lastLoaded = time.Now()
	return rules, nil
}

// LastLoaded reports when the active rule set was installed
func (c *Categorizer) LastLoaded() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastLoaded
}

// classify runs the first matching rule against one candidate. Direction
// overrides apply first, then the outcome. Ambiguous rows only get their
// keyword here; the resolver assigns their category once every row is seen.
func classify(ctx context.Context, run *importRun, rules *RuleSet, candidate *models.TransactionCandidate) error {
	rule, ok := rules.FirstMatch(candidate)
	if !ok {
		return nil
	}

	if rule.Outcome.SetDirection != "" {
		candidate.Direction = rule.Outcome.SetDirection
	}

	switch {
	case rule.Outcome.IncomeSource != "":
		candidate.IncomeSource = rule.Outcome.IncomeSource
	case rule.Outcome.Ambiguity != "":
		candidate.AmbiguityKey = rule.Outcome.Ambiguity
	case rule.Outcome.Category != "":
		cat, err := run.category(ctx, rule.Outcome.Category)
		if err != nil {
			return err
		}
		if cat != nil {
			id := cat.ID
			candidate.CategoryID = &id
			candidate.CategoryName = cat.Name
		}
	}
	return nil
}

// classifyAll classifies every candidate then resolves the ambiguity groups
func classifyAll(ctx context.Context, run *importRun, rules *RuleSet, candidates []models.TransactionCandidate) error {
	for i := range candidates {
		if err := classify(ctx, run, rules, &candidates[i]); err != nil {
			return err
		}
	}
	return resolveAmbiguities(ctx, run, rules, candidates)
}
