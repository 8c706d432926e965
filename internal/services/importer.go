package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/database/db"
	"github.com/ashmitsharp/homeledger-api/internal/logger"
	"github.com/ashmitsharp/homeledger-api/internal/models"
)

var (
	// ErrEmptyImport means the file parsed but produced no usable rows
	ErrEmptyImport = errors.New("no transactions found in file")
	// ErrUnknownBankAccount means the import named an account that does not exist
	ErrUnknownBankAccount = errors.New("unknown bank account")
	// ErrUnreadableStatement means the file could not be parsed at all
	ErrUnreadableStatement = errors.New("statement could not be read")
)

// PreviewStats summarizes how much of a file classification handled
type PreviewStats struct {
	TotalRows          int     `json:"total_rows"`
	Categorized        int     `json:"categorized"`
	Uncategorized      int     `json:"uncategorized"`
	PossibleDuplicates int     `json:"possible_duplicates"`
	AccuracyPercent    float64 `json:"accuracy_percent"`
}

// PreviewResult is the review form for one parsed statement
type PreviewResult struct {
	State             ImportState  `json:"state"`
	Filename          string       `json:"filename"`
	FileKey           string       `json:"file_key,omitempty"`
	BankAccountID     *int64       `json:"bank_account_id,omitempty"`
	RulesVersion      string       `json:"rules_version"`
	EarliestDate      time.Time    `json:"earliest_date"`
	LatestDate        time.Time    `json:"latest_date"`
	Discarded         int          `json:"discarded"`
	MissingCategories []string     `json:"missing_categories,omitempty"`
	Warnings          []string     `json:"warnings,omitempty"`
	Stats             PreviewStats `json:"stats"`
	Rows              []ReviewRow  `json:"rows"`
}

// CommitRequest is the reviewed form sent back for commit
type CommitRequest struct {
	Filename      string      `json:"filename"`
	BankAccountID *int64      `json:"bank_account_id,omitempty"`
	Rows          []ReviewRow `json:"rows"`
}

// CommitSummary reports what a commit created
type CommitSummary struct {
	State                  ImportState     `json:"state"`
	BatchID                *int64          `json:"batch_id,omitempty"`
	ExpensesCreated        int             `json:"expenses_created"`
	IncomesCreated         int             `json:"incomes_created"`
	WithholdingAdjustments int             `json:"withholding_adjustments"`
	DuplicatesSkipped      int             `json:"duplicates_skipped"`
	RowsSkipped            int             `json:"rows_skipped"`
	ExpenseTotal           decimal.Decimal `json:"expense_total"`
	IncomeTotal            decimal.Decimal `json:"income_total"`
	NetAmount              decimal.Decimal `json:"net_amount"`
	Message                string          `json:"message"`
}

// Importer runs the statement import: preview builds the review form,
// commit persists the reviewed rows in one transaction
type Importer struct {
	store       ImportStore
	parser      *Parser
	categorizer *Categorizer
	now         func() time.Time
}

// NewImporter creates an importer
func NewImporter(store ImportStore, parser *Parser, categorizer *Categorizer) *Importer {
	return &Importer{
		store:       store,
		parser:      parser,
		categorizer: categorizer,
		now:         time.Now,
	}
}

// Rules returns the rule set new imports will use
func (i *Importer) Rules() *RuleSet {
	return i.categorizer.Rules()
}

// Preview parses and classifies a statement without writing anything
func (i *Importer) Preview(ctx context.Context, file io.Reader, filename string, accountID *int64) (*PreviewResult, error) {
	log := logger.FromContext(ctx).With().Str("filename", filename).Logger()

	// 1. Check the account up front so overlap warnings have something to compare against
	if err := i.checkAccount(ctx, accountID); err != nil {
		return nil, err
	}

	// 2. Parse
	parsed, err := i.parser.ParseFile(file, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableStatement, err)
	}
	log.Info().
		Int("rows", len(parsed.Candidates)).
		Int("discarded", parsed.Discarded).
		Msg("statement parsed")

	if len(parsed.Candidates) == 0 {
		return nil, ErrEmptyImport
	}

	// 3. Classify and resolve ambiguity groups
	rules := i.categorizer.Rules()
	run := newImportRun(i.store)
	candidates := parsed.Candidates
	if err := classifyAll(ctx, run, rules, candidates); err != nil {
		return nil, err
	}

	// 4. Flag rows that look like duplicates
	flagged, err := flagDuplicates(ctx, run, candidates)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		State:         StateReview,
		Filename:      filename,
		BankAccountID: accountID,
		RulesVersion:  rules.Version,
		EarliestDate:  parsed.Earliest,
		LatestDate:    parsed.Latest,
		Discarded:     parsed.Discarded,
		Rows:          make([]ReviewRow, 0, len(candidates)),
	}

	// 5. Aggregate warnings
	if missing := run.missingCategories(); len(missing) > 0 {
		result.MissingCategories = missing
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Categories not found: %s. Matching rows were left for manual selection.", strings.Join(missing, ", ")))
		log.Warn().Strs("categories", missing).Msg("rules referenced missing categories")
	}

	if accountID != nil && parsed.HasDateRange() {
		overlaps, err := i.overlapWarnings(ctx, *accountID, parsed.Earliest, parsed.Latest)
		if err != nil {
			return nil, err
		}
		result.Warnings = append(result.Warnings, overlaps...)
	}

	// 6. Build the review rows
	categorized := 0
	for idx := range candidates {
		if candidates[idx].IsCategorized() {
			categorized++
		}
		result.Rows = append(result.Rows, ReviewRowFromCandidate(&candidates[idx]))
	}

	result.Stats = PreviewStats{
		TotalRows:          len(candidates),
		Categorized:        categorized,
		Uncategorized:      len(candidates) - categorized,
		PossibleDuplicates: flagged,
		AccuracyPercent:    float64(categorized) / float64(len(candidates)) * 100,
	}

	log.Info().
		Int("categorized", categorized).
		Int("possible_duplicates", flagged).
		Msg("statement ready for review")

	return result, nil
}

// Commit validates the reviewed rows and writes them. Nothing is written
// unless every row validates and every insert succeeds.
func (i *Importer) Commit(ctx context.Context, req CommitRequest) (*CommitSummary, error) {
	log := logger.FromContext(ctx).With().Str("filename", req.Filename).Logger()

	if err := i.checkAccount(ctx, req.BankAccountID); err != nil {
		return nil, err
	}

	run := newImportRun(i.store)
	rows, err := validateRows(ctx, run, req.Rows)
	if err != nil {
		return nil, err
	}

	var summary *CommitSummary
	err = i.store.WithinTx(ctx, func(tx ImportStore) error {
		var err error
		summary, err = i.commitRows(ctx, run.withStore(tx), req, rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}

	summary.RowsSkipped = len(req.Rows) - len(rows)
	summary.Message = summary.message()

	event := log.Info().
		Int("expenses", summary.ExpensesCreated).
		Int("incomes", summary.IncomesCreated).
		Int("withholding", summary.WithholdingAdjustments).
		Int("duplicates", summary.DuplicatesSkipped)
	if summary.BatchID != nil {
		event = event.Int64("batch_id", *summary.BatchID)
	}
	event.Msg("import committed")

	return summary, nil
}

// ClassifyResult is a dry run of the rules over one row
type ClassifyResult struct {
	Rule              string    `json:"rule,omitempty"`
	RulesVersion      string    `json:"rules_version"`
	Row               ReviewRow `json:"row"`
	MissingCategories []string  `json:"missing_categories,omitempty"`
}

// Classify runs the active rules over a single row without writing anything.
// A lone ambiguous row resolves by the group threshold.
func (i *Importer) Classify(ctx context.Context, description string, amount decimal.Decimal, direction models.Direction) (*ClassifyResult, error) {
	rules := i.categorizer.Rules()
	candidates := []models.TransactionCandidate{{
		Date:        i.now(),
		Description: strings.TrimSpace(description),
		Amount:      amount.Abs(),
		Direction:   direction,
		Location:    i.parser.location,
	}}

	run := newImportRun(i.store)
	if err := classifyAll(ctx, run, rules, candidates); err != nil {
		return nil, err
	}

	result := &ClassifyResult{
		RulesVersion:      rules.Version,
		Row:               ReviewRowFromCandidate(&candidates[0]),
		MissingCategories: run.missingCategories(),
	}
	// Match against the row as parsed, before any direction override
	if rule, ok := rules.FirstMatch(&models.TransactionCandidate{
		Description: candidates[0].Description,
		Amount:      candidates[0].Amount,
		Direction:   direction,
	}); ok {
		result.Rule = rule.Name
	}
	return result, nil
}

// plannedRow is what one accepted row will insert
type plannedRow struct {
	expense     *models.Expense
	income      *models.Income
	withholding *models.WithholdingTransaction
}

func (i *Importer) commitRows(ctx context.Context, run *importRun, req CommitRequest, rows []validatedRow) (*CommitSummary, error) {
	detector := newDuplicateDetector(run)
	agg := &BatchAggregator{}
	summary := &CommitSummary{State: StateCommitted}

	// First pass: dedup and aggregate so the batch exists before any row references it
	plan := make([]plannedRow, 0, len(rows))
	for _, v := range rows {
		p, dup, err := i.planRow(ctx, run, detector, req.BankAccountID, v)
		if err != nil {
			return nil, err
		}
		if dup {
			summary.DuplicatesSkipped++
			continue
		}
		if p.expense != nil {
			agg.AddExpense(p.expense)
		}
		if p.income != nil {
			agg.AddIncome(p.income)
		}
		if p.withholding != nil {
			agg.AddWithholding(p.withholding)
		}
		plan = append(plan, p)
	}

	var batchID *int64
	if batch, ok := agg.Batch(req.BankAccountID, req.Filename, i.now()); ok {
		if err := run.store.CreateImportBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("creating import batch: %w", err)
		}
		id := batch.ID
		batchID = &id
	}

	// Second pass: write the rows
	for _, p := range plan {
		if p.expense != nil {
			p.expense.ImportBatchID = batchID
			if err := run.store.CreateExpense(ctx, p.expense); err != nil {
				return nil, fmt.Errorf("creating expense: %w", err)
			}
		}
		if p.income != nil {
			p.income.ImportBatchID = batchID
			if err := run.store.CreateIncome(ctx, p.income); err != nil {
				return nil, fmt.Errorf("creating income: %w", err)
			}
		}
		if p.withholding != nil {
			if err := run.store.CreateWithholdingTransaction(ctx, p.withholding); err != nil {
				return nil, fmt.Errorf("creating withholding transaction: %w", err)
			}
		}
	}

	summary.BatchID = batchID
	summary.ExpensesCreated = agg.Expenses
	summary.IncomesCreated = agg.Incomes
	summary.WithholdingAdjustments = agg.WithholdingAdjustments
	summary.ExpenseTotal = agg.ExpenseTotal
	summary.IncomeTotal = agg.IncomeTotal
	summary.NetAmount = agg.IncomeTotal.Sub(agg.ExpenseTotal)
	return summary, nil
}

// planRow turns a validated row into records and reports whether it is a duplicate.
// A duplicate row is dropped whole, including its bucket movement.
func (i *Importer) planRow(ctx context.Context, run *importRun, d *duplicateDetector, accountID *int64, v validatedRow) (plannedRow, bool, error) {
	row := v.row
	var p plannedRow

	if v.withholding != nil {
		p.withholding = &models.WithholdingTransaction{
			CategoryID: v.withholding.ID,
			Date:       v.date,
			Amount:     SignedWithholdingAmount(v.amount, row.WithholdingPayout),
			Note:       withholdingNote(row),
		}
	}

	switch row.EntryType {
	case models.DirectionIncome:
		source, err := run.incomeCategory(ctx, strings.TrimSpace(row.Source))
		if err != nil {
			return p, false, err
		}
		key := models.IncomeKey{Date: v.date, Amount: v.amount, Source: source.Name}
		dup, err := d.income(ctx, key)
		if err != nil || dup {
			return p, dup, err
		}
		d.accept(key)

		income := &models.Income{
			Date:          v.date,
			Amount:        v.amount,
			Taxable:       source.TaxableDefault,
			Notes:         row.Notes,
			BankAccountID: accountID,
		}
		if row.Taxable != nil {
			income.Taxable = *row.Taxable
		}
		income.Normalize(source)
		p.income = income

	case models.DirectionExpense:
		if v.category == nil {
			// Payout with no expense: the bucket movement is the whole row
			key := models.WithholdingKey{CategoryID: p.withholding.CategoryID, Date: v.date, Amount: p.withholding.Amount}
			dup, err := d.withholding(ctx, key)
			if err != nil || dup {
				return p, dup, err
			}
			d.accept(key)
			return p, false, nil
		}

		vendor := models.VendorOrUnknown(row.VendorName)
		key := models.ExpenseKey{Date: v.date, Amount: v.amount, CategoryID: v.category.ID, Vendor: vendor}
		dup, err := d.expense(ctx, key)
		if err != nil || dup {
			return p, dup, err
		}
		d.accept(key)

		location := strings.TrimSpace(row.Location)
		if location == "" {
			location = i.parser.location
		}
		p.expense = &models.Expense{
			Date:          v.date,
			VendorName:    vendor,
			CategoryID:    v.category.ID,
			CategoryName:  v.category.Name,
			Amount:        v.amount,
			Location:      location,
			Notes:         row.Notes,
			BankAccountID: accountID,
		}
	}

	return p, false, nil
}

func withholdingNote(row *ReviewRow) string {
	if row.Notes != "" {
		return row.Notes
	}
	if row.WithholdingPayout {
		return "Payout: " + models.VendorOrUnknown(row.VendorName)
	}
	return "Contribution: " + models.VendorOrUnknown(row.VendorName)
}

func (i *Importer) checkAccount(ctx context.Context, accountID *int64) error {
	if accountID == nil {
		return nil
	}
	_, err := i.store.GetBankAccount(ctx, *accountID)
	if errors.Is(err, db.ErrNotFound) {
		return ErrUnknownBankAccount
	}
	if err != nil {
		return fmt.Errorf("looking up bank account %d: %w", *accountID, err)
	}
	return nil
}

func (i *Importer) overlapWarnings(ctx context.Context, accountID int64, from, to time.Time) ([]string, error) {
	batches, err := i.store.ListImportBatchesForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing import batches: %w", err)
	}

	var warnings []string
	for _, b := range batches {
		if !b.Overlaps(from, to) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"Statement dates %s to %s overlap import #%d (%s, %s to %s). Duplicates will be skipped.",
			from.Format("2006-01-02"), to.Format("2006-01-02"),
			b.ID, b.Filename, b.EarliestDate.Format("2006-01-02"), b.LatestDate.Format("2006-01-02")))
	}
	return warnings, nil
}

func (s *CommitSummary) message() string {
	if s.ExpensesCreated+s.IncomesCreated+s.WithholdingAdjustments == 0 {
		if s.DuplicatesSkipped > 0 {
			return fmt.Sprintf("Nothing imported. Skipped %s.", plural(s.DuplicatesSkipped, "duplicate", "duplicates"))
		}
		return "Nothing imported."
	}

	msg := fmt.Sprintf("Imported %s, %s and %s.",
		plural(s.ExpensesCreated, "expense", "expenses"),
		plural(s.IncomesCreated, "income", "incomes"),
		plural(s.WithholdingAdjustments, "withholding adjustment", "withholding adjustments"))
	if s.DuplicatesSkipped > 0 {
		msg += fmt.Sprintf(" Skipped %s.", plural(s.DuplicatesSkipped, "duplicate", "duplicates"))
	}
	return msg
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
