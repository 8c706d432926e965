package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/database/db"
	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// memStore is an in-memory ImportStore and WithholdingStore. WithinTx works on
// a copy and swaps it in only when fn succeeds.
type memStore struct {
	nextID           int64
	categories       []models.Category
	incomeCategories []models.IncomeCategory
	accounts         []models.BankAccount
	buckets          []models.WithholdingCategory
	withholding      []models.WithholdingTransaction
	batches          []models.ImportBatch
	expenses         []models.Expense
	incomes          []models.Income

	categoryLookups int
	failOn          string // name of a Create method that should fail
}

func newMemStore() *memStore {
	s := &memStore{nextID: 100}
	for _, name := range []string{
		"Arnprior Hydro", "Foxview Hydro", "Arnprior Heat", "Arnprior Internet",
		"Foxview Internet", "Arnprior Snow Removal", "Groceries", "Gas",
		"Restaurants", "Miscellaneous", "Cell Phone", "Arnprior Property Tax",
	} {
		s.categories = append(s.categories, models.Category{ID: s.id(), Name: name})
	}
	for _, name := range []string{"Arnprior Rental Income (MAIN)", "Arnprior Rental Income (LOFT)", "Employment Income"} {
		s.incomeCategories = append(s.incomeCategories, models.IncomeCategory{
			ID:             s.id(),
			Name:           name,
			TaxableDefault: name != models.EmploymentIncome,
		})
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) categoryID(name string) int64 {
	for _, c := range s.categories {
		if c.Name == name {
			return c.ID
		}
	}
	return 0
}

func (s *memStore) addWithholdingAccount(balance string) (accountID, bucketID int64) {
	accountID = s.id()
	s.accounts = append(s.accounts, models.BankAccount{
		ID:                   accountID,
		Name:                 "Withholding",
		IsWithholdingAccount: true,
		CurrentBalance:       decimal.RequireFromString(balance),
		IsActive:             true,
	})
	bucketID = s.id()
	s.buckets = append(s.buckets, models.WithholdingCategory{ID: bucketID, AccountID: &accountID, Name: "Property Tax"})
	return accountID, bucketID
}

func (s *memStore) addAccount(name string) int64 {
	id := s.id()
	s.accounts = append(s.accounts, models.BankAccount{ID: id, Name: name, IsActive: true})
	return id
}

func (s *memStore) GetCategory(_ context.Context, id int64) (*models.Category, error) {
	s.categoryLookups++
	for _, c := range s.categories {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *memStore) GetCategoryByName(_ context.Context, name string) (*models.Category, error) {
	s.categoryLookups++
	for _, c := range s.categories {
		if c.Name == name {
			c := c
			return &c, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *memStore) GetOrCreateIncomeCategory(_ context.Context, name string) (*models.IncomeCategory, error) {
	for _, c := range s.incomeCategories {
		if c.Name == name {
			c := c
			return &c, nil
		}
	}
	c := models.IncomeCategory{ID: s.id(), Name: name, TaxableDefault: name != models.EmploymentIncome}
	s.incomeCategories = append(s.incomeCategories, c)
	return &c, nil
}

func (s *memStore) ListBankAccounts(context.Context) ([]models.BankAccount, error) {
	return append([]models.BankAccount(nil), s.accounts...), nil
}

func (s *memStore) GetBankAccount(_ context.Context, id int64) (*models.BankAccount, error) {
	for _, a := range s.accounts {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *memStore) ListWithholdingCategories(context.Context) ([]models.WithholdingCategory, error) {
	return append([]models.WithholdingCategory(nil), s.buckets...), nil
}

func (s *memStore) GetWithholdingCategory(_ context.Context, id int64) (*models.WithholdingCategory, error) {
	for _, b := range s.buckets {
		if b.ID == id {
			b := b
			return &b, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *memStore) ListWithholdingTransactions(_ context.Context, categoryID int64) ([]models.WithholdingTransaction, error) {
	var out []models.WithholdingTransaction
	for _, t := range s.withholding {
		if t.CategoryID == categoryID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) ExpenseExists(_ context.Context, key models.ExpenseKey) (bool, error) {
	for _, e := range s.expenses {
		if e.Date.Equal(key.Date) && e.Amount.Equal(key.Amount) && e.CategoryID == key.CategoryID && e.VendorName == key.Vendor {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) IncomeExists(_ context.Context, key models.IncomeKey) (bool, error) {
	for _, i := range s.incomes {
		if i.Date.Equal(key.Date) && i.Amount.Equal(key.Amount) && i.CategoryLabel == key.Source {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) WithholdingTransactionExists(_ context.Context, categoryID int64, date time.Time, amount decimal.Decimal) (bool, error) {
	for _, t := range s.withholding {
		if t.CategoryID == categoryID && t.Date.Equal(date) && t.Amount.Equal(amount) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListImportBatchesForAccount(_ context.Context, accountID int64) ([]models.ImportBatch, error) {
	var out []models.ImportBatch
	for _, b := range s.batches {
		if b.BankAccountID != nil && *b.BankAccountID == accountID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) CreateImportBatch(_ context.Context, b *models.ImportBatch) error {
	if s.failOn == "CreateImportBatch" {
		return errInjected
	}
	b.ID = s.id()
	s.batches = append(s.batches, *b)
	return nil
}

func (s *memStore) CreateExpense(_ context.Context, e *models.Expense) error {
	if s.failOn == "CreateExpense" {
		return errInjected
	}
	e.ID = s.id()
	s.expenses = append(s.expenses, *e)
	return nil
}

func (s *memStore) CreateIncome(_ context.Context, i *models.Income) error {
	if s.failOn == "CreateIncome" {
		return errInjected
	}
	i.ID = s.id()
	s.incomes = append(s.incomes, *i)
	return nil
}

func (s *memStore) CreateWithholdingTransaction(_ context.Context, t *models.WithholdingTransaction) error {
	if s.failOn == "CreateWithholdingTransaction" {
		return errInjected
	}
	t.ID = s.id()
	t.CreatedAt = time.Now()
	s.withholding = append(s.withholding, *t)
	return nil
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ImportStore) error) error {
	tx := s.clone()
	if err := fn(tx); err != nil {
		return err
	}
	*s = *tx
	return nil
}

func (s *memStore) clone() *memStore {
	c := *s
	c.categories = append([]models.Category(nil), s.categories...)
	c.incomeCategories = append([]models.IncomeCategory(nil), s.incomeCategories...)
	c.accounts = append([]models.BankAccount(nil), s.accounts...)
	c.buckets = append([]models.WithholdingCategory(nil), s.buckets...)
	c.withholding = append([]models.WithholdingTransaction(nil), s.withholding...)
	c.batches = append([]models.ImportBatch(nil), s.batches...)
	c.expenses = append([]models.Expense(nil), s.expenses...)
	c.incomes = append([]models.Income(nil), s.incomes...)
	return &c
}

var errInjected = errors.New("injected failure")
