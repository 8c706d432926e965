package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ashmitsharp/homeledger-api/internal/database/db"
	"github.com/ashmitsharp/homeledger-api/internal/models"
)

// ErrNotWithholdingBucket means the bucket is missing or not in a withholding account
var ErrNotWithholdingBucket = errors.New("not a withholding bucket")

// WithholdingStore is what the bucket views read and write
type WithholdingStore interface {
	ListBankAccounts(ctx context.Context) ([]models.BankAccount, error)
	GetBankAccount(ctx context.Context, id int64) (*models.BankAccount, error)
	ListWithholdingCategories(ctx context.Context) ([]models.WithholdingCategory, error)
	GetWithholdingCategory(ctx context.Context, id int64) (*models.WithholdingCategory, error)
	ListWithholdingTransactions(ctx context.Context, categoryID int64) ([]models.WithholdingTransaction, error)
	CreateWithholdingTransaction(ctx context.Context, txn *models.WithholdingTransaction) error
}

// LedgerLine is a bucket transaction with the balance right after it
type LedgerLine struct {
	models.WithholdingTransaction
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// AccountBuckets is one withholding account with its buckets
type AccountBuckets struct {
	Account models.BankAccount           `json:"account"`
	Buckets []models.WithholdingCategory `json:"buckets"`
}

// BucketDetail is one bucket with its ledger, most recent first
type BucketDetail struct {
	Bucket models.WithholdingCategory `json:"bucket"`
	Lines  []LedgerLine               `json:"lines"`
}

// BucketBalance is the signed sum of a bucket's transactions
func BucketBalance(txns []models.WithholdingTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.Amount)
	}
	return total
}

// SignedWithholdingAmount gives a bucket movement its sign from the payout flag,
// whatever sign the user typed
func SignedWithholdingAmount(amount decimal.Decimal, payout bool) decimal.Decimal {
	if payout {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

// RunningBalances orders transactions by (date, id) and returns them most
// recent first, each with the balance after it. The walk starts from the
// total and subtracts, so the oldest line ends at its own amount.
func RunningBalances(txns []models.WithholdingTransaction) []LedgerLine {
	ordered := make([]models.WithholdingTransaction, len(txns))
	copy(ordered, txns)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})

	lines := make([]LedgerLine, 0, len(ordered))
	balance := BucketBalance(ordered)
	for i := len(ordered) - 1; i >= 0; i-- {
		lines = append(lines, LedgerLine{WithholdingTransaction: ordered[i], BalanceAfter: balance})
		balance = balance.Sub(ordered[i].Amount)
	}
	return lines
}

// WithholdingService serves the bucket overview and detail views
type WithholdingService struct {
	store WithholdingStore
}

// NewWithholdingService creates a withholding service
func NewWithholdingService(store WithholdingStore) *WithholdingService {
	return &WithholdingService{store: store}
}

// Overview groups buckets by withholding account with derived balances
func (s *WithholdingService) Overview(ctx context.Context) ([]AccountBuckets, error) {
	accounts, err := s.store.ListBankAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing bank accounts: %w", err)
	}
	buckets, err := s.store.ListWithholdingCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing withholding buckets: %w", err)
	}

	byAccount := make(map[int64][]models.WithholdingCategory)
	for _, b := range buckets {
		if b.AccountID == nil {
			continue
		}
		txns, err := s.store.ListWithholdingTransactions(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("listing transactions for bucket %d: %w", b.ID, err)
		}
		b.Balance = BucketBalance(txns)
		byAccount[*b.AccountID] = append(byAccount[*b.AccountID], b)
	}

	var out []AccountBuckets
	for _, a := range accounts {
		if !a.IsWithholdingAccount {
			continue
		}
		a.WithholdingTotal = decimal.Zero
		for _, b := range byAccount[a.ID] {
			a.WithholdingTotal = a.WithholdingTotal.Add(b.Balance)
		}
		a.UnallocatedBalance = a.CurrentBalance.Sub(a.WithholdingTotal)
		out = append(out, AccountBuckets{Account: a, Buckets: byAccount[a.ID]})
	}
	return out, nil
}

// Detail returns one bucket with its running-balance ledger
func (s *WithholdingService) Detail(ctx context.Context, id int64) (*BucketDetail, error) {
	bucket, err := s.store.GetWithholdingCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	txns, err := s.store.ListWithholdingTransactions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for bucket %d: %w", id, err)
	}
	bucket.Balance = BucketBalance(txns)
	return &BucketDetail{Bucket: *bucket, Lines: RunningBalances(txns)}, nil
}

// Record adds a manual contribution or payout to a bucket
func (s *WithholdingService) Record(ctx context.Context, id int64, date time.Time, amount decimal.Decimal, payout bool, note string) (*models.WithholdingTransaction, error) {
	bucket, err := s.store.GetWithholdingCategory(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotWithholdingBucket
	}
	if err != nil {
		return nil, err
	}
	if bucket.AccountID == nil {
		return nil, ErrNotWithholdingBucket
	}
	account, err := s.store.GetBankAccount(ctx, *bucket.AccountID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if account == nil || !account.IsWithholdingAccount {
		return nil, ErrNotWithholdingBucket
	}

	txn := &models.WithholdingTransaction{
		CategoryID: id,
		Date:       date,
		Amount:     SignedWithholdingAmount(amount, payout),
		Note:       note,
	}
	if err := s.store.CreateWithholdingTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("creating withholding transaction: %w", err)
	}
	return txn, nil
}

// Accounts lists every bank account with bucket totals filled in for withholding accounts
func (s *WithholdingService) Accounts(ctx context.Context) ([]models.BankAccount, error) {
	overview, err := s.Overview(ctx)
	if err != nil {
		return nil, err
	}
	derived := make(map[int64]models.BankAccount, len(overview))
	for _, o := range overview {
		derived[o.Account.ID] = o.Account
	}

	accounts, err := s.store.ListBankAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing bank accounts: %w", err)
	}
	for i, a := range accounts {
		if d, ok := derived[a.ID]; ok {
			accounts[i] = d
		}
	}
	return accounts, nil
}
