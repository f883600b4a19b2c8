package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for investors and loans. Writes go to the primary store and
// invalidate the cache; reads check Redis first then fall back to the
// primary. Ledger listings are passthrough — they are replayed once at
// boot and append-only afterwards.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh or invalidate cache) ---

func (s *CachedStore) CreateInvestor(ctx context.Context, inv *model.Investor) error {
	if err := s.primary.CreateInvestor(ctx, inv); err != nil {
		return err
	}
	s.cacheInvestor(ctx, inv)
	return nil
}

func (s *CachedStore) UpdateInvestorWallet(ctx context.Context, id model.InvestorID, wallet decimal.Decimal) error {
	if err := s.primary.UpdateInvestorWallet(ctx, id, wallet); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, investorKey(id))
	return nil
}

func (s *CachedStore) CreateLoan(ctx context.Context, loan *model.Loan) error {
	if err := s.primary.CreateLoan(ctx, loan); err != nil {
		return err
	}
	s.cacheLoan(ctx, loan)
	return nil
}

func (s *CachedStore) UpdateTrancheBook(ctx context.Context, id model.TrancheID, available, invested decimal.Decimal) error {
	if err := s.primary.UpdateTrancheBook(ctx, id, available, invested); err != nil {
		return err
	}
	s.rdb.Del(ctx, loanKey(id.Loan))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetInvestor(ctx context.Context, id model.InvestorID) (*model.Investor, error) {
	data, err := s.rdb.Get(ctx, investorKey(id)).Bytes()
	if err == nil {
		var inv model.Investor
		if json.Unmarshal(data, &inv) == nil {
			return &inv, nil
		}
	}

	inv, err := s.primary.GetInvestor(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheInvestor(ctx, inv)
	return inv, nil
}

func (s *CachedStore) GetLoan(ctx context.Context, id model.LoanID) (*model.Loan, error) {
	data, err := s.rdb.Get(ctx, loanKey(id)).Bytes()
	if err == nil {
		var loan model.Loan
		if json.Unmarshal(data, &loan) == nil {
			return &loan, nil
		}
	}

	loan, err := s.primary.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheLoan(ctx, loan)
	return loan, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListInvestors(ctx context.Context) ([]model.Investor, error) {
	return s.primary.ListInvestors(ctx)
}

func (s *CachedStore) ListLoans(ctx context.Context) ([]model.Loan, error) {
	return s.primary.ListLoans(ctx)
}

func (s *CachedStore) InsertInvestment(ctx context.Context, inv *model.Investment) error {
	return s.primary.InsertInvestment(ctx, inv)
}

func (s *CachedStore) ListInvestments(ctx context.Context) ([]model.Investment, error) {
	return s.primary.ListInvestments(ctx)
}

func (s *CachedStore) GetInvestmentsByInvestor(ctx context.Context, id model.InvestorID) ([]model.Investment, error) {
	return s.primary.GetInvestmentsByInvestor(ctx, id)
}

func (s *CachedStore) InsertInterestPayment(ctx context.Context, p *model.InterestPayment) error {
	return s.primary.InsertInterestPayment(ctx, p)
}

func (s *CachedStore) ListInterestPayments(ctx context.Context) ([]model.InterestPayment, error) {
	return s.primary.ListInterestPayments(ctx)
}

func (s *CachedStore) GetInterestPaymentsByInvestment(ctx context.Context, id model.InvestmentID) ([]model.InterestPayment, error) {
	return s.primary.GetInterestPaymentsByInvestment(ctx, id)
}

// --- Cache helpers ---

func (s *CachedStore) cacheInvestor(ctx context.Context, inv *model.Investor) {
	if data, err := json.Marshal(inv); err == nil {
		s.rdb.Set(ctx, investorKey(inv.ID), data, s.ttl)
	}
}

func (s *CachedStore) cacheLoan(ctx context.Context, loan *model.Loan) {
	if data, err := json.Marshal(loan); err == nil {
		s.rdb.Set(ctx, loanKey(loan.ID), data, s.ttl)
	}
}

func investorKey(id model.InvestorID) string { return fmt.Sprintf("investor:%s", id) }
func loanKey(id model.LoanID) string         { return fmt.Sprintf("loan:%s", id) }
