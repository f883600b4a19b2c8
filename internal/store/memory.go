package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	investors   map[model.InvestorID]*model.Investor
	loans       map[model.LoanID]*model.Loan
	investments []model.Investment
	payments    []model.InterestPayment
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		investors: make(map[model.InvestorID]*model.Investor),
		loans:     make(map[model.LoanID]*model.Loan),
	}
}

func (s *MemoryStore) CreateInvestor(_ context.Context, inv *model.Investor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.investors[inv.ID]; ok {
		return fmt.Errorf("investor %s already exists", inv.ID)
	}
	copy := *inv
	s.investors[inv.ID] = &copy
	return nil
}

func (s *MemoryStore) GetInvestor(_ context.Context, id model.InvestorID) (*model.Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.investors[id]
	if !ok {
		return nil, fmt.Errorf("investor %s not found", id)
	}
	copy := *inv
	return &copy, nil
}

func (s *MemoryStore) ListInvestors(_ context.Context) ([]model.Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	investors := make([]model.Investor, 0, len(s.investors))
	for _, inv := range s.investors {
		investors = append(investors, *inv)
	}
	return investors, nil
}

func (s *MemoryStore) UpdateInvestorWallet(_ context.Context, id model.InvestorID, wallet decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.investors[id]
	if !ok {
		return fmt.Errorf("investor %s not found", id)
	}
	inv.Wallet = wallet
	return nil
}

func (s *MemoryStore) CreateLoan(_ context.Context, loan *model.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loans[loan.ID]; ok {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	s.loans[loan.ID] = copyLoan(loan)
	return nil
}

func (s *MemoryStore) GetLoan(_ context.Context, id model.LoanID) (*model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loan, ok := s.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %s not found", id)
	}
	return copyLoan(loan), nil
}

func (s *MemoryStore) ListLoans(_ context.Context) ([]model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loans := make([]model.Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		loans = append(loans, *copyLoan(loan))
	}
	return loans, nil
}

func (s *MemoryStore) UpdateTrancheBook(_ context.Context, id model.TrancheID, available, invested decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[id.Loan]
	if !ok {
		return fmt.Errorf("loan %s not found", id.Loan)
	}
	tr, ok := loan.Tranches[id.Name]
	if !ok {
		return fmt.Errorf("tranche %s of loan %s not found", id.Name, id.Loan)
	}
	tr.Available = available
	tr.Invested = invested
	loan.Tranches[id.Name] = tr
	return nil
}

func (s *MemoryStore) InsertInvestment(_ context.Context, inv *model.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.investments = append(s.investments, *inv)
	return nil
}

func (s *MemoryStore) ListInvestments(_ context.Context) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Investment, len(s.investments))
	copy(out, s.investments)
	return out, nil
}

func (s *MemoryStore) GetInvestmentsByInvestor(_ context.Context, id model.InvestorID) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Investment
	for _, inv := range s.investments {
		if inv.InvestorID == id {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertInterestPayment(_ context.Context, p *model.InterestPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments = append(s.payments, *p)
	return nil
}

func (s *MemoryStore) ListInterestPayments(_ context.Context) ([]model.InterestPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.InterestPayment, len(s.payments))
	copy(out, s.payments)
	return out, nil
}

func (s *MemoryStore) GetInterestPaymentsByInvestment(_ context.Context, id model.InvestmentID) ([]model.InterestPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.InterestPayment
	for _, p := range s.payments {
		if p.InvestmentID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

// copyLoan deep-copies a loan so callers cannot mutate stored state
// through the shared tranche map.
func copyLoan(loan *model.Loan) *model.Loan {
	out := *loan
	out.Tranches = make(map[model.TrancheName]model.Tranche, len(loan.Tranches))
	for name, tr := range loan.Tranches {
		out.Tranches[name] = tr
	}
	return &out
}
