package lending

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/peervest/lending-engine/internal/ledger"
	"github.com/peervest/lending-engine/internal/metrics"
)

// Restore rebuilds the in-memory snapshot from persisted rows. Wallets and
// tranche books are stored post-effect, so investments and interest
// payments replay as already-applied records — no validation or crediting
// is re-run.
func (s *Service) Restore(ctx context.Context) error {
	investors, err := s.store.ListInvestors(ctx)
	if err != nil {
		return fmt.Errorf("restore investors: %w", err)
	}
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return fmt.Errorf("restore loans: %w", err)
	}
	investments, err := s.store.ListInvestments(ctx)
	if err != nil {
		return fmt.Errorf("restore investments: %w", err)
	}
	payments, err := s.store.ListInterestPayments(ctx)
	if err != nil {
		return fmt.Errorf("restore interest payments: %w", err)
	}

	state := ledger.NewState()
	for _, inv := range investors {
		if state, err = state.AddInvestor(inv); err != nil {
			return fmt.Errorf("restore investor %s: %w", inv.ID, err)
		}
	}
	for _, loan := range loans {
		if state, err = state.AddLoan(loan); err != nil {
			return fmt.Errorf("restore loan %s: %w", loan.ID, err)
		}
	}
	for _, inv := range investments {
		if state, err = state.AddRecordedInvestment(inv); err != nil {
			return fmt.Errorf("restore investment %s: %w", inv.ID, err)
		}
	}
	for _, p := range payments {
		state = state.AddRecordedInterestPayment(p)
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	metrics.ActiveLoans.Set(float64(len(loans)))
	slog.Info("ledger restored",
		"investors", len(investors),
		"loans", len(loans),
		"investments", len(investments),
		"interest_payments", len(payments),
	)
	return nil
}
