package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

var (
	// ErrNonPositiveAmount is returned for investments of zero or less.
	ErrNonPositiveAmount = errors.New("ledger: investment amount must be positive")

	// ErrInsufficientWallet is returned when the investor's wallet does
	// not cover the investment amount.
	ErrInsufficientWallet = errors.New("ledger: investor wallet does not cover amount")

	// ErrTrancheFull is returned when the tranche's remaining capacity
	// does not cover the investment amount.
	ErrTrancheFull = errors.New("ledger: tranche does not have space for investment")

	// ErrBeforeLoanStart is returned when the investment is dated before
	// the loan exists.
	ErrBeforeLoanStart = errors.New("ledger: investment dated before loan start")
)

// NewInvestment mints an Investment with a fresh unique id. The engine
// itself never generates identifiers; callers use this (or any other id
// supplier) before MakeInvestment.
func NewInvestment(investorID model.InvestorID, trancheID model.TrancheID, amount decimal.Decimal, date time.Time) model.Investment {
	return model.Investment{
		ID:         model.InvestmentID(uuid.New().String()),
		InvestorID: investorID,
		TrancheID:  trancheID,
		Amount:     amount,
		Date:       date,
	}
}

// MakeInvestment validates an investment against the snapshot and, if it
// passes, returns a new snapshot with the wallet debited, the tranche's
// available moved to invested, and the investment recorded. On any failure
// the original snapshot is returned untouched — there are no partial effects.
//
// Checks run in a fixed order and short-circuit on the first failure, so
// an investment that violates several conditions reports the earliest one:
//
//	 1. amount <= 0            → ErrNonPositiveAmount
//	 2. amount > wallet        → ErrInsufficientWallet
//	 3. amount > available     → ErrTrancheFull
//	 4. date < loan start      → ErrBeforeLoanStart
//	 5. id already recorded    → ErrDuplicateInvestment
//
// Lookups of the investor, loan or tranche surface ErrNotFound.
func (s State) MakeInvestment(inv model.Investment) (State, error) {
	investor, err := s.Investor(inv.InvestorID)
	if err != nil {
		return s, err
	}
	loan, tranche, err := s.LoanAndTranche(inv.TrancheID)
	if err != nil {
		return s, err
	}

	if inv.Amount.LessThanOrEqual(decimal.Zero) {
		return s, fmt.Errorf("%w: investor %s amount %s",
			ErrNonPositiveAmount, inv.InvestorID, inv.Amount)
	}
	if inv.Amount.GreaterThan(investor.Wallet) {
		return s, fmt.Errorf("%w: amount %s, wallet %s",
			ErrInsufficientWallet, inv.Amount, investor.Wallet)
	}
	if inv.Amount.GreaterThan(tranche.Available) {
		return s, fmt.Errorf("%w: amount %s, available %s",
			ErrTrancheFull, inv.Amount, tranche.Available)
	}
	if inv.Date.Before(loan.StartDate) {
		return s, fmt.Errorf("%w: %s precedes %s",
			ErrBeforeLoanStart, inv.Date.Format("2006-01-02"), loan.StartDate.Format("2006-01-02"))
	}
	if _, ok := s.investments[inv.ID]; ok {
		return s, fmt.Errorf("%w: %s", ErrDuplicateInvestment, inv.ID)
	}

	investor.Wallet = investor.Wallet.Sub(inv.Amount)
	tranche.Available = tranche.Available.Sub(inv.Amount)
	tranche.Invested = tranche.Invested.Add(inv.Amount)

	// All three effects land in one returned snapshot.
	next := s.withInvestor(investor).withTranche(tranche).withInvestment(inv)
	return next, nil
}
