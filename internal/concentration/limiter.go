// Package concentration implements per-investor exposure limits.
//
// Tranches of the same loan default together, so an investor spreading
// money across both tranches of one loan still carries one borrower's
// risk. This package enforces a cap on exposure to any single tranche and
// an aggregate cap across all tranches of the same loan.
//
// Limits are a service-boundary policy: they run before the ledger's own
// validation and never relax it.
package concentration

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

var (
	// ErrPerTrancheLimitExceeded is returned when an investment would push
	// the investor's exposure to a single tranche beyond the maximum.
	ErrPerTrancheLimitExceeded = errors.New("concentration: per-tranche exposure limit exceeded")

	// ErrPerLoanLimitExceeded is returned when an investment would push
	// the investor's aggregate exposure across the loan's tranches beyond
	// the maximum.
	ErrPerLoanLimitExceeded = errors.New("concentration: per-loan exposure limit exceeded")
)

// Limiter enforces exposure limits per tranche and per loan.
type Limiter struct {
	// MaxPerTranche is the maximum exposure to any single tranche.
	MaxPerTranche decimal.Decimal

	// MaxPerLoan is the maximum aggregate exposure across all tranches
	// of one loan.
	MaxPerLoan decimal.Decimal
}

// NewLimiter creates a limiter with the given per-tranche and per-loan caps.
func NewLimiter(maxPerTranche, maxPerLoan decimal.Decimal) *Limiter {
	return &Limiter{
		MaxPerTranche: maxPerTranche,
		MaxPerLoan:    maxPerLoan,
	}
}

// CheckLimit validates whether an investment respects the investor's limits.
//
// Parameters:
//   - target: tranche the investment is aimed at
//   - amount: proposed investment amount
//   - existing: map of tranche id → the investor's current exposure
//
// Returns nil when within limits, or an error naming the violation.
// Exposure exactly at a cap is allowed; only exceeding it is rejected.
func (l *Limiter) CheckLimit(
	target model.TrancheID,
	amount decimal.Decimal,
	existing map[model.TrancheID]decimal.Decimal,
) error {
	// 1. Per-tranche cap.
	newExposure := existing[target].Add(amount)
	if newExposure.GreaterThan(l.MaxPerTranche) {
		return ErrPerTrancheLimitExceeded
	}

	// 2. Per-loan cap: sum exposure across the loan's other tranches.
	totalInLoan := newExposure
	for id, exposure := range existing {
		if id == target {
			continue // already counted via newExposure above
		}
		if id.Loan == target.Loan {
			totalInLoan = totalInLoan.Add(exposure)
		}
	}
	if totalInLoan.GreaterThan(l.MaxPerLoan) {
		return ErrPerLoanLimitExceeded
	}

	return nil
}
