// Package model defines the core domain types shared across the lending engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvestorID identifies a lender.
type InvestorID string

// LoanID identifies a fundable loan.
type LoanID string

// TrancheName is the letter naming a slice of a loan ("A", "B", ...).
// Loans observed in production carry two tranches, but nothing here
// limits a loan to two.
type TrancheName string

// InvestmentID identifies one immutable placement of money.
type InvestmentID string

// TrancheID is the compound key of a tranche: which loan, which slice.
// It is comparable and safe to use as a map key.
type TrancheID struct {
	Loan LoanID      `json:"loan"`
	Name TrancheName `json:"name"`
}

// Investor holds a wallet that investments debit and interest credits.
// The wallet never goes negative: investments are checked against it
// before being applied and interest only adds.
type Investor struct {
	ID     InvestorID      `json:"id"`
	Wallet decimal.Decimal `json:"wallet"`
}

// Tranche is a named slice of a loan with its own rate and capacity.
// Available + Invested is constant across accepted investments: each
// acceptance moves the amount from one column to the other.
type Tranche struct {
	ID          TrancheID       `json:"id"`
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
	Available   decimal.Decimal `json:"available"`
	Invested    decimal.Decimal `json:"invested"`
}

// Loan is a fundable instrument starting on a given date, subdivided
// into named tranches. Interest never accrues before StartDate.
type Loan struct {
	ID        LoanID                  `json:"id"`
	StartDate time.Time               `json:"start_date"`
	Tranches  map[TrancheName]Tranche `json:"tranches"`
}

// Investment is an immutable record of money placed into a tranche.
// Once created it is never updated, only referenced by interest payments.
type Investment struct {
	ID         InvestmentID    `json:"id"`
	InvestorID InvestorID      `json:"investor_id"`
	TrancheID  TrancheID       `json:"tranche_id"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
}

// Period is an accrual window, inclusive on both ends.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Equal reports whether two periods cover the same instants.
func (p Period) Equal(o Period) bool {
	return p.Start.Equal(o.Start) && p.End.Equal(o.End)
}

// InterestPayment is an append-only record of interest credited to an
// investment for a stated period. Multiple payments may exist per
// investment, one per accrual run that covered it.
type InterestPayment struct {
	InvestmentID InvestmentID    `json:"investment_id"`
	Period       Period          `json:"period"`
	Amount       decimal.Decimal `json:"amount"`
}
