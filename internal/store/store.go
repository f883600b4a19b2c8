// Package store defines the persistence interface for the lending engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// The store mirrors accepted ledger snapshots; it never applies business
// rules itself. At boot the service replays the stored rows back into an
// in-memory snapshot (see internal/lending).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Investors ---

	// CreateInvestor persists a new investor.
	CreateInvestor(ctx context.Context, inv *model.Investor) error

	// GetInvestor retrieves an investor by id.
	GetInvestor(ctx context.Context, id model.InvestorID) (*model.Investor, error)

	// ListInvestors returns all investors.
	ListInvestors(ctx context.Context) ([]model.Investor, error)

	// UpdateInvestorWallet replaces an investor's wallet balance.
	UpdateInvestorWallet(ctx context.Context, id model.InvestorID, wallet decimal.Decimal) error

	// --- Loans ---

	// CreateLoan persists a new loan with all its tranches.
	CreateLoan(ctx context.Context, loan *model.Loan) error

	// GetLoan retrieves a loan by id.
	GetLoan(ctx context.Context, id model.LoanID) (*model.Loan, error)

	// ListLoans returns all loans.
	ListLoans(ctx context.Context) ([]model.Loan, error)

	// UpdateTrancheBook replaces a tranche's available/invested columns
	// after an accepted investment.
	UpdateTrancheBook(ctx context.Context, id model.TrancheID, available, invested decimal.Decimal) error

	// --- Immutable investment ledger ---

	// InsertInvestment appends an immutable investment record.
	InsertInvestment(ctx context.Context, inv *model.Investment) error

	// ListInvestments returns all investments.
	ListInvestments(ctx context.Context) ([]model.Investment, error)

	// GetInvestmentsByInvestor returns all investments placed by one investor.
	GetInvestmentsByInvestor(ctx context.Context, id model.InvestorID) ([]model.Investment, error)

	// --- Interest payment history ---

	// InsertInterestPayment appends an interest payment record.
	InsertInterestPayment(ctx context.Context, p *model.InterestPayment) error

	// ListInterestPayments returns the full payment history, oldest first.
	ListInterestPayments(ctx context.Context) ([]model.InterestPayment, error)

	// GetInterestPaymentsByInvestment returns the payment history of one
	// investment, oldest first.
	GetInterestPaymentsByInvestment(ctx context.Context, id model.InvestmentID) ([]model.InterestPayment, error)
}
