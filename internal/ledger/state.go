// Package ledger implements the immutable state-transition core of the
// lending engine: a snapshot of investors, loans, investments and interest
// payments, plus the pure operations that validate investments and accrue
// interest over it.
//
// A State is never mutated. Every operation returns a new snapshot built by
// copy-on-write over the entity maps, so any number of callers can keep and
// read older snapshots safely. Serializing which snapshot is "current" is
// the caller's job (see internal/lending, which holds it behind a mutex).
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

var (
	// ErrNotFound is returned when a referenced investor, loan, tranche,
	// investment or interest payment does not exist in the snapshot.
	ErrNotFound = errors.New("ledger: not found")

	// ErrDuplicateInvestor is returned when loading an investor whose id
	// is already present.
	ErrDuplicateInvestor = errors.New("ledger: investor already exists")

	// ErrDuplicateLoan is returned when loading a loan whose id is
	// already present.
	ErrDuplicateLoan = errors.New("ledger: loan already exists")

	// ErrDuplicateInvestment is returned when an investment id collides
	// with one already recorded.
	ErrDuplicateInvestment = errors.New("ledger: investment already recorded")
)

// State is one immutable snapshot of the whole ledger.
// The zero value is not usable; construct with NewState.
type State struct {
	investors   map[model.InvestorID]model.Investor
	loans       map[model.LoanID]model.Loan
	investments map[model.InvestmentID]model.Investment
	payments    []model.InterestPayment // insertion order, most-recent-last
}

// NewState returns an empty snapshot.
func NewState() State {
	return State{
		investors:   map[model.InvestorID]model.Investor{},
		loans:       map[model.LoanID]model.Loan{},
		investments: map[model.InvestmentID]model.Investment{},
	}
}

// --- Loader operations ---

// AddInvestor returns a snapshot with the investor added.
func (s State) AddInvestor(inv model.Investor) (State, error) {
	if _, ok := s.investors[inv.ID]; ok {
		return s, fmt.Errorf("%w: %s", ErrDuplicateInvestor, inv.ID)
	}
	return s.withInvestor(inv), nil
}

// AddLoan returns a snapshot with the loan added. The loan's tranche map
// is copied so later mutation of the argument cannot leak into snapshots.
func (s State) AddLoan(loan model.Loan) (State, error) {
	if _, ok := s.loans[loan.ID]; ok {
		return s, fmt.Errorf("%w: %s", ErrDuplicateLoan, loan.ID)
	}
	tranches := make(map[model.TrancheName]model.Tranche, len(loan.Tranches))
	for name, tr := range loan.Tranches {
		tranches[name] = tr
	}
	loan.Tranches = tranches

	loans := cloneLoans(s.loans)
	loans[loan.ID] = loan
	s.loans = loans
	return s, nil
}

// AddRecordedInvestment inserts an already-applied investment without
// re-running business validation or side effects. Used when rebuilding a
// snapshot from persisted rows, where wallets and tranche books already
// reflect it. The referenced tranche must exist: a dangling reference
// means the loan rows and investment rows disagree, and loading it would
// leave an investment no accrual run can ever pay.
func (s State) AddRecordedInvestment(inv model.Investment) (State, error) {
	if _, ok := s.investments[inv.ID]; ok {
		return s, fmt.Errorf("%w: %s", ErrDuplicateInvestment, inv.ID)
	}
	if _, _, err := s.LoanAndTranche(inv.TrancheID); err != nil {
		return s, err
	}
	return s.withInvestment(inv), nil
}

// AddRecordedInterestPayment appends an already-credited payment without
// touching any wallet. Used when rebuilding a snapshot from persisted rows.
func (s State) AddRecordedInterestPayment(p model.InterestPayment) State {
	return s.withPayment(p)
}

// --- Accessors ---

// Investor looks up an investor by id.
func (s State) Investor(id model.InvestorID) (model.Investor, error) {
	inv, ok := s.investors[id]
	if !ok {
		return model.Investor{}, fmt.Errorf("%w: investor %s", ErrNotFound, id)
	}
	return inv, nil
}

// Loan looks up a loan by id.
func (s State) Loan(id model.LoanID) (model.Loan, error) {
	loan, ok := s.loans[id]
	if !ok {
		return model.Loan{}, fmt.Errorf("%w: loan %s", ErrNotFound, id)
	}
	return loan, nil
}

// LoanAndTranche decomposes a compound tranche id into its owning loan
// and the named tranche.
func (s State) LoanAndTranche(id model.TrancheID) (model.Loan, model.Tranche, error) {
	loan, err := s.Loan(id.Loan)
	if err != nil {
		return model.Loan{}, model.Tranche{}, err
	}
	tr, ok := loan.Tranches[id.Name]
	if !ok {
		return model.Loan{}, model.Tranche{},
			fmt.Errorf("%w: tranche %s of loan %s", ErrNotFound, id.Name, id.Loan)
	}
	return loan, tr, nil
}

// Tranche looks up a tranche by its compound id.
func (s State) Tranche(id model.TrancheID) (model.Tranche, error) {
	_, tr, err := s.LoanAndTranche(id)
	return tr, err
}

// Investment looks up an investment by id.
func (s State) Investment(id model.InvestmentID) (model.Investment, error) {
	inv, ok := s.investments[id]
	if !ok {
		return model.Investment{}, fmt.Errorf("%w: investment %s", ErrNotFound, id)
	}
	return inv, nil
}

// Investments returns all investments in the snapshot, in no particular order.
func (s State) Investments() []model.Investment {
	out := make([]model.Investment, 0, len(s.investments))
	for _, inv := range s.investments {
		out = append(out, inv)
	}
	return out
}

// Loans returns all loans in the snapshot, in no particular order.
func (s State) Loans() []model.Loan {
	out := make([]model.Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		out = append(out, loan)
	}
	return out
}

// InterestPayments returns the payment history, oldest first.
func (s State) InterestPayments() []model.InterestPayment {
	out := make([]model.InterestPayment, len(s.payments))
	copy(out, s.payments)
	return out
}

// InterestPaymentAmount returns the amount credited to an investment for
// that exact period. When duplicate accrual runs recorded more than one
// payment for the same pair, the most recent wins.
func (s State) InterestPaymentAmount(id model.InvestmentID, period model.Period) (decimal.Decimal, error) {
	for i := len(s.payments) - 1; i >= 0; i-- {
		p := s.payments[i]
		if p.InvestmentID == id && p.Period.Equal(period) {
			return p.Amount, nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("%w: interest payment for %s over %s..%s",
		ErrNotFound, id, period.Start.Format("2006-01-02"), period.End.Format("2006-01-02"))
}

// --- Copy-on-write update helpers ---

func (s State) withInvestor(inv model.Investor) State {
	investors := make(map[model.InvestorID]model.Investor, len(s.investors)+1)
	for id, v := range s.investors {
		investors[id] = v
	}
	investors[inv.ID] = inv
	s.investors = investors
	return s
}

// withTranche replaces one tranche within its owning loan, preserving all
// other tranches. Both the loan map and the loan's tranche map are cloned.
func (s State) withTranche(tr model.Tranche) State {
	loan := s.loans[tr.ID.Loan]
	tranches := make(map[model.TrancheName]model.Tranche, len(loan.Tranches))
	for name, t := range loan.Tranches {
		tranches[name] = t
	}
	tranches[tr.ID.Name] = tr
	loan.Tranches = tranches

	loans := cloneLoans(s.loans)
	loans[loan.ID] = loan
	s.loans = loans
	return s
}

func (s State) withInvestment(inv model.Investment) State {
	investments := make(map[model.InvestmentID]model.Investment, len(s.investments)+1)
	for id, v := range s.investments {
		investments[id] = v
	}
	investments[inv.ID] = inv
	s.investments = investments
	return s
}

func (s State) withPayment(p model.InterestPayment) State {
	payments := make([]model.InterestPayment, len(s.payments), len(s.payments)+1)
	copy(payments, s.payments)
	s.payments = append(payments, p)
	return s
}

func cloneLoans(in map[model.LoanID]model.Loan) map[model.LoanID]model.Loan {
	out := make(map[model.LoanID]model.Loan, len(in)+1)
	for id, loan := range in {
		out[id] = loan
	}
	return out
}
