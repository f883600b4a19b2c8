package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

func june() model.Period {
	return model.Period{Start: day("2018-06-01"), End: day("2018-06-30")}
}

// --- Day counting ---

func TestInclusiveDays(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"same day", "2018-06-30", "2018-06-30", 1},
		{"adjacent days", "2018-06-29", "2018-06-30", 2},
		{"full month", "2018-06-01", "2018-06-30", 30},
		{"across months", "2018-06-20", "2018-07-03", 14},
		{"start after end", "2018-07-01", "2018-06-30", 0},
		{"well after end", "2018-10-01", "2018-06-30", -92},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inclusiveDays(day(tt.a), day(tt.b))
			if got != tt.want {
				t.Errorf("inclusiveDays(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// --- Accrual scenarios ---

// The fixture scenario: 500 in London tranche A (0.9%/month) dated on the
// period's last day earns exactly one day: 500 × (0.009×12/365) × 1 → 0.15.
func TestProduceInterest_LastDayOfPeriod(t *testing.T) {
	st := newTestState(t)
	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 500, "2018-06-30"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next, produced := st.ProduceInterest(june())

	if len(produced) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(produced))
	}
	if !produced[0].Amount.Equal(d(0.15)) {
		t.Errorf("expected interest 0.15, got %s", produced[0].Amount)
	}

	alice, _ := next.Investor("alice")
	if !alice.Wallet.Equal(d(500.15)) {
		t.Errorf("expected wallet 500.15, got %s", alice.Wallet)
	}
}

func TestProduceInterest_ClippedByLoanStart(t *testing.T) {
	st := newTestState(t)
	// Dated on the loan start, which falls inside the period: accrual runs
	// from 2018-06-20 through 2018-06-30, 11 inclusive days.
	// 500 × (0.108/365) × 11 = 1.6273... → 1.63
	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 500, "2018-06-20"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, produced := st.ProduceInterest(june())
	if len(produced) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(produced))
	}
	if !produced[0].Amount.Equal(d(1.63)) {
		t.Errorf("expected interest 1.63, got %s", produced[0].Amount)
	}
}

func TestProduceInterest_InvestedAfterPeriod(t *testing.T) {
	st := newTestState(t)
	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 500, "2018-10-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next, produced := st.ProduceInterest(june())

	// Invested too late to earn anything this period: zero interest,
	// represented as no payment at all, and the wallet stays put.
	if len(produced) != 0 {
		t.Fatalf("expected no payments, got %d", len(produced))
	}
	if len(next.InterestPayments()) != 0 {
		t.Errorf("expected empty payment history, got %d", len(next.InterestPayments()))
	}
	alice, _ := next.Investor("alice")
	if !alice.Wallet.Equal(d(500)) {
		t.Errorf("wallet should be unchanged at 500, got %s", alice.Wallet)
	}
}

func TestProduceInterest_OnlyEligibleInvestmentsPay(t *testing.T) {
	st := newTestState(t)

	// Four investments, two inside the period, two after it.
	for _, inv := range []model.Investment{
		investment("i1", "alice", londonA, 100, "2018-06-25"),
		investment("i2", "alice", londonB, 200, "2018-06-28"),
		investment("i3", "bob", londonA, 300, "2018-07-10"),
		investment("i4", "bob", londonB, 400, "2018-08-01"),
	} {
		var err error
		st, err = st.MakeInvestment(inv)
		if err != nil {
			t.Fatalf("seeding %s: %v", inv.ID, err)
		}
	}

	bobBefore, _ := st.Investor("bob")
	next, produced := st.ProduceInterest(june())

	if len(produced) != 2 {
		t.Fatalf("expected exactly 2 payments, got %d", len(produced))
	}
	for _, p := range produced {
		if p.InvestmentID != "i1" && p.InvestmentID != "i2" {
			t.Errorf("unexpected payment for %s", p.InvestmentID)
		}
	}

	// Bob's investments were both ineligible; his wallet is untouched.
	bobAfter, _ := next.Investor("bob")
	if !bobAfter.Wallet.Equal(bobBefore.Wallet) {
		t.Errorf("bob's wallet changed: before=%s after=%s",
			bobBefore.Wallet, bobAfter.Wallet)
	}
}

func TestProduceInterest_AlwaysTwoDecimalPlaces(t *testing.T) {
	st := newTestState(t)
	// Awkward amounts that produce long fractions before rounding.
	for _, inv := range []model.Investment{
		investment("i1", "alice", londonA, 333.33, "2018-06-21"),
		investment("i2", "bob", londonB, 777.77, "2018-06-23"),
	} {
		var err error
		st, err = st.MakeInvestment(inv)
		if err != nil {
			t.Fatalf("seeding %s: %v", inv.ID, err)
		}
	}

	_, produced := st.ProduceInterest(june())
	for _, p := range produced {
		if p.Amount.Exponent() < -2 {
			t.Errorf("payment for %s not rounded to cents: %s", p.InvestmentID, p.Amount)
		}
	}
}

func TestProduceInterest_DuplicatePeriodsNotDeduplicated(t *testing.T) {
	st := newTestState(t)
	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 500, "2018-06-30"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Running the same period twice records two payments and credits twice.
	st, _ = st.ProduceInterest(june())
	st, _ = st.ProduceInterest(june())

	var matches int
	for _, p := range st.InterestPayments() {
		if p.InvestmentID == "i1" && p.Period.Equal(june()) {
			matches++
		}
	}
	if matches != 2 {
		t.Errorf("expected 2 payments for the repeated period, got %d", matches)
	}

	alice, _ := st.Investor("alice")
	if !alice.Wallet.Equal(d(500.30)) {
		t.Errorf("expected wallet 500.30 after double credit, got %s", alice.Wallet)
	}
}

func TestProduceInterest_OriginalSnapshotUntouched(t *testing.T) {
	st := newTestState(t)
	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 500, "2018-06-30"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _ = st.ProduceInterest(june())

	alice, _ := st.Investor("alice")
	if !alice.Wallet.Equal(d(500)) {
		t.Errorf("old snapshot wallet changed: %s", alice.Wallet)
	}
	if len(st.InterestPayments()) != 0 {
		t.Errorf("old snapshot gained payments: %d", len(st.InterestPayments()))
	}
}

// --- Payment lookup ---

func TestInterestPaymentAmount(t *testing.T) {
	st := newTestState(t)
	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 500, "2018-06-30"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, _ = st.ProduceInterest(june())

	amount, err := st.InterestPaymentAmount("i1", june())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !amount.Equal(d(0.15)) {
		t.Errorf("expected 0.15, got %s", amount)
	}

	// Wrong period for a known investment.
	july := model.Period{Start: day("2018-07-01"), End: day("2018-07-31")}
	if _, err := st.InterestPaymentAmount("i1", july); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unmatched period, got %v", err)
	}

	// Unknown investment.
	if _, err := st.InterestPaymentAmount("nope", june()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown investment, got %v", err)
	}
}

func TestInterestPaymentAmount_ZeroRate(t *testing.T) {
	st := NewState()
	st, _ = st.AddLoan(model.Loan{
		ID:        "London",
		StartDate: day("2018-06-20"),
		Tranches: map[model.TrancheName]model.Tranche{
			"A": {ID: londonA, MonthlyRate: decimal.Zero, Available: d(1000)},
		},
	})
	st, _ = st.AddInvestor(model.Investor{ID: "alice", Wallet: d(1000)})
	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 500, "2018-06-25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Zero rate is a valid zero-interest outcome, not an error.
	st, produced := st.ProduceInterest(june())
	if len(produced) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(produced))
	}
	if !produced[0].Amount.IsZero() {
		t.Errorf("expected zero interest, got %s", produced[0].Amount)
	}
	alice, _ := st.Investor("alice")
	if !alice.Wallet.Equal(d(500)) {
		t.Errorf("wallet should be unchanged at 500, got %s", alice.Wallet)
	}
}
