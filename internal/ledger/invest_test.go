package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	londonA = model.TrancheID{Loan: "London", Name: "A"}
	londonB = model.TrancheID{Loan: "London", Name: "B"}
)

// newTestState builds the standard fixture: the "London" loan starting
// 2018-06-20 with tranches A (0.9%/month, 100000 available) and
// B (1.1%/month, 100000 available), plus two funded investors.
func newTestState(t *testing.T) State {
	t.Helper()

	st := NewState()
	st, err := st.AddLoan(model.Loan{
		ID:        "London",
		StartDate: day("2018-06-20"),
		Tranches: map[model.TrancheName]model.Tranche{
			"A": {ID: londonA, MonthlyRate: d(0.009), Available: d(100000)},
			"B": {ID: londonB, MonthlyRate: d(0.011), Available: d(100000)},
		},
	})
	if err != nil {
		t.Fatalf("failed to seed loan: %v", err)
	}
	for _, inv := range []model.Investor{
		{ID: "alice", Wallet: d(1000)},
		{ID: "bob", Wallet: d(1000)},
	} {
		st, err = st.AddInvestor(inv)
		if err != nil {
			t.Fatalf("failed to seed investor: %v", err)
		}
	}
	return st
}

func investment(id model.InvestmentID, investor model.InvestorID, tr model.TrancheID, amount float64, date string) model.Investment {
	return model.Investment{
		ID:         id,
		InvestorID: investor,
		TrancheID:  tr,
		Amount:     d(amount),
		Date:       day(date),
	}
}

// --- MakeInvestment success path ---

func TestMakeInvestment_MovesMoney(t *testing.T) {
	st := newTestState(t)

	next, err := st.MakeInvestment(investment("i1", "alice", londonA, 500, "2018-10-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alice, _ := next.Investor("alice")
	if !alice.Wallet.Equal(d(500)) {
		t.Errorf("expected wallet 500, got %s", alice.Wallet)
	}
	tr, _ := next.Tranche(londonA)
	if !tr.Available.Equal(d(99500)) {
		t.Errorf("expected available 99500, got %s", tr.Available)
	}
	if !tr.Invested.Equal(d(500)) {
		t.Errorf("expected invested 500, got %s", tr.Invested)
	}
	if _, err := next.Investment("i1"); err != nil {
		t.Errorf("investment should be recorded: %v", err)
	}
}

func TestMakeInvestment_Conservation(t *testing.T) {
	st := newTestState(t)
	aliceBefore, _ := st.Investor("alice")
	trBefore, _ := st.Tranche(londonA)

	next, err := st.MakeInvestment(investment("i1", "alice", londonA, 321.45, "2018-10-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	aliceAfter, _ := next.Investor("alice")
	trAfter, _ := next.Tranche(londonA)

	// Money moves between wallet and tranche, none created or destroyed.
	before := aliceBefore.Wallet.Add(trBefore.Invested)
	after := aliceAfter.Wallet.Add(trAfter.Invested)
	if !before.Equal(after) {
		t.Errorf("wallet+invested changed: before=%s after=%s", before, after)
	}

	// Within the tranche, available+invested is constant.
	bookBefore := trBefore.Available.Add(trBefore.Invested)
	bookAfter := trAfter.Available.Add(trAfter.Invested)
	if !bookBefore.Equal(bookAfter) {
		t.Errorf("tranche book changed: before=%s after=%s", bookBefore, bookAfter)
	}
}

func TestMakeInvestment_SnapshotIsolated(t *testing.T) {
	st := newTestState(t)

	next, err := st.MakeInvestment(investment("i1", "alice", londonA, 500, "2018-10-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = next

	// The original snapshot must be untouched by the new one.
	alice, _ := st.Investor("alice")
	if !alice.Wallet.Equal(d(1000)) {
		t.Errorf("old snapshot wallet changed: %s", alice.Wallet)
	}
	tr, _ := st.Tranche(londonA)
	if !tr.Available.Equal(d(100000)) {
		t.Errorf("old snapshot available changed: %s", tr.Available)
	}
	if _, err := st.Investment("i1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old snapshot should not contain i1, got %v", err)
	}
}

// --- Validation failures ---

func TestMakeInvestment_NonPositiveAmount(t *testing.T) {
	st := newTestState(t)

	for _, amount := range []float64{0, -1, -500} {
		_, err := st.MakeInvestment(investment("i1", "alice", londonA, amount, "2018-10-01"))
		if !errors.Is(err, ErrNonPositiveAmount) {
			t.Errorf("amount %v: expected ErrNonPositiveAmount, got %v", amount, err)
		}
	}
}

func TestMakeInvestment_InsufficientWallet(t *testing.T) {
	st := newTestState(t)

	// Wallet is 1000; 1100 must be rejected and nothing must change.
	next, err := st.MakeInvestment(investment("i1", "alice", londonA, 1100, "2018-10-01"))
	if !errors.Is(err, ErrInsufficientWallet) {
		t.Fatalf("expected ErrInsufficientWallet, got %v", err)
	}

	alice, _ := next.Investor("alice")
	if !alice.Wallet.Equal(d(1000)) {
		t.Errorf("wallet should be unchanged, got %s", alice.Wallet)
	}
	tr, _ := next.Tranche(londonA)
	if !tr.Available.Equal(d(100000)) || !tr.Invested.Equal(d(0)) {
		t.Errorf("tranche should be unchanged, got available=%s invested=%s",
			tr.Available, tr.Invested)
	}
}

func TestMakeInvestment_TrancheFull(t *testing.T) {
	st := NewState()
	st, _ = st.AddLoan(model.Loan{
		ID:        "London",
		StartDate: day("2018-06-20"),
		Tranches: map[model.TrancheName]model.Tranche{
			"A": {ID: londonA, MonthlyRate: d(0.009), Available: d(1000)},
		},
	})
	st, _ = st.AddInvestor(model.Investor{ID: "alice", Wallet: d(2000)})
	st, _ = st.AddInvestor(model.Investor{ID: "bob", Wallet: d(2000)})

	// Alice fills the tranche exactly.
	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 1000, "2018-10-01"))
	if err != nil {
		t.Fatalf("filling trade should succeed: %v", err)
	}

	// Bob's single extra pound does not fit.
	_, err = st.MakeInvestment(investment("i2", "bob", londonA, 1, "2018-10-01"))
	if !errors.Is(err, ErrTrancheFull) {
		t.Errorf("expected ErrTrancheFull, got %v", err)
	}
}

func TestMakeInvestment_BeforeLoanStart(t *testing.T) {
	st := newTestState(t)

	_, err := st.MakeInvestment(investment("i1", "alice", londonA, 100, "2018-06-19"))
	if !errors.Is(err, ErrBeforeLoanStart) {
		t.Errorf("expected ErrBeforeLoanStart, got %v", err)
	}

	// Investing on the start date itself is fine.
	_, err = st.MakeInvestment(investment("i2", "alice", londonA, 100, "2018-06-20"))
	if err != nil {
		t.Errorf("investing on the start date should succeed: %v", err)
	}
}

func TestMakeInvestment_Duplicate(t *testing.T) {
	st := newTestState(t)

	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 100, "2018-10-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = st.MakeInvestment(investment("i1", "bob", londonA, 100, "2018-10-01"))
	if !errors.Is(err, ErrDuplicateInvestment) {
		t.Errorf("expected ErrDuplicateInvestment, got %v", err)
	}
}

func TestMakeInvestment_ValidationOrder(t *testing.T) {
	st := newTestState(t)
	st, err := st.MakeInvestment(investment("i1", "alice", londonA, 100, "2018-10-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simultaneously non-positive, over-wallet (if it were positive at that
	// magnitude), before loan start AND a duplicate id: the first check wins.
	_, err = st.MakeInvestment(investment("i1", "alice", londonA, -5000, "2018-01-01"))
	if !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("first check should win, got %v", err)
	}
}

func TestMakeInvestment_UnknownEntities(t *testing.T) {
	st := newTestState(t)

	_, err := st.MakeInvestment(investment("i1", "carol", londonA, 100, "2018-10-01"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown investor: expected ErrNotFound, got %v", err)
	}

	_, err = st.MakeInvestment(investment("i1", "alice",
		model.TrancheID{Loan: "Paris", Name: "A"}, 100, "2018-10-01"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown loan: expected ErrNotFound, got %v", err)
	}

	_, err = st.MakeInvestment(investment("i1", "alice",
		model.TrancheID{Loan: "London", Name: "Z"}, 100, "2018-10-01"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown tranche: expected ErrNotFound, got %v", err)
	}
}

// --- Loader and accessor behavior ---

func TestAddInvestor_Duplicate(t *testing.T) {
	st := newTestState(t)
	_, err := st.AddInvestor(model.Investor{ID: "alice", Wallet: d(1)})
	if !errors.Is(err, ErrDuplicateInvestor) {
		t.Errorf("expected ErrDuplicateInvestor, got %v", err)
	}
}

func TestAddLoan_Duplicate(t *testing.T) {
	st := newTestState(t)
	_, err := st.AddLoan(model.Loan{ID: "London", StartDate: day("2019-01-01")})
	if !errors.Is(err, ErrDuplicateLoan) {
		t.Errorf("expected ErrDuplicateLoan, got %v", err)
	}
}

func TestAddLoan_CopiesTrancheMap(t *testing.T) {
	tranches := map[model.TrancheName]model.Tranche{
		"A": {ID: londonA, MonthlyRate: d(0.009), Available: d(100)},
	}
	st, _ := NewState().AddLoan(model.Loan{
		ID: "London", StartDate: day("2018-06-20"), Tranches: tranches,
	})

	// Mutating the caller's map must not reach into the snapshot.
	tranches["A"] = model.Tranche{ID: londonA, Available: d(0)}

	tr, err := st.Tranche(londonA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.Available.Equal(d(100)) {
		t.Errorf("snapshot leaked caller mutation: available=%s", tr.Available)
	}
}

func TestAddRecordedInvestment_DanglingTranche(t *testing.T) {
	st := newTestState(t)

	_, err := st.AddRecordedInvestment(investment("i1", "alice",
		model.TrancheID{Loan: "Paris", Name: "A"}, 100, "2018-10-01"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown loan: expected ErrNotFound, got %v", err)
	}

	_, err = st.AddRecordedInvestment(investment("i1", "alice",
		model.TrancheID{Loan: "London", Name: "Z"}, 100, "2018-10-01"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown tranche: expected ErrNotFound, got %v", err)
	}

	next, err := st.AddRecordedInvestment(investment("i1", "alice", londonA, 100, "2018-10-01"))
	if err != nil {
		t.Fatalf("valid reference rejected: %v", err)
	}
	if _, err := next.Investment("i1"); err != nil {
		t.Errorf("recorded investment not found: %v", err)
	}
}

func TestNewInvestment_FreshIDs(t *testing.T) {
	a := NewInvestment("alice", londonA, d(10), day("2018-10-01"))
	b := NewInvestment("alice", londonA, d(10), day("2018-10-01"))
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.InvestorID != "alice" || a.TrancheID != londonA {
		t.Errorf("unexpected investment fields: %+v", a)
	}
}
