package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

var (
	twelve              = decimal.NewFromInt(12)
	daysPerYear         = decimal.NewFromInt(365)
	interestScale int32 = 2 // cents
)

// ProduceInterest accrues daily interest for every investment in the
// snapshot over the given period and returns the resulting snapshot plus
// the payments produced by this run. It cannot fail: an investment placed
// after the period ended simply earns nothing and records no payment.
//
// Per investment:
//
//	dailyRate      = monthlyRate × 12 / 365
//	effectiveStart = max(investment date, period start, loan start)
//	days           = inclusive count from effectiveStart to period end
//	interest       = amount × dailyRate × days, rounded to cents last
//
// The day count is inclusive on both ends: investing on the period's last
// day earns exactly one day of interest.
//
// Nothing deduplicates repeated runs over the same period — each run
// appends its own payments and credits wallets again. Callers that need
// run-once semantics must track which periods they have already produced.
func (s State) ProduceInterest(period model.Period) (State, []model.InterestPayment) {
	// Each investment's accrual is independent, so iteration order does
	// not change the result; sorting just keeps the output deterministic.
	ids := make([]model.InvestmentID, 0, len(s.investments))
	for id := range s.investments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var produced []model.InterestPayment
	next := s
	for _, id := range ids {
		inv := next.investments[id]
		loan, tranche, err := next.LoanAndTranche(inv.TrancheID)
		if err != nil {
			// Unreachable: both MakeInvestment and
			// AddRecordedInvestment validate the tranche before
			// recording.
			continue
		}

		days := accrualDays(inv.Date, loan.StartDate, period)
		if days <= 0 {
			// Invested too late to earn anything this period.
			continue
		}

		dailyRate := tranche.MonthlyRate.Mul(twelve).Div(daysPerYear)
		interest := inv.Amount.Mul(dailyRate).Mul(decimal.NewFromInt(int64(days))).Round(interestScale)

		investor := next.investors[inv.InvestorID]
		investor.Wallet = investor.Wallet.Add(interest)

		payment := model.InterestPayment{
			InvestmentID: inv.ID,
			Period:       period,
			Amount:       interest,
		}
		next = next.withInvestor(investor).withPayment(payment)
		produced = append(produced, payment)
	}
	return next, produced
}

// accrualDays returns the inclusive number of days the investment earns
// interest within the period: from the latest of the investment date, the
// period start and the loan start, through the period end. Zero or
// negative means the investment was not active inside the period.
func accrualDays(invested, loanStart time.Time, period model.Period) int {
	start := invested
	if period.Start.After(start) {
		start = period.Start
	}
	if loanStart.After(start) {
		start = loanStart
	}
	return inclusiveDays(start, period.End)
}

// inclusiveDays counts whole days from a to b counting both endpoints,
// so inclusiveDays(x, x) == 1. Inputs are date-valued (midnight) times.
func inclusiveDays(a, b time.Time) int {
	a = atMidnightUTC(a)
	b = atMidnightUTC(b)
	return int(b.Sub(a).Hours()/24) + 1
}

func atMidnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
