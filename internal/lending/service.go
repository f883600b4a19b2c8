// Package lending provides the HTTP handlers and business logic for
// onboarding investors and loans, placing investments, and running
// interest accrual over the ledger.
//
// The Service owns the current ledger snapshot and serializes writes
// behind a mutex: the snapshot itself is immutable, so readers are always
// safe, but deciding which snapshot is "current" is single-writer here.
//
// All monetary values use shopspring/decimal — never float64 for money.
package lending

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/concentration"
	"github.com/peervest/lending-engine/internal/ledger"
	"github.com/peervest/lending-engine/internal/metrics"
	"github.com/peervest/lending-engine/internal/model"
	"github.com/peervest/lending-engine/internal/store"
	"github.com/peervest/lending-engine/internal/trancheref"
)

const dateLayout = "2006-01-02"

// Service handles ledger operations over the current snapshot.
type Service struct {
	store   store.Store
	limiter *concentration.Limiter
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts

	mu    sync.Mutex
	state ledger.State
}

// NewService creates a new lending service with an empty snapshot.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, limiter *concentration.Limiter, hub *WSHub) *Service {
	return &Service{
		store:   st,
		limiter: limiter,
		wsHub:   hub,
		state:   ledger.NewState(),
	}
}

// --- Request/Response types ---

// CreateInvestorRequest is the JSON body for investor onboarding.
type CreateInvestorRequest struct {
	ID     string          `json:"id"`
	Wallet decimal.Decimal `json:"wallet"`
}

// TrancheSpec describes one tranche in a loan creation request.
type TrancheSpec struct {
	Name        string          `json:"name"`
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
	Available   decimal.Decimal `json:"available"`
}

// CreateLoanRequest is the JSON body for loan creation.
type CreateLoanRequest struct {
	ID        string        `json:"id"`
	StartDate string        `json:"start_date"` // YYYY-MM-DD
	Tranches  []TrancheSpec `json:"tranches"`
}

// InvestRequest is the JSON body for POST /investments.
type InvestRequest struct {
	InvestorID string          `json:"investor_id"`
	Tranche    string          `json:"tranche"` // {loanID}:{name}, e.g. "London:A"
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"` // YYYY-MM-DD
}

// InvestResponse is the JSON body returned from POST /investments.
type InvestResponse struct {
	InvestmentID     string          `json:"investment_id"`
	InvestorID       string          `json:"investor_id"`
	Tranche          string          `json:"tranche"`
	Amount           decimal.Decimal `json:"amount"`
	Date             string          `json:"date"`
	WalletAfter      decimal.Decimal `json:"wallet_after"`
	TrancheAvailable decimal.Decimal `json:"tranche_available"`
	TrancheInvested  decimal.Decimal `json:"tranche_invested"`
}

// AccrualRequest is the JSON body for POST /accruals.
type AccrualRequest struct {
	PeriodStart string `json:"period_start"` // YYYY-MM-DD
	PeriodEnd   string `json:"period_end"`   // YYYY-MM-DD
}

// AccrualResponse summarizes one interest accrual run.
type AccrualResponse struct {
	PeriodStart string                  `json:"period_start"`
	PeriodEnd   string                  `json:"period_end"`
	Payments    []model.InterestPayment `json:"payments"`
	Total       decimal.Decimal         `json:"total"`
}

// PortfolioResponse aggregates one investor's holdings and earnings.
type PortfolioResponse struct {
	InvestorID     string                     `json:"investor_id"`
	Wallet         decimal.Decimal            `json:"wallet"`
	Investments    []model.Investment         `json:"investments"`
	TotalInvested  decimal.Decimal            `json:"total_invested"`
	InterestEarned decimal.Decimal            `json:"interest_earned"`
	ExposureByLoan map[string]decimal.Decimal `json:"exposure_by_loan"`
}

// --- HTTP Handlers ---

// CreateInvestor handles POST /api/v1/investors
func (s *Service) CreateInvestor(w http.ResponseWriter, r *http.Request) {
	var req CreateInvestorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}
	if req.Wallet.IsNegative() {
		writeError(w, "wallet must not be negative", http.StatusBadRequest)
		return
	}

	investor := model.Investor{ID: model.InvestorID(req.ID), Wallet: req.Wallet}

	s.mu.Lock()
	next, err := s.state.AddInvestor(investor)
	if err != nil {
		s.mu.Unlock()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := s.store.CreateInvestor(r.Context(), &investor); err != nil {
		s.mu.Unlock()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	s.state = next
	s.mu.Unlock()

	slog.Info("investor created", "id", req.ID, "wallet", req.Wallet.String())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(investor)
}

// GetInvestor handles GET /api/v1/investors/{investorID}
func (s *Service) GetInvestor(w http.ResponseWriter, r *http.Request) {
	id := model.InvestorID(chi.URLParam(r, "investorID"))

	investor, err := s.snapshot().Investor(id)
	if err != nil {
		writeError(w, "investor not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(investor)
}

// CreateLoan handles POST /api/v1/loans
func (s *Service) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}
	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		writeError(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if len(req.Tranches) == 0 {
		writeError(w, "at least one tranche is required", http.StatusBadRequest)
		return
	}

	loan := model.Loan{
		ID:        model.LoanID(req.ID),
		StartDate: startDate,
		Tranches:  make(map[model.TrancheName]model.Tranche, len(req.Tranches)),
	}
	for _, spec := range req.Tranches {
		if spec.Name == "" {
			writeError(w, "tranche name is required", http.StatusBadRequest)
			return
		}
		if spec.MonthlyRate.IsNegative() || spec.Available.IsNegative() {
			writeError(w, "tranche rate and capacity must not be negative", http.StatusBadRequest)
			return
		}
		name := model.TrancheName(spec.Name)
		if _, dup := loan.Tranches[name]; dup {
			writeError(w, "duplicate tranche name: "+spec.Name, http.StatusBadRequest)
			return
		}
		loan.Tranches[name] = model.Tranche{
			ID:          model.TrancheID{Loan: loan.ID, Name: name},
			MonthlyRate: spec.MonthlyRate,
			Available:   spec.Available,
			Invested:    decimal.Zero,
		}
	}

	s.mu.Lock()
	next, err := s.state.AddLoan(loan)
	if err != nil {
		s.mu.Unlock()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err := s.store.CreateLoan(r.Context(), &loan); err != nil {
		s.mu.Unlock()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	s.state = next
	s.mu.Unlock()

	metrics.ActiveLoans.Inc()
	slog.Info("loan created",
		"id", req.ID,
		"start_date", req.StartDate,
		"tranches", len(req.Tranches),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

// GetLoan handles GET /api/v1/loans/{loanID}
func (s *Service) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := model.LoanID(chi.URLParam(r, "loanID"))

	loan, err := s.snapshot().Loan(id)
	if err != nil {
		writeError(w, "loan not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan)
}

// ListLoans handles GET /api/v1/loans
func (s *Service) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans := s.snapshot().Loans()
	if loans == nil {
		loans = []model.Loan{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loans)
}

// MakeInvestment handles POST /api/v1/investments
// Validates, applies the investment to the ledger, persists and broadcasts.
func (s *Service) MakeInvestment(w http.ResponseWriter, r *http.Request) {
	var req InvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.InvestorID == "" {
		writeError(w, "investor_id is required", http.StatusBadRequest)
		return
	}
	trancheID, err := trancheref.Parse(req.Tranche)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Serialize snapshot replacement.
	s.mu.Lock()
	defer s.mu.Unlock()

	// --- Concentration limit check ---
	exposures := investorExposures(s.state, model.InvestorID(req.InvestorID))
	if err := s.limiter.CheckLimit(trancheID, req.Amount, exposures); err != nil {
		metrics.InvestmentRejections.WithLabelValues("concentration").Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	// --- Ledger transition ---
	investment := ledger.NewInvestment(model.InvestorID(req.InvestorID), trancheID, req.Amount, date)
	next, err := s.state.MakeInvestment(investment)
	if err != nil {
		metrics.InvestmentRejections.WithLabelValues(rejectionReason(err)).Inc()
		writeError(w, err.Error(), statusFor(err))
		return
	}

	// --- Persist post-effect rows ---
	investor, _ := next.Investor(investment.InvestorID)
	tranche, _ := next.Tranche(trancheID)

	if err := s.store.InsertInvestment(ctx, &investment); err != nil {
		writeError(w, "failed to record investment", http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateInvestorWallet(ctx, investor.ID, investor.Wallet); err != nil {
		writeError(w, "failed to update wallet", http.StatusInternalServerError)
		return
	}
	if err := s.store.UpdateTrancheBook(ctx, trancheID, tranche.Available, tranche.Invested); err != nil {
		writeError(w, "failed to update tranche", http.StatusInternalServerError)
		return
	}

	s.state = next

	metrics.InvestmentsTotal.WithLabelValues(string(trancheID.Loan)).Inc()
	slog.Info("investment accepted",
		"investment_id", string(investment.ID),
		"investor", req.InvestorID,
		"tranche", req.Tranche,
		"amount", req.Amount.String(),
		"wallet_after", investor.Wallet.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         "investment_accepted",
			InvestorID:   req.InvestorID,
			InvestmentID: string(investment.ID),
			Tranche:      req.Tranche,
			Amount:       req.Amount.String(),
		})
	}

	resp := InvestResponse{
		InvestmentID:     string(investment.ID),
		InvestorID:       req.InvestorID,
		Tranche:          req.Tranche,
		Amount:           req.Amount,
		Date:             req.Date,
		WalletAfter:      investor.Wallet,
		TrancheAvailable: tranche.Available,
		TrancheInvested:  tranche.Invested,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// RunAccrual handles POST /api/v1/accruals
// Produces interest for every investment over the requested period.
func (s *Service) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req AccrualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(dateLayout, req.PeriodStart)
	if err != nil {
		writeError(w, "period_start must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(dateLayout, req.PeriodEnd)
	if err != nil {
		writeError(w, "period_end must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	period := model.Period{Start: start, End: end}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, produced := s.state.ProduceInterest(period)

	// Persist payments and the wallets they credited.
	total := decimal.Zero
	credited := make(map[model.InvestorID]bool)
	for i := range produced {
		p := produced[i]
		if err := s.store.InsertInterestPayment(ctx, &p); err != nil {
			writeError(w, "failed to record interest payment", http.StatusInternalServerError)
			return
		}
		total = total.Add(p.Amount)

		inv, _ := next.Investment(p.InvestmentID)
		credited[inv.InvestorID] = true
	}
	for investorID := range credited {
		investor, _ := next.Investor(investorID)
		if err := s.store.UpdateInvestorWallet(ctx, investorID, investor.Wallet); err != nil {
			writeError(w, "failed to update wallet", http.StatusInternalServerError)
			return
		}
	}

	s.state = next

	metrics.InterestRunsTotal.Inc()
	metrics.InterestCredited.Add(total.InexactFloat64())
	slog.Info("interest accrued",
		"period_start", req.PeriodStart,
		"period_end", req.PeriodEnd,
		"payments", len(produced),
		"total", total.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "interest_paid",
			PeriodStart: req.PeriodStart,
			PeriodEnd:   req.PeriodEnd,
			Payments:    len(produced),
			Total:       total.String(),
		})
	}

	if produced == nil {
		produced = []model.InterestPayment{}
	}
	resp := AccrualResponse{
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Payments:    produced,
		Total:       total,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetInterestPayment handles
// GET /api/v1/investments/{investmentID}/interest?start=YYYY-MM-DD&end=YYYY-MM-DD
// Looks up the payment for that exact investment+period pair.
func (s *Service) GetInterestPayment(w http.ResponseWriter, r *http.Request) {
	id := model.InvestmentID(chi.URLParam(r, "investmentID"))

	start, err := time.Parse(dateLayout, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, "start must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, "end must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	period := model.Period{Start: start, End: end}
	amount, err := s.snapshot().InterestPaymentAmount(id, period)
	if err != nil {
		writeError(w, "no interest payment for that investment and period", http.StatusNotFound)
		return
	}

	resp := model.InterestPayment{InvestmentID: id, Period: period, Amount: amount}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListInvestorInvestments handles GET /api/v1/investors/{investorID}/investments
// Returns the investor's recorded investments from the store, oldest first.
func (s *Service) ListInvestorInvestments(w http.ResponseWriter, r *http.Request) {
	id := model.InvestorID(chi.URLParam(r, "investorID"))

	if _, err := s.snapshot().Investor(id); err != nil {
		writeError(w, "investor not found", http.StatusNotFound)
		return
	}

	investments, err := s.store.GetInvestmentsByInvestor(r.Context(), id)
	if err != nil {
		writeError(w, "failed to load investments", http.StatusInternalServerError)
		return
	}
	if investments == nil {
		investments = []model.Investment{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(investments)
}

// ListInvestmentPayments handles GET /api/v1/investments/{investmentID}/payments
// Returns the full interest payment history of one investment, oldest first.
func (s *Service) ListInvestmentPayments(w http.ResponseWriter, r *http.Request) {
	id := model.InvestmentID(chi.URLParam(r, "investmentID"))

	if _, err := s.snapshot().Investment(id); err != nil {
		writeError(w, "investment not found", http.StatusNotFound)
		return
	}

	payments, err := s.store.GetInterestPaymentsByInvestment(r.Context(), id)
	if err != nil {
		writeError(w, "failed to load interest payments", http.StatusInternalServerError)
		return
	}
	if payments == nil {
		payments = []model.InterestPayment{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payments)
}

// GetPortfolio handles GET /api/v1/portfolio/{investorID}
// Returns wallet, investments, interest earned and exposure per loan.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := model.InvestorID(chi.URLParam(r, "investorID"))
	state := s.snapshot()

	investor, err := state.Investor(id)
	if err != nil {
		writeError(w, "investor not found", http.StatusNotFound)
		return
	}

	totalInvested := decimal.Zero
	exposureByLoan := make(map[string]decimal.Decimal)
	var investments []model.Investment
	owned := make(map[model.InvestmentID]bool)

	for _, inv := range state.Investments() {
		if inv.InvestorID != id {
			continue
		}
		investments = append(investments, inv)
		owned[inv.ID] = true
		totalInvested = totalInvested.Add(inv.Amount)
		loan := string(inv.TrancheID.Loan)
		exposureByLoan[loan] = exposureByLoan[loan].Add(inv.Amount)
	}
	if investments == nil {
		investments = []model.Investment{}
	}

	interestEarned := decimal.Zero
	for _, p := range state.InterestPayments() {
		if owned[p.InvestmentID] {
			interestEarned = interestEarned.Add(p.Amount)
		}
	}

	resp := PortfolioResponse{
		InvestorID:     string(id),
		Wallet:         investor.Wallet,
		Investments:    investments,
		TotalInvested:  totalInvested,
		InterestEarned: interestEarned,
		ExposureByLoan: exposureByLoan,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

// snapshot returns the current snapshot. Snapshots are immutable, so the
// caller can read it without holding the lock.
func (s *Service) snapshot() ledger.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// investorExposures sums an investor's recorded investments per tranche.
func investorExposures(state ledger.State, id model.InvestorID) map[model.TrancheID]decimal.Decimal {
	exposures := make(map[model.TrancheID]decimal.Decimal)
	for _, inv := range state.Investments() {
		if inv.InvestorID == id {
			exposures[inv.TrancheID] = exposures[inv.TrancheID].Add(inv.Amount)
		}
	}
	return exposures
}

// statusFor maps ledger errors onto HTTP status codes: malformed input is
// 400, unknown entities are 404, business rejections are 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNonPositiveAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}

// rejectionReason labels a ledger error for the rejection counter.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNonPositiveAmount):
		return "non_positive_amount"
	case errors.Is(err, ledger.ErrInsufficientWallet):
		return "insufficient_wallet"
	case errors.Is(err, ledger.ErrTrancheFull):
		return "tranche_full"
	case errors.Is(err, ledger.ErrBeforeLoanStart):
		return "before_loan_start"
	case errors.Is(err, ledger.ErrDuplicateInvestment):
		return "duplicate"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
