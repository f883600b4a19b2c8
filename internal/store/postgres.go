package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateInvestor(ctx context.Context, inv *model.Investor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO investors (id, wallet) VALUES ($1, $2::NUMERIC)`,
		string(inv.ID), inv.Wallet.String(),
	)
	return err
}

func (s *PostgresStore) GetInvestor(ctx context.Context, id model.InvestorID) (*model.Investor, error) {
	var inv model.Investor
	var wallet string

	err := s.pool.QueryRow(ctx,
		`SELECT id, wallet::TEXT FROM investors WHERE id = $1`, string(id)).
		Scan(&inv.ID, &wallet)
	if err != nil {
		return nil, fmt.Errorf("get investor %s: %w", id, err)
	}

	inv.Wallet, _ = decimal.NewFromString(wallet)
	return &inv, nil
}

func (s *PostgresStore) ListInvestors(ctx context.Context) ([]model.Investor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, wallet::TEXT FROM investors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var investors []model.Investor
	for rows.Next() {
		var inv model.Investor
		var wallet string
		if err := rows.Scan(&inv.ID, &wallet); err != nil {
			return nil, err
		}
		inv.Wallet, _ = decimal.NewFromString(wallet)
		investors = append(investors, inv)
	}
	return investors, rows.Err()
}

func (s *PostgresStore) UpdateInvestorWallet(ctx context.Context, id model.InvestorID, wallet decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE investors SET wallet = $2::NUMERIC WHERE id = $1`,
		string(id), wallet.String(),
	)
	return err
}

func (s *PostgresStore) CreateLoan(ctx context.Context, loan *model.Loan) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO loans (id, start_date) VALUES ($1, $2)`,
		string(loan.ID), loan.StartDate,
	); err != nil {
		return err
	}

	for name, tr := range loan.Tranches {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tranches (loan_id, name, monthly_rate, available, invested)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC)`,
			string(loan.ID), string(name),
			tr.MonthlyRate.String(), tr.Available.String(), tr.Invested.String(),
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetLoan(ctx context.Context, id model.LoanID) (*model.Loan, error) {
	var loan model.Loan
	err := s.pool.QueryRow(ctx,
		`SELECT id, start_date FROM loans WHERE id = $1`, string(id)).
		Scan(&loan.ID, &loan.StartDate)
	if err != nil {
		return nil, fmt.Errorf("get loan %s: %w", id, err)
	}

	loan.Tranches, err = s.loanTranches(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (s *PostgresStore) ListLoans(ctx context.Context) ([]model.Loan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, start_date FROM loans ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		var loan model.Loan
		if err := rows.Scan(&loan.ID, &loan.StartDate); err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range loans {
		loans[i].Tranches, err = s.loanTranches(ctx, loans[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return loans, nil
}

func (s *PostgresStore) loanTranches(ctx context.Context, loanID model.LoanID) (map[model.TrancheName]model.Tranche, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, monthly_rate::TEXT, available::TEXT, invested::TEXT
		 FROM tranches WHERE loan_id = $1 ORDER BY name`, string(loanID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tranches := make(map[model.TrancheName]model.Tranche)
	for rows.Next() {
		var tr model.Tranche
		var name, rate, available, invested string
		if err := rows.Scan(&name, &rate, &available, &invested); err != nil {
			return nil, err
		}
		tr.ID = model.TrancheID{Loan: loanID, Name: model.TrancheName(name)}
		tr.MonthlyRate, _ = decimal.NewFromString(rate)
		tr.Available, _ = decimal.NewFromString(available)
		tr.Invested, _ = decimal.NewFromString(invested)
		tranches[tr.ID.Name] = tr
	}
	return tranches, rows.Err()
}

func (s *PostgresStore) UpdateTrancheBook(ctx context.Context, id model.TrancheID, available, invested decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tranches
		 SET available = $3::NUMERIC, invested = $4::NUMERIC
		 WHERE loan_id = $1 AND name = $2`,
		string(id.Loan), string(id.Name), available.String(), invested.String(),
	)
	return err
}

func (s *PostgresStore) InsertInvestment(ctx context.Context, inv *model.Investment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO investments (id, investor_id, loan_id, tranche, amount, date)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		string(inv.ID), string(inv.InvestorID),
		string(inv.TrancheID.Loan), string(inv.TrancheID.Name),
		inv.Amount.String(), inv.Date,
	)
	return err
}

func (s *PostgresStore) ListInvestments(ctx context.Context) ([]model.Investment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, investor_id, loan_id, tranche, amount::TEXT, date
		 FROM investments ORDER BY date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInvestments(rows)
}

func (s *PostgresStore) GetInvestmentsByInvestor(ctx context.Context, id model.InvestorID) ([]model.Investment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, investor_id, loan_id, tranche, amount::TEXT, date
		 FROM investments WHERE investor_id = $1 ORDER BY date, id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInvestments(rows)
}

func (s *PostgresStore) InsertInterestPayment(ctx context.Context, p *model.InterestPayment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interest_payments (investment_id, period_start, period_end, amount)
		 VALUES ($1, $2, $3, $4::NUMERIC)`,
		string(p.InvestmentID), p.Period.Start, p.Period.End, p.Amount.String(),
	)
	return err
}

func (s *PostgresStore) ListInterestPayments(ctx context.Context) ([]model.InterestPayment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT investment_id, period_start, period_end, amount::TEXT
		 FROM interest_payments ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInterestPayments(rows)
}

func (s *PostgresStore) GetInterestPaymentsByInvestment(ctx context.Context, id model.InvestmentID) ([]model.InterestPayment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT investment_id, period_start, period_end, amount::TEXT
		 FROM interest_payments WHERE investment_id = $1 ORDER BY seq`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInterestPayments(rows)
}

// pgxRows is the subset of pgx row iteration the scan helpers need.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanInvestments(rows pgxRows) ([]model.Investment, error) {
	var investments []model.Investment
	for rows.Next() {
		var inv model.Investment
		var loanID, tranche, amount string
		var date time.Time

		if err := rows.Scan(&inv.ID, &inv.InvestorID, &loanID, &tranche, &amount, &date); err != nil {
			return nil, err
		}

		inv.TrancheID = model.TrancheID{
			Loan: model.LoanID(loanID),
			Name: model.TrancheName(tranche),
		}
		inv.Amount, _ = decimal.NewFromString(amount)
		inv.Date = date

		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

func scanInterestPayments(rows pgxRows) ([]model.InterestPayment, error) {
	var payments []model.InterestPayment
	for rows.Next() {
		var p model.InterestPayment
		var amount string

		if err := rows.Scan(&p.InvestmentID, &p.Period.Start, &p.Period.End, &amount); err != nil {
			return nil, err
		}
		p.Amount, _ = decimal.NewFromString(amount)

		payments = append(payments, p)
	}
	return payments, rows.Err()
}
