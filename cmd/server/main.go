package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/peervest/lending-engine/internal/concentration"
	"github.com/peervest/lending-engine/internal/lending"
	"github.com/peervest/lending-engine/internal/metrics"
	"github.com/peervest/lending-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Concentration limits ---
	maxPerTranche := decimalEnv("MAX_PER_TRANCHE", decimal.NewFromInt(50000))
	maxPerLoan := decimalEnv("MAX_PER_LOAN", decimal.NewFromInt(100000))
	limiter := concentration.NewLimiter(maxPerTranche, maxPerLoan)

	// --- WebSocket hub ---
	wsHub := lending.NewWSHub()
	go wsHub.Run()

	// --- Lending service ---
	svc := lending.NewService(st, limiter, wsHub)
	if err := svc.Restore(context.Background()); err != nil {
		slog.Error("ledger restore failed", "err", err)
		os.Exit(1)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"lending-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time ledger events.
		r.Get("/ws", wsHub.HandleWS)

		// Investors and loans.
		r.Post("/investors", svc.CreateInvestor)
		r.Get("/investors/{investorID}", svc.GetInvestor)
		r.Get("/investors/{investorID}/investments", svc.ListInvestorInvestments)
		r.Post("/loans", svc.CreateLoan)
		r.Get("/loans", svc.ListLoans)
		r.Get("/loans/{loanID}", svc.GetLoan)

		// Investments and interest accrual.
		r.Post("/investments", svc.MakeInvestment)
		r.Get("/investments/{investmentID}/interest", svc.GetInterestPayment)
		r.Get("/investments/{investmentID}/payments", svc.ListInvestmentPayments)
		r.Post("/accruals", svc.RunAccrual)

		// Portfolio queries.
		r.Get("/portfolio/{investorID}", svc.GetPortfolio)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("lending-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down lending-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("lending-engine stopped")
}

// decimalEnv reads a decimal from the environment, falling back to def on
// absence or a malformed value.
func decimalEnv(name string, def decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		slog.Warn("invalid decimal in environment, using default",
			"var", name, "value", raw, "default", def.String())
		return def
	}
	return v
}
