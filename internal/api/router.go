package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dinowallet/walletd/internal/models"
)

// RequireIdempotencyKey rejects transaction submissions lacking the
// Idempotency-Key header before the body is parsed.
func RequireIdempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") == "" {
			respondWithError(w, http.StatusBadRequest, "Idempotency-Key header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter wires all routes onto a mux router.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	transactions := r.PathPrefix("/api/transactions").Subrouter()
	transactions.Use(RequireIdempotencyKey)
	transactions.HandleFunc("/top-up", h.TransferHandler(models.TransactionTopUp, "/transactions/top-up")).Methods("POST")
	transactions.HandleFunc("/bonus", h.TransferHandler(models.TransactionBonus, "/transactions/bonus")).Methods("POST")
	transactions.HandleFunc("/spend", h.TransferHandler(models.TransactionSpend, "/transactions/spend")).Methods("POST")

	accounts := r.PathPrefix("/api/accounts").Subrouter()
	accounts.HandleFunc("/{id}/balance", h.GetAccountBalancesHandler).Methods("GET")
	accounts.HandleFunc("/{id}/ledger", h.GetAccountLedgerHandler).Methods("GET")

	return r
}
