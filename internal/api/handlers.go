package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/dinowallet/walletd/internal/models"
	"github.com/dinowallet/walletd/internal/service"
	"github.com/dinowallet/walletd/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_transfers_total",
		Help: "Transfer attempts by transaction type and outcome",
	}, []string{"type", "outcome"})
)

type Handler struct {
	store   *store.LedgerStore
	service *service.TransferService
	log     zerolog.Logger
}

func NewHandler(s *store.LedgerStore, svc *service.TransferService, log zerolog.Logger) *Handler {
	return &Handler{store: s, service: svc, log: log}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TransferHandler returns the shared handler for the three transaction
// routes; txType is the only difference between them.
func (h *Handler) TransferHandler(txType models.TransactionType, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
		defer timer.ObserveDuration()

		idempotencyKey := r.Header.Get("Idempotency-Key")

		var req models.TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpRequestsTotal.WithLabelValues("POST", endpoint, "400").Inc()
			respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
			return
		}
		if req.AccountID == uuid.Nil || req.AssetType == "" {
			httpRequestsTotal.WithLabelValues("POST", endpoint, "400").Inc()
			respondWithError(w, http.StatusBadRequest, "accountId, assetType, and amount are required")
			return
		}
		if req.Amount <= 0 {
			httpRequestsTotal.WithLabelValues("POST", endpoint, "400").Inc()
			respondWithError(w, http.StatusBadRequest, "amount must be a positive number")
			return
		}

		result, err := h.service.ExecuteTransfer(r.Context(), models.TransferParams{
			AccountID:      req.AccountID,
			AssetType:      req.AssetType,
			Amount:         req.Amount,
			Type:           txType,
			IdempotencyKey: idempotencyKey,
			Reference:      req.Reference,
		})
		if err != nil {
			h.respondTransferError(w, endpoint, txType, err)
			return
		}

		transfersTotal.WithLabelValues(string(txType), "completed").Inc()
		httpRequestsTotal.WithLabelValues("POST", endpoint, "200").Inc()
		respondWithJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) respondTransferError(w http.ResponseWriter, endpoint string, txType models.TransactionType, err error) {
	var conflict *service.IdempotencyConflictError
	switch {
	case errors.As(err, &conflict):
		transfersTotal.WithLabelValues(string(txType), "idempotency_conflict").Inc()
		httpRequestsTotal.WithLabelValues("POST", endpoint, "409").Inc()
		respondWithJSON(w, http.StatusConflict, map[string]string{
			"error":         "Idempotency key already used",
			"transactionId": conflict.TransactionID.String(),
		})
	case errors.Is(err, service.ErrInvalidInput):
		transfersTotal.WithLabelValues(string(txType), "invalid_input").Inc()
		httpRequestsTotal.WithLabelValues("POST", endpoint, "400").Inc()
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrBalanceNotFound):
		transfersTotal.WithLabelValues(string(txType), "balance_not_found").Inc()
		httpRequestsTotal.WithLabelValues("POST", endpoint, "404").Inc()
		respondWithError(w, http.StatusNotFound, "Balance not found for the given account and asset type")
	case errors.Is(err, service.ErrInsufficientFunds):
		transfersTotal.WithLabelValues(string(txType), "insufficient_funds").Inc()
		httpRequestsTotal.WithLabelValues("POST", endpoint, "422").Inc()
		respondWithError(w, http.StatusUnprocessableEntity, "Insufficient balance")
	default:
		transfersTotal.WithLabelValues(string(txType), "store_failure").Inc()
		httpRequestsTotal.WithLabelValues("POST", endpoint, "500").Inc()
		h.log.Error().Err(err).Str("endpoint", endpoint).Msg("transfer failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func (h *Handler) GetAccountBalancesHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/balance"

	accountID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", endpoint, "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	if _, err := h.store.GetAccount(r.Context(), accountID); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			httpRequestsTotal.WithLabelValues("GET", endpoint, "404").Inc()
			respondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		httpRequestsTotal.WithLabelValues("GET", endpoint, "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	balances, err := h.store.GetBalances(r.Context(), accountID)
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", endpoint, "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, models.BalancesResponse{AccountID: accountID, Balances: balances})
}

func (h *Handler) GetAccountLedgerHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/ledger"

	accountID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", endpoint, "400").Inc()
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	if _, err := h.store.GetAccount(r.Context(), accountID); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			httpRequestsTotal.WithLabelValues("GET", endpoint, "404").Inc()
			respondWithError(w, http.StatusNotFound, "Account not found")
			return
		}
		httpRequestsTotal.WithLabelValues("GET", endpoint, "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	entries, total, err := h.store.GetLedgerEntries(r.Context(), accountID, q.Get("assetType"), limit, offset)
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", endpoint, "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	respondWithJSON(w, http.StatusOK, models.LedgerPage{AccountID: accountID, Entries: entries, Total: total})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
