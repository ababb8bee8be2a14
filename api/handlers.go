/*
handlers.go - HTTP handlers for the loyalty ledger

PURPOSE:
  Thin HTTP layer over the ledger services. Handlers decode the request,
  call exactly one service operation, and map domain errors to HTTP status
  codes. No business rules live here.

ERROR MAPPING:
  validation        -> 400
  not found         -> 404
  conflict          -> 409
  invalid operation -> 422
  storage / other   -> 500
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/loyalty-ledger/bonus"
	"github.com/warp/loyalty-ledger/ledger"
	"github.com/warp/loyalty-ledger/money"
)

// Handler wires the ledger services to HTTP routes.
type Handler struct {
	clients   *ledger.ClientService
	purchases *ledger.PurchaseEngine
	refunds   *ledger.RefundEngine
	sales     *ledger.SalesAggregator
	balances  *ledger.BalanceReader
	vins      *ledger.VINService
	logger    *zap.Logger
}

// NewHandler builds a Handler around a single Store.
func NewHandler(store ledger.Store, logger *zap.Logger) *Handler {
	return &Handler{
		clients:   ledger.NewClientService(store),
		purchases: ledger.NewPurchaseEngine(store),
		refunds:   ledger.NewRefundEngine(store),
		sales:     ledger.NewSalesAggregator(store),
		balances:  ledger.NewBalanceReader(store),
		vins:      ledger.NewVINService(store),
		logger:    logger,
	}
}

// =============================================================================
// CLIENTS
// =============================================================================

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	client, err := h.clients.CreateClient(r.Context(), req.Name, req.Phone, ledger.Role(req.Role))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(*client, decimal.Zero, nil))
}

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clients.ListClients(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	ids := make([]string, 0, len(clients))
	for _, c := range clients {
		ids = append(ids, c.ID)
	}

	// Available balances are an enrichment: if the batch read fails the
	// list still renders, with zeros, and the failure is logged.
	available, err := h.balances.AvailableBalances(r.Context(), ids)
	if err != nil {
		h.logger.Warn("available balance enrichment failed", zap.Error(err))
		available = map[string]decimal.Decimal{}
	}

	vinsByClient, err := h.vins.VINsForClients(r.Context(), ids)
	if err != nil {
		h.logger.Warn("vin enrichment failed", zap.Error(err))
		vinsByClient = map[string][]ledger.VIN{}
	}

	out := make([]ClientDTO, 0, len(clients))
	for _, c := range clients {
		out = append(out, toClientDTO(c, available[c.ID], vinsByClient[c.ID]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	client, err := h.clients.GetClient(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	available, err := h.balances.AvailableBalance(r.Context(), id)
	if err != nil {
		h.logger.Warn("available balance read failed", zap.String("client_id", id), zap.Error(err))
		available = decimal.Zero
	}
	vins, err := h.vins.VINsForClient(r.Context(), id)
	if err != nil {
		h.logger.Warn("vin listing failed", zap.String("client_id", id), zap.Error(err))
		vins = nil
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client, available, vins))
}

func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	update := ledger.ClientUpdate{Name: req.Name, Phone: req.Phone}
	if req.Role != nil {
		role := ledger.Role(*req.Role)
		update.Role = &role
	}

	client, err := h.clients.UpdateClient(r.Context(), id, update)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client, decimal.Zero, nil))
}

func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.clients.DeleteClient(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListClientPurchases(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	purchases, err := h.clients.PurchasesForClient(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]PurchaseSummaryDTO, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, PurchaseSummaryDTO{
			ID:             p.ID,
			CreatedAt:      p.CreatedAt.Format(time.RFC3339),
			PurchaseAmount: toFloat(p.PurchaseAmount),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// BALANCES
// =============================================================================

// GetClientBonus returns the client's redeemable bonus. With an optional
// purchase_amount query parameter it also returns the redeemable cap for
// that purchase, so the point of sale can bound bonus_used up front.
func (h *Handler) GetClientBonus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.clients.GetClient(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	available, err := h.balances.AvailableBalance(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dto := AvailableBalanceDTO{ClientID: id, AvailableBonus: toFloat(available)}
	if raw := r.URL.Query().Get("purchase_amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil || amount.IsNegative() {
			writeError(w, http.StatusBadRequest, "purchase_amount must be a non-negative number")
			return
		}
		dto.MaxRedeemable = toFloat(bonus.MaxRedeemable(money.Round(amount), available))
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) BatchBonusBalances(w http.ResponseWriter, r *http.Request) {
	var req BatchBalancesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	balances, err := h.balances.AvailableBalances(r.Context(), req.ClientIDs)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]AvailableBalanceDTO, 0, len(req.ClientIDs))
	for _, id := range req.ClientIDs {
		out = append(out, AvailableBalanceDTO{ClientID: id, AvailableBonus: toFloat(balances[id])})
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// PURCHASES / REFUNDS
// =============================================================================

func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	accrue := true
	if req.AccrueBonus != nil {
		accrue = *req.AccrueBonus
	}

	tx, err := h.purchases.RecordPurchase(
		r.Context(),
		req.ClientID,
		money.FromFloat(req.PurchaseAmount),
		money.FromFloat(req.BonusUsed),
		accrue,
	)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("purchase recorded",
		zap.String("transaction_id", tx.ID),
		zap.String("client_id", tx.ClientID),
		zap.String("final_paid", tx.FinalPaid.String()),
	)
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

func (h *Handler) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.refunds.Refund(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("transaction refunded",
		zap.String("refund_id", tx.ID),
		zap.String("refund_for", tx.RefundFor),
	)
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// =============================================================================
// SALES
// =============================================================================

func (h *Handler) DailySales(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.sales.DailySummaries(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]DailySummaryDTO, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, toDailySummaryDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SalesTransactions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required (YYYY-MM-DD)")
		return
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	txs, err := h.sales.TransactionsForDate(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]AnnotatedTransactionDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, AnnotatedTransactionDTO{
			TransactionDTO: toTransactionDTO(t.Transaction),
			IsRefunded:     t.IsRefunded,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// VINS
// =============================================================================

func (h *Handler) AddVIN(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")

	var req AddVINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	vin, err := h.vins.AddVIN(r.Context(), clientID, req.VIN, req.MachineLabel)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVINDTO(*vin))
}

func (h *Handler) ListVINs(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")

	vins, err := h.vins.VINsForClient(r.Context(), clientID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]VINDTO, 0, len(vins))
	for _, v := range vins {
		out = append(out, toVINDTO(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateVIN(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateVINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	vin, err := h.vins.UpdateLabel(r.Context(), id, req.MachineLabel)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVINDTO(*vin))
}

func (h *Handler) DeleteVIN(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.vins.DeleteVIN(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var ve *ledger.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case ledger.IsInvalidOperation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
