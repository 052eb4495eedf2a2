package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/galerija/internal/ledger"
	"github.com/erazemk/galerija/internal/model"
	"github.com/erazemk/galerija/internal/store"
)

// MarketHandler serves marketplace-level state: configuration, the pool,
// balances and the event log.
type MarketHandler struct {
	DB     *sql.DB
	Ledger *ledger.Ledger
}

type marketResponse struct {
	ledger.Config
	Items   int          `json:"items"`
	Unsold  int          `json:"unsold"`
	Funding model.Amount `json:"funding"`
	Pool    model.Amount `json:"pool"`
	Totals  model.Totals `json:"totals"`
}

type royaltyRequest struct {
	Fee model.Amount `json:"fee"`
}

type balanceResponse struct {
	Identity model.Identity  `json:"identity"`
	Balance  model.Amount    `json:"balance"`
	Payments []model.Payment `json:"payments"`
}

// Summary handles GET /api/market.
func (h *MarketHandler) Summary(w http.ResponseWriter, r *http.Request) {
	info, err := store.GetMarketplace(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to get marketplace", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get marketplace")
		return
	}

	unsold := 0
	for range h.Ledger.UnsoldItems() {
		unsold++
	}

	resp := marketResponse{
		Config: h.Ledger.Config(),
		Items:  h.Ledger.ItemCount(),
		Unsold: unsold,
		Pool:   h.Ledger.Pool(),
		Totals: h.Ledger.Totals(),
	}
	if info != nil {
		resp.Funding = info.Funding
	}
	jsonResponse(w, http.StatusOK, resp)
}

// UpdateRoyalty handles PUT /api/market/royalty.
func (h *MarketHandler) UpdateRoyalty(w http.ResponseWriter, r *http.Request) {
	var req royaltyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	event, err := h.Ledger.UpdateRoyaltyFee(r.Context(), claims.Identity(), req.Fee)
	if err != nil {
		ledgerError(w, "update royalty", err)
		return
	}

	slog.Info("royalty updated", "user", claims.Username, "fee", req.Fee)
	jsonResponse(w, http.StatusOK, event)
}

// Balance handles GET /api/balances/{identity}.
func (h *MarketHandler) Balance(w http.ResponseWriter, r *http.Request) {
	identity := model.Identity(r.PathValue("identity"))

	payments, err := store.ListPayments(r.Context(), h.DB, identity)
	if err != nil {
		slog.Error("failed to list payments", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list payments")
		return
	}
	if payments == nil {
		payments = []model.Payment{}
	}

	jsonResponse(w, http.StatusOK, balanceResponse{
		Identity: identity,
		Balance:  h.Ledger.Balance(identity),
		Payments: payments,
	})
}

// ListEvents handles GET /api/events. Optional query parameters: item
// (restrict to one item) and limit.
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var itemID *int64
	if s := q.Get("item"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid item id")
			return
		}
		itemID = &id
	}

	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	events, err := store.ListEvents(r.Context(), h.DB, itemID, limit)
	if err != nil {
		slog.Error("failed to list events", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	jsonResponse(w, http.StatusOK, events)
}
