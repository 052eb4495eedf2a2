package api

import (
	"database/sql"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/galerija/internal/imaging"
	"github.com/erazemk/galerija/internal/ledger"
	"github.com/erazemk/galerija/internal/model"
	"github.com/erazemk/galerija/internal/store"
)

// ItemsHandler handles item queries and the buy and relist operations.
type ItemsHandler struct {
	DB     *sql.DB
	Ledger *ledger.Ledger
}

type itemResponse struct {
	model.Item
	URI string `json:"uri"`
}

type buyRequest struct {
	Payment model.Amount `json:"payment"`
}

type relistRequest struct {
	Price          model.Amount `json:"price"`
	RoyaltyPayment model.Amount `json:"royalty_payment"`
}

// respond attaches metadata URIs to items. Items share the base URI, so it
// is read once.
func (h *ItemsHandler) respond(items iter.Seq[model.Item]) []itemResponse {
	base := h.Ledger.BaseURI()
	out := []itemResponse{}
	for it := range items {
		out = append(out, itemResponse{Item: it, URI: base + strconv.FormatInt(it.ID, 10)})
	}
	return out
}

// List handles GET /api/items. The status query parameter narrows the
// result to available or owned items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	var items iter.Seq[model.Item]
	switch status := r.URL.Query().Get("status"); status {
	case "":
		items = h.Ledger.Items()
	case model.ItemStatusAvailable:
		items = h.Ledger.UnsoldItems()
	case model.ItemStatusOwned:
		all := h.Ledger.Items()
		items = func(yield func(model.Item) bool) {
			for it := range all {
				if it.Status == model.ItemStatusOwned && !yield(it) {
					return
				}
			}
		}
	default:
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}
	jsonResponse(w, http.StatusOK, h.respond(items))
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.Ledger.Item(id)
	if err != nil {
		ledgerError(w, "get item", err)
		return
	}
	uri, err := h.Ledger.ItemURI(id)
	if err != nil {
		ledgerError(w, "get item", err)
		return
	}
	jsonResponse(w, http.StatusOK, itemResponse{Item: item, URI: uri})
}

// ListOwned handles GET /api/owners/{identity}/items.
func (h *ItemsHandler) ListOwned(w http.ResponseWriter, r *http.Request) {
	owner := model.Identity(r.PathValue("identity"))
	jsonResponse(w, http.StatusOK, h.respond(h.Ledger.OwnedItems(owner)))
}

// ListMine handles GET /api/me/items.
func (h *ItemsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	jsonResponse(w, http.StatusOK, h.respond(h.Ledger.OwnedItems(claims.Identity())))
}

// Buy handles POST /api/items/{id}/buy.
func (h *ItemsHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req buyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	event, err := h.Ledger.BuyItem(r.Context(), claims.Identity(), id, req.Payment)
	if err != nil {
		ledgerError(w, "buy item", err)
		return
	}

	slog.Info("item sold", "item", id, "seller", event.Seller, "buyer", event.Buyer, "price", event.Price)
	jsonResponse(w, http.StatusOK, event)
}

// Relist handles POST /api/items/{id}/relist.
func (h *ItemsHandler) Relist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req relistRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	event, err := h.Ledger.RelistItem(r.Context(), claims.Identity(), id, req.Price, req.RoyaltyPayment)
	if err != nil {
		ledgerError(w, "relist item", err)
		return
	}

	slog.Info("item relisted", "item", id, "seller", event.Seller, "price", event.Price)
	jsonResponse(w, http.StatusOK, event)
}

// GetHistory handles GET /api/items/{id}/history.
func (h *ItemsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if _, err := h.Ledger.Item(id); err != nil {
		ledgerError(w, "get item history", err)
		return
	}

	history, err := store.GetItemHistory(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item history", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item history")
		return
	}
	if history == nil {
		history = []model.Event{}
	}
	jsonResponse(w, http.StatusOK, history)
}

// UploadImage handles PUT /api/items/{id}/image. The multipart field
// "image" must hold a JPEG or PNG; it is stored downscaled as JPEG.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	if _, err := h.Ledger.Item(id); err != nil {
		ledgerError(w, "upload image", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	art, err := imaging.Process(file, imaging.MaxDimension)
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrTooLarge):
			jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			jsonError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	if err := store.SetItemImage(r.Context(), h.DB, id, art.Data, art.MIME); err != nil {
		slog.Error("failed to save image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item image uploaded", "user", claims.Username, "item", id, "width", art.Width, "height", art.Height)
	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "image uploaded",
		"width":   art.Width,
		"height":  art.Height,
	})
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
