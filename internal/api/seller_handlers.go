package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aaravsagar/agriatoo-core/internal/api/middleware"
	"github.com/aaravsagar/agriatoo-core/internal/auth"
	"github.com/aaravsagar/agriatoo-core/internal/domain/product"
	"github.com/aaravsagar/agriatoo-core/internal/stock"
)

// Product listing handlers

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		respondJSONError(w, "failed to list products", http.StatusInternalServerError)
		return
	}
	// Overlay live stock so listings reflect the cache, not the stored doc.
	for i := range products {
		if live, ok := h.stockCache.GetStock(products[i].ID); ok {
			products[i].Stock = live
		}
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondJSONError(w, "product not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, "failed to load product", http.StatusInternalServerError)
		return
	}
	if live, ok := h.stockCache.GetStock(p.ID); ok {
		p.Stock = live
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var s product.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if claims.Role != auth.RoleAdmin {
		// Sellers can only list under their own identity.
		s.SellerID = claims.UserID
	}

	created, err := h.catalog.Create(r.Context(), s)
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// Seller operational handlers

func (h *Handlers) ListLowStockAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListForSeller(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respondJSONError(w, "failed to list alerts", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []stock.Alert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (h *Handlers) DismissLowStockAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.Dismiss(r.Context(), chi.URLParam(r, "productID")); err != nil {
		respondJSONError(w, "failed to dismiss alert", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type restockRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Restock raises the seller's own stock through the same path checkout
// uses to lower it, so the alert lifecycle stays consistent.
func (h *Handlers) Restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		respondJSONError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	p, err := h.catalog.Get(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondJSONError(w, "product not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, "failed to load product", http.StatusInternalServerError)
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if claims.Role != auth.RoleAdmin && p.SellerID != claims.UserID {
		respondJSONError(w, "forbidden", http.StatusForbidden)
		return
	}

	ref := "restock-" + uuid.NewString()
	deltas := []stock.Delta{{ProductID: req.ProductID, QuantityChange: -req.Quantity}}
	if err := h.reducer.ApplyDeltas(r.Context(), ref, deltas); err != nil {
		respondJSONError(w, "failed to restock", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListSellerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForSeller(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respondJSONError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}
