// Package api exposes the marketplace over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aaravsagar/agriatoo-core/internal/api/middleware"
	"github.com/aaravsagar/agriatoo-core/internal/auth"
	"github.com/aaravsagar/agriatoo-core/internal/checkout"
	"github.com/aaravsagar/agriatoo-core/internal/domain/cart"
	"github.com/aaravsagar/agriatoo-core/internal/domain/order"
	"github.com/aaravsagar/agriatoo-core/internal/domain/product"
	"github.com/aaravsagar/agriatoo-core/internal/payment"
	"github.com/aaravsagar/agriatoo-core/internal/stock"
)

type Handlers struct {
	users      *auth.UserService
	jwtService *auth.JWTService
	catalog    *product.Catalog
	carts      *cart.Registry
	stockCache *stock.Cache
	alerts     *stock.AlertService
	reducer    *stock.Reducer
	orders     *order.Service
	checkout   *checkout.Orchestrator
	log        *slog.Logger
}

func NewHandlers(
	users *auth.UserService,
	jwtService *auth.JWTService,
	catalog *product.Catalog,
	carts *cart.Registry,
	stockCache *stock.Cache,
	alerts *stock.AlertService,
	reducer *stock.Reducer,
	orders *order.Service,
	orchestrator *checkout.Orchestrator,
	log *slog.Logger,
) *Handlers {
	return &Handlers{
		users:      users,
		jwtService: jwtService,
		catalog:    catalog,
		carts:      carts,
		stockCache: stockCache,
		alerts:     alerts,
		reducer:    reducer,
		orders:     orders,
		checkout:   orchestrator,
		log:        log,
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Cart handlers

type cartResponse struct {
	Entries     []cart.Entry `json:"entries"`
	TotalAmount float64      `json:"total_amount"`
	TotalItems  int          `json:"total_items"`
}

func (h *Handlers) buyerCart(w http.ResponseWriter, r *http.Request) (*cart.Manager, bool) {
	m, err := h.carts.Cart(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.log.Error("failed to load cart", slog.Any("error", err))
		respondJSONError(w, "failed to load cart", http.StatusInternalServerError)
		return nil, false
	}
	return m, true
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	m, ok := h.buyerCart(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, cartResponse{
		Entries:     m.Entries(),
		TotalAmount: m.TotalAmount(),
		TotalItems:  m.TotalItems(),
	})
}

type addToCartRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
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

	m, ok := h.buyerCart(w, r)
	if !ok {
		return
	}
	if err := m.AddToCart(r.Context(), *p, req.Quantity); err != nil {
		switch {
		case errors.Is(err, cart.ErrOutOfStock):
			respondJSONError(w, "product is out of stock", http.StatusConflict)
		case errors.Is(err, cart.ErrInsufficientStock):
			respondJSONError(w, "not enough stock for requested quantity", http.StatusConflict)
		default:
			respondJSONError(w, "failed to update cart", http.StatusInternalServerError)
		}
		return
	}
	h.GetCart(w, r)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handlers) UpdateCartQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, ok := h.buyerCart(w, r)
	if !ok {
		return
	}
	if err := m.UpdateQuantity(r.Context(), productID, req.Quantity); err != nil {
		respondJSONError(w, "failed to update cart", http.StatusInternalServerError)
		return
	}
	h.GetCart(w, r)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	m, ok := h.buyerCart(w, r)
	if !ok {
		return
	}
	if err := m.RemoveFromCart(r.Context(), productID); err != nil {
		respondJSONError(w, "failed to update cart", http.StatusInternalServerError)
		return
	}
	h.GetCart(w, r)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	m, ok := h.buyerCart(w, r)
	if !ok {
		return
	}
	if err := m.Clear(r.Context()); err != nil {
		respondJSONError(w, "failed to clear cart", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout handlers

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var details checkout.CustomerDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, ok := h.buyerCart(w, r)
	if !ok {
		return
	}

	result, err := h.checkout.Checkout(r.Context(), middleware.UserID(r.Context()), m, details)
	switch {
	case err == nil:
		respondJSON(w, http.StatusCreated, result)
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidDetails),
		errors.Is(err, checkout.ErrInvalidPincode),
		errors.Is(err, checkout.ErrNoDeliveryInfo),
		errors.Is(err, checkout.ErrNotDeliverable):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, checkout.ErrStockUnavailable):
		respondJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, checkout.ErrCheckoutIncomplete):
		// Some sellers' orders may stand; the outcomes tell the caller which.
		respondJSON(w, http.StatusMultiStatus, result)
	default:
		h.log.Error("checkout failed", slog.Any("error", err))
		respondJSONError(w, "checkout failed", http.StatusInternalServerError)
	}
}

// Order handlers

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOrderAuthorized(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrderQR(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOrderAuthorized(w, r)
	if !ok {
		return
	}

	png, err := payment.QRPNG(o.QRPayload, 256)
	if err != nil {
		respondJSONError(w, "failed to render QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type setStatusRequest struct {
	Status order.Status `json:"status"`
}

func (h *Handlers) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.orders.SetStatus(r.Context(), orderID, req.Status)
	switch {
	case err == nil:
		o, getErr := h.orders.Get(r.Context(), orderID)
		if getErr != nil {
			respondJSONError(w, "failed to load order", http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, o)
	case errors.Is(err, order.ErrOrderNotFound):
		respondJSONError(w, "order not found", http.StatusNotFound)
	case errors.Is(err, order.ErrUnknownStatus), errors.Is(err, order.ErrInvalidTransition):
		respondJSONError(w, err.Error(), http.StatusConflict)
	default:
		respondJSONError(w, "failed to update order", http.StatusInternalServerError)
	}
}

func (h *Handlers) loadOrderAuthorized(w http.ResponseWriter, r *http.Request) (*order.Order, bool) {
	orderID := chi.URLParam(r, "orderID")

	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondJSONError(w, "order not found", http.StatusNotFound)
		} else {
			respondJSONError(w, "failed to load order", http.StatusInternalServerError)
		}
		return nil, false
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	switch {
	case claims.Role == auth.RoleAdmin || claims.Role == auth.RoleDelivery:
	case claims.UserID == o.BuyerID || claims.UserID == o.SellerID:
	default:
		respondJSONError(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return o, true
}

// Health

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
