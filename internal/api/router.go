package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aaravsagar/agriatoo-core/internal/api/middleware"
	"github.com/aaravsagar/agriatoo-core/internal/auth"
)

func NewRouter(h *Handlers, jwtService *auth.JWTService) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(h.log))

	r.Get("/healthz", h.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
	})

	r.Get("/products", h.ListProducts)
	r.Get("/products/{productID}", h.GetProduct)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtService))

		r.With(middleware.RequireRole(auth.RoleSeller, auth.RoleAdmin)).
			Post("/products", h.CreateProduct)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddToCart)
			r.Patch("/items/{productID}", h.UpdateCartQuantity)
			r.Delete("/items/{productID}", h.RemoveFromCart)
		})

		r.Post("/checkout", h.Checkout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderID}", h.GetOrder)
			r.Get("/{orderID}/qr", h.GetOrderQR)
			r.With(middleware.RequireRole(auth.RoleSeller, auth.RoleDelivery, auth.RoleAdmin)).
				Post("/{orderID}/status", h.SetOrderStatus)
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole(auth.RoleSeller, auth.RoleAdmin))
			r.Get("/orders", h.ListSellerOrders)
			r.Get("/alerts", h.ListLowStockAlerts)
			r.Delete("/alerts/{productID}", h.DismissLowStockAlert)
			r.Post("/restock", h.Restock)
		})
	})

	return r
}
