package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires every route. callbackLimit throttles the processor
// callback endpoint and may be nil.
func NewRouter(h *Handler, callbackLimit func(http.Handler) http.Handler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/ws", h.ServeWS)
	router.HandleFunc("/checkout/return/{id:[0-9]+}", h.CheckoutReturn).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Admin Authentication
	api.HandleFunc("/auth/login", h.Login).Methods("POST")

	// Shopper checkout
	api.HandleFunc("/gateway", h.GetGateway).Methods("GET")
	api.HandleFunc("/carts/{token}", h.GetCart).Methods("GET")
	api.HandleFunc("/carts/{token}/items", h.AddCartItem).Methods("POST")
	api.HandleFunc("/orders", h.CreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}", h.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}/pay", h.PayOrder).Methods("POST")

	// Callbacks (Public)
	var callback http.Handler = http.HandlerFunc(h.IngenicoCallback)
	if callbackLimit != nil {
		callback = callbackLimit(callback)
	}
	api.Handle("/callbacks/ingenico", callback).Methods("POST")

	// Admin
	api.HandleFunc("/orders/{id:[0-9]+}/refund", h.RefundOrder).Methods("POST")
	api.HandleFunc("/settings", h.GetSettings).Methods("GET")
	api.HandleFunc("/settings", h.SaveSettings).Methods("PUT", "POST")
	api.HandleFunc("/audit", h.GetAuditLog).Methods("GET")

	return router
}
