package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"go-ingenico/internal/database"
	"go-ingenico/internal/middleware"
	"go-ingenico/internal/models"
	"go-ingenico/internal/payment"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const maxCallbackBody = 1 << 20

// AddCartItem adds a product to the shopper's cart
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	var req struct {
		ProductID int64 `json:"productId"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	if err := h.DB.AddCartItem(r.Context(), token, req.ProductID, req.Quantity); err != nil {
		if isNotFound(err) {
			respondError(w, http.StatusNotFound, "Product not found")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeCart(w, r, token, http.StatusCreated)
}

// GetCart returns the shopper's cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, r, mux.Vars(r)["token"], http.StatusOK)
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, token string, status int) {
	items, err := h.DB.GetCartItems(r.Context(), token)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Could not load cart")
		return
	}
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if items == nil {
		items = []models.CartItem{}
	}
	respondJSON(w, status, map[string]interface{}{
		"cartToken": token,
		"items":     items,
		"total":     total.StringFixed(2),
		"currency":  h.Config.StoreCurrency,
	})
}

// CreateOrder places a pending order from the shopper's cart
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CartToken    string `json:"cartToken"`
		CustomerID   int64  `json:"customerId"`
		BillingEmail string `json:"billingEmail"`
		BillingPhone string `json:"billingPhone"`
		PushToken    string `json:"pushToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CartToken == "" {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	order, err := h.DB.CreateOrderFromCart(r.Context(), database.NewOrder{
		CartToken:    req.CartToken,
		CustomerID:   req.CustomerID,
		Currency:     h.Config.StoreCurrency,
		BillingEmail: req.BillingEmail,
		BillingPhone: req.BillingPhone,
		PushToken:    req.PushToken,
	})
	if errors.Is(err, database.ErrEmptyCart) {
		respondError(w, http.StatusBadRequest, "Cart is empty")
		return
	}
	if err != nil {
		h.Logger.Error("create order failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Could not create order")
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// GetOrder returns an order with its items and notes. Shoppers must pass the
// order key; admins are authenticated by the middleware.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := getPathInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order id")
		return
	}
	order, err := h.DB.GetOrderDetails(r.Context(), id)
	if err != nil {
		h.orderLookupError(w, err)
		return
	}
	if !h.isAdmin(r) && !keyMatches(order, r.URL.Query().Get("key")) {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// PayOrder starts a hosted checkout and returns the shopper redirect
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := getPathInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order id")
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	// the body is optional, the key may come from the query string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Key == "" {
		req.Key = r.URL.Query().Get("key")
	}

	order, err := h.DB.GetOrder(r.Context(), id)
	if err != nil {
		h.orderLookupError(w, err)
		return
	}
	if !keyMatches(order, req.Key) {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	redirect, err := h.Payment.StartPayment(r.Context(), order, h.DB.Cart(order.CartToken))
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, payment.ErrGatewayDisabled):
			status = http.StatusServiceUnavailable
		case errors.Is(err, payment.ErrOrderNotPayable):
			status = http.StatusConflict
		}
		h.Logger.Warn("payment initialization failed", "order_id", id, "error", err)
		respondError(w, status, "Could not initialize transaction.")
		return
	}
	respondJSON(w, http.StatusOK, redirect)
}

// CheckoutReturn reconciles the order when the shopper comes back from the
// hosted payment page.
func (h *Handler) CheckoutReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := getPathInt64(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order id")
		return
	}
	q := r.URL.Query()

	order, err := h.DB.GetOrder(r.Context(), id)
	if err != nil {
		h.orderLookupError(w, err)
		return
	}
	if !keyMatches(order, q.Get("key")) {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	reconciled, err := h.Payment.HandleReturn(r.Context(), id, q.Get("hostedCheckoutId"))
	if err != nil {
		// the webhook or the sweep settles the order later
		h.Logger.Warn("return reconciliation failed", "order_id", id, "error", err)
	}
	if reconciled != nil {
		order = reconciled
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"orderId":  order.ID,
		"status":   order.Status,
		"paid":     order.Status == models.OrderPaid,
		"canRetry": order.Status.NeedsPayment(),
	})
}

// IngenicoCallback receives processor notifications. Once the body is read
// the answer is always 200 so the processor stops retrying; the outcome is
// logged by the reconciler.
func (h *Handler) IngenicoCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not read body")
		return
	}

	params := r.URL.Query()
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/x-www-form-urlencoded" {
		if form, err := url.ParseQuery(string(body)); err == nil {
			for k, v := range form {
				params[k] = append(params[k], v...)
			}
		}
		body = nil
	}

	ack := h.Payment.HandleWebhook(r.Context(), body, params)
	h.Logger.Debug("callback processed", "handled", ack.Handled, "order_id", ack.OrderID, "reason", ack.Reason)

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) orderLookupError(w http.ResponseWriter, err error) {
	if isNotFound(err) {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}
	h.Logger.Error("order lookup failed", "error", err)
	respondError(w, http.StatusInternalServerError, "Could not load order")
}

func (h *Handler) isAdmin(r *http.Request) bool {
	return !h.Config.AuthEnabled || middleware.GetUserFromContext(r.Context()) != nil
}

func keyMatches(order *models.Order, key string) bool {
	return key != "" && subtle.ConstantTimeCompare([]byte(order.OrderKey), []byte(key)) == 1
}
