package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the order lifecycle state
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderPaid       OrderStatus = "paid"
	OrderFailed     OrderStatus = "failed"
	OrderRefunded   OrderStatus = "refunded"
	OrderCancelled  OrderStatus = "cancelled"
)

// NeedsPayment reports whether a shopper may (re)start a checkout.
func (s OrderStatus) NeedsPayment() bool {
	return s == OrderPending || s == OrderFailed
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderPaid, OrderFailed, OrderRefunded, OrderCancelled:
		return true
	}
	return false
}

// Order represents a store order
type Order struct {
	ID            int64           `json:"id"`
	OrderKey      string          `json:"orderKey"` // e.g., wc_order_6f1c...
	CustomerID    int64           `json:"customerId"`
	CartToken     string          `json:"cartToken,omitempty"`
	Currency      string          `json:"currency"`
	Total         decimal.Decimal `json:"total"`
	Status        OrderStatus     `json:"status"`
	TransactionID string          `json:"transactionId,omitempty"` // hosted checkout id
	PaymentMethod string          `json:"paymentMethod"`
	BillingEmail  string          `json:"billingEmail,omitempty"`
	BillingPhone  string          `json:"billingPhone,omitempty"`
	PushToken     string          `json:"-"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	Items         []OrderItem     `json:"items,omitempty"`
	Notes         []OrderNote     `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// OrderItem represents a line item in an order
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"orderId"`
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderNote is a free-text audit entry on an order
type OrderNote struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"orderId"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

// Product is a sellable item with tracked stock
type Product struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CartItem is one product line in a shopper's cart
type CartItem struct {
	CartToken string          `json:"cartToken"`
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// User represents an admin user
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Password  string     `json:"-"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// AuditEntry is a persisted gateway request/response exchange
type AuditEntry struct {
	ID           int64     `json:"id"`
	Operation    string    `json:"operation"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Headers      string    `json:"headers"`
	RequestBody  string    `json:"requestBody"`
	StatusCode   int       `json:"statusCode"`
	ResponseBody string    `json:"responseBody"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}
