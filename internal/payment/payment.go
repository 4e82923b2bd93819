package payment

import (
	"context"
	"errors"
	"time"

	"go-ingenico/internal/models"
	"go-ingenico/internal/payment/ingenico"

	"github.com/shopspring/decimal"
)

var (
	// ErrGatewayDisabled is returned when the store currency is not supported
	// or the gateway is switched off in settings.
	ErrGatewayDisabled = errors.New("payment gateway disabled")
	// ErrInitializationFailed wraps every StartPayment failure.
	ErrInitializationFailed = errors.New("could not initialize transaction")
	// ErrRefundFailed wraps every Refund failure.
	ErrRefundFailed = errors.New("refund failed")
	// ErrOrderNotPayable marks orders that are already settled.
	ErrOrderNotPayable = errors.New("order does not need payment")
	// ErrPrecondition marks refund checks that fail before any network call.
	ErrPrecondition = errors.New("precondition failed")
)

// Gateway defines interface for the checkout host
type Gateway interface {
	StartPayment(ctx context.Context, order *models.Order, cart Cart) (*Redirect, error)
	Refund(ctx context.Context, order *models.Order, req RefundRequest) (*RefundResult, error)
	IsAvailable() bool
}

// API is the processor surface the Service drives. *ingenico.Client implements it.
type API interface {
	CreateHostedCheckout(ctx context.Context, req ingenico.CheckoutRequest) (*ingenico.HostedCheckout, error)
	FindPayment(ctx context.Context, merchantReference string) (ingenico.Payment, bool, error)
	GetCheckoutStatus(ctx context.Context, sessionID string) (*ingenico.CheckoutStatus, error)
	CreateRefund(ctx context.Context, req ingenico.RefundRequest) (*ingenico.Refund, error)
}

// OrderStore is the host order record. TransitionStatus must be a
// compare-and-set: it reports false when the order was not in status from.
type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderByTransactionID(ctx context.Context, transactionID string) (*models.Order, error)
	SetTransactionID(ctx context.Context, id int64, transactionID string) error
	TransitionStatus(ctx context.Context, id int64, from, to models.OrderStatus) (bool, error)
	AddNote(ctx context.Context, id int64, note string) error
	ReduceStock(ctx context.Context, orderID int64) error
}

// Cart is the shopper's cart, emptied once the redirect is issued.
type Cart interface {
	Empty(ctx context.Context) error
}

// EventSink receives payment lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// EventType names a payment lifecycle event
type EventType string

const (
	EventSessionCreated EventType = "payment.session_created"
	EventPaid           EventType = "payment.paid"
	EventFailed         EventType = "payment.failed"
	EventRefunded       EventType = "payment.refunded"
)

// Event is published after every order transition the core applies.
type Event struct {
	Type       EventType          `json:"type"`
	OrderID    int64              `json:"orderId"`
	OrderKey   string             `json:"orderKey"`
	Status     models.OrderStatus `json:"status"`
	Reference  string             `json:"reference,omitempty"` // session, payment, charge or refund id
	Amount     decimal.Decimal    `json:"amount"`
	Currency   string             `json:"currency"`
	Email      string             `json:"-"`
	Phone      string             `json:"-"`
	PushToken  string             `json:"-"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// Redirect is the StartPayment result handed back to the shopper.
type Redirect struct {
	Result    string `json:"result"`
	URL       string `json:"redirect"`
	SessionID string `json:"-"`
}

// RefundRequest holds data for a refund attempt
type RefundRequest struct {
	Amount         string
	Reason         string
	IdempotencyKey string
}

// RefundResult is returned after the processor accepted a refund.
type RefundResult struct {
	RefundID       string          `json:"refundId"`
	PaymentID      string          `json:"paymentId"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	IdempotencyKey string          `json:"idempotencyKey"`
}
