package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go-ingenico/internal/models"
	"go-ingenico/internal/payment/ingenico"
)

// TrackingParam is appended to the return URL so analytics keep the original
// traffic source.
const TrackingParam = "utm_nooverride"

// StartPayment opens a hosted checkout for order and returns the shopper
// redirect. The session id is stored on the order, replacing any earlier one,
// and the cart is emptied. On failure the order is left untouched.
//
// The order lock is held for the whole call, so a reconciliation of the
// previous session never interleaves with storing the new one. Double
// submission (a shopper clicking twice) is not prevented here; each call
// opens a new session and the last one wins.
func (s *Service) StartPayment(ctx context.Context, order *models.Order, cart Cart) (*Redirect, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("%w: %w", ErrInitializationFailed, ErrGatewayDisabled)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: nil order", ErrInitializationFailed)
	}
	if !order.Status.NeedsPayment() {
		return nil, fmt.Errorf("%w: %w: order %d is %s", ErrInitializationFailed, ErrOrderNotPayable, order.ID, order.Status)
	}
	if !s.SupportsCurrency(order.Currency) {
		return nil, fmt.Errorf("%w: %w: currency %s", ErrInitializationFailed, ErrGatewayDisabled, order.Currency)
	}

	unlock := s.locks.lock(order.ID)
	defer unlock()

	// A return or webhook may have settled the order while the shopper was
	// on the pay page.
	current, err := s.store.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load order %d: %w", ErrInitializationFailed, order.ID, err)
	}
	if !current.Status.NeedsPayment() {
		return nil, fmt.Errorf("%w: %w: order %d is %s", ErrInitializationFailed, ErrOrderNotPayable, order.ID, current.Status)
	}
	*order = *current

	log := s.logger.With("order_id", order.ID)

	customerRef := strconv.FormatInt(order.ID, 10)
	if order.CustomerID != 0 {
		customerRef = strconv.FormatInt(order.CustomerID, 10)
	}

	returnURL, err := s.returnURL(order)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	req := ingenico.CheckoutRequest{
		AmountMinor:        ingenico.ToMinorUnits(order.Total),
		Currency:           strings.ToUpper(order.Currency),
		MerchantCustomerID: customerRef,
		MerchantReference:  strconv.FormatInt(order.ID, 10),
		ReturnURL:          returnURL,
	}

	checkout, err := s.api.CreateHostedCheckout(ctx, req)
	if err != nil {
		log.Error("hosted checkout creation failed", "amount", req.AmountMinor, "currency", req.Currency, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	if err := s.store.SetTransactionID(ctx, order.ID, checkout.ID); err != nil {
		log.Error("failed to save hosted checkout id", "session_id", checkout.ID, "error", err)
		return nil, fmt.Errorf("%w: save session: %w", ErrInitializationFailed, err)
	}
	order.TransactionID = checkout.ID

	if order.Status == models.OrderFailed {
		if _, err := s.store.TransitionStatus(ctx, order.ID, models.OrderFailed, models.OrderPending); err != nil {
			log.Warn("failed to reopen order for retry", "error", err)
		} else {
			order.Status = models.OrderPending
		}
	}

	if err := s.store.AddNote(ctx, order.ID, fmt.Sprintf("Ingenico hosted checkout created - ID: %s", checkout.ID)); err != nil {
		log.Warn("failed to add order note", "error", err)
	}

	if cart != nil {
		if err := cart.Empty(ctx); err != nil {
			log.Warn("failed to empty cart", "error", err)
		}
	}

	log.Info("hosted checkout created", "session_id", checkout.ID, "amount", req.AmountMinor, "currency", req.Currency)

	s.publish(ctx, Event{
		Type:      EventSessionCreated,
		OrderID:   order.ID,
		OrderKey:  order.OrderKey,
		Status:    order.Status,
		Reference: checkout.ID,
		Amount:    order.Total,
		Currency:  req.Currency,
	})

	return &Redirect{Result: "success", URL: checkout.RedirectURL, SessionID: checkout.ID}, nil
}

func (s *Service) returnURL(order *models.Order) (string, error) {
	if s.cfg.ReturnURL == "" {
		return "", errors.New("return url not configured")
	}
	u, err := url.Parse(strings.TrimRight(s.cfg.ReturnURL, "/") + "/" + strconv.FormatInt(order.ID, 10))
	if err != nil {
		return "", fmt.Errorf("invalid return url: %w", err)
	}
	q := u.Query()
	if order.OrderKey != "" {
		q.Set("key", order.OrderKey)
	}
	q.Set(TrackingParam, "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
