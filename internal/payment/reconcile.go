package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go-ingenico/internal/models"
	"go-ingenico/internal/payment/ingenico"
)

// Ack summarizes what a webhook delivery did. It is informational only: the
// webhook transport always answers with an acknowledgement.
type Ack struct {
	Handled bool   `json:"handled"`
	OrderID int64  `json:"orderId,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// webhookPayload accepts the charge notification, the hosted checkout
// variant and the processor's own payment event.
type webhookPayload struct {
	Data *struct {
		Charge *struct {
			ID         string `json:"id"`
			Attributes *struct {
				Status      string `json:"status"`
				ReferenceID string `json:"reference_id"`
			} `json:"attributes"`
		} `json:"charge"`
	} `json:"data"`
	HostedCheckoutID string `json:"hostedCheckoutId"`
	Type             string `json:"type"`
	Payment          *struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PaymentOutput struct {
			References struct {
				MerchantReference string `json:"merchantReference"`
			} `json:"references"`
		} `json:"paymentOutput"`
	} `json:"payment"`
}

// HandleReturn reconciles an order when the shopper lands back on the store.
// The session id saved on the order is authoritative; hostedCheckoutID from
// the redirect is only used when the order has none.
func (s *Service) HandleReturn(ctx context.Context, orderID int64, hostedCheckoutID string) (*models.Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order.Status != models.OrderPending {
		return order, nil
	}

	sessionID := order.TransactionID
	if sessionID == "" {
		sessionID = hostedCheckoutID
	} else if hostedCheckoutID != "" && hostedCheckoutID != sessionID {
		s.logger.Warn("return redirect session differs from stored session",
			"order_id", order.ID, "stored", sessionID, "redirect", hostedCheckoutID)
	}
	if sessionID == "" {
		return order, nil
	}

	status, err := s.api.GetCheckoutStatus(ctx, sessionID)
	if err != nil {
		return order, fmt.Errorf("checkout status for order %d: %w", order.ID, err)
	}
	if order, err = s.reloadForSession(ctx, order.ID, sessionID); err != nil {
		if errors.Is(err, errSessionSuperseded) {
			return order, nil
		}
		return order, err
	}

	ref := status.PaymentID
	if ref == "" {
		ref = sessionID
	}
	if _, err := s.apply(ctx, order, status.Outcome(), ref, status.Status); err != nil {
		return order, err
	}

	return s.store.GetOrder(ctx, orderID)
}

// HandleWebhook processes an asynchronous notification. It never returns an
// error: unresolvable payloads are logged and discarded.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, params url.Values) Ack {
	log := s.logger.With("source", "webhook")

	var payload webhookPayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			log.Warn("discarding unparsable webhook payload", "error", err, "bytes", len(body))
			return Ack{Reason: "unparsable payload"}
		}
	}
	if payload.HostedCheckoutID == "" && params != nil {
		payload.HostedCheckoutID = params.Get("hostedCheckoutId")
	}

	var ack Ack
	switch {
	case payload.Data != nil && payload.Data.Charge != nil:
		ack = s.handleCharge(ctx, payload)
	case payload.HostedCheckoutID != "":
		ack = s.handleHostedCheckout(ctx, payload.HostedCheckoutID)
	case payload.Payment != nil:
		ack = s.handlePaymentEvent(ctx, payload)
	default:
		ack = Ack{Reason: "payload does not identify a payment"}
	}

	if ack.Handled {
		log.Info("webhook reconciled", "order_id", ack.OrderID, "outcome", ack.Outcome)
	} else {
		log.Warn("webhook discarded", "order_id", ack.OrderID, "reason", ack.Reason)
	}
	return ack
}

func (s *Service) handleCharge(ctx context.Context, payload webhookPayload) Ack {
	charge := payload.Data.Charge
	if charge.ID == "" || charge.Attributes == nil || charge.Attributes.ReferenceID == "" {
		return Ack{Reason: "charge without id or reference_id"}
	}

	order, err := s.store.GetOrderByKey(ctx, charge.Attributes.ReferenceID)
	if err != nil {
		return Ack{Reason: fmt.Sprintf("unknown order reference %q: %v", charge.Attributes.ReferenceID, err)}
	}

	return s.reconcileByPayment(ctx, order.ID, charge.ID)
}

func (s *Service) handlePaymentEvent(ctx context.Context, payload webhookPayload) Ack {
	ref := payload.Payment.PaymentOutput.References.MerchantReference
	orderID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || payload.Payment.ID == "" {
		return Ack{Reason: fmt.Sprintf("payment event without usable merchant reference %q", ref)}
	}
	return s.reconcileByPayment(ctx, orderID, payload.Payment.ID)
}

// reconcileByPayment confirms the outcome with the processor instead of
// trusting the notification body, then applies it.
func (s *Service) reconcileByPayment(ctx context.Context, orderID int64, noteRef string) Ack {
	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return Ack{OrderID: orderID, Reason: fmt.Sprintf("load order: %v", err)}
	}
	if order.Status != models.OrderPending {
		return Ack{OrderID: order.ID, Reason: fmt.Sprintf("order already %s", order.Status)}
	}

	p, found, err := s.api.FindPayment(ctx, strconv.FormatInt(order.ID, 10))
	if err != nil {
		return Ack{OrderID: order.ID, Reason: fmt.Sprintf("payment lookup: %v", err)}
	}
	if !found {
		return Ack{OrderID: order.ID, Outcome: ingenico.OutcomePending.String(), Reason: "payment not created yet"}
	}

	return s.applyAck(ctx, order, p.Outcome(), noteRef, p.Status)
}

func (s *Service) handleHostedCheckout(ctx context.Context, sessionID string) Ack {
	order, err := s.store.GetOrderByTransactionID(ctx, sessionID)
	if err != nil {
		return Ack{Reason: fmt.Sprintf("unknown hosted checkout %q: %v", sessionID, err)}
	}

	unlock := s.locks.lock(order.ID)
	defer unlock()

	order, err = s.store.GetOrder(ctx, order.ID)
	if err != nil {
		return Ack{Reason: fmt.Sprintf("load order: %v", err)}
	}
	if order.Status != models.OrderPending {
		return Ack{OrderID: order.ID, Reason: fmt.Sprintf("order already %s", order.Status)}
	}
	if order.TransactionID != sessionID {
		return Ack{OrderID: order.ID, Reason: errSessionSuperseded.Error()}
	}

	status, err := s.api.GetCheckoutStatus(ctx, sessionID)
	if err != nil {
		return Ack{OrderID: order.ID, Reason: fmt.Sprintf("checkout status: %v", err)}
	}
	if order, err = s.reloadForSession(ctx, order.ID, sessionID); err != nil {
		return Ack{OrderID: order.ID, Reason: err.Error()}
	}

	ref := status.PaymentID
	if ref == "" {
		ref = sessionID
	}
	return s.applyAck(ctx, order, status.Outcome(), ref, status.Status)
}

var errSessionSuperseded = errors.New("hosted checkout superseded by a newer session")

// reloadForSession re-reads the order after a processor round trip. A status
// answer only applies to the session that is still stored on a pending order;
// another process may have opened a new session in the meantime.
func (s *Service) reloadForSession(ctx context.Context, orderID int64, sessionID string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return &models.Order{ID: orderID}, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order.TransactionID != "" && order.TransactionID != sessionID {
		s.logger.Warn("discarding status of superseded session",
			"order_id", orderID, "queried", sessionID, "stored", order.TransactionID)
		return order, errSessionSuperseded
	}
	return order, nil
}

func (s *Service) applyAck(ctx context.Context, order *models.Order, outcome ingenico.Outcome, ref, processorStatus string) Ack {
	changed, err := s.apply(ctx, order, outcome, ref, processorStatus)
	if err != nil {
		return Ack{OrderID: order.ID, Outcome: outcome.String(), Reason: err.Error()}
	}
	if !changed && outcome != ingenico.OutcomePending {
		return Ack{OrderID: order.ID, Outcome: outcome.String(), Reason: "order settled concurrently"}
	}
	return Ack{Handled: true, OrderID: order.ID, Outcome: outcome.String()}
}

// apply drives the order state machine. Only pending orders move; the
// compare-and-set in the store makes a second delivery a no-op, so stock is
// reduced and the note written at most once. Callers hold the order lock.
func (s *Service) apply(ctx context.Context, order *models.Order, outcome ingenico.Outcome, ref, processorStatus string) (bool, error) {
	log := s.logger.With("order_id", order.ID, "reference", ref, "processor_status", processorStatus)

	switch outcome {
	case ingenico.OutcomeSuccessful:
		ok, err := s.store.TransitionStatus(ctx, order.ID, models.OrderPending, models.OrderPaid)
		if err != nil {
			return false, fmt.Errorf("mark order %d paid: %w", order.ID, err)
		}
		if !ok {
			return false, nil
		}
		order.Status = models.OrderPaid

		if err := s.store.ReduceStock(ctx, order.ID); err != nil {
			log.Error("failed to reduce stock", "error", err)
		}
		if err := s.store.AddNote(ctx, order.ID, fmt.Sprintf("Transaction has been paid - ID: %s", ref)); err != nil {
			log.Warn("failed to add order note", "error", err)
		}
		log.Info("order paid")
		s.publish(ctx, s.orderEvent(EventPaid, order, ref))
		return true, nil

	case ingenico.OutcomeFailed:
		ok, err := s.store.TransitionStatus(ctx, order.ID, models.OrderPending, models.OrderFailed)
		if err != nil {
			return false, fmt.Errorf("mark order %d failed: %w", order.ID, err)
		}
		if !ok {
			return false, nil
		}
		order.Status = models.OrderFailed

		if err := s.store.AddNote(ctx, order.ID, fmt.Sprintf("Payment failed or was cancelled (%s) - ID: %s", processorStatus, ref)); err != nil {
			log.Warn("failed to add order note", "error", err)
		}
		log.Info("order payment failed")
		s.publish(ctx, s.orderEvent(EventFailed, order, ref))
		return true, nil

	default:
		log.Debug("payment still pending")
		return false, nil
	}
}

func (s *Service) orderEvent(typ EventType, order *models.Order, ref string) Event {
	return Event{
		Type:      typ,
		OrderID:   order.ID,
		OrderKey:  order.OrderKey,
		Status:    order.Status,
		Reference: ref,
		Amount:    order.Total,
		Currency:  order.Currency,
		Email:     order.BillingEmail,
		Phone:     order.BillingPhone,
		PushToken: order.PushToken,
	}
}
