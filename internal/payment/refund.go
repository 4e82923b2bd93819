package payment

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go-ingenico/internal/models"
	"go-ingenico/internal/payment/ingenico"

	"github.com/shopspring/decimal"
)

var refundAmountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ParseRefundAmount accepts plain non-negative decimals such as "12.5".
// Letters, signs, exponents and repeated decimal points are rejected.
func ParseRefundAmount(raw string) (decimal.Decimal, error) {
	if !refundAmountPattern.MatchString(raw) {
		return decimal.Zero, fmt.Errorf("%w: invalid refund amount %q", ErrPrecondition, raw)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid refund amount %q: %v", ErrPrecondition, raw, err)
	}
	return amount, nil
}

// CanRefund reports whether refunds are permitted at all: never in test mode.
func (s *Service) CanRefund() bool {
	return !s.cfg.TestMode
}

// Refund issues a refund against the order's original payment.
//
// Checks run in order and the first failure wins: test mode, amount syntax
// and bounds, the order being paid, then the payment lookup. Every failure wraps ErrRefundFailed and
// leaves the order untouched.
func (s *Service) Refund(ctx context.Context, order *models.Order, req RefundRequest) (*RefundResult, error) {
	if !s.CanRefund() {
		return nil, fmt.Errorf("%w: %w: refunds are disabled in test mode", ErrRefundFailed, ErrPrecondition)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: nil order", ErrRefundFailed)
	}

	amount, err := ParseRefundAmount(strings.TrimSpace(req.Amount))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefundFailed, err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %w: refund amount must be greater than zero", ErrRefundFailed, ErrPrecondition)
	}
	if amount.GreaterThan(order.Total) {
		return nil, fmt.Errorf("%w: %w: amount %s exceeds order total %s", ErrRefundFailed, ErrPrecondition, amount, order.Total)
	}
	if order.Status != models.OrderPaid {
		return nil, fmt.Errorf("%w: %w: order %d is %s, only paid orders can be refunded", ErrRefundFailed, ErrPrecondition, order.ID, order.Status)
	}

	unlock := s.locks.lock(order.ID)
	defer unlock()

	log := s.logger.With("order_id", order.ID)

	p, found, err := s.api.FindPayment(ctx, strconv.FormatInt(order.ID, 10))
	if err != nil {
		log.Error("refund payment lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRefundFailed, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %w: no payment found for order %d", ErrRefundFailed, ErrPrecondition, order.ID)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = s.newKey()
	}

	refund, err := s.api.CreateRefund(ctx, ingenico.RefundRequest{
		PaymentID:         p.ID,
		AmountMinor:       ingenico.ToMinorUnits(amount),
		Currency:          strings.ToUpper(order.Currency),
		MerchantReference: strconv.FormatInt(order.ID, 10),
		IdempotencyKey:    key,
	})
	if err != nil {
		log.Error("refund rejected", "payment_id", p.ID, "amount", amount.String(), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRefundFailed, err)
	}

	note := fmt.Sprintf("Refunded %s - Refund ID: %s", amount.StringFixed(2), refund.ID)
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		note += " - Reason: " + reason
	}
	if err := s.store.AddNote(ctx, order.ID, note); err != nil {
		log.Warn("failed to add refund note", "refund_id", refund.ID, "error", err)
	}

	// A refund of the full total closes the order.
	if amount.Equal(order.Total) {
		if ok, err := s.store.TransitionStatus(ctx, order.ID, models.OrderPaid, models.OrderRefunded); err != nil {
			log.Warn("failed to mark order refunded", "error", err)
		} else if ok {
			order.Status = models.OrderRefunded
		}
	}

	log.Info("refund issued", "refund_id", refund.ID, "payment_id", p.ID, "amount", amount.String())

	ev := s.orderEvent(EventRefunded, order, refund.ID)
	ev.Amount = amount
	s.publish(ctx, ev)

	return &RefundResult{
		RefundID:       refund.ID,
		PaymentID:      p.ID,
		Amount:         amount,
		Status:         refund.Status,
		IdempotencyKey: key,
	}, nil
}
