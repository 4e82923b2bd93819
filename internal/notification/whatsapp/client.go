package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-ingenico/internal/config"
	"go-ingenico/internal/payment"
)

// Client handles WhatsApp notifications
type Client struct {
	providerURL string
	apiKey      string
	http        *http.Client
	logger      *slog.Logger
}

// New creates a new WhatsApp client
func New(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		providerURL: cfg.WAProviderURL,
		apiKey:      cfg.WAApiKey,
		http:        &http.Client{Timeout: 10 * time.Second},
		logger:      logger.With("component", "whatsapp"),
	}
}

// Send sends a WhatsApp message. Without an API key the message is only logged.
func (c *Client) Send(ctx context.Context, phone, message string) error {
	if c.apiKey == "" {
		c.logger.Info("mock whatsapp message", "to", phone, "length", len(message))
		return nil
	}

	data := url.Values{}
	data.Set("target", phone)
	data.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.providerURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("whatsapp API error: %d", resp.StatusCode)
	}
	return nil
}

// Publish sends the shopper a receipt or refund confirmation when the order
// carries a phone number.
func (c *Client) Publish(ctx context.Context, ev payment.Event) error {
	if ev.Phone == "" {
		return nil
	}
	var msg string
	switch ev.Type {
	case payment.EventPaid:
		msg = GeneratePaymentReceiptMessage(ev.OrderID, ev.Amount.StringFixed(2)+" "+ev.Currency, ev.Reference)
	case payment.EventRefunded:
		msg = GenerateRefundMessage(ev.OrderID, ev.Amount.StringFixed(2)+" "+ev.Currency)
	default:
		return nil
	}
	return c.Send(ctx, ev.Phone, msg)
}

// Templates for common messages

func GeneratePaymentReceiptMessage(orderID int64, amount, reference string) string {
	return fmt.Sprintf("*Payment received*\n\nThank you! Your payment of %s for order #%d has been received.\nReference: %s", amount, orderID, reference)
}

func GenerateRefundMessage(orderID int64, amount string) string {
	return fmt.Sprintf("*Refund issued*\n\nA refund of %s for order #%d is on its way. It may take a few days to appear on your statement.", amount, orderID)
}
