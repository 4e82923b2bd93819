package fcm

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go-ingenico/internal/config"
	"go-ingenico/internal/payment"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Sender delivers a single push message. *messaging.Client implements it.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client handles FCM notifications
type Client struct {
	sender Sender
	logger *slog.Logger
}

// New creates a new FCM client. It returns nil when Firebase is not
// configured or cannot be initialized.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "fcm")

	if cfg.FirebaseCredentialsFile == "" {
		logger.Info("FirebaseCredentialsFile not set, push notifications disabled")
		return nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	if err != nil {
		logger.Warn("failed to initialize Firebase app", "error", err)
		return nil
	}
	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		logger.Warn("failed to get messaging client", "error", err)
		return nil
	}

	logger.Info("Firebase initialized")
	return NewWithSender(messagingClient, logger)
}

// NewWithSender builds a Client around an existing sender
func NewWithSender(sender Sender, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{sender: sender, logger: logger}
}

// Send sends a push notification to a specific token
func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if token == "" {
		return fmt.Errorf("FCM: empty token")
	}

	response, err := c.sender.Send(ctx, &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data:  data,
		Token: token,
	})
	if err != nil {
		return fmt.Errorf("FCM: error sending message: %w", err)
	}

	c.logger.Debug("push message sent", "response", response)
	return nil
}

// Publish pushes order outcome updates to the shopper's device
func (c *Client) Publish(ctx context.Context, ev payment.Event) error {
	if ev.PushToken == "" {
		return nil
	}

	var title, body string
	switch ev.Type {
	case payment.EventPaid:
		title = "Payment received"
		body = fmt.Sprintf("Order #%d is paid. Thank you!", ev.OrderID)
	case payment.EventFailed:
		title = "Payment not completed"
		body = fmt.Sprintf("The payment for order #%d did not go through. You can try again.", ev.OrderID)
	case payment.EventRefunded:
		title = "Refund issued"
		body = fmt.Sprintf("%s %s was refunded for order #%d.", ev.Amount.StringFixed(2), ev.Currency, ev.OrderID)
	default:
		return nil
	}

	return c.Send(ctx, ev.PushToken, title, body, map[string]string{
		"type":     string(ev.Type),
		"orderKey": ev.OrderKey,
		"status":   string(ev.Status),
	})
}
