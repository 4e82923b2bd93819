package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"os"
	"time"

	"go-ingenico/internal/payment"
)

// DefaultAPIBase is the Telegram Bot API endpoint
const DefaultAPIBase = "https://api.telegram.org"

// Client represents a Telegram bot client
type Client struct {
	Token   string
	ChatID  string
	APIBase string
	http    *http.Client
}

// New creates a new Telegram client. It returns nil when the bot is not
// configured, so callers can register it unconditionally.
func New(token, chatID string) *Client {
	if token == "" || chatID == "" {
		return nil
	}
	return &Client{
		Token:   token,
		ChatID:  chatID,
		APIBase: DefaultAPIBase,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Message represents a Telegram message payload
type Message struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to Telegram
func (c *Client) SendMessage(ctx context.Context, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.APIBase, c.Token)

	jsonData, err := json.Marshal(Message{
		ChatID:    c.ChatID,
		Text:      message,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// FormatEvent renders the merchant alert for ev. Session creation is not
// announced and yields an empty string.
func FormatEvent(ev payment.Event) string {
	var emoji, title string
	switch ev.Type {
	case payment.EventPaid:
		emoji, title = "✅", "paid"
	case payment.EventFailed:
		emoji, title = "❌", "payment failed"
	case payment.EventRefunded:
		emoji, title = "↩️", "refunded"
	default:
		return ""
	}

	hostname, _ := os.Hostname()
	text := fmt.Sprintf(
		"<b>%s Order #%d %s</b>\n\n"+
			"<b>Amount:</b> %s %s\n"+
			"<b>Status:</b> %s\n"+
			"<b>Server:</b> %s\n"+
			"<b>Time:</b> %s",
		emoji, ev.OrderID, title,
		ev.Amount.StringFixed(2), html.EscapeString(ev.Currency),
		ev.Status,
		html.EscapeString(hostname),
		ev.OccurredAt.Format("2006-01-02 15:04:05"),
	)
	if ev.Reference != "" {
		text += fmt.Sprintf("\n<b>Reference:</b> <code>%s</code>", html.EscapeString(ev.Reference))
	}
	return text
}

// Publish alerts the merchant chat about settled payments and refunds
func (c *Client) Publish(ctx context.Context, ev payment.Event) error {
	text := FormatEvent(ev)
	if text == "" {
		return nil
	}
	return c.SendMessage(ctx, text)
}
