package mailer

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/smtp"

	"go-ingenico/internal/payment"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SendFunc matches smtp.SendMail
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer handles email sending
type Mailer struct {
	config   Config
	logger   *slog.Logger
	sendMail SendFunc
}

// New creates a new Mailer
func New(config Config, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mailer{config: config, logger: logger.With("component", "mailer"), sendMail: smtp.SendMail}
}

// Send sends an email. Without an SMTP host the mail is only logged.
func (m *Mailer) Send(to string, subject string, body string) error {
	if m.config.Host == "" {
		m.logger.Info("mock mail", "to", to, "subject", subject, "length", len(body))
		return nil
	}

	auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", m.config.From, to, subject, body))

	return m.sendMail(addr, auth, m.config.From, []string{to}, msg)
}

// Publish mails the shopper a receipt once paid and a confirmation on refund
func (m *Mailer) Publish(_ context.Context, ev payment.Event) error {
	if ev.Email == "" {
		return nil
	}
	amount := ev.Amount.StringFixed(2) + " " + ev.Currency
	date := ev.OccurredAt.Format("2006-01-02 15:04")

	switch ev.Type {
	case payment.EventPaid:
		return m.Send(ev.Email, fmt.Sprintf("Payment receipt for order #%d", ev.OrderID),
			GeneratePaymentReceiptHTML(ev.OrderID, amount, date, ev.Reference))
	case payment.EventRefunded:
		return m.Send(ev.Email, fmt.Sprintf("Refund for order #%d", ev.OrderID),
			GenerateRefundHTML(ev.OrderID, amount, date))
	}
	return nil
}

// GeneratePaymentReceiptHTML generates HTML for payment receipt
func GeneratePaymentReceiptHTML(orderID int64, amount, paidDate, reference string) string {
	return fmt.Sprintf(`
		<html>
		<body>
			<h2>Payment Receipt</h2>
			<p>We have received your payment for order <strong>#%d</strong>.</p>
			<p><strong>Amount Paid:</strong> %s</p>
			<p><strong>Date:</strong> %s</p>
			<p><strong>Reference:</strong> %s</p>
			<p>Your transaction has been completed successfully.</p>
			<br>
			<p>Thank you for your order.</p>
		</body>
		</html>
	`, orderID, html.EscapeString(amount), paidDate, html.EscapeString(reference))
}

// GenerateRefundHTML generates HTML for a refund confirmation
func GenerateRefundHTML(orderID int64, amount, date string) string {
	return fmt.Sprintf(`
		<html>
		<body>
			<h2>Refund Issued</h2>
			<p>A refund of <strong>%s</strong> for order <strong>#%d</strong> was issued on %s.</p>
			<p>Depending on your bank it may take a few days to appear on your statement.</p>
		</body>
		</html>
	`, html.EscapeString(amount), orderID, date)
}
