package ingenico

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	userAgent         = "go-ingenico/1.0"
	idempotenceHeader = "X-GCS-Idempotence-Key"
	maxResponseBytes  = 1 << 20
)

// Client sends signed requests to the Ingenico Connect API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	audit      AuditRecorder
	now        func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. Its Timeout is raised to
// the configured timeout when lower.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuditRecorder persists every exchange.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(c *Client) { c.audit = r }
}

// WithClock overrides the time source used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a new Client
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if cfg.Timeout < DefaultTimeout {
		cfg.Timeout = DefaultTimeout
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.With("component", "ingenico"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.httpClient.Timeout < cfg.Timeout {
		c.httpClient.Timeout = cfg.Timeout
	}
	return c
}

// Config returns the client's configuration.
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) merchantPath(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "", "v1", url.PathEscape(c.cfg.MerchantID))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return strings.Join(escaped, "/")
}

// CreateHostedCheckout opens a hosted checkout session and returns the
// shopper redirect URL.
func (c *Client) CreateHostedCheckout(ctx context.Context, req CheckoutRequest) (*HostedCheckout, error) {
	const op = "create_hosted_checkout"

	var body createHostedCheckoutBody
	body.Order.AmountOfMoney = amountOfMoney{Amount: req.AmountMinor, CurrencyCode: req.Currency}
	body.Order.Customer.BillingAddress.CountryCode = c.cfg.CountryCode
	body.Order.Customer.MerchantCustomerID = req.MerchantCustomerID
	body.Order.References.MerchantReference = req.MerchantReference
	body.HostedCheckoutSpecificInput.Locale = c.cfg.Locale
	body.HostedCheckoutSpecificInput.ShowResultPage = false
	body.HostedCheckoutSpecificInput.ReturnURL = req.ReturnURL
	body.HostedCheckoutSpecificInput.Variant = c.cfg.Variant

	var resp createHostedCheckoutResponse
	if _, err := c.do(ctx, op, http.MethodPost, c.merchantPath("hostedcheckouts"), body, nil, &resp); err != nil {
		return nil, err
	}

	if resp.PartialRedirectURL == "" || resp.HostedCheckoutID == "" {
		return nil, &Error{Op: op, Kind: ErrRejected, Err: errors.New("response has no partialRedirectUrl or hostedCheckoutId")}
	}

	return &HostedCheckout{
		ID:                 resp.HostedCheckoutID,
		RedirectURL:        RedirectHostPrefix + resp.PartialRedirectURL,
		PartialRedirectURL: resp.PartialRedirectURL,
		ReturnMAC:          resp.ReturnMAC,
	}, nil
}

// FindPayment looks a payment up by merchant reference. found is false when
// the processor has no payment yet, which is normal right after the redirect.
func (c *Client) FindPayment(ctx context.Context, merchantReference string) (payment Payment, found bool, err error) {
	const op = "find_payment"

	path := c.merchantPath("payments") + "?merchantReference=" + url.QueryEscape(merchantReference)

	var resp findPaymentsResponse
	if _, err := c.do(ctx, op, http.MethodGet, path, nil, nil, &resp); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return Payment{}, false, nil
		}
		return Payment{}, false, err
	}
	if len(resp.Payments) == 0 {
		return Payment{}, false, nil
	}

	// Prefer a settled payment when a reference carries several attempts.
	chosen := resp.Payments[0]
	for _, p := range resp.Payments {
		if PaymentOutcome(p.Status) == OutcomeSuccessful {
			chosen = p
			break
		}
	}
	if chosen.ID == "" {
		return Payment{}, false, &Error{Op: op, Kind: ErrRejected, Err: errors.New("payment without id")}
	}

	return Payment{
		ID:                chosen.ID,
		Status:            chosen.Status,
		StatusCategory:    chosen.StatusOutput.StatusCategory,
		AmountMinor:       chosen.PaymentOutput.AmountOfMoney.Amount,
		Currency:          chosen.PaymentOutput.AmountOfMoney.CurrencyCode,
		MerchantReference: chosen.PaymentOutput.References.MerchantReference,
	}, true, nil
}

// GetCheckoutStatus fetches the state of a hosted checkout session.
func (c *Client) GetCheckoutStatus(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	const op = "get_hosted_checkout"

	if sessionID == "" {
		return nil, &Error{Op: op, Kind: ErrRejected, Err: errors.New("empty hosted checkout id")}
	}

	var resp getHostedCheckoutResponse
	if _, err := c.do(ctx, op, http.MethodGet, c.merchantPath("hostedcheckouts", sessionID), nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "" {
		return nil, &Error{Op: op, Kind: ErrRejected, Err: errors.New("response has no status")}
	}

	return &CheckoutStatus{
		Status:        resp.Status,
		PaymentID:     resp.CreatedPaymentOutput.Payment.ID,
		PaymentStatus: resp.CreatedPaymentOutput.Payment.Status,
	}, nil
}

// CreateRefund refunds part or all of a payment. The idempotency key is sent
// as X-GCS-Idempotence-Key so a retried call cannot refund twice.
func (c *Client) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	const op = "create_refund"

	if req.PaymentID == "" {
		return nil, &Error{Op: op, Kind: ErrRejected, Err: errors.New("empty payment id")}
	}

	var body refundBody
	body.AmountOfMoney = amountOfMoney{Amount: req.AmountMinor, CurrencyCode: req.Currency}
	body.RefundReferences.MerchantReference = req.MerchantReference

	var headers map[string]string
	if req.IdempotencyKey != "" {
		headers = map[string]string{idempotenceHeader: req.IdempotencyKey}
	}

	var resp refundResponse
	if _, err := c.do(ctx, op, http.MethodPost, c.merchantPath("payments", req.PaymentID, "refund"), body, headers, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &Error{Op: op, Kind: ErrRejected, Err: errors.New("response has no refund id")}
	}

	return &Refund{ID: resp.ID, Status: resp.Status}, nil
}

// Sign builds the signed headers for one call using the client's credentials.
func (c *Client) Sign(method, path string, body []byte, gcsHeaders map[string]string) (*SignedRequest, error) {
	contentType := ContentTypeJSON
	if method == http.MethodGet {
		contentType = ""
	}
	date := FormatDate(c.now())

	auth, err := Sign(method, contentType, date, path, c.cfg.APISecret, c.cfg.APIKeyID, gcsHeaders)
	if err != nil {
		return nil, err
	}

	return &SignedRequest{
		Method:        method,
		Path:          path,
		ContentType:   contentType,
		Date:          date,
		GCSHeaders:    gcsHeaders,
		Body:          body,
		Authorization: auth,
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in interface{}, gcsHeaders map[string]string, out interface{}) (int, error) {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return 0, &Error{Op: op, Kind: ErrSigning, Err: fmt.Errorf("encode request: %w", err)}
		}
	}

	signed, err := c.Sign(method, path, payload, gcsHeaders)
	if err != nil {
		return 0, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, reader)
	if err != nil {
		return 0, &Error{Op: op, Kind: ErrSigning, Err: err}
	}
	if err := signed.Apply(request); err != nil {
		return 0, err
	}
	request.Header.Set("User-Agent", userAgent)
	request.Header.Set("Accept", "application/json")

	rec := AuditRecord{
		Operation:      op,
		Method:         method,
		Path:           path,
		RequestHeaders: MaskHeaders(request.Header),
		RequestBody:    MaskBody(payload),
		CreatedAt:      c.now().UTC(),
	}
	started := time.Now()

	resp, err := c.httpClient.Do(request)
	if err != nil {
		rec.Duration = time.Since(started)
		rec.Error = err.Error()
		c.record(ctx, rec)
		return 0, &Error{Op: op, Kind: ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	rec.Duration = time.Since(started)
	rec.StatusCode = resp.StatusCode
	rec.ResponseBody = MaskBody(body)
	if err != nil {
		rec.Error = err.Error()
		c.record(ctx, rec)
		return resp.StatusCode, &Error{Op: op, Kind: ErrTransport, StatusCode: resp.StatusCode, Err: err}
	}
	c.record(ctx, rec)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Op: op, Kind: ErrRejected, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			apiErr.Kind = ErrUnauthorized
		}
		var envelope apiErrorBody
		if json.Unmarshal(body, &envelope) == nil {
			apiErr.ErrorID = envelope.ErrorID
			for _, e := range envelope.Errors {
				apiErr.Messages = append(apiErr.Messages, strings.TrimSpace(e.Code+" "+e.Message))
			}
		}
		return resp.StatusCode, apiErr
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, &Error{Op: op, Kind: ErrRejected, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) record(ctx context.Context, rec AuditRecord) {
	if c.cfg.Debug {
		c.logger.Info("ingenico exchange",
			"op", rec.Operation,
			"method", rec.Method,
			"path", rec.Path,
			"status", rec.StatusCode,
			"duration", rec.Duration,
			"request_headers", rec.RequestHeaders,
			"request", rec.RequestBody,
			"response", rec.ResponseBody,
			"error", rec.Error,
		)
	}
	if c.audit == nil {
		return
	}
	if err := c.audit.RecordExchange(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("failed to record audit entry", "op", rec.Operation, "error", err)
	}
}
