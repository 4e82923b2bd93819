package ingenico

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	URI    string
	Header http.Header
	Body   map[string]interface{}
}

type fakeProcessor struct {
	t       *testing.T
	mu      sync.Mutex
	calls   []recordedCall
	handler func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeProcessor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	call := recordedCall{Method: r.Method, URI: r.URL.RequestURI(), Header: r.Header.Clone()}
	if len(raw) > 0 {
		assert.NoError(f.t, json.Unmarshal(raw, &call.Body))
	}

	// Every request must carry a signature over exactly what was sent.
	gcs := map[string]string{}
	if key := r.Header.Get(idempotenceHeader); key != "" {
		gcs[idempotenceHeader] = key
	}
	want, err := Sign(r.Method, r.Header.Get("Content-Type"), r.Header.Get("Date"), r.URL.RequestURI(), testSecret, testKeyID, gcs)
	assert.NoError(f.t, err)
	assert.Equal(f.t, want, r.Header.Get("Authorization"))

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	f.handler(w, r)
}

type memoryAudit struct {
	mu      sync.Mutex
	records []AuditRecord
}

func (m *memoryAudit) RecordExchange(_ context.Context, rec AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeProcessor, *memoryAudit) {
	t.Helper()
	fp := &fakeProcessor{t: t, handler: handler}
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)

	audit := &memoryAudit{}
	client := New(Config{
		Endpoint:    srv.URL,
		MerchantID:  "1234",
		APIKeyID:    testKeyID,
		APISecret:   testSecret,
		Locale:      "en_US",
		CountryCode: "US",
		Variant:     "100",
	}, nil,
		WithHTTPClient(srv.Client()),
		WithAuditRecorder(audit),
		WithClock(func() time.Time { return time.Date(2025, 6, 6, 10, 15, 30, 0, time.UTC) }),
	)
	return client, fp, audit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestCreateHostedCheckout(t *testing.T) {
	client, fp, audit := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{
			"RETURNMAC":          "mac-1",
			"hostedCheckoutId":   "abc123",
			"partialRedirectUrl": "x/y",
		})
	})

	hc, err := client.CreateHostedCheckout(context.Background(), CheckoutRequest{
		AmountMinor:        4999,
		Currency:           "USD",
		MerchantCustomerID: "42",
		MerchantReference:  "1001",
		ReturnURL:          "https://shop.test/checkout/return/1001?utm_nooverride=1",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", hc.ID)
	assert.Equal(t, "https://payment.x/y", hc.RedirectURL)
	assert.Equal(t, "mac-1", hc.ReturnMAC)

	require.Len(t, fp.calls, 1)
	call := fp.calls[0]
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Equal(t, "/v1/1234/hostedcheckouts", call.URI)
	assert.Equal(t, "application/json;", call.Header.Get("Content-Type"))
	assert.Equal(t, testDate, call.Header.Get("Date"))

	order := call.Body["order"].(map[string]interface{})
	money := order["amountOfMoney"].(map[string]interface{})
	assert.Equal(t, float64(4999), money["amount"])
	assert.Equal(t, "USD", money["currencyCode"])
	refs := order["references"].(map[string]interface{})
	assert.Equal(t, "1001", refs["merchantReference"])
	input := call.Body["hostedCheckoutSpecificInput"].(map[string]interface{})
	assert.Equal(t, false, input["showResultPage"])
	assert.Equal(t, "en_US", input["locale"])

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, http.StatusCreated, rec.StatusCode)
	assert.Equal(t, "GCS v1HMAC:***:***", rec.RequestHeaders["Authorization"])
	assert.NotContains(t, rec.RequestHeaders["Authorization"], testKeyID)
}

func TestCreateHostedCheckoutMissingRedirect(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"hostedCheckoutId": "abc123"})
	})

	_, err := client.CreateHostedCheckout(context.Background(), CheckoutRequest{AmountMinor: 100, Currency: "USD"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestCreateHostedCheckoutUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, status, map[string]interface{}{
				"errorId": "e-1",
				"errors":  []map[string]string{{"code": "9007", "message": "ACCESS_TO_MERCHANT_NOT_ALLOWED"}},
			})
		})

		_, err := client.CreateHostedCheckout(context.Background(), CheckoutRequest{AmountMinor: 100, Currency: "USD"})
		require.ErrorIs(t, err, ErrUnauthorized)

		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, status, apiErr.StatusCode)
		assert.Equal(t, "e-1", apiErr.ErrorID)
	}
}

func TestTransportError(t *testing.T) {
	client, _, audit := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	client.cfg.Endpoint = "http://127.0.0.1:1"

	_, err := client.CreateHostedCheckout(context.Background(), CheckoutRequest{AmountMinor: 100, Currency: "USD"})
	assert.ErrorIs(t, err, ErrTransport)
	require.Len(t, audit.records, 1)
	assert.NotEmpty(t, audit.records[0].Error)
}

func TestFindPayment(t *testing.T) {
	client, fp, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"payments": []map[string]interface{}{
				{"id": "pay-old", "status": "REJECTED"},
				{"id": "pay-1", "status": "CAPTURED", "paymentOutput": map[string]interface{}{
					"amountOfMoney": map[string]interface{}{"amount": 4999, "currencyCode": "USD"},
					"references":    map[string]interface{}{"merchantReference": "1001"},
				}},
			},
		})
	})

	p, found, err := client.FindPayment(context.Background(), "1001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "pay-1", p.ID)
	assert.Equal(t, OutcomeSuccessful, p.Outcome())
	assert.Equal(t, int64(4999), p.AmountMinor)

	require.Len(t, fp.calls, 1)
	assert.Equal(t, http.MethodGet, fp.calls[0].Method)
	assert.Equal(t, "/v1/1234/payments?merchantReference=1001", fp.calls[0].URI)
	assert.Empty(t, fp.calls[0].Header.Get("Content-Type"))
}

func TestFindPaymentNotFound(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"payments": []interface{}{}})
		})
		_, found, err := client.FindPayment(context.Background(), "1001")
		require.NoError(t, err)
		assert.False(t, found)
	})
	t.Run("404", func(t *testing.T) {
		client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"errorId": "nf"})
		})
		_, found, err := client.FindPayment(context.Background(), "1001")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestGetCheckoutStatus(t *testing.T) {
	client, fp, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "PAYMENT_CREATED",
			"createdPaymentOutput": map[string]interface{}{
				"payment": map[string]string{"id": "pay-1", "status": "PENDING_APPROVAL"},
			},
		})
	})

	st, err := client.GetCheckoutStatus(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, CheckoutPaymentCreated, st.Status)
	assert.Equal(t, "pay-1", st.PaymentID)
	assert.Equal(t, OutcomeSuccessful, st.Outcome())
	assert.Equal(t, "/v1/1234/hostedcheckouts/abc123", fp.calls[0].URI)
}

func TestCheckoutStatusOutcome(t *testing.T) {
	assert.Equal(t, OutcomePending, CheckoutStatus{Status: CheckoutCreated}.Outcome())
	assert.Equal(t, OutcomePending, CheckoutStatus{Status: CheckoutInProgress}.Outcome())
	assert.Equal(t, OutcomeFailed, CheckoutStatus{Status: CheckoutCancelled}.Outcome())
	assert.Equal(t, OutcomePending, CheckoutStatus{Status: "SOMETHING_NEW"}.Outcome())
}

func TestCreateRefundSendsIdempotencyKey(t *testing.T) {
	client, fp, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"id": "ref-1", "status": "REFUND_REQUESTED"})
	})

	refund, err := client.CreateRefund(context.Background(), RefundRequest{
		PaymentID:         "pay-1",
		AmountMinor:       1250,
		Currency:          "USD",
		MerchantReference: "1001",
		IdempotencyKey:    "idem-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", refund.ID)

	require.Len(t, fp.calls, 1)
	call := fp.calls[0]
	assert.Equal(t, "/v1/1234/payments/pay-1/refund", call.URI)
	assert.Equal(t, "idem-1", call.Header.Get(idempotenceHeader))
	money := call.Body["amountOfMoney"].(map[string]interface{})
	assert.Equal(t, float64(1250), money["amount"])
}

func TestTimeoutFloor(t *testing.T) {
	c := New(Config{Timeout: time.Second}, nil)
	assert.Equal(t, DefaultTimeout, c.Config().Timeout)
	assert.Equal(t, DefaultEndpoint, c.Config().Endpoint)

	c = New(Config{Timeout: time.Minute, Endpoint: "https://api.test/"}, nil)
	assert.Equal(t, time.Minute, c.httpClient.Timeout)
	assert.Equal(t, "https://api.test", c.Config().Endpoint)
}
