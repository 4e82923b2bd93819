package ingenico

import (
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the pre-production API host.
	DefaultEndpoint = "https://world.preprod.api-ingenico.com"
	// DefaultTimeout is also the minimum accepted timeout.
	DefaultTimeout = 30 * time.Second
	// RedirectHostPrefix is prepended to partialRedirectUrl.
	RedirectHostPrefix = "https://payment."
)

// Config holds the immutable gateway settings.
type Config struct {
	Endpoint    string
	MerchantID  string
	APIKeyID    string
	APISecret   string
	TestMode    bool
	Debug       bool
	Timeout     time.Duration
	Locale      string
	CountryCode string
	Variant     string
}

// Checkout session statuses returned by GET hostedcheckouts/{id}.
const (
	CheckoutCreated        = "CREATED"
	CheckoutInProgress     = "IN_PROGRESS"
	CheckoutPaymentCreated = "PAYMENT_CREATED"
	CheckoutCancelled      = "CANCELLED"
)

// Outcome is the normalized result the reconciler acts on.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccessful
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccessful:
		return "successful"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// CheckoutRequest describes one hosted checkout attempt.
type CheckoutRequest struct {
	AmountMinor        int64
	Currency           string
	MerchantCustomerID string
	MerchantReference  string
	ReturnURL          string
}

// HostedCheckout is the session created by CreateHostedCheckout.
type HostedCheckout struct {
	ID                 string
	RedirectURL        string
	PartialRedirectURL string
	ReturnMAC          string
}

// Payment is a processor-side payment found by merchant reference.
type Payment struct {
	ID                string
	Status            string
	StatusCategory    string
	AmountMinor       int64
	Currency          string
	MerchantReference string
}

// Outcome maps the processor payment status onto the order state machine.
func (p Payment) Outcome() Outcome {
	return PaymentOutcome(p.Status)
}

// PaymentOutcome classifies a payment status. Lower-case "successful" and
// "failed" come from the charge webhook payload.
func PaymentOutcome(status string) Outcome {
	switch strings.ToUpper(status) {
	case "PAID", "CAPTURED", "CAPTURE_REQUESTED", "SUCCESSFUL":
		return OutcomeSuccessful
	case "REJECTED", "REJECTED_CAPTURE", "CANCELLED", "REVERSED", "FAILED":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// CheckoutStatus is the state of a hosted checkout session.
type CheckoutStatus struct {
	Status        string
	PaymentID     string
	PaymentStatus string
}

// Outcome maps the session status onto the order state machine.
func (s CheckoutStatus) Outcome() Outcome {
	switch s.Status {
	case CheckoutPaymentCreated:
		return OutcomeSuccessful
	case CheckoutCancelled:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// RefundRequest describes a refund against an existing payment.
type RefundRequest struct {
	PaymentID         string
	AmountMinor       int64
	Currency          string
	MerchantReference string
	IdempotencyKey    string
}

// Refund is the processor's answer to CreateRefund.
type Refund struct {
	ID     string
	Status string
}

// wire formats

type amountOfMoney struct {
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type createHostedCheckoutBody struct {
	Order struct {
		AmountOfMoney amountOfMoney `json:"amountOfMoney"`
		Customer      struct {
			BillingAddress struct {
				CountryCode string `json:"countryCode"`
			} `json:"billingAddress"`
			MerchantCustomerID string `json:"merchantCustomerId"`
		} `json:"customer"`
		References struct {
			MerchantReference string `json:"merchantReference"`
		} `json:"references"`
	} `json:"order"`
	HostedCheckoutSpecificInput struct {
		Locale         string `json:"locale"`
		ShowResultPage bool   `json:"showResultPage"`
		ReturnURL      string `json:"returnUrl"`
		Variant        string `json:"variant,omitempty"`
	} `json:"hostedCheckoutSpecificInput"`
}

type createHostedCheckoutResponse struct {
	ReturnMAC          string `json:"RETURNMAC"`
	HostedCheckoutID   string `json:"hostedCheckoutId"`
	MerchantReference  string `json:"merchantReference"`
	PartialRedirectURL string `json:"partialRedirectUrl"`
}

type paymentBody struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentOutput struct {
		AmountOfMoney amountOfMoney `json:"amountOfMoney"`
		References    struct {
			MerchantReference string `json:"merchantReference"`
		} `json:"references"`
	} `json:"paymentOutput"`
	StatusOutput struct {
		StatusCategory string `json:"statusCategory"`
	} `json:"statusOutput"`
}

type findPaymentsResponse struct {
	Payments []paymentBody `json:"payments"`
}

type getHostedCheckoutResponse struct {
	Status               string `json:"status"`
	CreatedPaymentOutput struct {
		Payment struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"payment"`
		PaymentStatusCategory string `json:"paymentStatusCategory"`
	} `json:"createdPaymentOutput"`
}

type refundBody struct {
	AmountOfMoney    amountOfMoney `json:"amountOfMoney"`
	RefundReferences struct {
		MerchantReference string `json:"merchantReference,omitempty"`
	} `json:"refundReferences"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
