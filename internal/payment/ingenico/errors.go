package ingenico

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSigning marks a request that could not be signed. It is a programming
	// or configuration fault and is never retried.
	ErrSigning = errors.New("ingenico: signing error")
	// ErrTransport marks network failures and timeouts.
	ErrTransport = errors.New("ingenico: gateway unavailable")
	// ErrUnauthorized marks a 401/403 answer, i.e. bad credentials.
	ErrUnauthorized = errors.New("ingenico: gateway unauthorized")
	// ErrRejected marks a response with an unexpected status or shape.
	ErrRejected = errors.New("ingenico: gateway rejected request")
)

// Error is returned by every Client operation.
type Error struct {
	Op         string
	Kind       error
	StatusCode int
	ErrorID    string
	Messages   []string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(" (" + e.Op + ")")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.ErrorID != "" {
		b.WriteString(", errorId " + e.ErrorID)
	}
	if len(e.Messages) > 0 {
		b.WriteString(": " + strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// apiErrorBody is the processor's error envelope.
type apiErrorBody struct {
	ErrorID string `json:"errorId"`
	Errors  []struct {
		Code         string `json:"code"`
		PropertyName string `json:"propertyName"`
		Message      string `json:"message"`
	} `json:"errors"`
}

func signingError(msg string) error {
	return &Error{Op: "sign", Kind: ErrSigning, Err: errors.New(msg)}
}
