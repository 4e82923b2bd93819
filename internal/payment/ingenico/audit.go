package ingenico

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// RedactionMarker replaces credential values in audit output.
const RedactionMarker = "***"

var sensitiveFields = map[string]bool{
	"apikeyid":   true,
	"api_key_id": true,
	"api_token":  true,
	"apitoken":   true,
	"apisecret":  true,
	"api_secret": true,
	"secret":     true,
	"cardnumber": true,
	"cvv":        true,
}

// AuditRecord is one request/response exchange with credentials masked.
type AuditRecord struct {
	Operation      string
	Method         string
	Path           string
	RequestHeaders map[string]string
	RequestBody    string
	StatusCode     int
	ResponseBody   string
	Error          string
	Duration       time.Duration
	CreatedAt      time.Time
}

// AuditRecorder persists exchanges, e.g. to the order database.
type AuditRecorder interface {
	RecordExchange(ctx context.Context, rec AuditRecord) error
}

// MaskHeaders flattens h and redacts the Authorization credentials while
// keeping the scheme visible.
func MaskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		value := strings.Join(values, ", ")
		if strings.EqualFold(name, "Authorization") {
			value = maskAuthorization(value)
		}
		out[name] = value
	}
	return out
}

func maskAuthorization(value string) string {
	scheme, _, found := strings.Cut(value, " ")
	if !found {
		return RedactionMarker
	}
	return scheme + " " + AuthVersion + ":" + RedactionMarker + ":" + RedactionMarker
}

// MaskBody redacts credential-like fields of a JSON document. Non-JSON bodies
// are returned unchanged.
func MaskBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return string(body)
	}
	masked, err := json.Marshal(maskValue(doc))
	if err != nil {
		return string(body)
	}
	return string(masked)
}

func maskValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			if sensitiveFields[strings.ToLower(k)] {
				t[k] = RedactionMarker
				continue
			}
			t[k] = maskValue(child)
		}
		return t
	case []interface{}:
		for i, child := range t {
			t[i] = maskValue(child)
		}
		return t
	default:
		return v
	}
}
