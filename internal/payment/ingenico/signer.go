package ingenico

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	// AuthScheme and AuthVersion prefix every Authorization header value.
	AuthScheme  = "GCS"
	AuthVersion = "v1HMAC"

	// ContentTypeJSON is sent on write requests and signed verbatim.
	ContentTypeJSON = "application/json;"

	gcsHeaderPrefix = "x-gcs-"
)

// SignedRequest is the transient, timestamp-bound result of signing one call.
type SignedRequest struct {
	Method        string
	Path          string
	ContentType   string
	Date          string
	GCSHeaders    map[string]string
	Body          []byte
	Authorization string
}

// Sign returns the Authorization header value for one request.
// contentType must be empty for GET requests; date must be an RFC 7231
// IMF-fixdate and must match the Date header that is actually sent.
func Sign(method, contentType, date, path, secret, apiKeyID string, gcsHeaders map[string]string) (string, error) {
	if method == "" || path == "" {
		return "", signingError("method and path are required")
	}
	if secret == "" || apiKeyID == "" {
		return "", signingError("api key id and secret are required")
	}
	if _, err := time.Parse(http.TimeFormat, date); err != nil {
		return "", signingError(fmt.Sprintf("date %q is not an RFC 7231 HTTP-date", date))
	}
	if method == http.MethodGet {
		contentType = ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(CanonicalString(method, contentType, date, path, gcsHeaders)))
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("%s %s:%s:%s", AuthScheme, AuthVersion, apiKeyID, digest), nil
}

// CanonicalString builds the string-to-hash:
// METHOD\nCONTENT-TYPE\nDATE\n[x-gcs-name:value\n...]PATH\n
func CanonicalString(method, contentType, date, path string, gcsHeaders map[string]string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(contentType)
	b.WriteByte('\n')
	b.WriteString(date)
	b.WriteByte('\n')

	names := make([]string, 0, len(gcsHeaders))
	canonical := make(map[string]string, len(gcsHeaders))
	for name, value := range gcsHeaders {
		lower := strings.ToLower(strings.TrimSpace(name))
		if !strings.HasPrefix(lower, gcsHeaderPrefix) {
			continue
		}
		names = append(names, lower)
		canonical[lower] = strings.Join(strings.Fields(value), " ")
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(canonical[name])
		b.WriteByte('\n')
	}

	b.WriteString(path)
	b.WriteByte('\n')
	return b.String()
}

// FormatDate renders t the way the Date header and the signature expect.
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// Apply copies the signed headers onto req. The Date header already on req,
// if any, must equal the signed date.
func (s *SignedRequest) Apply(req *http.Request) error {
	if existing := req.Header.Get("Date"); existing != "" && existing != s.Date {
		return signingError(fmt.Sprintf("Date header %q does not match signed date %q", existing, s.Date))
	}
	req.Header.Set("Date", s.Date)
	if s.ContentType != "" {
		req.Header.Set("Content-Type", s.ContentType)
	}
	for name, value := range s.GCSHeaders {
		req.Header.Set(name, value)
	}
	req.Header.Set("Authorization", s.Authorization)
	return nil
}
