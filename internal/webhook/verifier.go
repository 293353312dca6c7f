package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Additional-Code/vaultshop/internal/config"
)

// Header names of Standard Webhooks deliveries.
const (
	HeaderSignature = "webhook-signature"
	HeaderTimestamp = "webhook-timestamp"
)

var (
	ErrNotConfigured    = errors.New("webhook: secret is not configured")
	ErrMissingHeaders   = errors.New("webhook: signature headers missing")
	ErrStaleTimestamp   = errors.New("webhook: timestamp outside tolerance")
	ErrInvalidSignature = errors.New("webhook: signature mismatch")
)

// Verifier checks HMAC-SHA256 signatures over "<timestamp>.<body>".
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a Verifier from configuration. A zero tolerance
// disables the timestamp window check.
func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{
		secret:    []byte(cfg.Webhook.Secret),
		tolerance: cfg.Webhook.Tolerance,
		now:       time.Now,
	}
}

// Sign returns the "v1,<base64>" header value for body at timestamp.
func (v *Verifier) Sign(timestamp string, body []byte) string {
	return "v1," + base64.StdEncoding.EncodeToString(v.mac(timestamp, body))
}

// Verify validates a delivery. The signature header may carry several
// space separated "v1,<sig>" entries; any match is accepted.
func (v *Verifier) Verify(signatureHeader, timestamp string, body []byte) error {
	if len(v.secret) == 0 {
		return ErrNotConfigured
	}
	if signatureHeader == "" || timestamp == "" {
		return ErrMissingHeaders
	}

	if v.tolerance > 0 {
		secs, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return ErrStaleTimestamp
		}
		delta := v.now().Sub(time.Unix(secs, 0))
		if delta < 0 {
			delta = -delta
		}
		if delta > v.tolerance {
			return ErrStaleTimestamp
		}
	}

	expected := v.mac(timestamp, body)
	for _, entry := range strings.Fields(signatureHeader) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		provided, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(provided, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (v *Verifier) mac(timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(timestamp))
	h.Write([]byte{'.'})
	h.Write(body)
	return h.Sum(nil)
}
