// Package webhook provides inbound webhook signature verification and
// normalization of provider payloads into canonical events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tideway/tideway/pkg/connector/core"
)

// Result is the outcome of verifying one inbound request.
type Result struct {
	IsValid   bool
	Signature string
	Timestamp time.Time
	Body      []byte
}

var embeddedTimestamp = regexp.MustCompile(`t=(\d+)`)

// signaturePrefix strips leading algorithm/version/timestamp decorations
// so "sha256=abc", "v0=abc" and "t=123,abc" all compare as "abc".
var signaturePrefix = regexp.MustCompile(`^(sha256=|sha1=|v0=|t=\d+,)+`)

// Verifier checks inbound webhook signatures. Verification is a pure
// function of (body, headers, config) apart from the replay-window clock.
type Verifier struct {
	logger *zap.Logger
}

// NewVerifier creates a webhook verifier.
func NewVerifier(logger *zap.Logger) *Verifier {
	return &Verifier{
		logger: logger.With(zap.String("component", "webhook_verifier")),
	}
}

// Verify validates the signature over the raw body. It fails closed when no
// secret is configured, when the signature header is absent, when an embedded
// timestamp falls outside the tolerance window, and on any digest mismatch.
func (v *Verifier) Verify(body []byte, headers map[string]string, config core.WebhookConfig) Result {
	result := Result{Body: body}

	if config.Secret == "" {
		v.logger.Warn("webhook received with no signing secret configured")
		return result
	}

	received := lookupHeader(headers, config.Header)
	if received == "" {
		v.logger.Debug("signature header missing", zap.String("header", config.Header))
		return result
	}
	result.Signature = received

	if match := embeddedTimestamp.FindStringSubmatch(received); match != nil {
		secs, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return result
		}
		stamp := time.Unix(secs, 0)
		result.Timestamp = stamp
		if config.Tolerance > 0 {
			drift := time.Since(stamp)
			if drift < 0 {
				drift = -drift
			}
			if drift > config.Tolerance {
				v.logger.Warn("webhook signature outside replay tolerance",
					zap.Time("signed_at", stamp),
					zap.Duration("tolerance", config.Tolerance))
				return result
			}
		}
	}

	expected, err := computeDigest(body, config)
	if err != nil {
		v.logger.Error("failed to compute webhook digest", zap.Error(err))
		return result
	}

	stripped := signaturePrefix.ReplaceAllString(received, "")
	result.IsValid = subtle.ConstantTimeCompare([]byte(stripped), []byte(expected)) == 1
	return result
}

// computeDigest returns the hex HMAC of body under the configured algorithm.
func computeDigest(body []byte, config core.WebhookConfig) (string, error) {
	var mac hash.Hash
	switch strings.ToLower(config.Algorithm) {
	case "", "sha256":
		mac = hmac.New(sha256.New, []byte(config.Secret))
	case "sha1":
		mac = hmac.New(sha1.New, []byte(config.Secret))
	default:
		return "", errUnsupportedAlgorithm(config.Algorithm)
	}
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

type errUnsupportedAlgorithm string

func (e errUnsupportedAlgorithm) Error() string {
	return "unsupported webhook signature algorithm: " + string(e)
}

// lookupHeader finds a header value case-insensitively.
func lookupHeader(headers map[string]string, name string) string {
	if value, ok := headers[name]; ok {
		return value
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}
