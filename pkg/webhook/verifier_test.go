package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tideway/tideway/pkg/connector/core"
	"github.com/tideway/tideway/pkg/testutil"
)

func sha256Hex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func sha1Hex(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyValidSignature(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`{"id":"evt_1"}`)
	cfg := core.WebhookConfig{Secret: "s3cret", Algorithm: "sha256", Header: "X-Signature"}

	headers := map[string]string{"X-Signature": "sha256=" + sha256Hex("s3cret", body)}
	result := v.Verify(body, headers, cfg)

	assert.True(t, result.IsValid)
	assert.Equal(t, body, result.Body)
	assert.Equal(t, headers["X-Signature"], result.Signature)
}

func TestVerifyFlippedBodyCharacterInvalidates(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`{"id":"evt_1"}`)
	cfg := core.WebhookConfig{Secret: "s3cret", Algorithm: "sha256", Header: "X-Signature"}
	headers := map[string]string{"X-Signature": "sha256=" + sha256Hex("s3cret", body)}

	tampered := []byte(`{"id":"evt_2"}`)
	result := v.Verify(tampered, headers, cfg)
	assert.False(t, result.IsValid)
}

// "sha256=abc" and "abc" must verify identically when the expected digest
// is "abc"; the same holds for the v0= and t= decorations.
func TestVerifyPrefixEquivalence(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`payload`)
	cfg := core.WebhookConfig{Secret: "s3cret", Algorithm: "sha256", Header: "X-Signature"}
	digest := sha256Hex("s3cret", body)

	for _, received := range []string{
		digest,
		"sha256=" + digest,
		"v0=" + digest,
		fmt.Sprintf("t=%d,%s", time.Now().Unix(), digest),
		fmt.Sprintf("t=%d,v0=%s", time.Now().Unix(), digest),
	} {
		result := v.Verify(body, map[string]string{"X-Signature": received}, cfg)
		assert.True(t, result.IsValid, "signature %q should verify", received)
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`payload`)
	cfg := core.WebhookConfig{Secret: "s3cret", Header: "X-Signature"}
	headers := map[string]string{"X-Signature": sha256Hex("s3cret", body)}

	first := v.Verify(body, headers, cfg)
	second := v.Verify(body, headers, cfg)
	assert.Equal(t, first.IsValid, second.IsValid)
	assert.True(t, first.IsValid)
}

func TestVerifyFailsClosedWithoutSecret(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`payload`)
	cfg := core.WebhookConfig{Header: "X-Signature"}

	result := v.Verify(body, map[string]string{"X-Signature": "anything"}, cfg)
	assert.False(t, result.IsValid)
}

func TestVerifyMissingHeaderIsInvalid(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	cfg := core.WebhookConfig{Secret: "s3cret", Header: "X-Signature"}

	result := v.Verify([]byte(`payload`), map[string]string{}, cfg)
	assert.False(t, result.IsValid)
	assert.Empty(t, result.Signature)
}

func TestVerifyHeaderLookupIsCaseInsensitive(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`payload`)
	cfg := core.WebhookConfig{Secret: "s3cret", Header: "X-Signature"}

	headers := map[string]string{"x-signature": sha256Hex("s3cret", body)}
	assert.True(t, v.Verify(body, headers, cfg).IsValid)
}

func TestVerifySHA1(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`payload`)
	cfg := core.WebhookConfig{Secret: "s3cret", Algorithm: "sha1", Header: "X-Hub-Signature"}

	headers := map[string]string{"X-Hub-Signature": "sha1=" + sha1Hex("s3cret", body)}
	assert.True(t, v.Verify(body, headers, cfg).IsValid)
}

func TestVerifyUnsupportedAlgorithmIsInvalid(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`payload`)
	cfg := core.WebhookConfig{Secret: "s3cret", Algorithm: "md5", Header: "X-Signature"}

	assert.False(t, v.Verify(body, map[string]string{"X-Signature": "abc"}, cfg).IsValid)
}

func TestVerifyReplayToleranceRejectsStaleTimestamps(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`payload`)
	cfg := core.WebhookConfig{
		Secret:    "s3cret",
		Header:    "X-Signature",
		Tolerance: 5 * time.Minute,
	}
	digest := sha256Hex("s3cret", body)

	fresh := fmt.Sprintf("t=%d,%s", time.Now().Unix(), digest)
	result := v.Verify(body, map[string]string{"X-Signature": fresh}, cfg)
	assert.True(t, result.IsValid)
	assert.False(t, result.Timestamp.IsZero())

	stale := fmt.Sprintf("t=%d,%s", time.Now().Add(-time.Hour).Unix(), digest)
	result = v.Verify(body, map[string]string{"X-Signature": stale}, cfg)
	assert.False(t, result.IsValid, "timestamp outside the tolerance window must be rejected")
}

func TestVerifyTimestampIgnoredWithoutTolerance(t *testing.T) {
	v := NewVerifier(testutil.Logger(t))
	body := []byte(`payload`)
	cfg := core.WebhookConfig{Secret: "s3cret", Header: "X-Signature"}

	stale := fmt.Sprintf("t=%d,%s", time.Now().Add(-time.Hour).Unix(), sha256Hex("s3cret", body))
	assert.True(t, v.Verify(body, map[string]string{"X-Signature": stale}, cfg).IsValid)
}
