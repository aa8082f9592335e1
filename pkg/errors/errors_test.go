package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrorTypeValidation, "bad cursor")
	assert.Equal(t, "validation: bad cursor", err.Error())

	wrapped := Wrap(stderrors.New("boom"), ErrorTypeTransient, "request failed")
	assert.Equal(t, "transient: request failed: boom", wrapped.Error())
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "ignored"))
}

func TestUnwrapAndIsType(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, ErrorTypeConnection, "dial failed")

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsType(err, ErrorTypeConnection))
	assert.False(t, IsType(err, ErrorTypeTimeout))
	assert.False(t, IsType(cause, ErrorTypeConnection), "plain errors have no type")
}

func TestIsTypeSeesThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrorTypeRateLimit, "throttled"))
	assert.True(t, IsType(err, ErrorTypeRateLimit))
}

func TestIsRetryable(t *testing.T) {
	for _, errType := range []ErrorType{ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection, ErrorTypeTransient} {
		assert.True(t, IsRetryable(New(errType, "x")), string(errType))
	}
	for _, errType := range []ErrorType{ErrorTypeValidation, ErrorTypeAuthorization, ErrorTypeTokenExpired, ErrorTypeInternal} {
		assert.False(t, IsRetryable(New(errType, "x")), string(errType))
	}
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryAfter(New(ErrorTypeTransient, "x")),
		"only rate-limit errors carry a wait hint")

	withHint := New(ErrorTypeRateLimit, "throttled").WithRetryAfter(5 * time.Second)
	assert.Equal(t, 5*time.Second, RetryAfter(withHint))

	withoutHint := New(ErrorTypeRateLimit, "throttled")
	assert.Equal(t, DefaultRetryAfter, RetryAfter(withoutHint))
}

func TestWrapPreservesRetryAfter(t *testing.T) {
	inner := New(ErrorTypeRateLimit, "throttled").WithRetryAfter(7 * time.Second)
	outer := Wrap(inner, ErrorTypeRateLimit, "call failed")
	assert.Equal(t, 7*time.Second, RetryAfter(outer))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeValidation, "bad status").
		WithDetail("status", 422).
		WithDetail("url", "https://api.example.com")

	assert.Equal(t, 422, err.Details["status"])
	assert.Equal(t, "https://api.example.com", err.Details["url"])
}

func TestStackCapture(t *testing.T) {
	err := New(ErrorTypeInternal, "x")
	require.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Stack[0].Function, "TestStackCapture")
}
