package base

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tideway/tideway/pkg/connector/core"
	"github.com/tideway/tideway/pkg/errors"
)

// DefaultClassifier implements the stock failure heuristics. Providers with
// unusual error signalling replace it via SetClassifier.
type DefaultClassifier struct{}

// IsTokenExpired reports whether the error looks like an expired access
// token: the typed error from the HTTP layer, or the OAuth error strings
// providers commonly return.
func (DefaultClassifier) IsTokenExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsType(err, errors.ErrorTypeTokenExpired) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "token expired") ||
		strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "invalid_token")
}

// IsRateLimit reports whether the error means the provider throttled us.
func (DefaultClassifier) IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsType(err, errors.ErrorTypeRateLimit) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// RetryAfter extracts the provider's wait hint.
func (DefaultClassifier) RetryAfter(err error) time.Duration {
	return errors.RetryAfter(err)
}

// HandleError runs a failed operation's error through the classification
// predicates and returns the branch to take as data.
//
// On a detected-expired error it refreshes once and tells the caller to
// retry the same operation with the refreshed context; it never loops. A
// rate-limit error reaching this level means the HTTP layer's retries were
// exhausted, so it surfaces the wait and fails fast. Everything else is
// either retryable as-is or fatal.
func (c *Connector) HandleError(ctx context.Context, cctx core.ConnectorContext, err error) core.Classification {
	if err == nil {
		return core.Classification{Outcome: core.OutcomeRetry}
	}

	switch {
	case c.classifier.IsTokenExpired(err):
		refreshed, refreshErr := c.Refresh(ctx, cctx)
		if refreshErr != nil {
			c.logger.Warn("refresh after expired token failed",
				zap.String("tenant_id", cctx.TenantID),
				zap.Error(refreshErr))
			return core.Classification{
				Outcome: core.OutcomeFail,
				Err:     errors.Wrap(refreshErr, errors.ErrorTypeAuthorization, "token expired and refresh failed"),
			}
		}
		return core.Classification{
			Outcome: core.OutcomeRefreshAndRetry,
			Context: &refreshed,
			Err:     err,
		}

	case c.classifier.IsRateLimit(err):
		after := c.classifier.RetryAfter(err)
		if after <= 0 {
			after = errors.DefaultRetryAfter
		}
		return core.Classification{
			Outcome:    core.OutcomeRateLimited,
			RetryAfter: after,
			Err:        err,
		}

	case errors.IsRetryable(err):
		return core.Classification{Outcome: core.OutcomeRetry, Err: err}

	default:
		return core.Classification{Outcome: core.OutcomeFail, Err: err}
	}
}
