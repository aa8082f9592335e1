// Package core defines the connector data model and the contracts every
// provider plugin implements.
package core

import (
	"time"
)

// Auth holds the credentials for one tenant installation.
type Auth struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresAt is zero for providers whose tokens never expire
	ExpiresAt time.Time              `json:"expires_at,omitempty"`
	TokenType string                 `json:"token_type,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Expired reports whether the access token has passed its expiry. Tokens
// without an expiry never report expired.
func (a Auth) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// Metadata describes the connector handling a context.
type Metadata struct {
	Provider string                 `json:"provider"`
	Version  string                 `json:"version"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
}

// ConnectorContext carries everything a connector call needs for one tenant
// installation. Connectors treat it as immutable: operations that change
// credentials return a mutated copy and the caller persists it.
type ConnectorContext struct {
	TenantID  string                 `json:"tenant_id"`
	InstallID string                 `json:"install_id"`
	Auth      Auth                   `json:"auth"`
	Config    map[string]interface{} `json:"config,omitempty"`
	Metadata  Metadata               `json:"metadata"`
}

// WithAuth returns a copy of the context carrying new credentials.
func (c ConnectorContext) WithAuth(auth Auth) ConnectorContext {
	c.Auth = auth
	return c
}

// Clone returns a deep copy so callers can mutate maps without aliasing.
func (c ConnectorContext) Clone() ConnectorContext {
	clone := c
	clone.Config = copyMap(c.Config)
	clone.Auth.Extra = copyMap(c.Auth.Extra)
	clone.Metadata.Extra = copyMap(c.Metadata.Extra)
	return clone
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SyncResult is the outcome of one backfill or delta run. HasMore is true
// exactly when Cursor is non-empty, and RecordsProcessed equals len(Data)
// unless per-record errors cut the run short.
type SyncResult struct {
	Success          bool                     `json:"success"`
	RecordsProcessed int                      `json:"records_processed"`
	Errors           []string                 `json:"errors,omitempty"`
	Duration         time.Duration            `json:"duration"`
	Cursor           string                   `json:"cursor,omitempty"`
	HasMore          bool                     `json:"has_more"`
	Data             []map[string]interface{} `json:"data,omitempty"`
}

// WebhookEvent is the canonical inbound event record. It is created by the
// normalizer, immutable afterward, and handed to the caller for routing; the
// runtime never stores it.
type WebhookEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Source    string                 `json:"source"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// RateLimitConfig is the provider-wide admission policy.
type RateLimitConfig struct {
	RequestsPerSecond int `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// TimeoutConfig bounds individual outbound attempts.
type TimeoutConfig struct {
	Request time.Duration `json:"request" yaml:"request"`
	Connect time.Duration `json:"connect" yaml:"connect"`
}

// RetryConfig is the outbound retry policy.
type RetryConfig struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff"`
	BaseDelay         time.Duration `json:"base_delay" yaml:"base_delay"`
}

// WebhookConfig is the inbound signing policy for one provider.
type WebhookConfig struct {
	Secret    string        `json:"secret" yaml:"secret"`
	Algorithm string        `json:"algorithm" yaml:"algorithm"`
	Header    string        `json:"header" yaml:"header"`
	Tolerance time.Duration `json:"tolerance" yaml:"tolerance"`
}

// ProviderConfig is the static, provider-wide policy: one instance per
// provider, shared by every tenant, immutable after process start.
type ProviderConfig struct {
	BaseURL   string          `json:"base_url" yaml:"base_url"`
	AuthType  string          `json:"auth_type" yaml:"auth_type"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Timeouts  TimeoutConfig   `json:"timeouts" yaml:"timeouts"`
	Retry     RetryConfig     `json:"retry" yaml:"retry"`
	Webhook   WebhookConfig   `json:"webhook" yaml:"webhook"`
}

// HealthStatus reports the result of a connector health probe.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Latency   time.Duration          `json:"latency"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CheckedAt time.Time              `json:"checked_at"`
}
