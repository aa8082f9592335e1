package core

import (
	"context"
	"time"
)

// Connector is the lifecycle contract every provider plugin implements.
// Operations never mutate the passed context; credential changes come back
// in the returned copy.
type Connector interface {
	// Authorize exchanges a one-time authorization code for credentials
	Authorize(ctx context.Context, cctx ConnectorContext, code string) (ConnectorContext, error)

	// Refresh exchanges the refresh token for new credentials. Providers
	// whose tokens never expire return the context unchanged.
	Refresh(ctx context.Context, cctx ConnectorContext) (ConnectorContext, error)

	// Backfill runs a full historical sync, resumable via cursor
	Backfill(ctx context.Context, cctx ConnectorContext, cursor string) (*SyncResult, error)

	// Delta runs an incremental sync since the last run
	Delta(ctx context.Context, cctx ConnectorContext, cursor string) (*SyncResult, error)

	// HandleWebhook verifies and normalizes one inbound webhook request
	HandleWebhook(ctx context.Context, cctx ConnectorContext, headers map[string]string, body []byte) ([]WebhookEvent, error)

	// HealthCheck probes the provider with the tenant's credentials
	HealthCheck(ctx context.Context, cctx ConnectorContext) (*HealthStatus, error)

	// ConfigSchema describes the tenant configuration the connector accepts
	ConfigSchema() *ConfigSchema

	// ValidateConfig checks a tenant configuration against the schema
	ValidateConfig(config map[string]interface{}) error
}

// ErrorClassifier supplies the provider-specific failure heuristics the
// generic error handler branches on. The base connector ships defaults;
// providers override them when their APIs signal differently.
type ErrorClassifier interface {
	// IsTokenExpired reports whether err means the access token expired
	IsTokenExpired(err error) bool

	// IsRateLimit reports whether err means the provider throttled us
	IsRateLimit(err error) bool

	// RetryAfter extracts the provider's wait hint, zero if none applies
	RetryAfter(err error) time.Duration
}

// Outcome tells the caller what to do with a failed operation. It is data
// returned from classification, never a sentinel error to catch.
type Outcome int

const (
	// OutcomeFail means the error is fatal for this call
	OutcomeFail Outcome = iota
	// OutcomeRetry means the same operation may be retried as-is
	OutcomeRetry
	// OutcomeRefreshAndRetry means credentials were refreshed and the
	// caller should retry the same operation exactly once
	OutcomeRefreshAndRetry
	// OutcomeRateLimited means the caller should wait RetryAfter first
	OutcomeRateLimited
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeRetry:
		return "retry"
	case OutcomeRefreshAndRetry:
		return "refresh_and_retry"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "fail"
	}
}

// Classification is the result of running an error through the generic
// handler: the branch to take, the wait hint for throttled calls, the
// refreshed context when a refresh happened, and the underlying error.
type Classification struct {
	Outcome    Outcome
	RetryAfter time.Duration
	Context    *ConnectorContext
	Err        error
}

// ConfigSchema describes the configuration fields a connector accepts.
type ConfigSchema struct {
	Fields []ConfigField `json:"fields"`
}

// ConfigField is one entry in a connector's configuration schema.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Secret      bool   `json:"secret,omitempty"`
}

// Field returns the schema entry with the given name, nil if absent.
func (s *ConfigSchema) Field(name string) *ConfigField {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// JobDescriptor identifies the work a scheduled job should perform.
type JobDescriptor struct {
	Provider  string                 `json:"provider"`
	TenantID  string                 `json:"tenant_id"`
	InstallID string                 `json:"install_id"`
	Cursor    string                 `json:"cursor,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// QueueStats is a snapshot of the external job queue.
type QueueStats struct {
	Pending int `json:"pending"`
	Running int `json:"running"`
	Failed  int `json:"failed"`
}

// JobScheduler is the external system that decides when connector work
// runs. The runtime only schedules through it and consumes its stats.
type JobScheduler interface {
	ScheduleBackfillJob(ctx context.Context, job JobDescriptor) (string, error)
	ScheduleDeltaJob(ctx context.Context, job JobDescriptor) (string, error)
	ScheduleWebhookJob(ctx context.Context, job JobDescriptor) (string, error)
	ScheduleHealthJob(ctx context.Context, job JobDescriptor) (string, error)
	QueueStats(ctx context.Context) (QueueStats, error)
}
