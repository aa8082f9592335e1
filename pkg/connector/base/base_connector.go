// Package base provides the shared connector implementation: OAuth code
// exchange and refresh, webhook handling, health probing, sync result
// shaping, and the generic error handler every provider plugin builds on.
package base

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/tideway/tideway/pkg/clients"
	"github.com/tideway/tideway/pkg/connector/core"
	"github.com/tideway/tideway/pkg/errors"
	"github.com/tideway/tideway/pkg/logger"
	"github.com/tideway/tideway/pkg/metrics"
	"github.com/tideway/tideway/pkg/webhook"
)

const (
	defaultBackfillPageSize = 50
	defaultDeltaPageSize    = 10
	defaultHealthPath       = "/"
)

// Page is one page of provider records fetched during a sync run. Errors
// collects non-fatal per-record failures (a malformed record, a skipped
// row); they accumulate in the shaped SyncResult without failing the run.
// A fetcher returns an error instead only when the whole page is lost.
type Page struct {
	Records []map[string]interface{}
	Errors  []string
	Cursor  string
	HasMore bool
}

// PageFetcher is the provider-specific part of a sync: fetch one page of
// records starting at cursor. Everything around it, admission, retries,
// refresh-and-retry, result shaping, lives in the base connector.
type PageFetcher interface {
	FetchPage(ctx context.Context, cctx core.ConnectorContext, cursor string, pageSize int) (*Page, error)
}

// OAuthConfig holds the provider's OAuth application settings.
type OAuthConfig struct {
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret"`
	AuthURL      string   `json:"auth_url" yaml:"auth_url"`
	TokenURL     string   `json:"token_url" yaml:"token_url"`
	RedirectURL  string   `json:"redirect_url" yaml:"redirect_url"`
	Scopes       []string `json:"scopes" yaml:"scopes"`
}

// Config configures a base connector for one provider.
type Config struct {
	Provider         string
	Version          string
	ProviderConfig   core.ProviderConfig
	OAuth            OAuthConfig
	HealthPath       string
	BackfillPageSize int
	DeltaPageSize    int
	Schema           *core.ConfigSchema
}

// Connector is the common connector implementation. Provider plugins embed
// it, supply a PageFetcher, and override only what their API does
// differently.
type Connector struct {
	config     Config
	client     *clients.ProviderClient
	fetcher    PageFetcher
	classifier core.ErrorClassifier
	verifier   *webhook.Verifier
	normalizer *webhook.Normalizer
	logger     *zap.Logger
}

// New creates a base connector. The client comes from the shared pool so
// every tenant of the provider shares one rate limiter and circuit breaker.
func New(config Config, pool *clients.ClientPool, fetcher PageFetcher) *Connector {
	if config.HealthPath == "" {
		config.HealthPath = defaultHealthPath
	}
	if config.BackfillPageSize <= 0 {
		config.BackfillPageSize = defaultBackfillPageSize
	}
	if config.DeltaPageSize <= 0 {
		config.DeltaPageSize = defaultDeltaPageSize
	}

	log := logger.Get().With(
		zap.String("component", "connector"),
		zap.String("provider", config.Provider))

	pool.Configure(clientConfig(config))

	c := &Connector{
		config:     config,
		client:     pool.Get(config.Provider),
		fetcher:    fetcher,
		verifier:   webhook.NewVerifier(log),
		normalizer: webhook.NewNormalizer(log),
		logger:     log,
	}
	c.classifier = DefaultClassifier{}
	return c
}

// SetClassifier overrides the default error classification heuristics.
func (c *Connector) SetClassifier(classifier core.ErrorClassifier) {
	c.classifier = classifier
}

// clientConfig maps the provider policy onto the outbound client policy.
func clientConfig(config Config) clients.ClientConfig {
	pc := config.ProviderConfig
	out := clients.DefaultClientConfig(config.Provider)
	out.BaseURL = pc.BaseURL
	if pc.Timeouts.Request > 0 {
		out.RequestTimeout = pc.Timeouts.Request
	}
	if pc.Timeouts.Connect > 0 {
		out.ConnectTimeout = pc.Timeouts.Connect
	}
	if pc.Retry.MaxRetries > 0 {
		out.MaxRetries = pc.Retry.MaxRetries
	}
	if pc.Retry.BaseDelay > 0 {
		out.BaseDelay = pc.Retry.BaseDelay
	}
	if pc.Retry.BackoffMultiplier > 0 {
		out.BackoffMultiplier = pc.Retry.BackoffMultiplier
	}
	if pc.Retry.MaxBackoff > 0 {
		out.MaxBackoff = pc.Retry.MaxBackoff
	}
	if pc.RateLimit.RequestsPerSecond > 0 {
		out.RequestsPerSecond = pc.RateLimit.RequestsPerSecond
	}
	if pc.RateLimit.BurstSize > 0 {
		out.BurstSize = pc.RateLimit.BurstSize
	}
	return out
}

// Provider returns the provider id this connector serves.
func (c *Connector) Provider() string {
	return c.config.Provider
}

// Client returns the shared resilient HTTP client for this provider.
func (c *Connector) Client() *clients.ProviderClient {
	return c.client
}

// Logger returns the connector's logger for provider plugins to extend.
func (c *Connector) Logger() *zap.Logger {
	return c.logger
}

// oauthConfig builds the x/oauth2 configuration for token exchanges.
func (c *Connector) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.config.OAuth.ClientID,
		ClientSecret: c.config.OAuth.ClientSecret,
		RedirectURL:  c.config.OAuth.RedirectURL,
		Scopes:       c.config.OAuth.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.config.OAuth.AuthURL,
			TokenURL: c.config.OAuth.TokenURL,
		},
	}
}

// Authorize exchanges a one-time authorization code for credentials and
// returns a copy of the context carrying them.
func (c *Connector) Authorize(ctx context.Context, cctx core.ConnectorContext, code string) (core.ConnectorContext, error) {
	if code == "" {
		return cctx, errors.New(errors.ErrorTypeAuthorization, "authorization code is required")
	}

	token, err := c.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return cctx, errors.Wrap(err, errors.ErrorTypeAuthorization, "authorization code exchange failed")
	}

	c.logger.Info("authorization completed",
		zap.String("tenant_id", cctx.TenantID),
		zap.Bool("has_refresh_token", token.RefreshToken != ""))

	return cctx.WithAuth(authFromToken(token, cctx.Auth)), nil
}

// Refresh exchanges the refresh token for new credentials. Without a
// refresh token it fails immediately with an authorization error and never
// touches the network; providers whose tokens do not expire override this
// with a no-op.
func (c *Connector) Refresh(ctx context.Context, cctx core.ConnectorContext) (core.ConnectorContext, error) {
	if cctx.Auth.RefreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues(c.config.Provider, "failure").Inc()
		return cctx, errors.New(errors.ErrorTypeAuthorization, "no refresh token available")
	}

	source := c.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: cctx.Auth.RefreshToken})
	token, err := source.Token()
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(c.config.Provider, "failure").Inc()
		return cctx, errors.Wrap(err, errors.ErrorTypeAuthorization, "token refresh failed")
	}

	metrics.TokenRefreshes.WithLabelValues(c.config.Provider, "success").Inc()
	c.logger.Info("token refreshed",
		zap.String("tenant_id", cctx.TenantID),
		zap.Time("expires_at", token.Expiry))

	return cctx.WithAuth(authFromToken(token, cctx.Auth)), nil
}

// authFromToken maps an OAuth token onto Auth, keeping the previous refresh
// token when the provider rotates access tokens only.
func authFromToken(token *oauth2.Token, previous core.Auth) core.Auth {
	auth := core.Auth{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		TokenType:    token.TokenType,
		Extra:        previous.Extra,
	}
	if auth.RefreshToken == "" {
		auth.RefreshToken = previous.RefreshToken
	}
	return auth
}

// Backfill fetches one page of the full historical sync and shapes it into
// a SyncResult. A detected-expired error triggers exactly one refresh and
// one retry of the same page; any further failure converts to a failed
// result rather than an error so per-run bookkeeping survives.
func (c *Connector) Backfill(ctx context.Context, cctx core.ConnectorContext, cursor string) (*core.SyncResult, error) {
	return c.syncPage(ctx, cctx, cursor, c.config.BackfillPageSize, "backfill")
}

// Delta fetches one incremental page. It reuses the backfill path with a
// smaller page size; true changed-since filtering is up to each provider's
// fetcher query.
func (c *Connector) Delta(ctx context.Context, cctx core.ConnectorContext, cursor string) (*core.SyncResult, error) {
	return c.syncPage(ctx, cctx, cursor, c.config.DeltaPageSize, "delta")
}

func (c *Connector) syncPage(ctx context.Context, cctx core.ConnectorContext, cursor string, pageSize int, mode string) (*core.SyncResult, error) {
	if c.fetcher == nil {
		return nil, errors.Newf(errors.ErrorTypeCapability, "provider %s does not support sync", c.config.Provider)
	}

	start := time.Now()

	page, err := c.fetcher.FetchPage(ctx, cctx, cursor, pageSize)
	if err != nil {
		classification := c.HandleError(ctx, cctx, err)
		if classification.Outcome == core.OutcomeRefreshAndRetry && classification.Context != nil {
			page, err = c.fetcher.FetchPage(ctx, *classification.Context, cursor, pageSize)
		}
		if err != nil {
			c.logger.Error("sync page failed",
				zap.String("mode", mode),
				zap.String("tenant_id", cctx.TenantID),
				zap.String("cursor", cursor),
				zap.Error(err))
			metrics.SyncRecords.WithLabelValues(c.config.Provider, mode, "failure").Inc()
			return &core.SyncResult{
				Success:  false,
				Errors:   []string{err.Error()},
				Duration: time.Since(start),
			}, nil
		}
	}

	result := &core.SyncResult{
		Success:          true,
		RecordsProcessed: len(page.Records),
		Errors:           page.Errors,
		Duration:         time.Since(start),
		Cursor:           page.Cursor,
		HasMore:          page.Cursor != "",
		Data:             page.Records,
	}

	metrics.SyncRecords.WithLabelValues(c.config.Provider, mode, "success").Add(float64(result.RecordsProcessed))
	if len(page.Errors) > 0 {
		metrics.SyncRecords.WithLabelValues(c.config.Provider, mode, "failure").Add(float64(len(page.Errors)))
		c.logger.Warn("sync page completed with record errors",
			zap.String("mode", mode),
			zap.String("tenant_id", cctx.TenantID),
			zap.Int("record_errors", len(page.Errors)))
	}
	c.logger.Debug("sync page completed",
		zap.String("mode", mode),
		zap.String("tenant_id", cctx.TenantID),
		zap.Int("records", result.RecordsProcessed),
		zap.Bool("has_more", result.HasMore))

	return result, nil
}

// HandleWebhook verifies the signature against the provider's webhook
// policy and normalizes the payload into canonical events. Signature
// verification is mandatory; unverifiable requests never reach the
// normalizer.
func (c *Connector) HandleWebhook(ctx context.Context, cctx core.ConnectorContext, headers map[string]string, body []byte) ([]core.WebhookEvent, error) {
	verification := c.verifier.Verify(body, headers, c.config.ProviderConfig.Webhook)
	if !verification.IsValid {
		metrics.WebhookEvents.WithLabelValues(c.config.Provider, "invalid_signature").Inc()
		return nil, errors.Newf(errors.ErrorTypeAuthorization, "webhook signature verification failed for provider %s", c.config.Provider)
	}

	events, _, err := c.normalizer.Normalize(verification.Body, c.config.Provider, "")
	if err != nil {
		return nil, err
	}
	return events, nil
}

// HealthCheck performs one authenticated GET against the provider's whoami
// endpoint and reports latency. Providers may override to probe multiple
// scopes.
func (c *Connector) HealthCheck(ctx context.Context, cctx core.ConnectorContext) (*core.HealthStatus, error) {
	start := time.Now()

	resp, err := c.client.Get(ctx, c.config.HealthPath, AuthHeaders(cctx.Auth))
	status := &core.HealthStatus{
		Latency:   time.Since(start),
		CheckedAt: time.Now().UTC(),
		Details:   map[string]interface{}{"path": c.config.HealthPath},
	}

	if err != nil {
		status.Details["error"] = err.Error()
		return status, nil
	}

	status.Healthy = true
	status.Details["status"] = resp.Status
	return status, nil
}

// AuthHeaders builds the outbound auth headers for a tenant's credentials.
func AuthHeaders(auth core.Auth) map[string]string {
	if auth.AccessToken == "" {
		return nil
	}
	tokenType := auth.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return map[string]string{"Authorization": tokenType + " " + auth.AccessToken}
}

// ConfigSchema returns the connector's configuration schema.
func (c *Connector) ConfigSchema() *core.ConfigSchema {
	if c.config.Schema == nil {
		return &core.ConfigSchema{}
	}
	return c.config.Schema
}

// ValidateConfig checks the required schema fields are present and typed.
func (c *Connector) ValidateConfig(config map[string]interface{}) error {
	schema := c.ConfigSchema()
	for _, field := range schema.Fields {
		value, ok := config[field.Name]
		if !ok {
			if field.Required {
				return errors.Newf(errors.ErrorTypeValidation, "missing required config field %q", field.Name)
			}
			continue
		}
		if !typeMatches(field.Type, value) {
			return errors.Newf(errors.ErrorTypeValidation, "config field %q must be of type %s", field.Name, field.Type)
		}
	}
	return nil
}

func typeMatches(fieldType string, value interface{}) bool {
	switch fieldType {
	case "string":
		_, ok := value.(string)
		return ok
	case "bool":
		_, ok := value.(bool)
		return ok
	case "number":
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	default:
		return true
	}
}
