// Package config loads the runtime configuration: provider policies come
// from a YAML file, credentials and webhook secrets come from the process
// environment and are never written to disk.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tideway/tideway/pkg/connector/base"
	"github.com/tideway/tideway/pkg/connector/core"
	"github.com/tideway/tideway/pkg/errors"
)

// envPrefix namespaces every environment override, e.g. TIDEWAY_SERVER_LISTEN.
const envPrefix = "TIDEWAY"

// ServerConfig configures the webhook ingress listener.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	Encoding    string `mapstructure:"encoding"`
}

// ProviderSettings is the per-provider section of the YAML file. Secrets
// are deliberately absent; they are resolved from the environment by id.
type ProviderSettings struct {
	Name       string   `mapstructure:"name"`
	BaseURL    string   `mapstructure:"base_url"`
	AuthType   string   `mapstructure:"auth_type"`
	ListPath   string   `mapstructure:"list_path"`
	HealthPath string   `mapstructure:"health_path"`
	Scopes     []string `mapstructure:"scopes"`

	RateLimit struct {
		RequestsPerSecond int `mapstructure:"requests_per_second"`
		BurstSize         int `mapstructure:"burst_size"`
	} `mapstructure:"rate_limit"`

	Timeouts struct {
		Request time.Duration `mapstructure:"request"`
		Connect time.Duration `mapstructure:"connect"`
	} `mapstructure:"timeouts"`

	Retry struct {
		MaxRetries        int           `mapstructure:"max_retries"`
		BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
		MaxBackoff        time.Duration `mapstructure:"max_backoff"`
		BaseDelay         time.Duration `mapstructure:"base_delay"`
	} `mapstructure:"retry"`

	Webhook struct {
		Algorithm string        `mapstructure:"algorithm"`
		Header    string        `mapstructure:"header"`
		Tolerance time.Duration `mapstructure:"tolerance"`
	} `mapstructure:"webhook"`

	OAuth struct {
		AuthURL     string `mapstructure:"auth_url"`
		TokenURL    string `mapstructure:"token_url"`
		RedirectURL string `mapstructure:"redirect_url"`
	} `mapstructure:"oauth"`
}

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig                `mapstructure:"server"`
	Logging   LoggingConfig               `mapstructure:"logging"`
	Providers map[string]ProviderSettings `mapstructure:"providers"`
}

// Load reads the YAML file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config")
	}
	return &cfg, nil
}

// ProviderConfig builds the immutable provider policy, pulling the webhook
// signing secret from the environment.
func (s ProviderSettings) ProviderConfig(providerID string) core.ProviderConfig {
	return core.ProviderConfig{
		BaseURL:  s.BaseURL,
		AuthType: s.AuthType,
		RateLimit: core.RateLimitConfig{
			RequestsPerSecond: s.RateLimit.RequestsPerSecond,
			BurstSize:         s.RateLimit.BurstSize,
		},
		Timeouts: core.TimeoutConfig{
			Request: s.Timeouts.Request,
			Connect: s.Timeouts.Connect,
		},
		Retry: core.RetryConfig{
			MaxRetries:        s.Retry.MaxRetries,
			BackoffMultiplier: s.Retry.BackoffMultiplier,
			MaxBackoff:        s.Retry.MaxBackoff,
			BaseDelay:         s.Retry.BaseDelay,
		},
		Webhook: core.WebhookConfig{
			Secret:    ProviderSecret(providerID, "WEBHOOK_SECRET"),
			Algorithm: s.Webhook.Algorithm,
			Header:    s.Webhook.Header,
			Tolerance: s.Webhook.Tolerance,
		},
	}
}

// OAuthConfig builds the OAuth application settings, pulling client
// credentials from the environment.
func (s ProviderSettings) OAuthConfig(providerID string) base.OAuthConfig {
	return base.OAuthConfig{
		ClientID:     ProviderSecret(providerID, "CLIENT_ID"),
		ClientSecret: ProviderSecret(providerID, "CLIENT_SECRET"),
		AuthURL:      s.OAuth.AuthURL,
		TokenURL:     s.OAuth.TokenURL,
		RedirectURL:  s.OAuth.RedirectURL,
		Scopes:       s.Scopes,
	}
}

// ProviderSecret reads a per-provider secret from the environment, e.g.
// TIDEWAY_HUBSPOT_CLIENT_SECRET for ("hubspot", "CLIENT_SECRET").
func ProviderSecret(providerID, key string) string {
	name := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(providerID, "-", "_")) + "_" + key
	return os.Getenv(name)
}
