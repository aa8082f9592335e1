// Package generic implements a connector for cursor-paginated REST APIs.
// Providers that follow the common list-endpoint shape can be onboarded
// with configuration alone; anything stranger gets its own package.
package generic

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tideway/tideway/pkg/clients"
	"github.com/tideway/tideway/pkg/connector/base"
	"github.com/tideway/tideway/pkg/connector/core"
	"github.com/tideway/tideway/pkg/connector/registry"
	"github.com/tideway/tideway/pkg/errors"
)

const defaultListPath = "/records"

// Config describes one REST provider instance.
type Config struct {
	// Provider is the connector id, e.g. "hubspot"
	Provider string
	// Name is the human-readable name for the catalog
	Name string
	// ListPath is the cursor-paginated list endpoint
	ListPath string
	// HealthPath is the whoami endpoint probed by health checks
	HealthPath string
	// Scopes are the OAuth scopes the catalog advertises
	Scopes []string

	ProviderConfig core.ProviderConfig
	OAuth          base.OAuthConfig
}

// Connector is a generic REST connector: the shared base plus a fetcher
// for the provider's list endpoint.
type Connector struct {
	*base.Connector

	listPath string
}

// listResponse is the provider's cursor-paginated list shape. Errors holds
// per-record failures the provider reports alongside the page.
type listResponse struct {
	Results    []map[string]interface{} `json:"results"`
	Errors     []string                 `json:"errors"`
	NextCursor string                   `json:"next_cursor"`
	HasMore    bool                     `json:"has_more"`
}

// New creates a generic connector.
func New(config Config, pool *clients.ClientPool) *Connector {
	if config.ListPath == "" {
		config.ListPath = defaultListPath
	}

	c := &Connector{listPath: config.ListPath}
	c.Connector = base.New(base.Config{
		Provider:       config.Provider,
		Version:        "1.0.0",
		ProviderConfig: config.ProviderConfig,
		OAuth:          config.OAuth,
		HealthPath:     config.HealthPath,
		Schema:         configSchema(),
	}, pool, c)
	return c
}

// FetchPage retrieves one page from the list endpoint.
func (c *Connector) FetchPage(ctx context.Context, cctx core.ConnectorContext, cursor string, pageSize int) (*base.Page, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", pageSize))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	resp, err := c.Client().Get(ctx, c.listPath+"?"+query.Encode(), base.AuthHeaders(cctx.Auth))
	if err != nil {
		return nil, err
	}

	var body listResponse
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}

	page := &base.Page{
		Records: body.Results,
		Errors:  body.Errors,
		HasMore: body.HasMore,
	}
	if body.HasMore {
		page.Cursor = body.NextCursor
	}
	if page.HasMore && page.Cursor == "" {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"provider %s reported more pages without a cursor", c.Provider())
	}
	return page, nil
}

// configSchema describes the tenant settings the generic connector accepts.
func configSchema() *core.ConfigSchema {
	return &core.ConfigSchema{
		Fields: []core.ConfigField{
			{Name: "resource", Type: "string", Description: "Resource collection to sync", Required: true},
			{Name: "include_archived", Type: "bool", Description: "Include archived records in backfills"},
		},
	}
}

// Register constructs the connector and adds it to the registry catalog.
func Register(reg *registry.Registry, pool *clients.ClientPool, config Config) error {
	if config.Provider == "" {
		return errors.New(errors.ErrorTypeConfig, "generic connector requires a provider id")
	}

	features := []string{registry.FeatureBackfill, registry.FeatureDelta, registry.FeatureHealth}
	if config.ProviderConfig.Webhook.Secret != "" {
		features = append(features, registry.FeatureWebhooks)
	}

	connector := New(config, pool)
	return reg.Register(registry.Definition{
		ID:        config.Provider,
		Name:      config.Name,
		Scopes:    config.Scopes,
		Features:  features,
		RateLimit: config.ProviderConfig.RateLimit,
		Schema:    connector.ConfigSchema(),
	}, connector)
}
