package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideway/tideway/pkg/connector/core"
	"github.com/tideway/tideway/pkg/errors"
	"github.com/tideway/tideway/pkg/testutil"
)

// stubConnector satisfies core.Connector for catalog tests.
type stubConnector struct{}

func (stubConnector) Authorize(ctx context.Context, cctx core.ConnectorContext, code string) (core.ConnectorContext, error) {
	return cctx, nil
}

func (stubConnector) Refresh(ctx context.Context, cctx core.ConnectorContext) (core.ConnectorContext, error) {
	return cctx, nil
}

func (stubConnector) Backfill(ctx context.Context, cctx core.ConnectorContext, cursor string) (*core.SyncResult, error) {
	return &core.SyncResult{Success: true}, nil
}

func (stubConnector) Delta(ctx context.Context, cctx core.ConnectorContext, cursor string) (*core.SyncResult, error) {
	return &core.SyncResult{Success: true}, nil
}

func (stubConnector) HandleWebhook(ctx context.Context, cctx core.ConnectorContext, headers map[string]string, body []byte) ([]core.WebhookEvent, error) {
	return nil, nil
}

func (stubConnector) HealthCheck(ctx context.Context, cctx core.ConnectorContext) (*core.HealthStatus, error) {
	return &core.HealthStatus{Healthy: true}, nil
}

func (stubConnector) ConfigSchema() *core.ConfigSchema { return &core.ConfigSchema{} }

func (stubConnector) ValidateConfig(config map[string]interface{}) error { return nil }

func TestRegisterAndGet(t *testing.T) {
	reg := New(testutil.Logger(t))

	require.NoError(t, reg.Register(Definition{ID: "hubspot", Name: "HubSpot"}, stubConnector{}))
	assert.True(t, reg.Has("hubspot"))

	instance, err := reg.Get("hubspot")
	require.NoError(t, err)
	assert.NotNil(t, instance)

	def, err := reg.Definition("hubspot")
	require.NoError(t, err)
	assert.Equal(t, "HubSpot", def.Name)
}

func TestRegisterValidation(t *testing.T) {
	reg := New(testutil.Logger(t))

	assert.Error(t, reg.Register(Definition{}, stubConnector{}), "id is required")
	assert.Error(t, reg.Register(Definition{ID: "x"}, nil), "instance is required")
}

func TestGetUnknownConnector(t *testing.T) {
	reg := New(testutil.Logger(t))

	_, err := reg.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestListIsSorted(t *testing.T) {
	reg := New(testutil.Logger(t))
	for _, id := range []string{"salesforce", "hubspot", "slack"} {
		require.NoError(t, reg.Register(Definition{ID: id}, stubConnector{}))
	}
	assert.Equal(t, []string{"hubspot", "salesforce", "slack"}, reg.List())
}

func TestRemove(t *testing.T) {
	reg := New(testutil.Logger(t))
	require.NoError(t, reg.Register(Definition{ID: "hubspot"}, stubConnector{}))

	reg.Remove("hubspot")
	assert.False(t, reg.Has("hubspot"))
	_, err := reg.Definition("hubspot")
	assert.Error(t, err)
}

func TestFeatureFiltering(t *testing.T) {
	reg := New(testutil.Logger(t))
	require.NoError(t, reg.Register(Definition{
		ID:       "hubspot",
		Features: []string{FeatureBackfill, FeatureWebhooks},
	}, stubConnector{}))
	require.NoError(t, reg.Register(Definition{
		ID:       "salesforce",
		Features: []string{FeatureBackfill},
	}, stubConnector{}))

	backfill := reg.ByFeature(FeatureBackfill)
	require.Len(t, backfill, 2)
	assert.Equal(t, "hubspot", backfill[0].ID)

	webhooks := reg.WebhookSupported()
	require.Len(t, webhooks, 1)
	assert.Equal(t, "hubspot", webhooks[0].ID)

	assert.Empty(t, reg.ByFeature(FeatureDelta))
}
