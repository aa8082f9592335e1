package webhook

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideway/tideway/pkg/testutil"
)

func TestNormalizeSingleObject(t *testing.T) {
	n := NewNormalizer(testutil.Logger(t))

	payload := []byte(`{"id":"1","type":"contact.created","data":{"email":"a@b.com"}}`)
	events, dropped, err := n.Normalize(payload, "hubspot", "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Zero(t, dropped)

	event := events[0]
	assert.Equal(t, "1", event.ID)
	assert.Equal(t, "contact.created", event.Type)
	assert.Equal(t, "hubspot", event.Source)
	assert.Equal(t, map[string]interface{}{"email": "a@b.com"}, event.Data)
	assert.NotNil(t, event.Metadata["originalEvent"])
}

func TestNormalizeTopLevelArray(t *testing.T) {
	n := NewNormalizer(testutil.Logger(t))

	payload := []byte(`[
		{"id":"1","type":"a","data":{}},
		{"id":"2","type":"b","data":{}},
		{"id":"3","type":"c","data":{}}
	]`)
	events, dropped, err := n.Normalize(payload, "stripe", "")
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Zero(t, dropped)
}

func TestNormalizeEnvelopes(t *testing.T) {
	n := NewNormalizer(testutil.Logger(t))

	for name, payload := range map[string][]byte{
		"events": []byte(`{"events":[{"id":"1","type":"a","data":{}},{"id":"2","type":"b","data":{}}]}`),
		"data":   []byte(`{"data":[{"id":"1","type":"a","data":{}},{"id":"2","type":"b","data":{}}]}`),
	} {
		events, dropped, err := n.Normalize(payload, "slack", "")
		require.NoError(t, err, name)
		assert.Len(t, events, 2, name)
		assert.Zero(t, dropped, name)
	}
}

func TestNormalizeFieldFallbacks(t *testing.T) {
	n := NewNormalizer(testutil.Logger(t))

	payload := []byte(`{"event_id":"e-9","event_type":"sync.done","created_at":"2026-08-01T12:00:00Z","payload":{"k":"v"}}`)
	events, _, err := n.Normalize(payload, "linear", "")
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "e-9", event.ID)
	assert.Equal(t, "sync.done", event.Type)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), event.Timestamp.UTC())
	assert.Equal(t, map[string]interface{}{"k": "v"}, event.Data)
}

func TestNormalizeGeneratesDefaults(t *testing.T) {
	n := NewNormalizer(testutil.Logger(t))

	before := time.Now().UTC()
	events, _, err := n.Normalize([]byte(`{"foo":"bar"}`), "github", "")
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	_, parseErr := uuid.Parse(event.ID)
	assert.NoError(t, parseErr, "missing id should become a UUID")
	assert.Equal(t, "unknown", event.Type)
	assert.False(t, event.Timestamp.Before(before), "missing timestamp falls back to arrival time")
	// No data/payload key: the element itself becomes the data.
	assert.Equal(t, map[string]interface{}{"foo": "bar"}, event.Data)
}

func TestNormalizeDefaultTypeOverride(t *testing.T) {
	n := NewNormalizer(testutil.Logger(t))

	events, _, err := n.Normalize([]byte(`{"id":"1","data":{}}`), "github", "push")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "push", events[0].Type)
}

func TestNormalizeDropsIncompleteEvents(t *testing.T) {
	n := NewNormalizer(testutil.Logger(t))

	// The second element is not an object, so it cannot satisfy the
	// structural filter and must be dropped, observably.
	payload := []byte(`[{"id":"1","type":"a","data":{}},"heartbeat",{"id":"2","type":"b","data":{}}]`)
	events, dropped, err := n.Normalize(payload, "slack", "")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, dropped)
}

func TestNormalizeRejectsInvalidJSON(t *testing.T) {
	n := NewNormalizer(testutil.Logger(t))

	_, _, err := n.Normalize([]byte(`not json`), "slack", "")
	assert.Error(t, err)
}
