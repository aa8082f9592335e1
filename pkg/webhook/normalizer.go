package webhook

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tideway/tideway/pkg/connector/core"
	"github.com/tideway/tideway/pkg/errors"
	"github.com/tideway/tideway/pkg/json"
	"github.com/tideway/tideway/pkg/metrics"
)

// Normalizer converts verified provider payloads into canonical events.
// Providers bundle unrelated housekeeping events freely, so normalization
// accepts partial success: structurally incomplete events are dropped and
// counted rather than failing the whole request.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates an event normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{
		logger: logger.With(zap.String("component", "webhook_normalizer")),
	}
}

// Normalize parses a raw payload into canonical events for the given source
// provider. Payload shapes are tried in order: a top-level array, an object
// with an "events" array, an object with a "data" array, then the whole
// payload as a single event. The returned drop count is the number of
// elements discarded by the structural filter.
func (n *Normalizer) Normalize(payload []byte, source, defaultType string) ([]core.WebhookEvent, int, error) {
	elements, err := splitPayload(payload)
	if err != nil {
		return nil, 0, err
	}

	arrival := time.Now().UTC()
	events := make([]core.WebhookEvent, 0, len(elements))
	dropped := 0

	for _, element := range elements {
		event := n.normalizeElement(element, source, defaultType, arrival)
		if !structurallyValid(event) {
			dropped++
			continue
		}
		events = append(events, event)
		metrics.WebhookEvents.WithLabelValues(source, "accepted").Inc()
	}

	if dropped > 0 {
		n.logger.Warn("dropped structurally incomplete webhook events",
			zap.String("source", source),
			zap.Int("dropped", dropped),
			zap.Int("accepted", len(events)))
		metrics.WebhookEvents.WithLabelValues(source, "dropped").Add(float64(dropped))
	}

	return events, dropped, nil
}

// splitPayload breaks a raw payload into per-event elements. Non-object
// elements are kept; they fail the structural filter downstream so the drop
// stays observable.
func splitPayload(payload []byte) ([]interface{}, error) {
	var asArray []interface{}
	if err := json.Unmarshal(payload, &asArray); err == nil {
		return asArray, nil
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(payload, &asObject); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "webhook payload is not valid JSON")
	}

	for _, envelope := range []string{"events", "data"} {
		if wrapped, ok := asObject[envelope].([]interface{}); ok {
			return wrapped, nil
		}
	}

	return []interface{}{asObject}, nil
}

// normalizeElement maps one raw element to a canonical event, applying the
// field fallbacks and retaining the untouched original for audit.
func (n *Normalizer) normalizeElement(raw interface{}, source, defaultType string, arrival time.Time) core.WebhookEvent {
	element, _ := raw.(map[string]interface{})

	id := firstString(element, "id", "event_id")
	if id == "" {
		id = uuid.New().String()
	}

	eventType := firstString(element, "type", "event_type")
	if eventType == "" {
		eventType = defaultType
	}
	if eventType == "" {
		eventType = "unknown"
	}

	timestamp := arrival
	if value := firstString(element, "timestamp", "created_at"); value != "" {
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			timestamp = parsed
		}
	}

	var data map[string]interface{}
	for _, key := range []string{"data", "payload"} {
		if nested, ok := element[key].(map[string]interface{}); ok {
			data = nested
			break
		}
	}
	if data == nil {
		// Fall back to the element itself; a non-object element leaves
		// data nil and the event is dropped by the structural filter.
		data = element
	}

	return core.WebhookEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: timestamp,
		Data:      data,
		Source:    source,
		Metadata: map[string]interface{}{
			"originalEvent": raw,
		},
	}
}

// structurallyValid is the post-normalization filter: every canonical field
// must be present before an event is handed to the caller.
func structurallyValid(event core.WebhookEvent) bool {
	return event.ID != "" &&
		event.Type != "" &&
		!event.Timestamp.IsZero() &&
		event.Data != nil &&
		event.Source != ""
}

// firstString returns the first of the given keys holding a non-empty string.
func firstString(element map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value, ok := element[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
