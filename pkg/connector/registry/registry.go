// Package registry provides the connector catalog: static metadata for
// discovery plus the live instance map. Registries are explicit objects
// constructed at process start and passed to consumers, so tests can build
// isolated ones.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tideway/tideway/pkg/connector/core"
	"github.com/tideway/tideway/pkg/errors"
)

// Feature names used in connector definitions.
const (
	FeatureBackfill = "backfill"
	FeatureDelta    = "delta"
	FeatureWebhooks = "webhooks"
	FeatureHealth   = "health"
)

// Definition is the static descriptive metadata for one connector, used
// for discovery and feature filtering independently of a live instance.
type Definition struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Scopes    []string             `json:"scopes,omitempty"`
	Features  []string             `json:"features,omitempty"`
	RateLimit core.RateLimitConfig `json:"rate_limit"`
	Schema    *core.ConfigSchema   `json:"schema,omitempty"`
}

// HasFeature reports whether the definition declares a feature.
func (d Definition) HasFeature(feature string) bool {
	for _, f := range d.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Registry maps connector ids to their metadata and live singleton
// instances. Both maps are populated at process start; there is no dynamic
// plugin loading.
type Registry struct {
	logger      *zap.Logger
	definitions map[string]Definition
	instances   map[string]core.Connector
	mu          sync.RWMutex
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger:      logger.With(zap.String("component", "registry")),
		definitions: make(map[string]Definition),
		instances:   make(map[string]core.Connector),
	}
}

// Register adds a connector definition and its live instance. Registering
// an id twice replaces the previous entry.
func (r *Registry) Register(def Definition, instance core.Connector) error {
	if def.ID == "" {
		return errors.New(errors.ErrorTypeValidation, "connector definition requires an id")
	}
	if instance == nil {
		return errors.Newf(errors.ErrorTypeValidation, "connector %s registered without an instance", def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.definitions[def.ID] = def
	r.instances[def.ID] = instance
	r.logger.Info("connector registered",
		zap.String("connector", def.ID),
		zap.Strings("features", def.Features))
	return nil
}

// Get returns the live connector for an id.
func (r *Registry) Get(id string) (core.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.instances[id]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connector %s is not registered", id)
	}
	return instance, nil
}

// Definition returns the metadata for an id.
func (r *Registry) Definition(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[id]
	if !ok {
		return Definition{}, errors.Newf(errors.ErrorTypeNotFound, "connector %s is not registered", id)
	}
	return def, nil
}

// Has reports whether an id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.instances[id]
	return ok
}

// List returns the registered connector ids in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Remove drops a connector from both maps.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.definitions, id)
	delete(r.instances, id)
}

// ByFeature returns the definitions declaring a feature, sorted by id.
func (r *Registry) ByFeature(feature string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]Definition, 0)
	for _, def := range r.definitions {
		if def.HasFeature(feature) {
			matches = append(matches, def)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches
}

// WebhookSupported returns the definitions that accept inbound webhooks.
func (r *Registry) WebhookSupported() []Definition {
	return r.ByFeature(FeatureWebhooks)
}
