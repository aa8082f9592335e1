package clients

import (
	"sync"

	"go.uber.org/zap"
)

// ClientPool hands out one ProviderClient per provider id. All tenants of a
// provider share the same client, so the rate limiter and circuit breaker
// guard the provider-wide quota rather than any single tenant. Retry budgets
// stay per call, so one tenant's failures never consume another's budget.
type ClientPool struct {
	logger  *zap.Logger
	clients map[string]*ProviderClient
	configs map[string]ClientConfig
	mu      sync.Mutex
}

// NewClientPool creates an empty pool.
func NewClientPool(logger *zap.Logger) *ClientPool {
	return &ClientPool{
		logger:  logger,
		clients: make(map[string]*ProviderClient),
		configs: make(map[string]ClientConfig),
	}
}

// Configure registers the outbound policy for a provider. Must be called
// before Get for providers that need non-default limits. Reconfiguring a
// provider that already has a live client closes and replaces it.
func (p *ClientPool) Configure(config ClientConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.configs[config.Provider] = config
	if existing, ok := p.clients[config.Provider]; ok {
		existing.Close()
		delete(p.clients, config.Provider)
	}
}

// Get returns the shared client for a provider, creating it on first use
// with the configured policy or defaults.
func (p *ClientPool) Get(provider string) *ProviderClient {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[provider]; ok {
		return client
	}

	config, ok := p.configs[provider]
	if !ok {
		config = DefaultClientConfig(provider)
	}
	client := NewProviderClient(config, p.logger)
	p.clients[provider] = client
	return client
}

// Providers lists the providers with live clients.
func (p *ClientPool) Providers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	return names
}

// Stats returns cumulative statistics for every live client.
func (p *ClientPool) Stats() map[string]ClientStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make(map[string]ClientStats, len(p.clients))
	for name, client := range p.clients {
		stats[name] = client.Stats()
	}
	return stats
}

// Close releases every client in the pool.
func (p *ClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, client := range p.clients {
		client.Close()
		delete(p.clients, name)
	}
}
