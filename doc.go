// Package tideway is a resilient SaaS integration runtime.
//
// It connects to third-party SaaS APIs through one uniform connector
// contract (authorize, refresh, backfill, delta, handle-webhook,
// health-check) while absorbing public-internet unreliability: provider
// rate limits, transient failures, and expiring credentials.
//
// The building blocks live under pkg/:
//
//   - pkg/clients: sliding-window rate limiting, circuit breaking, and the
//     per-provider resilient HTTP client pool
//   - pkg/webhook: inbound HMAC signature verification and normalization of
//     provider payloads into canonical events
//   - pkg/connector: the connector contract, the shared base
//     implementation, the registry, and provider plugins
//   - pkg/server: the webhook ingress and management endpoints
//
// The tideway binary under cmd/tideway wires these together from a YAML
// configuration with secrets supplied through the environment.
package tideway
