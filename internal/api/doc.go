// Package api implements the HTTP control API and WebSocket feed of the
// Venus bridge.
//
// This package provides:
//   - Status and health endpoints for the poll loop, device link and broker
//   - A mode endpoint that queues verified mode transitions
//   - Transition history and the mode request audit trail, backed by SQLite
//   - JSON metrics and a Prometheus exposition at /metrics
//   - The status dashboard under /panel/
//   - A WebSocket hub relaying published telemetry and transition reports
//   - JWT bearer authentication with single-use WebSocket tickets
//
// # Security
//
// When security.jwt.secret is set, every endpoint except health, metrics and
// the dashboard assets requires a bearer token signed with it. Viewers may read state; operators
// may also change the mode. With no secret configured the API runs open and
// every caller is treated as an operator.
//
// # Graceful Degradation
//
// History, audit and mode control are optional. Their endpoints answer 503 when the
// backing component is not configured.
package api
