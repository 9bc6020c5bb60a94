// Package panel serves the bridge's status dashboard, a small static web
// page embedded in the binary.
//
// The page reads GET /api/v1/status, follows live telemetry and transition
// reports over the WebSocket, and can queue mode requests through
// POST /api/v1/mode. When auth is enabled it asks for a bearer token and
// keeps it in the browser's local storage.
//
// Handler serves the embedded assets, or a directory on disk when one is
// configured, with index.html as the fallback for unknown paths.
package panel
