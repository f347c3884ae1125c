// Package server provides the HTTP admin API and dashboard for entrywatch.
//
// This package is internal to entrywatch and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - Admin API: JSON target management and poll history under "/api/targets"
//   - Server-Sent Events: target changes and alerts at "/api/sse"
//   - Operations: "/healthz" and Prometheus "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
