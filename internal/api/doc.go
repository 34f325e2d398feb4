// Package api implements the operations HTTP server for AirRelay.
//
// This package provides:
//   - GET /api/v1/health: dependency checks (store, MQTT, InfluxDB)
//   - GET /metrics: Prometheus exposition
//   - POST /api/v1/cache/clear: drops every cached directory entry so the
//     next reads come from the durable store
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Security
//
// Mutating endpoints require "Authorization: Bearer <api.token>". With no
// token configured they are not mounted at all.
//
// # Graceful Degradation
//
// Health reports each check separately and answers 503 when any fails, so
// an orchestrator can tell a broker outage from a store outage.
package api
