// Package api hosts the HTTP server, middleware, and REST handlers of the
// capture service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/captures runs a batch and returns its summary.
//   - GET /v1/captures/{session_id} returns a finished session's summary.
//   - POST /v1/captures/{session_id}/report streams the xlsx report.
//   - GET /v1/captures/{session_id}/artifacts/{filename} serves a composite PNG.
package api
