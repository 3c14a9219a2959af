// Command blogshot captures blog posts as annotated screenshots and exports
// them as an xlsx report.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts capture batches, serves session summaries and artifacts, and streams
//     report workbooks. Non-capture routes run under a request timeout; capture requests last as long as the batch.
//   - Capture pipeline: internal/capture.Orchestrator launches one Chrome per batch (internal/headless/engine), opens
//     an isolated browsing context per item, locates the content region (internal/headless/detector), clips the
//     page, renders the address bar strip (internal/addressbar) on top, and writes the composite to the session
//     directory (internal/storage/local). Items run strictly in order; only an engine failure or cancellation
//     aborts a batch.
//   - Fanout: composites are optionally mirrored to GCS or memory, and a batch summary is published to Pub/Sub
//     when a topic is configured.
//   - Reports: internal/report.Exporter embeds each composite next to its row using excelize; input workbooks are
//     read by internal/sheet.
//   - Configuration & plumbing: Viper populates config from env/files (prefix BLOGSHOT_); zap provides structured
//     logging; Prometheus metrics are exported at /metrics.
//
// Operational notes:
//   - Concurrency model: batches hold a browser slot (capture.max_concurrent_batches); navigations are paced per
//     host when capture.domain_qps is set.
//   - Retention: with storage.retention_hours set, a janitor removes expired session directories.
package main
