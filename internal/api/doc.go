// Package api hosts the HTTP server, middleware, and handlers for the crawler
// command API. Notable routes:
//   - POST /api/crawler dispatches one action (fetch-info, fetch-chapters,
//     fetch-chapter-content, save-story, save-chapter).
//   - POST /api/crawler/batch runs a batch synchronously and returns its report.
//   - POST /api/crawler/jobs and GET /api/crawler/jobs/{job_id} queue a batch
//     and poll it.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus scraping.
package api
