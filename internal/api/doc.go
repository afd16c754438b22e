// Package api hosts the optional operator HTTP endpoint of a harvest run.
// Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress and /v1/progress/{pool} for live per-pool counts.
package api
