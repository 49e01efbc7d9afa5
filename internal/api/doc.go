// Package api hosts the HTTP control surface. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/books, /v1/refresh, /v1/state/save and /v1/state/load drive the archiver.
//   - GET /v1/books, /v1/books/{name} and POST /v1/books/{name}/seek/{chapter} browse
//     the library.
package api
