// Package observability exposes kwbot's Prometheus metrics and the optional
// debug HTTP server (/metrics, /healthz, /debug/pprof/).
package observability
