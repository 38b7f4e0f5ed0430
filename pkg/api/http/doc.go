// Package http exposes the diagnostics HTTP API: liveness, Prometheus
// metrics, pending-task dumps and reference-graph inspection.
package http
