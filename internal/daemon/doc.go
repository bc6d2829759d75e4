// Package daemon hosts the background pipeline service: it enforces
// single-instance execution with a file lock, runs the workflow manager, and
// serves the HTTP API and Prometheus metrics.
package daemon
