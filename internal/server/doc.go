// Package server implements the HTTP API for monitoring and management:
// health, live session listings, effective configuration, engine
// statistics, and Prometheus metrics.
package server
