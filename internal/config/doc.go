// Package config loads and validates the YAML service configuration:
// the recognition engine binary and model locations, session scratch
// space, the optional HTTP monitoring server, and logging.
package config
