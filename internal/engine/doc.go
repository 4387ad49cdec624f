// Package engine invokes the offline recognition engine as a subprocess.
// It resolves model files and alignment presets, registers live processes
// for signal-based cancel/pause/resume, and normalizes the engine's
// token-level JSON output.
package engine
