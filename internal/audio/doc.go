// Package audio handles WAV framing for chunked streams.
// It parses the stream header from the first chunk, derives the byte rate
// used for timestamp arithmetic, and re-wraps raw PCM slices as standalone
// WAV buffers for per-chunk recognition.
package audio
