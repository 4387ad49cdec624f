// Package session owns chunked and whole-file transcription session state.
// It enforces single-active-session semantics through preemption, drives
// per-chunk engine invocations, and finalizes sessions into
// chronologically-ordered transcripts.
package session
