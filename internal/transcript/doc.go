// Package transcript reshapes token-level recognition output.
// It merges sub-word tokens into confidence-scored words, shifts chunk-local
// timestamps onto the session timeline, and assembles the final transcript.
package transcript
