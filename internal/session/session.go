package session

import (
	"sync"
	"time"

	"github.com/Whooptido-App/ASR-Captions/internal/audio"
	"github.com/Whooptido-App/ASR-Captions/internal/transcript"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// ChunkedSession accumulates a chunked audio stream toward one transcript.
// Raw PCM is appended to an exclusively-owned scratch file while each chunk
// is separately re-wrapped and recognized; per-chunk results collect in
// Segments and Fragments until completion.
type ChunkedSession struct {
	ID          string
	ScratchPath string

	// Declared by the init command; advisory only.
	TotalBytes  int64
	TotalChunks int
	ChunkBytes  int64

	// Both monotonically non-decreasing; BytesConsumed counts PCM only and
	// never exceeds ReceivedBytes.
	ReceivedBytes int64
	BytesConsumed int64

	// Format is parsed exactly once, from the first chunk, and immutable
	// after; nil means the header has not been seen yet.
	Format *audio.Format

	Segments  []transcript.Segment
	Fragments []string

	Language string
	Model    string

	StartedAt time.Time
	UpdatedAt time.Time

	Status          Status
	CancelRequested bool
	PauseRequested  bool

	// ActiveOperationKey is non-empty only while a chunk's subprocess is in
	// flight and cleared on every exit path.
	ActiveOperationKey string

	mu sync.Mutex
}

// IsCancelled reports whether cancellation has been requested. Safe to call
// from the invocation goroutine while handlers mutate the session.
func (s *ChunkedSession) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CancelRequested
}

// DirectSession represents one whole-file recognition call.
type DirectSession struct {
	ID           string
	OperationKey string

	Status          Status
	CancelRequested bool
	PauseRequested  bool

	StartedAt time.Time
	UpdatedAt time.Time

	mu sync.Mutex
}

// IsCancelled reports whether cancellation has been requested.
func (s *DirectSession) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CancelRequested
}

// Info is a point-in-time snapshot of a session for status commands and the
// monitoring API.
type Info struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"` // "chunked" or "direct"
	Status        Status  `json:"status"`
	Language      string  `json:"language,omitempty"`
	Model         string  `json:"model,omitempty"`
	TotalBytes    int64   `json:"total_bytes,omitempty"`
	ReceivedBytes int64   `json:"received_bytes,omitempty"`
	BytesConsumed int64   `json:"bytes_consumed,omitempty"`
	TotalChunks   int     `json:"total_chunks,omitempty"`
	SegmentCount  int     `json:"segment_count"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	InFlight      bool    `json:"in_flight"`
}

// Transcript is the finalized output of a session: chronologically ordered
// segments and the whitespace-collapsed joined text.
type Transcript struct {
	ID       string               `json:"id"`
	Segments []transcript.Segment `json:"segments"`
	Text     string               `json:"text"`
	Duration float64              `json:"duration"`
}

// ChunkResult carries one chunk's recognized output, already shifted onto
// the session timeline, for incremental rendering by the caller.
type ChunkResult struct {
	Index    int                  `json:"index"`
	Segments []transcript.Segment `json:"segments"`
	Text     string               `json:"text"`
}

func (s *ChunkedSession) snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		ID:            s.ID,
		Kind:          "chunked",
		Status:        s.Status,
		Language:      s.Language,
		Model:         s.Model,
		TotalBytes:    s.TotalBytes,
		ReceivedBytes: s.ReceivedBytes,
		BytesConsumed: s.BytesConsumed,
		TotalChunks:   s.TotalChunks,
		SegmentCount:  len(s.Segments),
		UptimeSeconds: time.Since(s.StartedAt).Seconds(),
		InFlight:      s.ActiveOperationKey != "",
	}
}

// snapshot takes the in-flight state from the caller, which knows whether
// a subprocess is currently registered for this session.
func (s *DirectSession) snapshot(inFlight bool) Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		ID:            s.ID,
		Kind:          "direct",
		Status:        s.Status,
		UptimeSeconds: time.Since(s.StartedAt).Seconds(),
		InFlight:      inFlight,
	}
}
