package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Whooptido-App/ASR-Captions/internal/engine"
)

// Config contains session manager configuration
type Config struct {
	ScratchDir      string
	DefaultLanguage string
	DefaultModel    string
}

// Manager owns all chunked and direct session state and enforces
// single-active-session semantics: creating any session preempts every
// other live session. It is the only owner of the scratch directory's
// per-session and per-chunk files.
type Manager struct {
	chunked map[string]*ChunkedSession
	direct  map[string]*DirectSession
	mu      sync.RWMutex

	config   Config
	invoker  *engine.Invoker
	registry *engine.Registry
	logger   *slog.Logger
}

// NewManager creates a new session manager
func NewManager(config Config, invoker *engine.Invoker, logger *slog.Logger) (*Manager, error) {
	if config.ScratchDir == "" {
		return nil, fmt.Errorf("scratch directory cannot be empty")
	}

	if err := os.MkdirAll(config.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	return &Manager{
		chunked:  make(map[string]*ChunkedSession),
		direct:   make(map[string]*DirectSession),
		config:   config,
		invoker:  invoker,
		registry: invoker.Registry(),
		logger:   logger,
	}, nil
}

// InitParams describes a chunked session to create.
type InitParams struct {
	ID          string
	TotalBytes  int64
	TotalChunks int
	ChunkBytes  int64
	Language    string
	Model       string
}

// CreateChunked registers a new chunked session after preempting all other
// live sessions, and returns the ids of the sessions it cancelled. An
// existing session with the same id is torn down and replaced.
func (m *Manager) CreateChunked(p InitParams) (*ChunkedSession, []string, error) {
	if p.ID == "" {
		return nil, nil, &ValidationError{Message: "session id is required"}
	}

	preempted := m.PreemptOthers(p.ID)
	m.RemoveChunked(p.ID)

	language := p.Language
	if language == "" {
		language = m.config.DefaultLanguage
	}

	model := p.Model
	if model == "" {
		model = m.config.DefaultModel
	}

	scratchPath := filepath.Join(m.config.ScratchDir, fmt.Sprintf("session-%s.pcm", p.ID))
	if err := os.WriteFile(scratchPath, nil, 0o600); err != nil {
		return nil, preempted, fmt.Errorf("failed to create scratch file: %w", err)
	}

	now := time.Now()
	session := &ChunkedSession{
		ID:          p.ID,
		ScratchPath: scratchPath,
		TotalBytes:  p.TotalBytes,
		TotalChunks: p.TotalChunks,
		ChunkBytes:  p.ChunkBytes,
		Language:    language,
		Model:       model,
		StartedAt:   now,
		UpdatedAt:   now,
		Status:      StatusRunning,
	}

	m.mu.Lock()
	m.chunked[p.ID] = session
	m.mu.Unlock()

	m.logger.Info("Created chunked session",
		slog.String("session_id", p.ID),
		slog.Int64("total_bytes", p.TotalBytes),
		slog.Int("total_chunks", p.TotalChunks),
		slog.String("language", language),
		slog.String("model", model),
		slog.Int("preempted", len(preempted)),
	)

	return session, preempted, nil
}

// getChunked retrieves a chunked session by id.
func (m *Manager) getChunked(id string) (*ChunkedSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.chunked[id]
	return session, ok
}

// getDirect retrieves a direct session by id.
func (m *Manager) getDirect(id string) (*DirectSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.direct[id]
	return session, ok
}

// RemoveChunked removes a chunked session from the registry, best-effort
// terminating any in-flight subprocess and deleting the scratch file even
// when termination fails. It never errors; false means no such session.
func (m *Manager) RemoveChunked(id string) bool {
	m.mu.Lock()
	session, ok := m.chunked[id]
	if ok {
		delete(m.chunked, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	m.teardownChunked(session)

	m.logger.Info("Removed chunked session",
		slog.String("session_id", id),
		slog.Duration("lifetime", time.Since(session.StartedAt)),
	)

	return true
}

// RemoveDirect removes a direct session from the registry, best-effort
// terminating its subprocess. It never errors; false means no such session.
func (m *Manager) RemoveDirect(id string) bool {
	m.mu.Lock()
	session, ok := m.direct[id]
	if ok {
		delete(m.direct, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	m.registry.Cancel(session.OperationKey)

	m.logger.Info("Removed direct session",
		slog.String("session_id", id),
	)

	return true
}

// teardownChunked terminates a session's in-flight subprocess and deletes
// its scratch file. Both are best-effort; the scratch file is removed even
// when termination fails.
func (m *Manager) teardownChunked(session *ChunkedSession) {
	session.mu.Lock()
	operationKey := session.ActiveOperationKey
	session.mu.Unlock()

	if operationKey != "" {
		m.registry.Cancel(operationKey)
	}

	if err := os.Remove(session.ScratchPath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to delete scratch file",
			slog.String("session_id", session.ID),
			slog.String("path", session.ScratchPath),
			slog.String("error", err.Error()),
		)
	}
}

// PreemptOthers cancels and removes every live session except currentID,
// so only one session is ever live. Returns the cancelled session ids.
func (m *Manager) PreemptOthers(currentID string) []string {
	m.mu.Lock()
	var chunkedVictims []*ChunkedSession
	var directVictims []*DirectSession

	for id, session := range m.chunked {
		if id != currentID {
			chunkedVictims = append(chunkedVictims, session)
			delete(m.chunked, id)
		}
	}

	for id, session := range m.direct {
		if id != currentID {
			directVictims = append(directVictims, session)
			delete(m.direct, id)
		}
	}
	m.mu.Unlock()

	var preempted []string

	for _, session := range chunkedVictims {
		session.mu.Lock()
		session.CancelRequested = true
		session.Status = StatusCancelled
		session.mu.Unlock()

		m.teardownChunked(session)
		preempted = append(preempted, session.ID)
	}

	for _, session := range directVictims {
		session.mu.Lock()
		session.CancelRequested = true
		session.Status = StatusCancelled
		session.mu.Unlock()

		m.registry.Cancel(session.OperationKey)
		preempted = append(preempted, session.ID)
	}

	if len(preempted) > 0 {
		m.logger.Info("Preempted sessions",
			slog.String("current_session", currentID),
			slog.Any("preempted", preempted),
		)
	}

	return preempted
}

// Cancel requests cooperative cancellation of one session, signals its
// subprocess, and removes it from the registry.
func (m *Manager) Cancel(id string) error {
	if session, ok := m.getChunked(id); ok {
		session.mu.Lock()
		session.CancelRequested = true
		session.Status = StatusCancelled
		session.mu.Unlock()

		m.RemoveChunked(id)
		return nil
	}

	if session, ok := m.getDirect(id); ok {
		session.mu.Lock()
		session.CancelRequested = true
		session.Status = StatusCancelled
		session.mu.Unlock()

		m.RemoveDirect(id)
		return nil
	}

	return &ValidationError{Message: fmt.Sprintf("session not found: %s", id)}
}

// CancelAll cancels every live session and returns their ids.
func (m *Manager) CancelAll() []string {
	var cancelled []string
	for _, id := range m.liveIDs() {
		if err := m.Cancel(id); err == nil {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}

// Pause sets a session's pause flag and suspends its in-flight subprocess,
// if any. A missing subprocess is a normal no-op.
func (m *Manager) Pause(id string) error {
	if session, ok := m.getChunked(id); ok {
		session.mu.Lock()
		session.PauseRequested = true
		session.Status = StatusPaused
		operationKey := session.ActiveOperationKey
		session.mu.Unlock()

		if operationKey != "" {
			m.registry.Pause(operationKey)
		}
		return nil
	}

	if session, ok := m.getDirect(id); ok {
		session.mu.Lock()
		session.PauseRequested = true
		session.Status = StatusPaused
		session.mu.Unlock()

		m.registry.Pause(session.OperationKey)
		return nil
	}

	return &ValidationError{Message: fmt.Sprintf("session not found: %s", id)}
}

// Resume clears a session's pause flag and continues its in-flight
// subprocess, if any.
func (m *Manager) Resume(id string) error {
	if session, ok := m.getChunked(id); ok {
		session.mu.Lock()
		session.PauseRequested = false
		session.Status = StatusRunning
		operationKey := session.ActiveOperationKey
		session.mu.Unlock()

		if operationKey != "" {
			m.registry.Resume(operationKey)
		}
		return nil
	}

	if session, ok := m.getDirect(id); ok {
		session.mu.Lock()
		session.PauseRequested = false
		session.Status = StatusRunning
		session.mu.Unlock()

		m.registry.Resume(session.OperationKey)
		return nil
	}

	return &ValidationError{Message: fmt.Sprintf("session not found: %s", id)}
}

// PauseAll pauses every live session and returns their ids.
func (m *Manager) PauseAll() []string {
	var paused []string
	for _, id := range m.liveIDs() {
		if err := m.Pause(id); err == nil {
			paused = append(paused, id)
		}
	}
	return paused
}

// ResumeAll resumes every live session and returns their ids.
func (m *Manager) ResumeAll() []string {
	var resumed []string
	for _, id := range m.liveIDs() {
		if err := m.Resume(id); err == nil {
			resumed = append(resumed, id)
		}
	}
	return resumed
}

// Cleanup tears down one session regardless of its state. False means no
// such session.
func (m *Manager) Cleanup(id string) bool {
	removed := m.RemoveChunked(id)
	if m.RemoveDirect(id) {
		removed = true
	}
	return removed
}

// CleanupAll tears down every live session and returns their ids. Used for
// the cleanup command without an id and for shutdown.
func (m *Manager) CleanupAll() []string {
	ids := m.liveIDs()
	for _, id := range ids {
		m.Cleanup(id)
	}
	return ids
}

// liveIDs returns the ids of all registered sessions.
func (m *Manager) liveIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.chunked)+len(m.direct))
	for id := range m.chunked {
		ids = append(ids, id)
	}
	for id := range m.direct {
		ids = append(ids, id)
	}
	return ids
}

// Status returns a snapshot of one session, or of all live sessions when
// id is empty.
func (m *Manager) Status(id string) ([]Info, error) {
	if id != "" {
		if session, ok := m.getChunked(id); ok {
			return []Info{session.snapshot()}, nil
		}
		if session, ok := m.getDirect(id); ok {
			return []Info{session.snapshot(m.registry.IsRegistered(session.OperationKey))}, nil
		}
		return nil, &ValidationError{Message: fmt.Sprintf("session not found: %s", id)}
	}

	m.mu.RLock()
	chunked := make([]*ChunkedSession, 0, len(m.chunked))
	for _, session := range m.chunked {
		chunked = append(chunked, session)
	}
	direct := make([]*DirectSession, 0, len(m.direct))
	for _, session := range m.direct {
		direct = append(direct, session)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(chunked)+len(direct))
	for _, session := range chunked {
		infos = append(infos, session.snapshot())
	}
	for _, session := range direct {
		infos = append(infos, session.snapshot(m.registry.IsRegistered(session.OperationKey)))
	}

	return infos, nil
}

// ActiveSessionCount returns the number of registered sessions.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunked) + len(m.direct)
}

// GetInvokerStats returns current engine invoker statistics.
func (m *Manager) GetInvokerStats() engine.Stats {
	return m.invoker.GetStats()
}

// Stop tears down all live sessions and their subprocesses. Called on
// service shutdown and on unexpected faults before controlled exit.
func (m *Manager) Stop() {
	ids := m.CleanupAll()

	m.logger.Info("Session manager stopped",
		slog.Int("sessions_cleaned", len(ids)),
	)
}
