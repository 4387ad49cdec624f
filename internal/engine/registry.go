package engine

import (
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"
)

// killGracePeriod is how long a cancelled process gets to exit after
// SIGTERM before it is force-killed.
const killGracePeriod = 3 * time.Second

// Registry maps operation keys to live engine subprocesses so cancel,
// pause, and resume signals reach exactly the process belonging to one
// session or chunk without touching unrelated operations.
type Registry struct {
	procs  map[string]*registeredProcess
	mu     sync.RWMutex
	logger *slog.Logger
}

type registeredProcess struct {
	proc *os.Process
	done chan struct{} // closed once when the process has been waited on
}

// NewRegistry creates an empty process registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		procs:  make(map[string]*registeredProcess),
		logger: logger,
	}
}

// register associates a started process with an operation key. Keys never
// collide across concurrently live operations by construction: each is a
// session id or a chunk-scoped unique key.
func (r *Registry) register(key string, proc *os.Process) *registeredProcess {
	entry := &registeredProcess{
		proc: proc,
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.procs[key] = entry
	r.mu.Unlock()

	return entry
}

// deregister removes the entry for a finished process and releases any
// pending kill escalation. Called exactly once per registered invocation.
func (r *Registry) deregister(key string, entry *registeredProcess) {
	close(entry.done)

	r.mu.Lock()
	delete(r.procs, key)
	r.mu.Unlock()
}

// lookup returns the live entry for a key, if any.
func (r *Registry) lookup(key string) (*registeredProcess, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.procs[key]
	return entry, ok
}

// IsRegistered reports whether a live process is registered under key.
func (r *Registry) IsRegistered(key string) bool {
	_, ok := r.lookup(key)
	return ok
}

// Count returns the number of currently registered processes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.procs)
}

// Cancel sends a graceful stop signal to the process registered under key
// and escalates to a forceful kill if it has not exited within the grace
// period. It is idempotent and returns false when no process is registered.
func (r *Registry) Cancel(key string) bool {
	entry, ok := r.lookup(key)
	if !ok {
		return false
	}

	if err := entry.proc.Signal(syscall.SIGTERM); err != nil {
		r.logger.Warn("Failed to signal engine process",
			slog.String("operation_key", key),
			slog.String("error", err.Error()),
		)
		return false
	}

	// Escalate off the caller's path so command handling never blocks on a
	// stubborn process.
	go func() {
		select {
		case <-entry.done:
		case <-time.After(killGracePeriod):
			if err := entry.proc.Kill(); err != nil {
				r.logger.Warn("Failed to kill engine process",
					slog.String("operation_key", key),
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	r.logger.Info("Cancellation signal sent",
		slog.String("operation_key", key),
	)

	return true
}

// Pause suspends the process registered under key without killing it.
// Returns false as a normal no-op when the key is unregistered, e.g. the
// invocation has not started yet or already finished.
func (r *Registry) Pause(key string) bool {
	entry, ok := r.lookup(key)
	if !ok {
		return false
	}

	if err := entry.proc.Signal(syscall.SIGSTOP); err != nil {
		r.logger.Warn("Failed to pause engine process",
			slog.String("operation_key", key),
			slog.String("error", err.Error()),
		)
		return false
	}

	return true
}

// Resume continues a previously paused process. Returns false as a normal
// no-op when the key is unregistered.
func (r *Registry) Resume(key string) bool {
	entry, ok := r.lookup(key)
	if !ok {
		return false
	}

	if err := entry.proc.Signal(syscall.SIGCONT); err != nil {
		r.logger.Warn("Failed to resume engine process",
			slog.String("operation_key", key),
			slog.String("error", err.Error()),
		)
		return false
	}

	return true
}
