package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Whooptido-App/ASR-Captions/internal/transcript"
)

// Config contains engine invoker configuration
type Config struct {
	BinaryPath string // Recognition engine executable
	ModelsDir  string // Directory holding conventionally-named model files
	ScratchDir string // Directory for per-call result files
	MaxThreads int    // Upper bound on engine threads per invocation
}

// Request describes one recognition call.
type Request struct {
	AudioPath    string
	Language     string // Empty means automatic detection
	Model        string
	OperationKey string
	IsCancelled  func() bool // Consulted to reclassify failures as cancellation
}

// Result is the normalized output of one recognition call.
type Result struct {
	Segments []transcript.Segment
	Text     string
	Elapsed  time.Duration
}

// Stats holds invoker statistics for monitoring
type Stats struct {
	TotalInvocations uint64  `json:"total_invocations"`
	Successful       uint64  `json:"successful"`
	Failed           uint64  `json:"failed"`
	Cancelled        uint64  `json:"cancelled"`
	SuccessRate      float64 `json:"success_rate"`
	AvgElapsed       float64 `json:"avg_elapsed_seconds"`
}

// Invoker launches one recognition subprocess per call and normalizes its
// token-level JSON output. Process handles are registered under the call's
// operation key for the duration of the call so signal-based cancel, pause,
// and resume can target them.
type Invoker struct {
	config   Config
	registry *Registry
	logger   *slog.Logger

	// Statistics
	totalInvocations uint64
	successful       uint64
	failed           uint64
	cancelled        uint64
	totalElapsed     time.Duration
	mu               sync.RWMutex
}

// NewInvoker creates a new engine invoker
func NewInvoker(config Config, registry *Registry, logger *slog.Logger) (*Invoker, error) {
	if config.BinaryPath == "" {
		return nil, fmt.Errorf("engine binary path cannot be empty")
	}

	return &Invoker{
		config:   config,
		registry: registry,
		logger:   logger,
	}, nil
}

// Registry returns the process registry this invoker registers calls with.
func (inv *Invoker) Registry() *Registry {
	return inv.registry
}

// Invoke runs the recognition engine on one audio file and returns its
// normalized output. The subprocess is registered under the request's
// operation key for the call's duration and deregistered exactly once on
// every exit path. Temporary result files are deleted unconditionally.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	if req.IsCancelled != nil && req.IsCancelled() {
		inv.recordOutcome(0, ErrCancelled)
		return nil, ErrCancelled
	}

	modelPath, err := resolveModelPath(inv.config.ModelsDir, req.Model)
	if err != nil {
		launchErr := &LaunchError{Binary: inv.config.BinaryPath, Err: err}
		inv.recordOutcome(0, launchErr)
		return nil, launchErr
	}

	language := req.Language
	if language == "" {
		language = "auto"
	}

	preset := resolveAlignmentPreset(req.Model, modelPath)
	threads := threadCount(inv.config.MaxThreads)
	outputPrefix := filepath.Join(inv.config.ScratchDir, "result-"+req.OperationKey)
	resultPath := outputPrefix + ".json"

	args := []string{
		"-m", modelPath,
		"-l", language,
		"-t", strconv.Itoa(threads),
		"--dtw", preset,
		"-oj",
		"-of", outputPrefix,
		"-np",
		"-f", req.AudioPath,
	}

	inv.logger.Info("Invoking recognition engine",
		slog.String("operation_key", req.OperationKey),
		slog.String("model", modelPath),
		slog.String("language", language),
		slog.String("alignment_preset", preset),
		slog.Int("threads", threads),
		slog.String("audio_path", req.AudioPath),
	)

	cmd := exec.CommandContext(ctx, inv.config.BinaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		launchErr := &LaunchError{Binary: inv.config.BinaryPath, Err: err}
		inv.recordOutcome(time.Since(startTime), launchErr)
		return nil, launchErr
	}

	entry := inv.registry.register(req.OperationKey, cmd.Process)
	waitErr := cmd.Wait()
	inv.registry.deregister(req.OperationKey, entry)

	elapsed := time.Since(startTime)

	// The result file is single-use; remove it on every path past this point.
	defer os.Remove(resultPath)

	if waitErr != nil {
		if req.IsCancelled != nil && req.IsCancelled() {
			inv.recordOutcome(elapsed, ErrCancelled)
			return nil, ErrCancelled
		}

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		execErr := &ExecutionError{ExitCode: exitCode, Stderr: stderr.String()}
		inv.recordOutcome(elapsed, execErr)

		inv.logger.Error("Engine execution failed",
			slog.String("operation_key", req.OperationKey),
			slog.Int("exit_code", exitCode),
			slog.String("stderr", stderr.String()),
		)

		return nil, execErr
	}

	segments, text, err := readResult(resultPath)
	if err != nil {
		inv.recordOutcome(elapsed, err)
		return nil, err
	}

	inv.recordOutcome(elapsed, nil)

	inv.logger.Info("Engine invocation completed",
		slog.String("operation_key", req.OperationKey),
		slog.Int("segments", len(segments)),
		slog.Duration("elapsed", elapsed),
	)

	return &Result{
		Segments: segments,
		Text:     text,
		Elapsed:  elapsed,
	}, nil
}

// recordOutcome updates invocation statistics
func (inv *Invoker) recordOutcome(elapsed time.Duration, err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.totalInvocations++
	inv.totalElapsed += elapsed

	switch {
	case err == nil:
		inv.successful++
	case errors.Is(err, ErrCancelled):
		inv.cancelled++
	default:
		inv.failed++
	}
}

// GetStats returns current invoker statistics
func (inv *Invoker) GetStats() Stats {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	stats := Stats{
		TotalInvocations: inv.totalInvocations,
		Successful:       inv.successful,
		Failed:           inv.failed,
		Cancelled:        inv.cancelled,
	}

	if inv.totalInvocations > 0 {
		stats.SuccessRate = float64(inv.successful) / float64(inv.totalInvocations) * 100.0
		stats.AvgElapsed = inv.totalElapsed.Seconds() / float64(inv.totalInvocations)
	}

	return stats
}
