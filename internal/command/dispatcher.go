package command

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Whooptido-App/ASR-Captions/internal/engine"
	"github.com/Whooptido-App/ASR-Captions/internal/metrics"
	"github.com/Whooptido-App/ASR-Captions/internal/session"
)

// Dispatcher runs the command loop: it receives one parsed command at a
// time, mutates session state synchronously, and pushes exactly one ack per
// command. Chunk and transcribe commands kick off asynchronous engine
// invocations so the loop itself never blocks on recognition.
type Dispatcher struct {
	manager   *session.Manager
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// Tracks in-flight asynchronous handlers so shutdown can drain them.
	wg sync.WaitGroup
}

// NewDispatcher creates a new command dispatcher
func NewDispatcher(manager *session.Manager, transport Transport, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		manager:   manager,
		transport: transport,
		logger:    logger,
		metrics:   m,
	}
}

// Run receives and dispatches commands until the transport reports EOF or
// the context is cancelled. In-flight asynchronous handlers are drained
// before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cmd, err := d.transport.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.logger.Info("Command stream closed")
				return nil
			}

			// A malformed line is non-fatal; the sender gets an error ack
			// so request/response pairing never hangs.
			d.logger.Warn("Failed to receive command", slog.String("error", err.Error()))
			d.push(Ack{Type: "error_ack", Error: err.Error(), ErrorKind: "validation"})
			continue
		}

		d.Dispatch(ctx, cmd)
	}
}

// Dispatch routes one command to its handler. The command set is closed;
// unknown types are answered with a validation error ack.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *Command) {
	d.metrics.RecordCommand(string(cmd.Type))

	switch cmd.Type {
	case TypeInit:
		d.handleInit(cmd)
	case TypeChunk:
		d.handleChunk(ctx, cmd)
	case TypeComplete:
		d.handleComplete(cmd)
	case TypeTranscribe:
		d.handleTranscribe(ctx, cmd)
	case TypeCancel:
		d.handleCancel(cmd)
	case TypePause:
		d.handlePause(cmd)
	case TypeResume:
		d.handleResume(cmd)
	case TypeStatus:
		d.handleStatus(cmd)
	case TypeCleanup:
		d.handleCleanup(cmd)
	default:
		d.pushError(string(cmd.Type)+"_ack", cmd.ID, cmd.Type,
			&session.ValidationError{Message: fmt.Sprintf("unknown command type: %s", cmd.Type)})
	}

	d.metrics.SetActiveSessions(d.manager.ActiveSessionCount())
}

func (d *Dispatcher) handleInit(cmd *Command) {
	_, preempted, err := d.manager.CreateChunked(session.InitParams{
		ID:          cmd.ID,
		TotalBytes:  cmd.TotalBytes,
		TotalChunks: cmd.TotalChunks,
		ChunkBytes:  cmd.ChunkBytes,
		Language:    cmd.Language,
		Model:       cmd.ModelID,
	})
	if err != nil {
		d.pushError(ackType(TypeInit), cmd.ID, TypeInit, err)
		return
	}

	d.metrics.RecordSessionCreated()
	for range preempted {
		d.metrics.RecordSessionPreempted()
	}

	d.push(Ack{Type: ackType(TypeInit), ID: cmd.ID, Success: true, Preempted: preempted})
}

func (d *Dispatcher) handleChunk(ctx context.Context, cmd *Command) {
	if cmd.ID == "" {
		d.pushError(ackType(TypeChunk), cmd.ID, TypeChunk,
			&session.ValidationError{Message: "session id is required"})
		return
	}

	data, err := base64.StdEncoding.DecodeString(cmd.Data)
	if err != nil {
		d.pushError(ackType(TypeChunk), cmd.ID, TypeChunk,
			&session.ValidationError{Message: fmt.Sprintf("invalid base64 chunk data: %v", err)})
		return
	}

	if cmd.ByteLength > 0 && cmd.ByteLength != len(data) {
		d.pushError(ackType(TypeChunk), cmd.ID, TypeChunk,
			&session.ValidationError{Message: fmt.Sprintf("declared byte length %d does not match payload %d", cmd.ByteLength, len(data))})
		return
	}

	d.metrics.RecordChunk(len(data))

	// The engine invocation is the loop's only true suspension point; it
	// runs off the loop so further commands keep flowing.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		startTime := time.Now()
		result, err := d.manager.ProcessChunk(ctx, session.ChunkParams{
			ID:          cmd.ID,
			Data:        data,
			Index:       cmd.Index,
			TotalChunks: cmd.TotalChunks,
		})
		d.recordInvocation(startTime, err)

		if err != nil {
			d.pushError(ackType(TypeChunk), cmd.ID, TypeChunk, err)
			return
		}

		d.push(Ack{Type: ackType(TypeChunk), ID: cmd.ID, Success: true, Chunk: result})
	}()
}

func (d *Dispatcher) handleComplete(cmd *Command) {
	transcript, err := d.manager.Complete(cmd.ID)
	if err != nil {
		d.pushError(ackType(TypeComplete), cmd.ID, TypeComplete, err)
		return
	}

	d.metrics.RecordSessionCompleted(transcript.Duration)

	d.push(Ack{Type: ackType(TypeComplete), ID: cmd.ID, Success: true, Transcript: transcript})
}

func (d *Dispatcher) handleTranscribe(ctx context.Context, cmd *Command) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		startTime := time.Now()
		transcript, preempted, err := d.manager.TranscribeFile(ctx, session.TranscribeParams{
			ID:       cmd.ID,
			FilePath: cmd.FilePath,
			Language: cmd.Language,
			Model:    cmd.ModelID,
		})
		d.recordInvocation(startTime, err)

		if err != nil {
			d.pushError(ackType(TypeTranscribe), cmd.ID, TypeTranscribe, err)
			return
		}

		d.push(Ack{Type: ackType(TypeTranscribe), ID: cmd.ID, Success: true, Transcript: transcript, Preempted: preempted})
	}()
}

func (d *Dispatcher) handleCancel(cmd *Command) {
	if cmd.ID == "" {
		cancelled := d.manager.CancelAll()
		for range cancelled {
			d.metrics.RecordSessionCancelled()
		}
		d.push(Ack{Type: ackType(TypeCancel), Success: true, Affected: cancelled})
		return
	}

	if err := d.manager.Cancel(cmd.ID); err != nil {
		d.pushError(ackType(TypeCancel), cmd.ID, TypeCancel, err)
		return
	}

	d.metrics.RecordSessionCancelled()
	d.push(Ack{Type: ackType(TypeCancel), ID: cmd.ID, Success: true, Affected: []string{cmd.ID}})
}

func (d *Dispatcher) handlePause(cmd *Command) {
	if cmd.ID == "" {
		d.push(Ack{Type: ackType(TypePause), Success: true, Affected: d.manager.PauseAll()})
		return
	}

	if err := d.manager.Pause(cmd.ID); err != nil {
		d.pushError(ackType(TypePause), cmd.ID, TypePause, err)
		return
	}

	d.push(Ack{Type: ackType(TypePause), ID: cmd.ID, Success: true, Affected: []string{cmd.ID}})
}

func (d *Dispatcher) handleResume(cmd *Command) {
	if cmd.ID == "" {
		d.push(Ack{Type: ackType(TypeResume), Success: true, Affected: d.manager.ResumeAll()})
		return
	}

	if err := d.manager.Resume(cmd.ID); err != nil {
		d.pushError(ackType(TypeResume), cmd.ID, TypeResume, err)
		return
	}

	d.push(Ack{Type: ackType(TypeResume), ID: cmd.ID, Success: true, Affected: []string{cmd.ID}})
}

func (d *Dispatcher) handleStatus(cmd *Command) {
	infos, err := d.manager.Status(cmd.ID)
	if err != nil {
		d.pushError(ackType(TypeStatus), cmd.ID, TypeStatus, err)
		return
	}

	d.push(Ack{Type: ackType(TypeStatus), ID: cmd.ID, Success: true, Sessions: infos})
}

func (d *Dispatcher) handleCleanup(cmd *Command) {
	if cmd.ID == "" {
		cleaned := d.manager.CleanupAll()
		for range cleaned {
			d.metrics.RecordSessionCancelled()
		}
		d.push(Ack{Type: ackType(TypeCleanup), Success: true, Affected: cleaned})
		return
	}

	if d.manager.Cleanup(cmd.ID) {
		d.metrics.RecordSessionCancelled()
		d.push(Ack{Type: ackType(TypeCleanup), ID: cmd.ID, Success: true, Affected: []string{cmd.ID}})
		return
	}

	d.push(Ack{Type: ackType(TypeCleanup), ID: cmd.ID, Success: true})
}

// recordInvocation counts an engine invocation only when the engine
// actually ran: success, or a failure classified as an engine kind.
// Failures before the call (unknown session, bad header) never inflate the
// invocation count.
func (d *Dispatcher) recordInvocation(startTime time.Time, err error) {
	if err != nil && !strings.HasPrefix(classifyError(err), "engine_") {
		return
	}

	d.metrics.RecordEngineInvocation(time.Since(startTime).Seconds())
}

// push sends one outbound message, logging delivery failures.
func (d *Dispatcher) push(ack Ack) {
	if err := d.transport.Push(ack); err != nil {
		d.logger.Error("Failed to push ack",
			slog.String("ack_type", ack.Type),
			slog.String("error", err.Error()),
		)
	}
}

// pushError converts a failure into an error-bearing ack at the
// command-handling boundary so request/response pairing never hangs.
func (d *Dispatcher) pushError(ackTypeName, id string, cmdType Type, err error) {
	d.metrics.RecordCommandError(string(cmdType))

	kind := classifyError(err)
	if strings.HasPrefix(kind, "engine_") {
		d.metrics.RecordEngineFailure(kind)
	}

	d.logger.Warn("Command failed",
		slog.String("command", string(cmdType)),
		slog.String("session_id", id),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)

	d.push(Ack{
		Type:      ackTypeName,
		ID:        id,
		Success:   false,
		Error:     err.Error(),
		ErrorKind: kind,
	})
}

// classifyError maps a failure to its taxonomy kind. Cancellation is
// checked first so user-initiated stops are never reported as engine bugs.
func classifyError(err error) string {
	var validationErr *session.ValidationError
	var formatErr *session.AudioFormatError
	var launchErr *engine.LaunchError
	var execErr *engine.ExecutionError
	var resultErr *engine.ResultError

	switch {
	case errors.Is(err, engine.ErrCancelled):
		return "cancelled"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &formatErr):
		return "audio_format"
	case errors.As(err, &launchErr):
		return "engine_launch"
	case errors.As(err, &execErr):
		return "engine_execution"
	case errors.As(err, &resultErr):
		return "engine_result"
	default:
		return "internal"
	}
}
