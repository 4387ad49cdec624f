package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Whooptido-App/ASR-Captions/internal/audio"
	"github.com/Whooptido-App/ASR-Captions/internal/engine"
	"github.com/Whooptido-App/ASR-Captions/internal/transcript"
)

// ChunkParams describes one inbound audio chunk.
type ChunkParams struct {
	ID          string
	Data        []byte
	Index       int
	TotalChunks int
}

// ProcessChunk consumes one chunk of a session's audio stream: parses the
// WAV header if this is the first chunk, appends the PCM payload to the
// scratch file, re-wraps it as a standalone WAV, and runs one engine
// invocation over it. The returned result is already shifted onto the
// session timeline. Callers serialize chunk submission per session.
func (m *Manager) ProcessChunk(ctx context.Context, p ChunkParams) (*ChunkResult, error) {
	session, ok := m.getChunked(p.ID)
	if !ok {
		return nil, &ValidationError{Message: fmt.Sprintf("session not found: %s", p.ID)}
	}

	if len(p.Data) == 0 {
		return nil, &ValidationError{Message: "chunk data is empty"}
	}

	if session.IsCancelled() {
		return nil, engine.ErrCancelled
	}

	session.mu.Lock()

	payload := p.Data
	if session.Format == nil {
		format, err := audio.ParseHeader(p.Data)
		if err != nil {
			session.mu.Unlock()

			// An unparseable header aborts the session.
			m.RemoveChunked(p.ID)
			return nil, &AudioFormatError{SessionID: p.ID, Err: err}
		}

		session.Format = format
		payload = p.Data[audio.HeaderSize:]

		m.logger.Info("Parsed stream header",
			slog.String("session_id", p.ID),
			slog.Int("sample_rate", format.SampleRate),
			slog.Int("channels", format.Channels),
			slog.Int("bits_per_sample", format.BitsPerSample),
			slog.Int("byte_rate", format.ByteRate),
		)
	}

	// The chunk's time origin is the stream position before its PCM is
	// consumed.
	offsetSec := float64(session.BytesConsumed) / float64(session.Format.ByteRate)

	if err := appendToFile(session.ScratchPath, payload); err != nil {
		session.mu.Unlock()
		return nil, fmt.Errorf("failed to append to scratch file: %w", err)
	}

	session.ReceivedBytes += int64(len(p.Data))
	session.BytesConsumed += int64(len(payload))
	session.UpdatedAt = time.Now()

	operationKey := fmt.Sprintf("%s-chunk%d-%s", p.ID, p.Index, uuid.NewString())
	session.ActiveOperationKey = operationKey

	chunkWAV := audio.BuildChunkWAV(session.Format.Template, payload)
	language := session.Language
	model := session.Model

	session.mu.Unlock()

	defer func() {
		session.mu.Lock()
		if session.ActiveOperationKey == operationKey {
			session.ActiveOperationKey = ""
		}
		session.mu.Unlock()
	}()

	// Per-chunk WAV files are single-use.
	chunkPath := filepath.Join(m.config.ScratchDir, operationKey+".wav")
	defer os.Remove(chunkPath)

	if err := os.WriteFile(chunkPath, chunkWAV, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write chunk file: %w", err)
	}

	result, err := m.invoker.Invoke(ctx, engine.Request{
		AudioPath:    chunkPath,
		Language:     language,
		Model:        model,
		OperationKey: operationKey,
		IsCancelled:  session.IsCancelled,
	})
	if err != nil {
		return nil, err
	}

	transcript.ShiftSegments(result.Segments, offsetSec)

	session.mu.Lock()
	session.Segments = append(session.Segments, result.Segments...)
	if strings.TrimSpace(result.Text) != "" {
		session.Fragments = append(session.Fragments, result.Text)
	}
	session.UpdatedAt = time.Now()
	session.mu.Unlock()

	m.logger.Info("Chunk processed",
		slog.String("session_id", p.ID),
		slog.Int("chunk_index", p.Index),
		slog.Float64("offset_seconds", offsetSec),
		slog.Int("segments", len(result.Segments)),
		slog.Duration("elapsed", result.Elapsed),
	)

	return &ChunkResult{
		Index:    p.Index,
		Segments: result.Segments,
		Text:     result.Text,
	}, nil
}

// Complete finalizes a chunked session: sorts accumulated segments into
// chronological order, joins the text fragments, and tears the session
// down. The scratch file is deleted unconditionally.
func (m *Manager) Complete(id string) (*Transcript, error) {
	session, ok := m.getChunked(id)
	if !ok {
		return nil, &ValidationError{Message: fmt.Sprintf("session not found: %s", id)}
	}

	session.mu.Lock()

	transcript.SortSegments(session.Segments)
	text := transcript.JoinText(session.Fragments)

	var duration float64
	if session.Format != nil && session.Format.ByteRate > 0 {
		duration = float64(session.BytesConsumed) / float64(session.Format.ByteRate)
	} else {
		duration = time.Since(session.StartedAt).Seconds()
	}

	segments := session.Segments
	session.mu.Unlock()

	m.RemoveChunked(id)

	m.logger.Info("Session completed",
		slog.String("session_id", id),
		slog.Int("segments", len(segments)),
		slog.Float64("duration", duration),
	)

	return &Transcript{
		ID:       id,
		Segments: segments,
		Text:     text,
		Duration: duration,
	}, nil
}

// appendToFile appends data to the session's scratch file.
func appendToFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
