package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Whooptido-App/ASR-Captions/internal/engine"
)

// TranscribeParams describes a whole-file recognition call.
type TranscribeParams struct {
	ID       string
	FilePath string
	Language string
	Model    string
}

// TranscribeFile runs one whole-file recognition call. A direct session is
// registered for the call's duration, preempting all other live sessions,
// and deleted on completion or failure. Returns the transcript and the ids
// of the preempted sessions.
func (m *Manager) TranscribeFile(ctx context.Context, p TranscribeParams) (*Transcript, []string, error) {
	if p.ID == "" {
		return nil, nil, &ValidationError{Message: "session id is required"}
	}

	if p.FilePath == "" {
		return nil, nil, &ValidationError{Message: "file path is required"}
	}

	if _, err := os.Stat(p.FilePath); err != nil {
		return nil, nil, &ValidationError{Message: fmt.Sprintf("audio file not found: %s", p.FilePath)}
	}

	preempted := m.PreemptOthers(p.ID)
	m.RemoveDirect(p.ID)

	language := p.Language
	if language == "" {
		language = m.config.DefaultLanguage
	}

	model := p.Model
	if model == "" {
		model = m.config.DefaultModel
	}

	now := time.Now()
	session := &DirectSession{
		ID:           p.ID,
		OperationKey: p.ID,
		Status:       StatusRunning,
		StartedAt:    now,
		UpdatedAt:    now,
	}

	m.mu.Lock()
	m.direct[p.ID] = session
	m.mu.Unlock()

	defer m.RemoveDirect(p.ID)

	m.logger.Info("Created direct session",
		slog.String("session_id", p.ID),
		slog.String("file_path", p.FilePath),
		slog.Int("preempted", len(preempted)),
	)

	result, err := m.invoker.Invoke(ctx, engine.Request{
		AudioPath:    p.FilePath,
		Language:     language,
		Model:        model,
		OperationKey: session.OperationKey,
		IsCancelled:  session.IsCancelled,
	})
	if err != nil {
		return nil, preempted, err
	}

	return &Transcript{
		ID:       p.ID,
		Segments: result.Segments,
		Text:     result.Text,
		Duration: result.Elapsed.Seconds(),
	}, preempted, nil
}
