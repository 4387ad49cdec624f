package command

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Whooptido-App/ASR-Captions/internal/audio"
	"github.com/Whooptido-App/ASR-Captions/internal/engine"
	"github.com/Whooptido-App/ASR-Captions/internal/metrics"
	"github.com/Whooptido-App/ASR-Captions/internal/session"
)

// Prometheus collectors register globally, so all dispatcher tests share
// one Metrics instance.
var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport records pushed acks for assertions.
type fakeTransport struct {
	mu   sync.Mutex
	acks []Ack
}

func (f *fakeTransport) Receive() (*Command, error) { return nil, io.EOF }

func (f *fakeTransport) Push(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, msg.(Ack))
	return nil
}

func (f *fakeTransport) last(t *testing.T) Ack {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.acks) == 0 {
		t.Fatal("No acks pushed")
	}
	return f.acks[len(f.acks)-1]
}

const stubEngineResult = `prefix=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-of" ]; then prefix="$a"; fi
  prev="$a"
done
cat > "$prefix.json" <<'EOF'
{
  "transcription": [
    {
      "offsets": {"from": 0, "to": 600},
      "text": " testing",
      "tokens": [
        {"text": " testing", "offsets": {"from": 0, "to": 600}, "p": 0.95}
      ]
    }
  ],
  "text": " testing"
}
EOF
`

func newTestSessionManager(t *testing.T) *session.Manager {
	t.Helper()

	dir := t.TempDir()

	binary := filepath.Join(dir, "stub-engine")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"+stubEngineResult), 0o755); err != nil {
		t.Fatalf("Failed to write stub engine: %v", err)
	}

	modelsDir := filepath.Join(dir, "models")
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		t.Fatalf("Failed to create models dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelsDir, "ggml-base.bin"), []byte("model"), 0o644); err != nil {
		t.Fatalf("Failed to create model file: %v", err)
	}

	scratchDir := filepath.Join(dir, "scratch")
	registry := engine.NewRegistry(testLogger())
	invoker, err := engine.NewInvoker(engine.Config{
		BinaryPath: binary,
		ModelsDir:  modelsDir,
		ScratchDir: scratchDir,
		MaxThreads: 2,
	}, registry, testLogger())
	if err != nil {
		t.Fatalf("NewInvoker failed: %v", err)
	}

	mgr, err := session.NewManager(session.Config{
		ScratchDir:   scratchDir,
		DefaultModel: "base",
	}, invoker, testLogger())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	return mgr
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeTransport) {
	t.Helper()

	transport := &fakeTransport{}
	return NewDispatcher(newTestSessionManager(t), transport, testLogger(), sharedMetrics()), transport
}

func makeChunkData(t *testing.T) string {
	t.Helper()

	samples := make([]int16, 800)
	wav, err := audio.EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	return base64.StdEncoding.EncodeToString(wav)
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, transport := newTestDispatcher(t)

	d.Dispatch(context.Background(), &Command{Type: "bogus"})

	ack := transport.last(t)
	if ack.Success {
		t.Error("Expected error ack for unknown command")
	}
	if ack.ErrorKind != "validation" {
		t.Errorf("Expected validation kind, got %s", ack.ErrorKind)
	}
}

func TestDispatchChunkValidation(t *testing.T) {
	d, transport := newTestDispatcher(t)

	tests := []struct {
		name string
		cmd  Command
	}{
		{
			name: "missing id",
			cmd:  Command{Type: TypeChunk, Data: "aGVsbG8="},
		},
		{
			name: "invalid base64",
			cmd:  Command{Type: TypeChunk, ID: "s", Data: "!!not base64!!"},
		},
		{
			name: "byte length mismatch",
			cmd:  Command{Type: TypeChunk, ID: "s", Data: "aGVsbG8=", ByteLength: 99},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.Dispatch(context.Background(), &tt.cmd)

			ack := transport.last(t)
			if ack.Success {
				t.Error("Expected error ack")
			}
			if ack.Type != "chunk_ack" {
				t.Errorf("Expected chunk_ack, got %s", ack.Type)
			}
			if ack.ErrorKind != "validation" {
				t.Errorf("Expected validation kind, got %s", ack.ErrorKind)
			}
		})
	}
}

func TestDispatchChunkUnknownSession(t *testing.T) {
	d, transport := newTestDispatcher(t)

	invocationsBefore := testutil.ToFloat64(sharedMetrics().EngineInvocations)

	d.Dispatch(context.Background(), &Command{
		Type: TypeChunk,
		ID:   "ghost",
		Data: makeChunkData(t),
	})
	d.wg.Wait()

	ack := transport.last(t)
	if ack.Success || ack.ErrorKind != "validation" {
		t.Errorf("Expected validation error ack, got %+v", ack)
	}

	// The engine never ran, so the invocation counter must not move.
	if after := testutil.ToFloat64(sharedMetrics().EngineInvocations); after != invocationsBefore {
		t.Errorf("Invocation counter moved without an engine call: %f -> %f", invocationsBefore, after)
	}
}

// failingTransport reports one receive failure, then a closed stream, the
// way the stdio transport behaves after an unrecoverable scanner error.
type failingTransport struct {
	fakeTransport
	receives int
}

func (f *failingTransport) Receive() (*Command, error) {
	f.receives++
	if f.receives == 1 {
		return nil, errors.New("stream corrupted")
	}
	return nil, io.EOF
}

func TestRunStopsAfterTransportFailure(t *testing.T) {
	transport := &failingTransport{}
	d := NewDispatcher(newTestSessionManager(t), transport, testLogger(), sharedMetrics())

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.acks) != 1 {
		t.Fatalf("Expected exactly one error ack, got %d", len(transport.acks))
	}
	if transport.acks[0].Success || transport.acks[0].Type != "error_ack" {
		t.Errorf("Unexpected ack: %+v", transport.acks[0])
	}
}

func TestDispatchEndToEnd(t *testing.T) {
	d, transport := newTestDispatcher(t)
	ctx := context.Background()

	d.Dispatch(ctx, &Command{Type: TypeInit, ID: "s1", TotalChunks: 1})
	if ack := transport.last(t); !ack.Success || ack.Type != "init_ack" {
		t.Fatalf("Unexpected init ack: %+v", ack)
	}

	d.Dispatch(ctx, &Command{Type: TypeChunk, ID: "s1", Index: 0, Data: makeChunkData(t)})
	d.wg.Wait()

	ack := transport.last(t)
	if !ack.Success || ack.Type != "chunk_ack" {
		t.Fatalf("Unexpected chunk ack: %+v", ack)
	}
	if ack.Chunk == nil || ack.Chunk.Text != "testing" {
		t.Errorf("Chunk ack missing result: %+v", ack.Chunk)
	}

	d.Dispatch(ctx, &Command{Type: TypeComplete, ID: "s1"})
	ack = transport.last(t)
	if !ack.Success || ack.Type != "complete_ack" {
		t.Fatalf("Unexpected complete ack: %+v", ack)
	}
	if ack.Transcript == nil || ack.Transcript.Text != "testing" {
		t.Errorf("Complete ack missing transcript: %+v", ack.Transcript)
	}
}

func TestDispatchStatusAndCancelAll(t *testing.T) {
	d, transport := newTestDispatcher(t)
	ctx := context.Background()

	d.Dispatch(ctx, &Command{Type: TypeInit, ID: "s1"})

	// Status without id reports all live sessions.
	d.Dispatch(ctx, &Command{Type: TypeStatus})
	ack := transport.last(t)
	if !ack.Success || len(ack.Sessions) != 1 || ack.Sessions[0].ID != "s1" {
		t.Errorf("Unexpected status ack: %+v", ack)
	}

	// Cancel without id applies to all live sessions.
	d.Dispatch(ctx, &Command{Type: TypeCancel})
	ack = transport.last(t)
	if !ack.Success || len(ack.Affected) != 1 || ack.Affected[0] != "s1" {
		t.Errorf("Unexpected cancel ack: %+v", ack)
	}

	// A second cancel is a clean no-op.
	d.Dispatch(ctx, &Command{Type: TypeCancel})
	ack = transport.last(t)
	if !ack.Success || len(ack.Affected) != 0 {
		t.Errorf("Unexpected repeat cancel ack: %+v", ack)
	}
}

func TestDispatchPauseResumeUnknown(t *testing.T) {
	d, transport := newTestDispatcher(t)
	ctx := context.Background()

	d.Dispatch(ctx, &Command{Type: TypePause, ID: "ghost"})
	if ack := transport.last(t); ack.Success || ack.ErrorKind != "validation" {
		t.Errorf("Unexpected pause ack: %+v", ack)
	}

	d.Dispatch(ctx, &Command{Type: TypeResume, ID: "ghost"})
	if ack := transport.last(t); ack.Success || ack.ErrorKind != "validation" {
		t.Errorf("Unexpected resume ack: %+v", ack)
	}
}

func TestDispatchCleanup(t *testing.T) {
	d, transport := newTestDispatcher(t)
	ctx := context.Background()

	d.Dispatch(ctx, &Command{Type: TypeInit, ID: "s1"})
	d.Dispatch(ctx, &Command{Type: TypeCleanup, ID: "s1"})

	ack := transport.last(t)
	if !ack.Success || len(ack.Affected) != 1 {
		t.Errorf("Unexpected cleanup ack: %+v", ack)
	}

	// Cleanup of an unknown session still acks successfully.
	d.Dispatch(ctx, &Command{Type: TypeCleanup, ID: "ghost"})
	if ack := transport.last(t); !ack.Success {
		t.Errorf("Cleanup of unknown session should succeed: %+v", ack)
	}
}
