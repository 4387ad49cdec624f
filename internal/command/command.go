package command

import (
	"github.com/Whooptido-App/ASR-Captions/internal/session"
)

// Type identifies one inbound command variant. The set is closed: the
// dispatcher matches it exhaustively and answers anything else with a
// validation error ack.
type Type string

const (
	TypeInit       Type = "init"
	TypeChunk      Type = "chunk"
	TypeComplete   Type = "complete"
	TypeTranscribe Type = "transcribe"
	TypeCancel     Type = "cancel"
	TypePause      Type = "pause"
	TypeResume     Type = "resume"
	TypeStatus     Type = "status"
	TypeCleanup    Type = "cleanup"
)

// Command is one parsed inbound command. Field presence depends on the
// type; an omitted id on cancel/pause/resume/status/cleanup applies the
// operation to all live sessions.
type Command struct {
	Type Type   `json:"type"`
	ID   string `json:"id,omitempty"`

	// init
	TotalBytes  int64  `json:"totalBytes,omitempty"`
	TotalChunks int    `json:"totalChunks,omitempty"`
	ChunkBytes  int64  `json:"chunkBytes,omitempty"`
	Language    string `json:"language,omitempty"`
	ModelID     string `json:"modelId,omitempty"`

	// chunk
	Data       string `json:"data,omitempty"` // base64 audio payload
	ByteLength int    `json:"byteLength,omitempty"`
	Index      int    `json:"index,omitempty"`

	// transcribe
	FilePath string `json:"filePath,omitempty"`
}

// Ack is the single logical completion for one inbound command. Its type
// mirrors the command's with an "_ack" suffix.
type Ack struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`

	// Chunk acks carry the chunk's produced segments/words/text for
	// incremental rendering; complete and transcribe acks carry the final
	// transcript.
	Chunk      *session.ChunkResult `json:"chunk,omitempty"`
	Transcript *session.Transcript  `json:"transcript,omitempty"`
	Sessions   []session.Info       `json:"sessions,omitempty"`
	Affected   []string             `json:"affected,omitempty"`
	Preempted  []string             `json:"preempted,omitempty"`
}

// ackType derives the acknowledgement type for a command type.
func ackType(t Type) string {
	return string(t) + "_ack"
}
