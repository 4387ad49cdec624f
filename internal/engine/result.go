package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Whooptido-App/ASR-Captions/internal/transcript"
)

// engineOffsets is a millisecond interval in the engine's result JSON.
type engineOffsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// engineToken is one sub-word token entry. The probability is optional;
// entries without one default to 1.0.
type engineToken struct {
	Text    string        `json:"text"`
	Offsets engineOffsets `json:"offsets"`
	P       *float64      `json:"p"`
}

// engineSegment is one recognized span in the engine's result JSON.
type engineSegment struct {
	Offsets engineOffsets `json:"offsets"`
	Text    string        `json:"text"`
	Tokens  []engineToken `json:"tokens"`
}

// engineResult is the engine's result file layout: an ordered list of
// segments plus a top-level joined text field.
type engineResult struct {
	Transcription []engineSegment `json:"transcription"`
	Text          string          `json:"text"`
}

// readResult reads and normalizes the engine's result file into segments
// with merged, confidence-scored words and second-based timestamps.
func readResult(path string) ([]transcript.Segment, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &ResultError{Path: path, Err: err}
	}

	var raw engineResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, "", &ResultError{Path: path, Err: fmt.Errorf("malformed result JSON: %w", err)}
	}

	segments := make([]transcript.Segment, 0, len(raw.Transcription))
	fragments := make([]string, 0, len(raw.Transcription))

	for _, seg := range raw.Transcription {
		tokens := make([]transcript.Token, 0, len(seg.Tokens))
		for _, tok := range seg.Tokens {
			p := 1.0
			if tok.P != nil {
				p = *tok.P
			}

			tokens = append(tokens, transcript.Token{
				Text:  tok.Text,
				Start: float64(tok.Offsets.From) / 1000.0,
				End:   float64(tok.Offsets.To) / 1000.0,
				P:     p,
			})
		}

		segments = append(segments, transcript.Segment{
			Start: float64(seg.Offsets.From) / 1000.0,
			End:   float64(seg.Offsets.To) / 1000.0,
			Text:  strings.TrimSpace(seg.Text),
			Words: transcript.MergeTokens(tokens),
		})

		fragments = append(fragments, seg.Text)
	}

	text := strings.TrimSpace(raw.Text)
	if text == "" {
		text = transcript.JoinText(fragments)
	}

	return segments, text, nil
}
