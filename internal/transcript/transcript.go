package transcript

import (
	"sort"
	"strings"
)

// Word represents one recognized word merged from sub-word tokens,
// with times in seconds and an aggregated confidence in [0, 1].
type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Segment represents a contiguous recognized speech span.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words"`
}

// ShiftSegments offsets chunk-local segment and word timestamps onto the
// session's global timeline. The offset is the stream position, in seconds,
// at which the chunk's PCM began.
func ShiftSegments(segments []Segment, offsetSec float64) {
	for i := range segments {
		segments[i].Start += offsetSec
		segments[i].End += offsetSec

		for j := range segments[i].Words {
			segments[i].Words[j].Start += offsetSec
			segments[i].Words[j].End += offsetSec
		}
	}
}

// SortSegments orders accumulated segments ascending by start time.
// The sort is stable: segments with equal starts keep their arrival order.
func SortSegments(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

// JoinText joins per-chunk text fragments with single spaces and collapses
// repeated whitespace, yielding the final transcript text.
func JoinText(fragments []string) string {
	return strings.Join(strings.Fields(strings.Join(fragments, " ")), " ")
}
