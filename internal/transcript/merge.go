package transcript

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Token is one sub-word recognition token as produced by the engine, with
// its interval already converted from milliseconds to seconds.
type Token struct {
	Text  string
	Start float64
	End   float64
	P     float64 // Token probability; 1.0 when the engine omits it
}

// Control markers like [_BEG_] or [_TT_150] carry no text and are dropped.
var controlMarkerRe = regexp.MustCompile(`^\[_[^\]]*\]$`)

// Timestamp markers like <|0.00|> can appear embedded in token text.
var timestampMarkerRe = regexp.MustCompile(`<\|[^|>]*\|>`)

// Noise glyphs the tokenizer leaks around word boundaries.
const noiseGlyphs = "�▁"

// minProbability floors token probabilities before taking logarithms so a
// zero-probability token cannot collapse a word's confidence to -Inf.
const minProbability = 1e-10

// MergeTokens collapses ordered sub-word tokens into words. A token starts a
// new word when it is the first surviving token, or its raw form has leading
// whitespace and its cleaned text is not pure punctuation; otherwise it is
// appended to the current word without a separator, which merges sub-word
// continuation pieces and trailing punctuation. A word's confidence is the
// geometric mean of its contributing token probabilities.
func MergeTokens(tokens []Token) []Word {
	words := make([]Word, 0, len(tokens))

	// Running log-probability fold for the word under construction.
	var logSum float64
	var logCount int

	finalize := func() {
		if len(words) == 0 || logCount == 0 {
			return
		}
		words[len(words)-1].Confidence = math.Exp(logSum / float64(logCount))
	}

	for _, token := range tokens {
		if controlMarkerRe.MatchString(token.Text) {
			continue
		}

		cleaned := timestampMarkerRe.ReplaceAllString(token.Text, "")
		cleaned = strings.Trim(cleaned, noiseGlyphs)
		trimmed := strings.TrimSpace(cleaned)
		if trimmed == "" {
			continue
		}

		startsWord := len(words) == 0 ||
			(hasLeadingWhitespace(token.Text) && !isPurePunctuation(trimmed))

		if startsWord {
			finalize()
			words = append(words, Word{
				Text:  trimmed,
				Start: token.Start,
				End:   token.End,
			})
			logSum = math.Log(math.Max(token.P, minProbability))
			logCount = 1
			continue
		}

		current := &words[len(words)-1]
		current.Text += trimmed
		current.End = token.End
		logSum += math.Log(math.Max(token.P, minProbability))
		logCount++
	}

	finalize()

	return words
}

func hasLeadingWhitespace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}

func isPurePunctuation(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return len(s) > 0
}
