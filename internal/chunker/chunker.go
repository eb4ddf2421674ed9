// Package chunker splits long text into token-bounded, paragraph-aware segments.
//
// Token counts are estimated from whitespace-delimited words, which is good enough
// for sizing prompt context but not for billing.
package chunker

import (
	"math"
	"regexp"
	"strings"
)

// TokensPerWord is the word-to-token ratio used by EstimateTokens.
const TokensPerWord = 1.3

// maxOverlapWords caps how many words a split paragraph repeats between pieces.
const maxOverlapWords = 50

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Segment is one piece of chunked text. Overlap is the number of leading words
// repeated from the end of the previous segment.
type Segment struct {
	Text    string
	Overlap int
}

// EstimateTokens returns the heuristic token count of text.
func EstimateTokens(text string) int {
	return tokensForWords(len(strings.Fields(text)))
}

func tokensForWords(words int) int {
	return int(math.Ceil(float64(words) * TokensPerWord))
}

// wordsForTokens is the largest word count whose estimate fits in maxTokens.
func wordsForTokens(maxTokens int) int {
	w := int(float64(maxTokens) / TokensPerWord)
	for w > 1 && tokensForWords(w) > maxTokens {
		w--
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Chunk splits text into ordered segments of at most maxTokens estimated tokens.
func Chunk(text string, maxTokens int) []string {
	segments := Split(text, maxTokens)
	if len(segments) == 0 {
		return nil
	}
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Text
	}
	return out
}

// Split is Chunk with overlap bookkeeping, so callers can reassemble the original words.
func Split(text string, maxTokens int) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxTokens < 1 {
		maxTokens = 1
	}
	if EstimateTokens(text) <= maxTokens {
		return []Segment{{Text: text}}
	}

	var (
		segments []Segment
		current  []string
		curWords int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		segments = append(segments, Segment{Text: strings.Join(current, "\n\n")})
		current = nil
		curWords = 0
	}

	for _, raw := range paragraphBreak.Split(text, -1) {
		para := strings.TrimSpace(raw)
		if para == "" {
			continue
		}
		words := len(strings.Fields(para))

		if tokensForWords(words) > maxTokens {
			flush()
			segments = append(segments, splitParagraph(para, maxTokens)...)
			continue
		}
		if curWords > 0 && tokensForWords(curWords+words) > maxTokens {
			flush()
		}
		current = append(current, para)
		curWords += words
	}
	flush()

	return segments
}

// splitParagraph cuts one oversized paragraph into word windows that repeat a
// bounded number of words from the previous window.
func splitParagraph(para string, maxTokens int) []Segment {
	words := strings.Fields(para)
	window := wordsForTokens(maxTokens)
	overlap := window / 10
	if overlap > maxOverlapWords {
		overlap = maxOverlapWords
	}
	step := window - overlap

	var out []Segment
	for start := 0; start < len(words); start += step {
		end := start + window
		if end > len(words) {
			end = len(words)
		}
		seg := Segment{Text: strings.Join(words[start:end], " ")}
		if start > 0 {
			seg.Overlap = overlap
		}
		out = append(out, seg)
		if end == len(words) {
			break
		}
	}
	return out
}
