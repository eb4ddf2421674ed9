// Package llmtest provides deterministic providers for tests.
package llmtest

import (
	"context"
	"hash/fnv"
	"io"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/agenthands/keepsake/internal/llm"
)

// HashEmbedder embeds text as a normalized bag of hashed words, so texts that
// share words are similar. Fail, when set, is returned for every call.
type HashEmbedder struct {
	Dim  int
	Fail error

	mu    sync.Mutex
	calls int
	texts int
}

func (e *HashEmbedder) Model() string { return "hash" }

// Calls returns how many EmbedTexts calls and input texts were seen.
func (e *HashEmbedder) Calls() (calls, texts int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.texts
}

func (e *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Fail != nil {
		return nil, e.Fail
	}
	dim := e.Dim
	if dim == 0 {
		dim = 64
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, dim)
	}
	return out, nil
}

// Vector is the embedding HashEmbedder produces for text.
func Vector(text string, dim int) []float32 {
	v := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// ScriptedStreamer answers each StreamGenerate call with the next response,
// split into fragments of FragmentSize runes. The last response repeats.
type ScriptedStreamer struct {
	Responses    []string
	Err          error
	FragmentSize int

	mu       sync.Mutex
	Requests []llm.GenerateRequest
}

func (s *ScriptedStreamer) StreamGenerate(ctx context.Context, req llm.GenerateRequest) (llm.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var resp string
	if len(s.Responses) > 0 {
		i := min(len(s.Requests)-1, len(s.Responses)-1)
		resp = s.Responses[i]
	}
	size := s.FragmentSize
	if size <= 0 {
		size = 16
	}
	var frags []string
	r := []rune(resp)
	for i := 0; i < len(r); i += size {
		frags = append(frags, string(r[i:min(i+size, len(r))]))
	}
	return &sliceStream{frags: frags}, nil
}

// CallCount returns how many streams were opened.
func (s *ScriptedStreamer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

type sliceStream struct {
	frags []string
	pos   int
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.frags) {
		return "", io.EOF
	}
	s.pos++
	return s.frags[s.pos-1], nil
}

func (s *sliceStream) Close() error { return nil }
