package llm

import (
	"context"
	"io"
	"sync"
)

type fakeStream struct {
	frags []string
	errs  []error
	pos   int
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos >= len(s.frags) {
		return "", io.EOF
	}
	i := s.pos
	s.pos++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.frags[i], nil
}

func (s *fakeStream) Close() error { return nil }

type fakeStreamer struct {
	stream *fakeStream
	err    error
	req    GenerateRequest
}

func (f *fakeStreamer) StreamGenerate(_ context.Context, req GenerateRequest) (Stream, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type countingEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	// short drops this many vectors from every answer.
	short int
}

func (e *countingEmbedder) Model() string { return "test-embed" }

func (e *countingEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out[:max(len(out)-e.short, 0)], nil
}

type mapCache struct {
	data    map[string][]float32
	failGet bool
}

func (c *mapCache) Get(_ context.Context, keys []string) ([][]float32, error) {
	if c.failGet {
		return nil, io.ErrUnexpectedEOF
	}
	out := make([][]float32, len(keys))
	for i, k := range keys {
		out[i] = c.data[k]
	}
	return out, nil
}

func (c *mapCache) Set(_ context.Context, keys []string, vectors [][]float32) error {
	for i, k := range keys {
		c.data[k] = vectors[i]
	}
	return nil
}
