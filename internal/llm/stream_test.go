package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/keepsake/internal/apperr"
)

func TestCollectSkipsMalformedFragments(t *testing.T) {
	bad := apperr.MalformedPayload("test", errors.New("bad chunk"))
	s := &fakeStreamer{stream: &fakeStream{
		frags: []string{"Hello", "", ", world", "!"},
		errs:  []error{nil, bad, nil, nil},
	}}

	out, err := Collect(context.Background(), s, GenerateRequest{SystemPrompt: "sys"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", out)
	assert.Equal(t, "sys", s.req.SystemPrompt)
}

func TestCollectAbortsOnRepeatedMalformed(t *testing.T) {
	bad := apperr.MalformedPayload("test", errors.New("bad chunk"))
	frags := make([]string, maxMalformedInRow+2)
	errs := make([]error, len(frags))
	for i := range errs {
		errs[i] = bad
	}
	s := &fakeStreamer{stream: &fakeStream{frags: frags, errs: errs}}

	_, err := Collect(context.Background(), s, GenerateRequest{}, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindMalformedPayload))
}

func TestCollectPropagatesUpstreamErrors(t *testing.T) {
	s := &fakeStreamer{stream: &fakeStream{
		frags: []string{"partial", ""},
		errs:  []error{nil, apperr.RateLimited("test", errors.New("429"))},
	}}
	out, err := Collect(context.Background(), s, GenerateRequest{}, nil)
	assert.Equal(t, "partial", out)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	s = &fakeStreamer{err: apperr.AuthFailure("test", errors.New("401"))}
	_, err = Collect(context.Background(), s, GenerateRequest{}, nil)
	assert.ErrorIs(t, err, apperr.ErrAuthFailure)
}

func TestPipeStream(t *testing.T) {
	p := newPipeStream(context.Background(), func(ctx context.Context, emit func(string) bool) error {
		for _, f := range []string{"a", "b", "c"} {
			if !emit(f) {
				return ctx.Err()
			}
		}
		return nil
	})
	var got string
	for {
		f, err := p.Recv()
		if err != nil {
			assert.EqualError(t, err, "EOF")
			break
		}
		got += f
	}
	assert.Equal(t, "abc", got)
	require.NoError(t, p.Close())
}

func TestPipeStreamReportsRunError(t *testing.T) {
	boom := apperr.RateLimited("claude", errors.New("overloaded"))
	p := newPipeStream(context.Background(), func(ctx context.Context, emit func(string) bool) error {
		emit("x")
		return boom
	})
	f, err := p.Recv()
	require.NoError(t, err)
	assert.Equal(t, "x", f)
	_, err = p.Recv()
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
}
