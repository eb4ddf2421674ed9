package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/keepsake/internal/apperr"
)

func TestCachedEmbedderEmbedsOnlyMisses(t *testing.T) {
	next := &countingEmbedder{}
	cache := &mapCache{data: map[string][]float32{}}
	e := NewCachedEmbedder(next, cache, nil)
	ctx := context.Background()

	first, err := e.EmbedTexts(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := e.EmbedTexts(ctx, []string{"beta", "gamma!", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, []float32{6, 1}, second[1])

	require.Len(t, next.calls, 2)
	assert.Equal(t, []string{"gamma!"}, next.calls[1])
	assert.Equal(t, "test-embed", e.Model())
}

func TestCachedEmbedderFallsThroughOnCacheError(t *testing.T) {
	next := &countingEmbedder{}
	e := NewCachedEmbedder(next, &mapCache{data: map[string][]float32{}, failGet: true}, nil)

	out, err := e.EmbedTexts(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}}, out)
}

func TestCachedEmbedderPropagatesProviderError(t *testing.T) {
	boom := errors.New("provider down")
	e := NewCachedEmbedder(&countingEmbedder{err: boom}, &mapCache{data: map[string][]float32{}}, nil)
	_, err := e.EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
}

func TestCachedEmbedderRejectsShortProviderAnswer(t *testing.T) {
	cache := &mapCache{data: map[string][]float32{}}
	e := NewCachedEmbedder(&countingEmbedder{short: 2}, cache, nil)

	out, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperr.ErrMalformedPayload)
	assert.Empty(t, cache.data)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}))
}
