package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/apperr"
)

// VectorCache stores embeddings by key. Get returns nil entries for misses.
type VectorCache interface {
	Get(ctx context.Context, keys []string) ([][]float32, error)
	Set(ctx context.Context, keys []string, vectors [][]float32) error
}

// CachedEmbedder serves repeated texts from a cache and embeds only the misses.
// Cache failures are logged and fall through to the provider.
type CachedEmbedder struct {
	next  Embedder
	cache VectorCache
	log   *zap.Logger
}

func NewCachedEmbedder(next Embedder, cache VectorCache, log *zap.Logger) *CachedEmbedder {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedEmbedder{next: next, cache: cache, log: log.Named("embedding_cache")}
}

func (c *CachedEmbedder) Model() string { return c.next.Model() }

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.next.Model() + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out, err := c.cache.Get(ctx, keys)
	if err != nil || len(out) != len(texts) {
		if err != nil {
			c.log.Warn("embedding cache read failed", zap.Error(err))
		}
		out = make([][]float32, len(texts))
	}

	var (
		missIdx   []int
		missTexts []string
	)
	for i, v := range out {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.next.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, apperr.MalformedPayload(c.next.Model(),
			fmt.Errorf("got %d vectors for %d texts", len(fresh), len(missTexts)))
	}
	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		out[i] = fresh[j]
		missKeys[j] = keys[i]
	}
	if err := c.cache.Set(ctx, missKeys, fresh); err != nil {
		c.log.Warn("embedding cache write failed", zap.Error(err))
	}
	return out, nil
}

// RedisVectorCache keeps little-endian float32 blobs in redis with a TTL.
type RedisVectorCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisVectorCache connects and pings redis.
func NewRedisVectorCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisVectorCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisVectorCache{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisVectorCache) Close() error { return r.rdb.Close() }

func (r *RedisVectorCache) Get(ctx context.Context, keys []string) ([][]float32, error) {
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}
	out := make([][]float32, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = decodeVector([]byte(s))
	}
	return out, nil
}

func (r *RedisVectorCache) Set(ctx context.Context, keys []string, vectors [][]float32) error {
	pipe := r.rdb.Pipeline()
	for i, k := range keys {
		pipe.Set(ctx, k, encodeVector(vectors[i]), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
