package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gwi.com/chatbot-backend/internal/metrics"
)

// NewRedisClient connects to redisURL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// CachedEmbedder serves embeddings from Redis and asks the wrapped embedder
// only for texts it has not seen. Cache failures are logged and bypassed.
type CachedEmbedder struct {
	next   Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewCachedEmbedder(next Embedder, client *redis.Client, model string, ttl time.Duration, logger zerolog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		next:   next,
		client: client,
		model:  model,
		ttl:    ttl,
		log:    logger,
	}
}

// cacheKey returns the key for a text's embedding under a model.
func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", model, hex.EncodeToString(sum[:]))
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = cacheKey(c.model, text)
	}

	vectors := make([][]float32, len(texts))
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("embedding cache read failed")
		cached = nil
	}
	for i, val := range cached {
		raw, ok := val.(string)
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			c.log.Warn().Err(err).Str("key", keys[i]).Msg("discarding corrupt embedding cache entry")
			continue
		}
		vectors[i] = vec
	}

	var missTexts []string
	var missIdx []int
	for i, vec := range vectors {
		if vec == nil {
			missTexts = append(missTexts, texts[i])
			missIdx = append(missIdx, i)
		}
	}
	metrics.EmbeddingCacheLookups.WithLabelValues("hit").Add(float64(len(texts) - len(missTexts)))
	metrics.EmbeddingCacheLookups.WithLabelValues("miss").Add(float64(len(missTexts)))
	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	pipe := c.client.Pipeline()
	for j, i := range missIdx {
		vectors[i] = fresh[j]
		data, err := json.Marshal(fresh[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Int("entries", len(missIdx)).Msg("embedding cache write failed")
	}

	return vectors, nil
}
