package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/chatbot-backend/internal/errs"
)

func constVector(v float32, dims int) []float32 {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = v
	}
	return vec
}

func l2(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func embeddingServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, Dimensions, req.Dimensions)

		// Reply in reverse order to check that indices are honored.
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": constVector(float32(i+1), dims),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
}

func TestOpenAIEmbedder_NormalizesInInputOrder(t *testing.T) {
	server := embeddingServer(t, Dimensions)
	defer server.Close()

	e := NewOpenAIEmbedder("sk-test", server.URL+"/v1", "text-embedding-3-small")
	vectors, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	for _, vec := range vectors {
		assert.Len(t, vec, Dimensions)
		assert.InDelta(t, 1.0, l2(vec), 1e-4)
	}
	// Both are constant vectors, so normalization makes them identical.
	assert.InDelta(t, vectors[0][0], vectors[1][0], 1e-6)
}

func TestOpenAIEmbedder_RejectsWrongDimensions(t *testing.T) {
	server := embeddingServer(t, 8)
	defer server.Close()

	e := NewOpenAIEmbedder("sk-test", server.URL+"/v1", "text-embedding-3-small")
	_, err := e.Embed(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrUpstream))
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	e := NewOpenAIEmbedder("sk-test", "http://127.0.0.1:1", "text-embedding-3-small")
	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestTokenizer_RoundTrip(t *testing.T) {
	tok, err := NewTokenizer(DefaultEncoding)
	require.NoError(t, err)

	text := "What is the best time of year to visit Kyoto?"
	tokens := tok.Encode(text)
	assert.NotEmpty(t, tokens)
	assert.Less(t, len(tokens), len(text))
	assert.Equal(t, text, tok.Decode(tokens))
	assert.Empty(t, tok.Encode(""))
}

type countingEmbedder struct {
	calls  int
	inputs []string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.inputs = append(c.inputs, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func newCache(t *testing.T) (*miniredis.Miniredis, *CachedEmbedder, *countingEmbedder) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	next := &countingEmbedder{}
	return mr, NewCachedEmbedder(next, client, "m", time.Hour, zerolog.Nop()), next
}

func TestCachedEmbedder_HitsSkipUpstream(t *testing.T) {
	mr, cache, next := newCache(t)
	ctx := context.Background()

	first, err := cache.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.True(t, mr.Exists(cacheKey("m", "a")))
	assert.Equal(t, time.Hour, mr.TTL(cacheKey("m", "bb")))

	second, err := cache.Embed(ctx, []string{"bb", "ccc", "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, []string{"a", "bb", "ccc"}, next.inputs)

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, []float32{3, 1}, second[1])
}

func TestCachedEmbedder_FallsThroughWhenRedisIsDown(t *testing.T) {
	mr, cache, next := newCache(t)
	mr.Close()

	vectors, err := cache.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, [][]float32{{1, 1}}, vectors)
}

func TestCacheKey(t *testing.T) {
	assert.NotEqual(t, cacheKey("m1", "x"), cacheKey("m2", "x"))
	assert.Equal(t, cacheKey("m", "x"), cacheKey("m", "x"))
	assert.Regexp(t, `^emb:m:[0-9a-f]{64}$`, cacheKey("m", "x"))
}
