// Package embedding turns text into normalized vectors and tokens.
package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"gwi.com/chatbot-backend/internal/errs"
	"gwi.com/chatbot-backend/internal/metrics"
	"gwi.com/chatbot-backend/internal/utils"
)

// Dimensions is the vector width every embedding is requested and stored at.
const Dimensions = 1024

// Embedder maps texts to vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(apiKey, baseURL, model string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Embed requests Dimensions-wide embeddings and L2-normalizes each one.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: Dimensions,
	})
	metrics.UpstreamLatency.WithLabelValues("embedding").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstream, err, "embedding request failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, errs.Newf(errs.ErrUpstream, "embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, errs.Newf(errs.ErrUpstream, "embedding response index %d out of range", item.Index)
		}
		if len(item.Embedding) != Dimensions {
			return nil, errs.Newf(errs.ErrUpstream, "embedding has %d dimensions, want %d", len(item.Embedding), Dimensions)
		}
		vectors[item.Index] = utils.Normalize(item.Embedding)
	}
	for i, v := range vectors {
		if v == nil {
			return nil, errs.Newf(errs.ErrUpstream, "embedding response is missing index %d", i)
		}
	}
	return vectors, nil
}
