package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Chat pipeline metrics
	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_chat_turns_total",
			Help: "Total chat turns by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_llm_tokens_total",
			Help: "Tokens reported by the LLM provider",
		},
		[]string{"provider", "kind"}, // "prompt" or "completion"
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_upstream_latency_seconds",
			Help:    "Latency of outbound LLM and embedding calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"call"}, // "completion" or "embedding"
	)

	EmbeddedChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbot_embedded_chunks_total",
			Help: "Total message chunks embedded",
		},
	)

	EmbeddingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_embedding_cache_lookups_total",
			Help: "Embedding cache lookups",
		},
		[]string{"result"}, // "hit" or "miss"
	)

	ContextChunksRetrieved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatbot_context_chunks_retrieved",
			Help:    "Number of context chunks retrieved per query",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
		},
	)
)
