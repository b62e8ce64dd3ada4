package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gwi.com/chatbot-backend/internal/api"
	"gwi.com/chatbot-backend/internal/auth"
	"gwi.com/chatbot-backend/internal/config"
	"gwi.com/chatbot-backend/internal/core"
	"gwi.com/chatbot-backend/internal/embedding"
	"gwi.com/chatbot-backend/internal/llm"
	"gwi.com/chatbot-backend/internal/logging"
	"gwi.com/chatbot-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.IsDevelopment(), cfg.LogLevel)

	// Cancelled on shutdown; stops the JWKS refresh goroutine.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbStore, err := store.Open(cfg.DatabaseURL, logger.With().Str("component", "store").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer dbStore.Close()
	logger.Info().Bool("postgres", store.IsPostgresURL(cfg.DatabaseURL)).Msg("database ready")

	tokenizer, err := embedding.NewTokenizer(embedding.DefaultEncoding)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load tokenizer")
	}

	openaiEmbedder := embedding.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	var embedder embedding.Embedder = openaiEmbedder
	checks := []api.ReadinessCheck{{Name: "database", Check: dbStore.Ping}}
	if cfg.RedisURL != "" {
		rdb, err := embedding.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer rdb.Close()
		embedder = embedding.NewCachedEmbedder(embedder, rdb, openaiEmbedder.Model(), cfg.EmbeddingCacheTTL, logger.With().Str("component", "embedding_cache").Logger())
		checks = append(checks, api.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info().Dur("ttl", cfg.EmbeddingCacheTTL).Msg("embedding cache enabled")
	}

	provider, closeProvider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}
	defer closeProvider()

	verifier, err := auth.NewCognitoVerifier(ctx, cfg.JWKSURL(), cfg.Issuer())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize token verifier")
	}

	embedService := core.NewEmbedService(dbStore, embedder, tokenizer, cfg.EmbeddingMaxTokens, logger.With().Str("component", "embed").Logger())
	ragService := core.NewRAGService(dbStore, embedder, cfg.ContextLimit, cfg.RAGScope, logger.With().Str("component", "rag").Logger())
	chatService := core.NewChatService(dbStore, embedService, ragService, provider, cfg.HistoryLimit, logger.With().Str("component", "chat").Logger())

	apiHandler := api.NewAPIHandler(chatService, verifier, logger, checks...)
	router := api.NewRouter(apiHandler, logger, cfg.CORSAllowedOrigins)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // a chat turn waits on the LLM and the embedder
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", serverAddr).
			Str("provider", provider.Name()).
			Str("model", cfg.ChatModel).
			Str("embedding_model", openaiEmbedder.Model()).
			Str("rag_scope", cfg.RAGScope).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Str("addr", serverAddr).Msg("could not listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server exited")
}

func newProvider(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (llm.Provider, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		p, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.ChatModel, logger.With().Str("component", "gemini").Logger())
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel), func() {}, nil
	}
}
