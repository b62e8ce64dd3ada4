package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	ScopeUser   = "user"
	ScopeGlobal = "global"
)

type Config struct {
	Env         string
	HTTPPort    string
	LogLevel    string
	DatabaseURL string
	RedisURL    string

	CognitoRegion          string
	CognitoUserPoolID      string
	CognitoAppClientID     string
	CognitoAppClientSecret string

	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	ChatModel     string

	EmbeddingModel     string
	EmbeddingMaxTokens int
	EmbeddingCacheTTL  time.Duration

	HistoryLimit int
	ContextLimit int
	RAGScope     string

	CORSAllowedOrigins []string
}

// Load reads configuration from the environment, loading a .env file first
// when one exists.
func Load() (*Config, error) {
	cfg := read()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAccounts reads the configuration needed by the account tooling: the
// database and the Cognito app client. LLM settings are not checked.
func LoadAccounts() (*Config, error) {
	cfg := read()
	if err := cfg.validateCognito(); err != nil {
		return nil, err
	}
	if cfg.CognitoAppClientID == "" {
		return nil, fmt.Errorf("COGNITO_APP_CLIENT_ID environment variable is required")
	}
	return cfg, nil
}

func read() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DatabaseURL: getEnv("DATABASE_URL", "chatbot.db"),
		RedisURL:    getEnv("REDIS_URL", ""),

		CognitoRegion:          getEnv("COGNITO_REGION", ""),
		CognitoUserPoolID:      getEnv("COGNITO_USER_POOL_ID", ""),
		CognitoAppClientID:     getEnv("COGNITO_APP_CLIENT_ID", ""),
		CognitoAppClientSecret: getEnv("COGNITO_APP_CLIENT_SECRET", ""),

		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		ChatModel:     getEnv("CHAT_MODEL", ""),

		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingMaxTokens: getEnvAsInt("EMBEDDING_MAX_TOKENS", 512),
		EmbeddingCacheTTL:  getEnvAsDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),

		HistoryLimit: getEnvAsInt("HISTORY_LIMIT", 20),
		ContextLimit: getEnvAsInt("CONTEXT_LIMIT", 5),
		RAGScope:     strings.ToLower(getEnv("RAG_SCOPE", ScopeUser)),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.ChatModel == "" {
		cfg.ChatModel = defaultChatModel(cfg.LLMProvider)
	}
	return cfg
}

func (c *Config) validateCognito() error {
	if c.CognitoRegion == "" || c.CognitoUserPoolID == "" {
		return fmt.Errorf("COGNITO_REGION and COGNITO_USER_POOL_ID environment variables are required")
	}
	return nil
}

func (c *Config) validate() error {
	if err := c.validateCognito(); err != nil {
		return err
	}

	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for provider %q", c.LLMProvider)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required for provider %q", c.LLMProvider)
		}
		// Embeddings always go through the OpenAI-compatible endpoint.
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for embeddings")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.RAGScope != ScopeUser && c.RAGScope != ScopeGlobal {
		return fmt.Errorf("unsupported RAG_SCOPE %q", c.RAGScope)
	}
	if c.EmbeddingMaxTokens <= 0 {
		return fmt.Errorf("EMBEDDING_MAX_TOKENS must be positive")
	}
	if c.HistoryLimit <= 0 || c.ContextLimit < 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive and CONTEXT_LIMIT non-negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Issuer is the token issuer of the configured Cognito user pool.
func (c *Config) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.CognitoRegion, c.CognitoUserPoolID)
}

// JWKSURL is where the user pool publishes its signing keys.
func (c *Config) JWKSURL() string {
	return c.Issuer() + "/.well-known/jwks.json"
}

func defaultChatModel(provider string) string {
	if provider == ProviderGemini {
		return "gemini-1.5-flash-latest"
	}
	return "gpt-4o-mini"
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, entry := range strings.Split(valueStr, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
