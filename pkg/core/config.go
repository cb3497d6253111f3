// Package core provides the data model of the multi-tenant memory service:
// users, memories, entities, interactions and usage records.
package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the complete configuration for a memvault client: the Store
// backend, the Embedding Service and LLM collaborator, and the Retrieval,
// Sync and rate-limit option groups from spec §6's configuration table.
type Config struct {
	Store     StoreConfig     `json:"store"`
	LLM       LLMConfig       `json:"llm"`
	Embedder  EmbedderConfig  `json:"embedder"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Sync      SyncConfig      `json:"sync"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Session   SessionConfig   `json:"session"`
}

// StoreConfig selects and configures the Store backend (C1).
//
// Supported providers: sqlite, postgres, mysql.
type StoreConfig struct {
	Provider string                 `json:"provider"`
	Config   map[string]interface{} `json:"config"`
}

// LLMConfig configures the LLM collaborator used for phase-4 dedup
// classification (spec §4.6) and is independent of the Embedding Service.
//
// Supported providers: openai, qwen, anthropic, deepseek, ollama.
type LLMConfig struct {
	Provider string                 `json:"provider"`
	APIKey   string                 `json:"api_key"`
	Model    string                 `json:"model"`
	BaseURL  string                 `json:"base_url,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// EmbedderConfig configures the Embedding Service (C2).
//
// Supported providers: openai, qwen.
type EmbedderConfig struct {
	Provider              string  `json:"provider"`
	APIKey                string  `json:"api_key"`
	Model                 string  `json:"model"`
	BaseURL               string  `json:"base_url,omitempty"`
	Dimensions            int     `json:"dimensions,omitempty"`
	PricePerMillionTokens float64 `json:"price_per_million_tokens,omitempty"`
}

// RetrievalConfig configures the Retrieval Engine (C5).
type RetrievalConfig struct {
	// DefaultThreshold is the vector similarity floor (spec §4.5, default 0.6).
	DefaultThreshold float64 `json:"default_threshold"`

	// DefaultStrategy is used when a search doesn't specify one (default "composite").
	DefaultStrategy RankingStrategy `json:"default_strategy"`
}

// SyncConfig configures the Dedup / Sync Engine (C6).
type SyncConfig struct {
	// DedupThreshold is the LLM confidence (0..100) required for auto-merge (default 90).
	DedupThreshold int `json:"dedup_threshold"`

	// EnableLLM turns off the phase-4 LLM step entirely, degrading to rule-only matching.
	EnableLLM bool `json:"enable_llm"`

	MaxRetries    int `json:"max_retries"`
	RetryDelayMs  int `json:"retry_delay_ms"`

	// ConflictStrategy is one of "newest", "oldest", "merge" (default "newest").
	ConflictStrategy string `json:"conflict_strategy"`

	// AutoMerge merges above-threshold duplicates without a review step when true.
	AutoMerge bool `json:"auto_merge"`
}

// RateLimitConfig configures the per-user inbound token bucket (spec §5).
type RateLimitConfig struct {
	PerMinute int `json:"per_minute"`
}

// SessionConfig bounds the identity provider's session lifetime (spec §6).
type SessionConfig struct {
	TimeoutMinutes int `json:"timeout_minutes"`
}

// LoadConfigFromEnv loads configuration from environment variables,
// searching upward for a .env file first (see FindEnvFile).
//
// Recognized environment variables:
//   - STORE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH, POSTGRES_HOST/PORT/USER/PASSWORD/DATABASE/SSLMODE,
//     MYSQL_HOST/PORT/USER/PASSWORD/DATABASE
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL,
//     EMBEDDING_DIMENSIONS, EMBEDDING_PRICE_PER_MILLION_TOKENS
//   - SEARCH_DEFAULT_THRESHOLD, SEARCH_DEFAULT_STRATEGY
//   - SYNC_DEDUP_THRESHOLD, SYNC_DEDUP_ENABLE_LLM, SYNC_DEDUP_MAX_RETRIES,
//     SYNC_DEDUP_RETRY_DELAY_MS, SYNC_CONFLICT_STRATEGY, SYNC_AUTO_MERGE
//   - RATE_LIMIT_PER_MINUTE, SESSION_TIMEOUT_MINUTES
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("STORE_PROVIDER", "sqlite")
	storeConfig := make(map[string]interface{})

	switch provider {
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "memvault"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storeConfig = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "memvault"),
		}
	default: // sqlite
		storeConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./memvault.db"),
		}
	}

	llmProvider := getEnvOrDefault("LLM_PROVIDER", "openai")
	var llmBaseURL, defaultModel string
	switch llmProvider {
	case "deepseek":
		llmBaseURL = getEnvOrDefault("LLM_BASE_URL", "https://api.deepseek.com")
		defaultModel = "deepseek-chat"
	case "qwen":
		llmBaseURL = os.Getenv("LLM_BASE_URL")
		defaultModel = "qwen-plus"
	case "ollama":
		llmBaseURL = getEnvOrDefault("LLM_BASE_URL", "http://localhost:11434")
		defaultModel = "llama3.1:70b"
	case "anthropic":
		llmBaseURL = getEnvOrDefault("LLM_BASE_URL", "https://api.anthropic.com")
		defaultModel = "claude-3-5-sonnet-20240620"
	default:
		llmBaseURL = os.Getenv("LLM_BASE_URL")
		defaultModel = "gpt-4"
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	embedderModel := os.Getenv("EMBEDDING_MODEL")
	var embedderBaseURL string
	switch embedderProvider {
	case "qwen":
		embedderBaseURL = getEnvOrDefault("EMBEDDING_BASE_URL", "https://dashscope.aliyuncs.com/api/v1")
		if embedderModel == "" {
			embedderModel = "text-embedding-v4"
		}
	default:
		embedderBaseURL = getEnvOrDefault("EMBEDDING_BASE_URL", "https://api.openai.com/v1")
		if embedderModel == "" {
			embedderModel = "text-embedding-3-small"
		}
	}
	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSIONS", "1536"))
	price, _ := strconv.ParseFloat(getEnvOrDefault("EMBEDDING_PRICE_PER_MILLION_TOKENS", "20"), 64)

	threshold, _ := strconv.ParseFloat(getEnvOrDefault("SEARCH_DEFAULT_THRESHOLD", "0.6"), 64)
	dedupThreshold, _ := strconv.Atoi(getEnvOrDefault("SYNC_DEDUP_THRESHOLD", "90"))
	maxRetries, _ := strconv.Atoi(getEnvOrDefault("SYNC_DEDUP_MAX_RETRIES", "3"))
	retryDelayMs, _ := strconv.Atoi(getEnvOrDefault("SYNC_DEDUP_RETRY_DELAY_MS", "1000"))
	rateLimitPerMinute, _ := strconv.Atoi(getEnvOrDefault("RATE_LIMIT_PER_MINUTE", "100"))
	sessionTimeout, _ := strconv.Atoi(getEnvOrDefault("SESSION_TIMEOUT_MINUTES", "60"))

	return &Config{
		Store: StoreConfig{Provider: provider, Config: storeConfig},
		LLM: LLMConfig{
			Provider: llmProvider,
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", defaultModel),
			BaseURL:  llmBaseURL,
		},
		Embedder: EmbedderConfig{
			Provider:              embedderProvider,
			APIKey:                os.Getenv("EMBEDDING_API_KEY"),
			Model:                 embedderModel,
			BaseURL:               embedderBaseURL,
			Dimensions:            dims,
			PricePerMillionTokens: price,
		},
		Retrieval: RetrievalConfig{
			DefaultThreshold: threshold,
			DefaultStrategy:  RankingStrategy(getEnvOrDefault("SEARCH_DEFAULT_STRATEGY", string(StrategyComposite))),
		},
		Sync: SyncConfig{
			DedupThreshold:   dedupThreshold,
			EnableLLM:        getEnvOrDefault("SYNC_DEDUP_ENABLE_LLM", "true") == "true",
			MaxRetries:       maxRetries,
			RetryDelayMs:     retryDelayMs,
			ConflictStrategy: getEnvOrDefault("SYNC_CONFLICT_STRATEGY", "newest"),
			AutoMerge:        getEnvOrDefault("SYNC_AUTO_MERGE", "false") == "true",
		},
		RateLimit: RateLimitConfig{PerMinute: rateLimitPerMinute},
		Session:   SessionConfig{TimeoutMinutes: sessionTimeout},
	}, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}
	return &config, nil
}

// Validate checks that the required provider fields are set.
func (c *Config) Validate() error {
	if c.Store.Provider == "" {
		return NewKindError("Validate", KindInvalidArgument, ErrInvalidConfig)
	}
	if c.LLM.Provider == "" {
		return NewKindError("Validate", KindInvalidArgument, ErrInvalidConfig)
	}
	if c.Embedder.Provider == "" {
		return NewKindError("Validate", KindInvalidArgument, ErrInvalidConfig)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches the current directory, then up to 4 parent
// directories, for a .env or .env.example file.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")
		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
