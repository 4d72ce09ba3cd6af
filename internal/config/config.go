// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./engineqa.yaml or ~/.engineqa/config.yaml)
//  3. Default values
//
// Validation is fail-fast: Load returns an error before any component is
// constructed if a value is out of range. Sensitive fields (the upstream
// token, the Postgres password) are never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingUpstreamBaseURL indicates the upstream base URL is not set.
	ErrMissingUpstreamBaseURL = errors.New("missing upstream base URL")

	// ErrMissingUpstreamToken indicates the upstream API token is not set.
	ErrMissingUpstreamToken = errors.New("missing upstream token")

	// ErrInvalidChunking indicates chunk size/overlap values that cannot
	// produce a forward-advancing window.
	ErrInvalidChunking = errors.New("invalid chunk size/overlap")

	// ErrInvalidScoreThreshold indicates a similarity threshold outside [0,1].
	ErrInvalidScoreThreshold = errors.New("invalid score threshold")

	// ErrInvalidEmbeddingDim indicates a non-positive embedding dimension.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidConcurrency indicates a non-positive outbound concurrency limit.
	ErrInvalidConcurrency = errors.New("invalid outbound concurrency")

	// ErrInvalidRetry indicates a negative retry count.
	ErrInvalidRetry = errors.New("invalid retry count")

	// ErrInvalidTimeout indicates a non-positive upstream timeout.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidPort indicates an HTTP port outside the valid range.
	ErrInvalidPort = errors.New("invalid port")
)

// Upstream holds the configuration of the internal inference API the service
// depends on for embeddings and chat completions.
type Upstream struct {
	BaseURL    string `mapstructure:"base_url"`
	Token      string `mapstructure:"token"` // SENSITIVE: never logged
	ChatPath   string `mapstructure:"chat_path"`
	EmbedPath  string `mapstructure:"embed_path"`
	ChatModel  string `mapstructure:"chat_model"`
	EmbedModel string `mapstructure:"embed_model"`

	ChatTimeoutMS  int `mapstructure:"chat_timeout_ms"`
	EmbedTimeoutMS int `mapstructure:"embed_timeout_ms"`
	RetryChatMax   int `mapstructure:"retry_chat_max"`
	RetryEmbedMax  int `mapstructure:"retry_embed_max"`

	// OutboundMaxConcurrency bounds concurrent embedding calls during
	// indexing. This protects the upstream's own connection budget.
	OutboundMaxConcurrency int `mapstructure:"outbound_max_concurrency"`

	ChatRateLimitRPM int `mapstructure:"chat_rate_limit_rpm"`
	ChatBurst        int `mapstructure:"chat_burst"`
}

// ChatTimeout returns the per-call chat timeout as a duration.
func (u Upstream) ChatTimeout() time.Duration {
	return time.Duration(u.ChatTimeoutMS) * time.Millisecond
}

// EmbedTimeout returns the per-call embed timeout as a duration.
func (u Upstream) EmbedTimeout() time.Duration {
	return time.Duration(u.EmbedTimeoutMS) * time.Millisecond
}

// Config stores the full application configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	Provider string `mapstructure:"provider"`

	// KnowledgeDir is the root directory of markdown source documents.
	KnowledgeDir string `mapstructure:"knowledge_dir"`

	Upstream Upstream `mapstructure:"upstream"`

	// Chunking and retrieval.
	ChunkSize      int     `mapstructure:"chunk_size"`    // Unicode scalar values, not bytes
	ChunkOverlap   int     `mapstructure:"chunk_overlap"` // Unicode scalar values, not bytes
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	TopK           int     `mapstructure:"top_k"`

	// Vector store.
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`
	TableName        string `mapstructure:"table_name"`
	EmbeddingDim     int    `mapstructure:"embedding_dim"`
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("engineqa")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".engineqa"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults plus env suffice.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8080)
	v.SetDefault("provider", "internal_api")
	v.SetDefault("knowledge_dir", "./knowledge")

	// Upstream defaults.
	v.SetDefault("upstream.chat_path", "/v1/chat/completions")
	v.SetDefault("upstream.embed_path", "/v1/embeddings")
	v.SetDefault("upstream.chat_model", "ad-qa-chat-v1")
	v.SetDefault("upstream.embed_model", "ad-embed-v1")
	v.SetDefault("upstream.chat_timeout_ms", 2200)
	v.SetDefault("upstream.embed_timeout_ms", 5000)
	v.SetDefault("upstream.retry_chat_max", 1)
	v.SetDefault("upstream.retry_embed_max", 3)
	v.SetDefault("upstream.outbound_max_concurrency", 8)
	v.SetDefault("upstream.chat_rate_limit_rpm", 120)
	v.SetDefault("upstream.chat_burst", 10)

	// Chunking and retrieval defaults.
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 125)
	v.SetDefault("score_threshold", 0.3)
	v.SetDefault("top_k", 6)

	// Vector store defaults (matching docker-compose.yml).
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "engineqa")
	v.SetDefault("postgres_password", "engineqa_dev_password")
	v.SetDefault("postgres_db_name", "engineqa")
	v.SetDefault("postgres_ssl_mode", "disable")
	v.SetDefault("table_name", "knowledge_chunks")
	v.SetDefault("embedding_dim", 1536)
}

// bindEnvVariables binds environment variables explicitly. Secrets are only
// ever supplied through the environment, never the config file.
func bindEnvVariables(v *viper.Viper) {
	// Secrets.
	_ = v.BindEnv("upstream.token", "UPSTREAM_API_TOKEN")
	_ = v.BindEnv("postgres_password", "POSTGRES_PASSWORD")

	// Deployment overrides.
	_ = v.BindEnv("host", "APP_HOST")
	_ = v.BindEnv("port", "APP_PORT")
	_ = v.BindEnv("knowledge_dir", "KNOWLEDGE_DIR")
	_ = v.BindEnv("upstream.base_url", "UPSTREAM_API_BASE_URL")
	_ = v.BindEnv("upstream.chat_model", "UPSTREAM_CHAT_MODEL")
	_ = v.BindEnv("upstream.embed_model", "UPSTREAM_EMBED_MODEL")
	_ = v.BindEnv("postgres_host", "POSTGRES_HOST")
	_ = v.BindEnv("postgres_port", "POSTGRES_PORT")
	_ = v.BindEnv("postgres_user", "POSTGRES_USER")
	_ = v.BindEnv("postgres_db_name", "POSTGRES_DB_NAME")
	_ = v.BindEnv("embedding_dim", "EMBEDDING_DIM")
}
