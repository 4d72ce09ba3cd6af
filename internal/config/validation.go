package config

import (
	"fmt"
	"net/url"
)

// Validate performs range checks on the loaded configuration. It is called
// by Load and may be called again after programmatic mutation in tests.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPort, c.Port)
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("%w: set UPSTREAM_API_BASE_URL or upstream.base_url", ErrMissingUpstreamBaseURL)
	}
	if c.Upstream.Token == "" {
		return fmt.Errorf("%w: set UPSTREAM_API_TOKEN", ErrMissingUpstreamToken)
	}

	if c.Upstream.ChatTimeoutMS <= 0 || c.Upstream.EmbedTimeoutMS <= 0 {
		return fmt.Errorf("%w: chat=%dms embed=%dms", ErrInvalidTimeout,
			c.Upstream.ChatTimeoutMS, c.Upstream.EmbedTimeoutMS)
	}
	if c.Upstream.RetryChatMax < 0 || c.Upstream.RetryEmbedMax < 0 {
		return fmt.Errorf("%w: chat=%d embed=%d", ErrInvalidRetry,
			c.Upstream.RetryChatMax, c.Upstream.RetryEmbedMax)
	}
	if c.Upstream.OutboundMaxConcurrency < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidConcurrency,
			c.Upstream.OutboundMaxConcurrency)
	}

	if c.ChunkSize < 1 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size=%d overlap=%d (need size >= 1 and overlap < size)",
			ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("%w: %g (must be in [0,1])", ErrInvalidScoreThreshold, c.ScoreThreshold)
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidEmbeddingDim, c.EmbeddingDim)
	}

	return nil
}

// PostgresConnString returns the PostgreSQL DSN for the pgx driver.
func (c *Config) PostgresConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password='%s' dbname=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// PostgresURL returns the PostgreSQL URL form used by golang-migrate.
// url.URL handles encoding of special characters in credentials.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.PostgresSSLMode),
	}
	return u.String()
}
