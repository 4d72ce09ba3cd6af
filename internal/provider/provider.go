// Package provider implements the resilient client for the internal
// inference API used for embeddings and chat completions.
//
// Each operation carries its own timeout and bounded retry count with linear
// backoff between attempts. Retries apply uniformly regardless of the error
// kind; when the budget is exhausted the last error is returned unchanged so
// callers can classify it.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/engineqa/engineqa/internal/log"
)

// defaultBackoffBase is the base delay for linear backoff: the wait before
// attempt n+1 is defaultBackoffBase * (n+1).
const defaultBackoffBase = 500 * time.Millisecond

// Message is a single chat message in the OpenAI-compatible wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config configures the upstream client.
type Config struct {
	BaseURL    string
	Token      string
	ChatPath   string
	EmbedPath  string
	ChatModel  string
	EmbedModel string

	ChatTimeout  time.Duration
	EmbedTimeout time.Duration

	// RetryChatMax / RetryEmbedMax are the number of retries after the first
	// attempt; 0 means a single attempt.
	RetryChatMax  int
	RetryEmbedMax int

	// ChatRateLimitRPM / ChatBurst configure the client-side chat limiter.
	// Zero RPM disables limiting.
	ChatRateLimitRPM int
	ChatBurst        int
}

// RateLimitSnapshot reports the chat limiter state for status endpoints.
type RateLimitSnapshot struct {
	RPMLimit        int     `json:"rpm_limit"`
	Burst           int     `json:"burst"`
	TokensAvailable float64 `json:"tokens_available"`
}

// Client calls the internal inference API. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.Logger

	// sleep is the backoff delay function; replaced in tests so retry loops
	// run without real sleeping.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client. logger may be nil, in which case a no-op logger is
// used.
func New(cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.ChatRateLimitRPM > 0 {
		burst := cfg.ChatBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.ChatRateLimitRPM)/60.0), burst)
	}

	return &Client{
		cfg: cfg,
		// Per-call deadlines come from context; no global client timeout.
		httpClient: &http.Client{},
		limiter:    limiter,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Name returns the provider identifier reported by the status endpoint.
func (c *Client) Name() string { return "internal_api" }

// ChatModel returns the configured chat model name.
func (c *Client) ChatModel() string { return c.cfg.ChatModel }

// RateLimit returns a snapshot of the chat limiter. With limiting disabled
// the snapshot is zero-valued.
func (c *Client) RateLimit() RateLimitSnapshot {
	if c.limiter == nil {
		return RateLimitSnapshot{}
	}
	return RateLimitSnapshot{
		RPMLimit:        c.cfg.ChatRateLimitRPM,
		Burst:           c.limiter.Burst(),
		TokensAvailable: c.limiter.Tokens(),
	}
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := c.withRetry(ctx, "embed", c.cfg.RetryEmbedMax, func(ctx context.Context) error {
		v, err := c.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	return vec, err
}

// Chat returns the assistant message content for the given conversation.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for chat rate limiter: %w", err)
		}
	}

	var answer string
	err := c.withRetry(ctx, "chat", c.cfg.RetryChatMax, func(ctx context.Context) error {
		a, err := c.chatOnce(ctx, messages, temperature, maxTokens)
		if err != nil {
			return err
		}
		answer = a
		return nil
	})
	return answer, err
}

// withRetry runs op up to maxRetries+1 times with linear backoff. The last
// error is returned unchanged.
func (c *Client) withRetry(ctx context.Context, name string, maxRetries int, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < maxRetries {
			delay := defaultBackoffBase * time.Duration(attempt+1)
			c.logger.Warn("upstream request failed, retrying",
				"operation", name,
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"delay", delay,
				"error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	err := c.doRequest(ctx, c.cfg.EmbedPath, c.cfg.EmbedTimeout, embeddingRequest{
		Model: c.cfg.EmbedModel,
		Input: text,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &APIError{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "no embedding data returned",
		}
	}
	return resp.Data[0].Embedding, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (c *Client) chatOnce(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error) {
	var resp chatResponse
	err := c.doRequest(ctx, c.cfg.ChatPath, c.cfg.ChatTimeout, chatRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}, &resp)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", &APIError{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "no chat response returned",
		}
	}
	return resp.Choices[0].Message.Content, nil
}

// doRequest performs a single JSON POST with the per-operation timeout, a
// bearer token, and a fresh X-Request-Id. Non-2xx responses become
// *APIError; 2xx bodies that fail to decode become *DecodeError.
func (c *Client) doRequest(ctx context.Context, path string, timeout time.Duration, reqBody, respBody any) error {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + path

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure: timeout, connection refused, DNS. Returned
		// as-is so the error taxonomy can inspect it.
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if readErr != nil || msg == "" {
			msg = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
