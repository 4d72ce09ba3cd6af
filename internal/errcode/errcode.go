// Package errcode defines the business error codes used across the query and
// indexing pipelines and the pure classification rules that map upstream
// failures onto them.
package errcode

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/engineqa/engineqa/internal/provider"
)

// Code is a standardized business error code surfaced in API responses.
type Code string

const (
	UpstreamTimeout     Code = "UPSTREAM_TIMEOUT"
	UpstreamRateLimit   Code = "UPSTREAM_RATE_LIMIT"
	UpstreamAuth        Code = "UPSTREAM_AUTH"
	UpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	UpstreamError       Code = "UPSTREAM_ERROR"
	RetrievalFailed     Code = "RETRIEVAL_FAILED"
	NoMatch             Code = "NO_MATCH"
	InternalError       Code = "INTERNAL_ERROR"
)

func (c Code) String() string { return string(c) }

// Classify maps an upstream client error to a business error code.
func Classify(err error) Code {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return ClassifyStatus(apiErr.StatusCode)
	}

	var decErr *provider.DecodeError
	if errors.As(err, &decErr) {
		return InternalError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return UpstreamTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// Connect failures behave like timeouts from the caller's view.
		if opErr.Op == "dial" {
			return UpstreamTimeout
		}
		return UpstreamUnavailable
	}

	return UpstreamUnavailable
}

// ClassifyStatus maps an upstream HTTP status code to a business error code.
func ClassifyStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return UpstreamAuth
	case http.StatusTooManyRequests:
		return UpstreamRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return UpstreamTimeout
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return UpstreamUnavailable
	}

	switch {
	case status >= 400 && status < 500:
		return UpstreamError
	case status >= 500:
		return UpstreamUnavailable
	default:
		return UpstreamError
	}
}

// ShouldDegrade reports whether answering should fall back to showing the
// retrieved sources instead of a generated answer. RetrievalFailed and
// NoMatch have dedicated response builders, and InternalError must never
// trigger the sources fallback.
func ShouldDegrade(code Code) bool {
	switch code {
	case UpstreamTimeout, UpstreamRateLimit, UpstreamAuth, UpstreamUnavailable, UpstreamError:
		return true
	default:
		return false
	}
}

// Description returns the fixed user-facing description for a code, used
// verbatim in degraded answers.
func Description(code Code) string {
	switch code {
	case UpstreamTimeout:
		return "the upstream service timed out, please retry shortly"
	case UpstreamRateLimit:
		return "the upstream service is rate limiting requests"
	case UpstreamAuth:
		return "upstream authentication failed, check the API token"
	case UpstreamUnavailable:
		return "the upstream service is unavailable, please retry shortly"
	case UpstreamError:
		return "the upstream service returned an error"
	case RetrievalFailed:
		return "retrieval failed, check the vector store connection"
	case NoMatch:
		return "no relevant material found, try rephrasing the question"
	case InternalError:
		return "internal service error, contact the engineering team"
	default:
		return "unknown error"
	}
}
