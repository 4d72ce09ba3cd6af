package provider

import "fmt"

// APIError is returned when the upstream responds with a non-2xx status.
// The body is carried verbatim so callers can log it; classification happens
// in the errcode package based on StatusCode.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream API error: %d - %s", e.StatusCode, e.Message)
}

// DecodeError is returned when the upstream responds 2xx but the body cannot
// be decoded into the expected shape. It is a local fault, not an upstream
// availability problem.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding upstream response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
