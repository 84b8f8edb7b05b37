package llm

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes provider errors into the taxonomy the service layer
// and UI react to.
type ErrorCode string

const (
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeInvalidInput     ErrorCode = "invalid_input"
	CodeModelUnavailable ErrorCode = "model_unavailable"
	CodeUpstreamTimeout  ErrorCode = "upstream_timeout"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeInternal         ErrorCode = "internal"
)

// ProviderError carries the normalized code alongside the vendor detail.
type ProviderError struct {
	Code       ErrorCode
	Message    string
	Retryable  bool
	RetryAfter int64 // seconds, 0 when the vendor gave no hint
	wrapped    error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error { return e.wrapped }

// NewError builds a ProviderError explicitly.
func NewError(code ErrorCode, message string, opts ...ErrorOption) *ProviderError {
	e := &ProviderError{Code: code, Message: message}
	if code == CodeRateLimited || code == CodeUpstreamTimeout {
		e.Retryable = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WrapError attaches a code to an arbitrary error, passing existing
// ProviderErrors through untouched.
func WrapError(err error, code ErrorCode) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Code: code, Message: err.Error(), wrapped: err}
}

// ErrorOption mutates a ProviderError during construction.
type ErrorOption func(*ProviderError)

func WithRetryable(retryable bool) ErrorOption {
	return func(e *ProviderError) { e.Retryable = retryable }
}

func WithRetryAfter(seconds int64) ErrorOption {
	return func(e *ProviderError) { e.RetryAfter = seconds }
}

func WithWrapped(err error) ErrorOption {
	return func(e *ProviderError) { e.wrapped = err }
}

func classify(code ErrorCode) func(error) bool {
	return func(err error) bool {
		var pe *ProviderError
		if err == nil {
			return false
		}
		if errors.As(err, &pe) {
			return pe.Code == code
		}
		return false
	}
}

// Predicates for the common handling paths.
var (
	IsRateLimited      = classify(CodeRateLimited)
	IsInvalidInput     = classify(CodeInvalidInput)
	IsModelUnavailable = classify(CodeModelUnavailable)
	IsUpstreamTimeout  = classify(CodeUpstreamTimeout)
	IsUnauthorized     = classify(CodeUnauthorized)
)

// UserMessage renders the short notice shown to the UI for a provider error.
func UserMessage(err error) string {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return "an unexpected error occurred, please try again"
	}
	switch pe.Code {
	case CodeRateLimited:
		return "the model is receiving too many requests, please try again shortly"
	case CodeInvalidInput:
		return "the request could not be processed, please adjust your input"
	case CodeModelUnavailable:
		return "the selected model is currently unavailable, please try again in a moment"
	case CodeUpstreamTimeout:
		return "the model took too long to respond, please retry with a shorter message"
	case CodeUnauthorized:
		return "the provider rejected the service credentials"
	default:
		return "an unexpected error occurred, please try again"
	}
}
