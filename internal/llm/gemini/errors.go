package gemini

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genai"

	"github.com/ixlab/aibox/internal/llm"
)

// mapError folds Gemini API errors into the normalized taxonomy. The genai
// SDK surfaces HTTP status codes, so the mapping keys off those.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewError(llm.CodeUpstreamTimeout, "gemini request timed out", llm.WithWrapped(err))
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return llm.NewError(llm.CodeRateLimited, "gemini throttled the request",
				llm.WithWrapped(err), llm.WithRetryAfter(5))
		case http.StatusBadRequest:
			return llm.NewError(llm.CodeInvalidInput, apiErr.Message, llm.WithWrapped(err))
		case http.StatusUnauthorized, http.StatusForbidden:
			return llm.NewError(llm.CodeUnauthorized, "gemini rejected the credentials", llm.WithWrapped(err))
		case http.StatusGatewayTimeout:
			return llm.NewError(llm.CodeUpstreamTimeout, "gemini did not respond in time", llm.WithWrapped(err))
		case http.StatusInternalServerError, http.StatusServiceUnavailable:
			return llm.NewError(llm.CodeModelUnavailable, "gemini is not available", llm.WithWrapped(err))
		}
	}
	return llm.NewError(llm.CodeInternal, "gemini request failed", llm.WithWrapped(err))
}
