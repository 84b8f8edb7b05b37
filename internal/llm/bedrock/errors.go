package bedrock

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"

	"github.com/ixlab/aibox/internal/llm"
)

// mapError folds AWS service errors into the normalized taxonomy so callers
// never branch on vendor error strings.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewError(llm.CodeUpstreamTimeout, "bedrock request timed out", llm.WithWrapped(err))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return llm.NewError(llm.CodeRateLimited, "bedrock throttled the request",
				llm.WithWrapped(err), llm.WithRetryAfter(5))
		case "ValidationException":
			return llm.NewError(llm.CodeInvalidInput, apiErr.ErrorMessage(), llm.WithWrapped(err))
		case "ModelTimeoutException":
			return llm.NewError(llm.CodeUpstreamTimeout, "model did not respond in time", llm.WithWrapped(err))
		case "ModelNotReadyException", "ModelErrorException", "ServiceUnavailableException":
			return llm.NewError(llm.CodeModelUnavailable, "model is not available", llm.WithWrapped(err))
		case "AccessDeniedException":
			return llm.NewError(llm.CodeUnauthorized, "access to the model was denied", llm.WithWrapped(err))
		}
	}
	return llm.NewError(llm.CodeInternal, "bedrock request failed", llm.WithWrapped(err))
}
