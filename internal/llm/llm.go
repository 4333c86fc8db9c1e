package llm

import (
	"context"
	"errors"
)

// Provider is the reasoning oracle boundary. Callers are responsible for
// parsing structured (JSON) output and must carry an explicit fallback for
// every call site; a parse failure never propagates past the caller.
type Provider interface {
	// Complete generates text for a system/user prompt pair.
	Complete(ctx context.Context, systemPrompt, userPrompt, model string, maxTokens int) (string, error)

	// CompleteWithTokens generates text and returns prompt/completion token usage.
	CompleteWithTokens(ctx context.Context, systemPrompt, userPrompt, model string, maxTokens int) (string, int64, int64, error)
}

// UsageRecorder receives per-call token usage from a provider.
// *telemetry.Telemetry satisfies it.
type UsageRecorder interface {
	RecordOracleCall(promptTokens, completionTokens int64)
}

// ErrNoChoices indicates the upstream API returned an empty choice list.
var ErrNoChoices = errors.New("llm: no choices in response")

// retryableError marks transient upstream failures (rate limits, 5xx,
// timeouts) that the provider retries with exponential backoff.
type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// IsRetryable reports whether an error was classified as transient.
func IsRetryable(err error) bool {
	var re retryableError
	return errors.As(err, &re)
}
