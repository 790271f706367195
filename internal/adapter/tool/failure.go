package tool

import (
	"context"
	"errors"
	"strings"

	"weatherdine/internal/domain"
)

// failure is how a tool error is presented to the model.
type failure struct {
	retryable bool
	hint      string
}

const transientHint = "transient error, may succeed on retry"

// Network errors that reach tools unwrapped from the HTTP client.
var transientText = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
}

// classify maps a data-source error to a failure. Sentinels win over text so
// a not-found whose message mentions a timeout stays permanent.
func classify(err error) failure {
	switch {
	case err == nil:
		return failure{}
	case errors.Is(err, domain.ErrNotFound):
		return failure{hint: "check the place name or try a larger nearby city"}
	case errors.Is(err, domain.ErrAuthInvalid):
		return failure{hint: "the data source rejected its credentials"}
	case errors.Is(err, domain.ErrInvalidInput):
		return failure{}
	case errors.Is(err, domain.ErrRateLimit):
		return failure{retryable: true, hint: "rate limited by the data source, wait before retrying"}
	case errors.Is(err, domain.ErrCircuitOpen):
		return failure{retryable: true, hint: "data source paused after repeated failures, retry later"}
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, domain.ErrProviderError):
		return failure{retryable: true, hint: transientHint}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range transientText {
		if strings.Contains(lower, p) {
			return failure{retryable: true, hint: transientHint}
		}
	}
	return failure{}
}

func (f failure) message(err error) string {
	if f.hint == "" {
		return err.Error()
	}
	return err.Error() + " (" + f.hint + ")"
}
