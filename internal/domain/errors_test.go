package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Tool.Execute", ErrToolNotFound, "tool 'foo'")
	want := "Tool.Execute: tool 'foo': tool not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Agent.Generate", ErrMaxIterations, "")
	want := "Agent.Generate: agent reached max iterations"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewSubSystemError("geocoding", "Geocoder.Search", ErrNotFound, "Location 'Atlantis' not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "Location 'Atlantis' not found")
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("LLM.Chat", ErrProviderNotFound, "groq"))
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "LLM.Chat", de.Op)
}

func TestWrapOpNil(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	err := WrapOp("op", ErrRateLimit)
	assert.True(t, errors.Is(err, ErrRateLimit))
	assert.Equal(t, "op: rate limit exceeded", err.Error())
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("%w: 429", ErrRateLimit)))
	assert.True(t, IsRetryableError(fmt.Errorf("%w: 503", ErrToolFailure)))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
	assert.False(t, IsRetryableError(nil))
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeToolNotFound, ErrorCodeOf(ErrToolNotFound))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
	assert.Equal(t, CodeCircuitOpen, ErrorCodeOf(ErrCircuitOpen))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("plain")))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	tests := []struct {
		subsystem string
		sentinel  error
		want      ErrorCode
	}{
		{"geocoding", ErrNotFound, CodeLocationNotFound},
		{"places", ErrNotFound, CodePlaceNotFound},
		{"agent", ErrNotFound, CodeAgentNotFound},
		{"workflow", ErrNotFound, CodeWorkflowNotFound},
		{"workflow", ErrLimitReached, CodeWorkflowMaxRunning},
		{"workflow", ErrInvalidInput, CodeWorkflowInvalid},
		{"weather", ErrProviderError, CodeWeatherUnavailable},
		{"unknown", ErrNotFound, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.subsystem+"/"+string(tt.want), func(t *testing.T) {
			err := NewSubSystemError(tt.subsystem, "op", tt.sentinel, "")
			assert.Equal(t, tt.want, ErrorCodeOf(err))
			assert.Equal(t, tt.want, err.Code())
		})
	}
}

func TestErrorCodeOf_WrappedSubSystem(t *testing.T) {
	inner := NewSubSystemError("workflow", "Manager.Run", ErrNotFound, "nope")
	err := fmt.Errorf("gateway: %w", inner)
	assert.Equal(t, CodeWorkflowNotFound, ErrorCodeOf(err))
}
