package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/tracer"
)

// Execute decodes rawParams into P and runs handler inside a span named
// spanName. A *domain.ToolResult from handler is passed through, a string
// becomes a text result, and any other value is sent to the model as
// indented JSON. Handler errors become failed results classified as
// permanent or retryable.
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName)
	defer span.End()

	var params P
	if err := json.Unmarshal(rawParams, &params); err != nil {
		tracer.RecordError(span, err)
		return domain.NewToolFailure("invalid params: "+err.Error(), false), nil
	}

	start := time.Now()
	out, err := handler(ctx, span, params)
	span.SetAttributes(tracer.IntAttr("tool.elapsed_ms", int(time.Since(start).Milliseconds())))
	if err != nil {
		f := classify(err)
		tracer.RecordError(span, err)
		logger.Warn("tool call failed", "span", spanName, "error", err, "retryable", f.retryable)
		return domain.NewToolFailure(f.message(err), f.retryable), nil
	}

	res := toResult(out)
	if res.IsError {
		tracer.RecordError(span, errors.New(res.Content))
	} else {
		tracer.SetOK(span)
	}
	return res, nil
}

func toResult(out any) *domain.ToolResult {
	switch v := out.(type) {
	case *domain.ToolResult:
		return v
	case string:
		return domain.NewToolResult(v)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return domain.NewToolFailure("failed to format response: "+err.Error(), false)
	}
	return domain.NewToolResult(string(data))
}

// ErrResult is a permanent failure for bad input. It is not logged.
func ErrResult(format string, args ...any) (*domain.ToolResult, error) {
	return domain.NewToolFailure(fmt.Sprintf(format, args...), false), nil
}
