package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/tracer"
)

// Cap on a provider response body.
const maxResponseBody = 10 << 20

// postJSON sends body to url and returns the 200 response body. Anything
// else comes back as a classified error from statusError.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrToolFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, data)
	}
	return data, nil
}

var statusSentinels = map[int]error{
	http.StatusTooManyRequests:       domain.ErrRateLimit,
	http.StatusUnauthorized:          domain.ErrAuthInvalid,
	http.StatusForbidden:             domain.ErrAuthInvalid,
	http.StatusRequestEntityTooLarge: domain.ErrContextOverflow,
}

// statusError turns a non-200 reply into an error the retry loop, breaker
// and failover can classify. 5xx counts as transient; other codes carry no
// sentinel.
func statusError(code int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", code, truncate(string(body), 512))
	if sentinel, ok := statusSentinels[code]; ok {
		return fmt.Errorf("%w: %s", sentinel, detail)
	}
	if code >= 500 {
		return fmt.Errorf("%w: %s", domain.ErrToolFailure, detail)
	}
	return fmt.Errorf("%s", detail)
}

// finishChat records usage on the span and logs the completed call.
func finishChat(span trace.Span, logger *slog.Logger, provider string, resp *domain.ChatResponse) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", resp.Usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", resp.Usage.CompletionTokens),
	)
	tracer.SetOK(span)
	logger.Debug("llm chat completed",
		"provider", provider,
		"model", resp.Model,
		"tool_calls", len(resp.Message.ToolCalls),
		"tokens", resp.Usage.TotalTokens,
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
