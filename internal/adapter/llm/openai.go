package llm

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/config"
	"weatherdine/internal/infra/tracer"
)

// DefaultModel is used when neither the request nor the provider names one.
const DefaultModel = "gpt-4o-mini"

var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"ollama":     "http://localhost:11434/v1",
}

// OpenAIProvider talks to any chat completions API that follows OpenAI's
// wire format: OpenAI itself, OpenRouter and Ollama.
type OpenAIProvider struct {
	name    string
	model   string
	baseURL string
	header  http.Header
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAIProvider resolves base URL and model defaults from cfg.Type.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	typ := cmp.Or(cfg.Type, "openai")
	p := &OpenAIProvider{
		name:    cfg.Name,
		model:   cmp.Or(cfg.Model, DefaultModel),
		baseURL: cmp.Or(strings.TrimRight(cfg.BaseURL, "/"), defaultBaseURLs[typ]),
		header:  make(http.Header),
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
	if cfg.APIKey != "" {
		p.header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	if typ == "openrouter" {
		p.header.Set("HTTP-Referer", "https://github.com/weatherdine/weatherdine")
		p.header.Set("X-Title", "weatherdine")
	}
	return p
}

func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Model = cmp.Or(req.Model, p.model)
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
			tracer.IntAttr("llm.messages", len(req.Messages)),
		),
	)
	defer span.End()

	resp, err := p.complete(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	finishChat(span, p.logger, p.name, resp)
	return resp, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	body, err := json.Marshal(toOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data, err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", body, p.header)
	if err != nil {
		return nil, err
	}

	var wire openaiResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", domain.ErrToolFailure)
	}
	if wire.Choices[0].FinishReason == "length" {
		p.logger.Warn("llm reply truncated at max tokens", "provider", p.name, "model", req.Model)
	}
	return fromOpenAIResponse(wire), nil
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return p.name }

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Tools       []openaiTool    `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openaiToolCall struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function openaiToolCallFunction `json:"function"`
}

type openaiToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
	Created int64          `json:"created"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toOpenAIRequest(req domain.ChatRequest) openaiRequest {
	out := openaiRequest{
		Model:     req.Model,
		Messages:  make([]openaiMessage, len(req.Messages)),
		MaxTokens: max(req.MaxTokens, 0),
	}
	for i, m := range req.Messages {
		out.Messages[i] = toOpenAIMessage(m)
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openaiTool{
			Type:     "function",
			Function: openaiToolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}

// toOpenAIMessage maps one message. Tool results reference their call by
// tool_call_id and carry no name; assistant calls need string arguments.
func toOpenAIMessage(m domain.Message) openaiMessage {
	if m.Role == domain.RoleTool {
		return openaiMessage{Role: m.Role, Content: m.Content, ToolCallID: m.AnsweredCallID()}
	}
	msg := openaiMessage{Role: m.Role, Content: m.Content, Name: m.Name}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openaiToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: openaiToolCallFunction{Name: tc.Name, Arguments: argsOrEmpty(string(tc.Arguments))},
		})
	}
	return msg
}

func argsOrEmpty(args string) string {
	if strings.TrimSpace(args) == "" {
		return "{}"
	}
	return args
}

func fromOpenAIResponse(resp openaiResponse) *domain.ChatResponse {
	created := time.Now()
	if resp.Created != 0 {
		created = time.Unix(resp.Created, 0)
	}
	out := &domain.ChatResponse{
		ID:        resp.ID,
		Model:     resp.Model,
		CreatedAt: created,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}

	wire := resp.Choices[0].Message
	out.Message = domain.Message{Role: domain.RoleAssistant, Content: wire.Content, Timestamp: created}
	for _, tc := range wire.ToolCalls {
		out.Message.ToolCalls = append(out.Message.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(argsOrEmpty(tc.Function.Arguments)),
		})
	}
	return out
}
