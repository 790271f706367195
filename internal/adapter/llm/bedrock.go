//go:build bedrock

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"weatherdine/internal/domain"
	"weatherdine/internal/infra/config"
	"weatherdine/internal/infra/tracer"
)

func init() {
	BedrockFactory = func(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
		return NewBedrockProvider(cfg, logger)
	}
}

// defaultBedrockModel is a Bedrock model with tool use support.
const defaultBedrockModel = "anthropic.claude-3-haiku-20240307-v1:0"

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements domain.LLMProvider via the AWS Bedrock Converse API.
type BedrockProvider struct {
	name   string
	model  string
	client bedrockConverseAPI
	logger *slog.Logger
}

// NewBedrockProvider creates a Bedrock provider using the default AWS credential chain.
func NewBedrockProvider(cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultBedrockModel
	}
	return newBedrockProviderWithClient(cfg.Name, model, bedrockruntime.NewFromConfig(awsCfg), logger), nil
}

func newBedrockProviderWithClient(name, model string, client bedrockConverseAPI, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{name: name, model: model, client: client, logger: logger}
}

// Chat sends req through the Converse API.
func (p *BedrockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	out, err := p.client.Converse(ctx, converseInput(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, mapBedrockError(err)
	}
	if out.StopReason == types.StopReasonMaxTokens {
		p.logger.Warn("bedrock reply truncated at max tokens", "provider", p.name, "model", req.Model)
	}

	result := chatResponse(out, req.Model)
	finishChat(span, p.logger, p.name, result)
	return result, nil
}

func (p *BedrockProvider) Name() string { return p.name }

const defaultBedrockMaxTokens = 4096

func converseInput(req domain.ChatRequest) *bedrockruntime.ConverseInput {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultBedrockMaxTokens
	}
	in := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))},
	}
	if req.Temperature > 0 {
		in.InferenceConfig.Temperature = aws.Float32(float32(req.Temperature))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			in.System = append(in.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case domain.RoleUser:
			in.Messages = appendTurn(in.Messages, types.ConversationRoleUser, &types.ContentBlockMemberText{Value: m.Content})
		case domain.RoleTool:
			in.Messages = appendTurn(in.Messages, types.ConversationRoleUser, toolResultBlock(m))
		case domain.RoleAssistant:
			in.Messages = appendTurn(in.Messages, types.ConversationRoleAssistant, assistantBlocks(m)...)
		}
	}

	if len(req.Tools) > 0 {
		in.ToolConfig = &types.ToolConfiguration{}
		for _, t := range req.Tools {
			in.ToolConfig.Tools = append(in.ToolConfig.Tools, &types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        aws.String(t.Name),
					Description: aws.String(t.Description),
					InputSchema: &types.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(jsonObject(t.Parameters, map[string]any{"type": "object"})),
					},
				},
			})
		}
	}
	return in
}

// appendTurn adds blocks to the conversation. Converse rejects two turns in a
// row from the same role, so parallel tool results (and a user message that
// follows them) are folded into the previous turn.
func appendTurn(msgs []types.Message, role types.ConversationRole, blocks ...types.ContentBlock) []types.Message {
	if len(blocks) == 0 {
		return msgs
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == role {
		msgs[n-1].Content = append(msgs[n-1].Content, blocks...)
		return msgs
	}
	return append(msgs, types.Message{Role: role, Content: blocks})
}

func toolResultBlock(m domain.Message) types.ContentBlock {
	block := types.ToolResultBlock{
		ToolUseId: aws.String(m.AnsweredCallID()),
		Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Content}},
	}
	if m.IsError {
		block.Status = types.ToolResultStatusError
	}
	return &types.ContentBlockMemberToolResult{Value: block}
}

func assistantBlocks(m domain.Message) []types.ContentBlock {
	var blocks []types.ContentBlock
	if m.Content != "" {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: m.Content})
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(tc.ID),
			Name:      aws.String(tc.Name),
			Input:     document.NewLazyDocument(jsonObject(tc.Arguments, map[string]any{})),
		}})
	}
	return blocks
}

// jsonObject decodes raw as a JSON object, or returns fallback when raw is
// empty or not an object.
func jsonObject(raw json.RawMessage, fallback map[string]any) map[string]any {
	var v map[string]any
	if len(raw) > 0 && json.Unmarshal(raw, &v) == nil && v != nil {
		return v
	}
	return fallback
}

func chatResponse(out *bedrockruntime.ConverseOutput, model string) *domain.ChatResponse {
	now := time.Now()
	resp := &domain.ChatResponse{
		Model:     model,
		CreatedAt: now,
		Message:   domain.Message{Role: domain.RoleAssistant, Timestamp: now},
	}
	if u := out.Usage; u != nil {
		in, outTok := int(aws.ToInt32(u.InputTokens)), int(aws.ToInt32(u.OutputTokens))
		resp.Usage = domain.Usage{PromptTokens: in, CompletionTokens: outTok, TotalTokens: in + outTok}
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return resp
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text.WriteString(b.Value)
		case *types.ContentBlockMemberToolUse:
			resp.Message.ToolCalls = append(resp.Message.ToolCalls, domain.ToolCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: documentJSON(b.Value.Input),
			})
		}
	}
	resp.Message.Content = text.String()
	return resp
}

func documentJSON(doc document.Interface) json.RawMessage {
	empty := json.RawMessage("{}")
	if doc == nil {
		return empty
	}
	var v any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return empty
	}
	data, err := json.Marshal(v)
	if err != nil {
		return empty
	}
	return data
}

// bedrockErrors maps Converse error codes to the sentinels the agent retry
// loop, breaker and failover understand.
var bedrockErrors = map[string]error{
	"ThrottlingException":           domain.ErrRateLimit,
	"TooManyRequestsException":      domain.ErrRateLimit,
	"ServiceQuotaExceededException": domain.ErrRateLimit,
	"AccessDeniedException":         domain.ErrAuthInvalid,
	"UnrecognizedClientException":   domain.ErrAuthInvalid,
	"ExpiredTokenException":         domain.ErrAuthInvalid,
	"ModelNotReadyException":        domain.ErrToolFailure,
	"ModelTimeoutException":         domain.ErrToolFailure,
	"ServiceUnavailableException":   domain.ErrToolFailure,
	"InternalServerException":       domain.ErrToolFailure,
}

func mapBedrockError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return domain.WrapOp("bedrock", err)
	}
	code := apiErr.ErrorCode()
	if code == "ValidationException" && strings.Contains(err.Error(), "too long") {
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, err.Error())
	}
	if sentinel, ok := bedrockErrors[code]; ok {
		return fmt.Errorf("%w: %s", sentinel, err.Error())
	}
	return domain.WrapOp("bedrock", err)
}
