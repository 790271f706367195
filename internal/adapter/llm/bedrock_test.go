//go:build bedrock

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"weatherdine/internal/domain"
)

type mockBedrockClient struct {
	converseFunc func(ctx context.Context, params *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
}

func (m *mockBedrockClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	return m.converseFunc(ctx, params)
}

func TestBedrockChatWithToolUse(t *testing.T) {
	var received *bedrockruntime.ConverseInput
	mock := &mockBedrockClient{
		converseFunc: func(_ context.Context, params *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
			received = params
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role: types.ConversationRoleAssistant,
						Content: []types.ContentBlock{
							&types.ContentBlockMemberText{Value: "Checking the weather."},
							&types.ContentBlockMemberToolUse{
								Value: types.ToolUseBlock{
									ToolUseId: aws.String("toolu_1"),
									Name:      aws.String("get-weather"),
									Input:     document.NewLazyDocument(map[string]any{"location": "Lisbon"}),
								},
							},
						},
					},
				},
				Usage: &types.TokenUsage{InputTokens: aws.Int32(20), OutputTokens: aws.Int32(15)},
			}, nil
		},
	}

	provider := newBedrockProviderWithClient("bedrock", "model-x", mock, newTestLogger())
	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are a weather assistant."},
			{Role: domain.RoleUser, Content: "Weather in Lisbon?"},
		},
		Tools: []domain.ToolSchema{
			{Name: "get-weather", Description: "Get current weather", Parameters: json.RawMessage(`{"type":"object"}`)},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if aws.ToString(received.ModelId) != "model-x" {
		t.Errorf("ModelId = %q", aws.ToString(received.ModelId))
	}
	if len(received.System) != 1 || len(received.Messages) != 1 {
		t.Errorf("system=%d messages=%d, want 1 and 1", len(received.System), len(received.Messages))
	}
	if received.ToolConfig == nil || len(received.ToolConfig.Tools) != 1 {
		t.Errorf("expected 1 tool, got %v", received.ToolConfig)
	}
	if aws.ToInt32(received.InferenceConfig.MaxTokens) != 4096 {
		t.Errorf("MaxTokens = %d, want 4096", aws.ToInt32(received.InferenceConfig.MaxTokens))
	}

	if resp.Message.Content != "Checking the weather." {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Name != "get-weather" {
		t.Fatalf("unexpected tool calls %+v", resp.Message.ToolCalls)
	}
	var args map[string]string
	if err := json.Unmarshal(resp.Message.ToolCalls[0].Arguments, &args); err != nil || args["location"] != "Lisbon" {
		t.Errorf("arguments = %s (%v)", resp.Message.ToolCalls[0].Arguments, err)
	}
	if resp.Usage.TotalTokens != 35 {
		t.Errorf("TotalTokens = %d, want 35", resp.Usage.TotalTokens)
	}
}

type mockAPIError struct {
	code    string
	message string
}

func (e *mockAPIError) Error() string                 { return e.message }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestBedrockErrorMapping(t *testing.T) {
	tests := []struct {
		code    string
		message string
		wantErr error
	}{
		{"ThrottlingException", "rate limited", domain.ErrRateLimit},
		{"AccessDeniedException", "no access", domain.ErrAuthInvalid},
		{"ValidationException", "input is too long", domain.ErrContextOverflow},
		{"ServiceUnavailableException", "unavailable", domain.ErrToolFailure},
		{"ExpiredTokenException", "token expired", domain.ErrAuthInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			mock := &mockBedrockClient{
				converseFunc: func(context.Context, *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
					return nil, &mockAPIError{code: tt.code, message: tt.message}
				},
			}
			provider := newBedrockProviderWithClient("bedrock", "model", mock, newTestLogger())
			_, err := provider.Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConverseInputFoldsToolResults(t *testing.T) {
	calls := []domain.ToolCall{
		{ID: "t1", Name: "get-weather", Arguments: json.RawMessage(`{"location":"Oslo"}`)},
		{ID: "t2", Name: "find-restaurants", Arguments: json.RawMessage(`not json`)},
	}
	in := converseInput(domain.ChatRequest{
		Model: "m",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "sys"},
			{Role: domain.RoleUser, Content: "Dinner in Oslo?"},
			{Role: domain.RoleAssistant, ToolCalls: calls},
			domain.ToolResultMessage(calls[0], `{"temperature":3}`, false),
			domain.ToolResultMessage(calls[1], "places unavailable", true),
			{Role: domain.RoleUser, Content: "Indoors please"},
		},
	})

	if len(in.Messages) != 3 {
		t.Fatalf("turns = %d, want user/assistant/user", len(in.Messages))
	}
	last := in.Messages[2]
	if last.Role != types.ConversationRoleUser || len(last.Content) != 3 {
		t.Fatalf("last turn = %s with %d blocks, want user with 3", last.Role, len(last.Content))
	}
	first, ok := last.Content[0].(*types.ContentBlockMemberToolResult)
	if !ok || aws.ToString(first.Value.ToolUseId) != "t1" || first.Value.Status != "" {
		t.Errorf("first block = %#v", last.Content[0])
	}
	failed, ok := last.Content[1].(*types.ContentBlockMemberToolResult)
	if !ok || failed.Value.Status != types.ToolResultStatusError {
		t.Errorf("failed result should carry error status: %#v", last.Content[1])
	}
	if _, ok := last.Content[2].(*types.ContentBlockMemberText); !ok {
		t.Errorf("trailing user text not folded: %#v", last.Content[2])
	}

	use, ok := in.Messages[1].Content[1].(*types.ContentBlockMemberToolUse)
	if !ok {
		t.Fatalf("second assistant block = %#v", in.Messages[1].Content[1])
	}
	var input map[string]any
	if err := use.Value.Input.UnmarshalSmithyDocument(&input); err != nil || len(input) != 0 {
		t.Errorf("bad arguments should become an empty object, got %v (%v)", input, err)
	}
}

func TestBedrockFactoryRegistered(t *testing.T) {
	if BedrockFactory == nil {
		t.Fatal("bedrock build should register BedrockFactory")
	}
}
