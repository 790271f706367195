package usecase

import "weatherdine/internal/domain"

// missingResultContent is the tool result injected for calls that never
// received one, e.g. when a turn hit the iteration limit mid-way.
const missingResultContent = "[error] tool call did not produce a result"

// RepairTranscript fixes broken tool chains in a stored history:
// an assistant tool call without a result gets an error result injected,
// and a tool result without a matching call is dropped.
// The input slice is not modified.
func RepairTranscript(messages []domain.Message) []domain.Message {
	if len(messages) == 0 {
		return messages
	}

	result := make([]domain.Message, 0, len(messages))
	var pending []domain.ToolCall

	answered := func(id string) bool {
		for i, tc := range pending {
			if tc.ID == id {
				pending = append(pending[:i:i], pending[i+1:]...)
				return true
			}
		}
		return false
	}

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleTool:
			if id := msg.AnsweredCallID(); id == "" || !answered(id) {
				continue
			}
			result = append(result, msg)
		case domain.RoleAssistant:
			result = appendMissingResults(result, pending)
			pending = pending[:0]
			for _, tc := range msg.ToolCalls {
				if tc.ID != "" {
					pending = append(pending, tc)
				}
			}
			result = append(result, msg)
		default:
			result = appendMissingResults(result, pending)
			pending = pending[:0]
			result = append(result, msg)
		}
	}
	return appendMissingResults(result, pending)
}

// appendMissingResults adds an error result for each pending call, in call order.
func appendMissingResults(msgs []domain.Message, pending []domain.ToolCall) []domain.Message {
	for _, tc := range pending {
		msgs = append(msgs, domain.ToolResultMessage(tc, missingResultContent, true))
	}
	return msgs
}
