package usecase

import (
	"time"

	"weatherdine/internal/domain"
)

// ContextBuilder constructs the prompt message array for LLM calls.
type ContextBuilder struct {
	systemPrompt string
	model        string
	maxMessages  int
	maxTokens    int
	counter      TokenCounter
	temperature  float64
}

// NewContextBuilder creates a new context builder. maxMessages <= 0 keeps
// the whole history.
func NewContextBuilder(systemPrompt, model string, maxMessages int) *ContextBuilder {
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		model:        model,
		maxMessages:  maxMessages,
		counter:      HeuristicCounter{},
	}
}

// SetTokenBudget caps the prompt (system prompt plus history) at maxTokens
// as measured by counter. maxTokens <= 0 disables the cap.
func (cb *ContextBuilder) SetTokenBudget(counter TokenCounter, maxTokens int) {
	if counter != nil {
		cb.counter = counter
	}
	cb.maxTokens = maxTokens
}

// SetTemperature sets the sampling temperature sent with every request.
func (cb *ContextBuilder) SetTemperature(t float64) {
	cb.temperature = t
}

// Build assembles the system prompt followed by the repaired and truncated history.
func (cb *ContextBuilder) Build(history []domain.Message, tools []domain.ToolSchema) domain.ChatRequest {
	system := domain.Message{
		Role:      domain.RoleSystem,
		Content:   cb.systemPrompt,
		Timestamp: time.Now(),
	}

	hist := RepairTranscript(history)
	hist = cb.truncateHistory(hist, CountMessage(cb.counter, system))

	messages := make([]domain.Message, 0, 1+len(hist))
	messages = append(messages, system)
	messages = append(messages, hist...)

	return domain.ChatRequest{
		Model:       cb.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: cb.temperature,
	}
}

// truncateHistory keeps the newest message groups that fit both the message
// and token budgets. The newest group is always kept.
func (cb *ContextBuilder) truncateHistory(history []domain.Message, reserved int) []domain.Message {
	if len(history) == 0 {
		return history
	}
	fitsCount := cb.maxMessages <= 0 || len(history) <= cb.maxMessages
	fitsTokens := cb.maxTokens <= 0 || reserved+CountMessages(cb.counter, history) <= cb.maxTokens
	if fitsCount && fitsTokens {
		return history
	}

	groups := groupMessages(history)

	var kept [][]domain.Message
	msgs, tokens := 0, reserved
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		gTokens := CountMessages(cb.counter, g)
		if len(kept) > 0 {
			if cb.maxMessages > 0 && msgs+len(g) > cb.maxMessages {
				break
			}
			if cb.maxTokens > 0 && tokens+gTokens > cb.maxTokens {
				break
			}
		}
		kept = append(kept, g)
		msgs += len(g)
		tokens += gTokens
	}

	result := make([]domain.Message, 0, msgs)
	for i := len(kept) - 1; i >= 0; i-- {
		result = append(result, kept[i]...)
	}
	return result
}

// groupMessages partitions messages into atomic groups. An assistant message
// with tool calls and the tool results that follow it form one group.
func groupMessages(msgs []domain.Message) [][]domain.Message {
	var groups [][]domain.Message
	i := 0
	for i < len(msgs) {
		msg := msgs[i]
		if msg.Role == domain.RoleAssistant && len(msg.ToolCalls) > 0 {
			group := []domain.Message{msg}
			j := i + 1
			for j < len(msgs) && msgs[j].Role == domain.RoleTool {
				group = append(group, msgs[j])
				j++
			}
			groups = append(groups, group)
			i = j
		} else {
			groups = append(groups, []domain.Message{msg})
			i++
		}
	}
	return groups
}
