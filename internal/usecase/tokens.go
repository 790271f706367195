package usecase

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"weatherdine/internal/domain"
)

// TokenCounter estimates how many tokens a piece of text costs.
type TokenCounter interface {
	Count(text string) int
}

// perMessageOverhead approximates role and separator tokens added per message.
const perMessageOverhead = 4

// HeuristicCounter assumes about four characters per token.
type HeuristicCounter struct{}

// Count implements TokenCounter.
func (HeuristicCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// tiktokenCounter loads its encoding on first use and falls back to the
// heuristic when the encoding cannot be loaded.
type tiktokenCounter struct {
	name   string
	logger *slog.Logger

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback HeuristicCounter
}

// NewTokenCounter returns a tiktoken counter for name, which may be a model
// ("gpt-4o-mini") or an encoding ("cl100k_base"). An empty name selects the
// heuristic counter.
func NewTokenCounter(name string, logger *slog.Logger) TokenCounter {
	if name == "" {
		return HeuristicCounter{}
	}
	return &tiktokenCounter{name: name, logger: logger}
}

func (c *tiktokenCounter) load() {
	enc, err := tiktoken.EncodingForModel(c.name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(c.name)
	}
	if err != nil {
		c.logger.Warn("tiktoken encoding unavailable, using heuristic token count",
			"encoding", c.name, "error", err)
		return
	}
	c.enc = enc
}

// Count implements TokenCounter.
func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(c.load)
	if c.enc == nil {
		return c.fallback.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessage estimates the prompt cost of a single message.
func CountMessage(c TokenCounter, m domain.Message) int {
	n := perMessageOverhead + c.Count(m.Content)
	for _, tc := range m.ToolCalls {
		n += c.Count(tc.Name) + c.Count(string(tc.Arguments))
	}
	return n
}

// CountMessages sums CountMessage over msgs.
func CountMessages(c TokenCounter, msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += CountMessage(c, m)
	}
	return total
}
