package usecase

import (
	"encoding/json"
	"testing"

	"weatherdine/internal/domain"
)

func TestHeuristicCounter(t *testing.T) {
	c := HeuristicCounter{}
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3},
	}
	for _, tt := range tests {
		if got := c.Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestNewTokenCounterEmptyNameIsHeuristic(t *testing.T) {
	if _, ok := NewTokenCounter("", newTestLogger()).(HeuristicCounter); !ok {
		t.Error("empty name should select the heuristic counter")
	}
}

func TestCountMessageIncludesToolCalls(t *testing.T) {
	c := HeuristicCounter{}
	plain := CountMessage(c, domain.Message{Content: "abcd"})
	if plain != perMessageOverhead+1 {
		t.Errorf("plain = %d", plain)
	}
	withCall := CountMessage(c, domain.Message{ToolCalls: []domain.ToolCall{
		{Name: "get-weather", Arguments: json.RawMessage(`{"location":"Rome"}`)},
	}})
	if withCall <= perMessageOverhead {
		t.Errorf("tool call arguments not counted: %d", withCall)
	}
	if CountMessages(c, []domain.Message{{Content: "abcd"}, {Content: "abcd"}}) != 2*plain {
		t.Error("CountMessages should sum messages")
	}
}
