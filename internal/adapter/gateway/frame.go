package gateway

import (
	"encoding/json"

	"weatherdine/internal/domain"
)

// FrameType tags a WebSocket frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the JSON envelope for every WebSocket message. Requests carry
// Method, responses echo the request ID, events name their type in Event.
type Frame struct {
	Type    FrameType        `json:"type"`
	ID      uint64           `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Event   domain.EventType `json:"event,omitempty"`
	Payload json.RawMessage  `json:"payload,omitempty"`
	Error   string           `json:"error,omitempty"`
	Code    string           `json:"code,omitempty"`
}

// responseFrame builds the reply to request id. A non-nil err drops result
// and carries the domain error code instead.
func responseFrame(id uint64, result json.RawMessage, err error) Frame {
	if err != nil {
		return Frame{Type: FrameTypeResponse, ID: id, Error: err.Error(), Code: string(domain.ErrorCodeOf(err))}
	}
	return Frame{Type: FrameTypeResponse, ID: id, Payload: result}
}
