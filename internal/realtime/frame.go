package realtime

import (
	"encoding/json"
	"fmt"
)

const (
	EventJoin        = "join"
	EventOnlineUsers = "getOnlineUsers"
	EventError       = "error"
)

// Frame is the JSON envelope of every websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
