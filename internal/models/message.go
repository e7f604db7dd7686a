package models

import (
	"encoding/json"
)

// Message types exchanged over the worker connection.
const (
	MessageToolsList   = "tools:list"
	MessageTaskStart   = "task:start"
	MessageTaskResult  = "task:result"
	MessagePing        = "ping"
	MessagePong        = "pong"
	MessageWorkerReady = "worker:ready"
)

// Handshake headers and close codes.
const (
	HeaderWorkerSecret     = "X-Worker-Secret"
	HeaderWorkerAggressive = "X-Worker-Aggressive"
	HeaderWorkerName       = "X-Worker-Name"

	// CloseMissingSecret is the standard policy-violation code.
	CloseMissingSecret = 1008
	CloseInvalidSecret = 4001
)

// Result extraction markers.
const (
	ResultStartMarker = "<<<RESULT_START>>>"
	ResultEndMarker   = "<<<RESULT_END>>>"
)

// Message is a single frame on the worker connection.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals data into a frame of the given type.
func NewMessage(msgType string, data any) (Message, error) {
	if data == nil {
		data = struct{}{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Data: raw}, nil
}

// WorkerReady is the payload of worker:ready.
type WorkerReady struct {
	Count int `json:"count"`
}
