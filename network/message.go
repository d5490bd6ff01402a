package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message 线上信封：{"type": ..., "data": {...}, "ts": unix 毫秒}
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	TS   int64           `json:"ts"`
}

// NewMessage marshals payload into a stamped envelope. A nil payload leaves
// data empty.
func NewMessage(eventType string, payload interface{}) (*Message, error) {
	msg := &Message{Type: eventType, TS: time.Now().UnixMilli()}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	msg.Data = data
	return msg, nil
}

// MustMessage is NewMessage for payloads that are plain structs of the
// protocol; a marshal failure there is a programming error.
func MustMessage(eventType string, payload interface{}) *Message {
	msg, err := NewMessage(eventType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// ErrMalformed marks a frame that arrived intact but is not a valid envelope.
// The connection stays usable.
var ErrMalformed = errors.New("malformed message")

func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &msg, nil
}

// Bind unmarshals the data section into v.
func (m *Message) Bind(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s: %w", m.Type, err)
	}
	return nil
}
