// Package event decodes the agent's stream payloads and routes them to the
// matching handler.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Type string

const (
	TypeLog         Type = "log"
	TypeFinalAnswer Type = "final_answer"
	TypeError       Type = "error"
)

// Event is one decoded stream payload. Only the fields belonging to Type
// are meaningful.
type Event struct {
	Type     Type   `json:"type"`
	LoopType string `json:"loop_type,omitempty"`
	Role     string `json:"role,omitempty"`
	Content  string `json:"content"`
}

// LogEntry is one step of the agent's trace.
type LogEntry struct {
	LoopType string
	Role     string
	Content  string
}

// Handler receives classified events.
type Handler interface {
	OnLog(entry LogEntry)
	OnFinalAnswer(content string)
	OnError(content string)
}

// MalformedEventError is returned when a payload is not a StreamEvent.
type MalformedEventError struct {
	Payload string
	Err     error
}

func (e *MalformedEventError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed stream event %q", truncate(e.Payload, 120))
	}
	return fmt.Sprintf("malformed stream event %q: %v", truncate(e.Payload, 120), e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// UnknownTypeError is returned for well-formed events with a type this
// client does not know.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown stream event type %q", string(e.Type))
}

// Decode parses one payload.
func Decode(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	var ev Event
	if len(trimmed) == 0 {
		return ev, &MalformedEventError{Payload: string(data), Err: fmt.Errorf("empty payload")}
	}
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return ev, &MalformedEventError{Payload: string(data), Err: err}
	}
	ev.Type = Type(strings.TrimSpace(string(ev.Type)))
	if ev.Type == "" {
		return ev, &MalformedEventError{Payload: string(data), Err: fmt.Errorf("missing type")}
	}
	return ev, nil
}

// Dispatch decodes data and calls the handler method for its type. Nothing
// is called when an error is returned.
func Dispatch(data []byte, h Handler) error {
	ev, err := Decode(data)
	if err != nil {
		return err
	}
	switch ev.Type {
	case TypeLog:
		h.OnLog(LogEntry{LoopType: ev.LoopType, Role: ev.Role, Content: ev.Content})
	case TypeFinalAnswer:
		h.OnFinalAnswer(ev.Content)
	case TypeError:
		h.OnError(ev.Content)
	default:
		return &UnknownTypeError{Type: ev.Type}
	}
	return nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
