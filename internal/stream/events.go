// Package stream defines the chat event vocabulary carried over the push
// stream, the decoder that lifts wire records into events, and the tee that
// lets the live response and the persistence path consume one upstream
// stream independently.
package stream

import (
	"encoding/json"
	"io"

	"courier.chat/relay/internal/model"
	"courier.chat/relay/internal/sse"
)

// DoneData is the literal (non-JSON) data payload that terminates a stream.
const DoneData = "[DONE]"

// Event types.
const (
	TypeDelta     = "delta"
	TypeReasoning = "reasoning"
	TypeUsage     = "usage"
	TypeCredits   = "credits"
	TypeMeta      = "meta"
	TypeSearch    = "search"
	TypeError     = "error"
)

// Event is one discriminated record on the stream. Exactly one payload field
// is populated per event, selected by Type.
type Event struct {
	Type      string              `json:"type"`
	Content   string              `json:"content,omitempty"`
	Usage     *model.Usage        `json:"usage,omitempty"`
	Credits   *float64            `json:"credits,omitempty"`
	Meta      *Meta               `json:"meta,omitempty"`
	Search    *model.SearchBundle `json:"search,omitempty"`
	ErrorText string              `json:"error,omitempty"`
}

// Meta carries turn timing and termination detail.
type Meta struct {
	FirstByteMs int64  `json:"first_byte_ms,omitempty"`
	ThinkingMs  int64  `json:"thinking_ms,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// Delta builds a content fragment event.
func Delta(content string) Event { return Event{Type: TypeDelta, Content: content} }

// Reasoning builds a reasoning fragment event.
func Reasoning(content string) Event { return Event{Type: TypeReasoning, Content: content} }

// Error builds a terminal in-band error event.
func Error(text string) Event { return Event{Type: TypeError, ErrorText: text} }

// WriteEvent serializes ev as one wire record.
func WriteEvent(w io.Writer, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return sse.WriteRecord(w, sse.Record{Data: string(payload)})
}

// WriteDone emits the stream-terminating sentinel record.
func WriteDone(w io.Writer) error {
	return sse.WriteRecord(w, sse.Record{Data: DoneData})
}
