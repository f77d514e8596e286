package stream

import (
	"encoding/json"
	"fmt"
	"io"

	"courier.chat/relay/internal/sse"
)

// Decode reads chat events from r until the [DONE] sentinel or EOF. The
// sentinel stops the underlying reader immediately; records after it are
// never parsed. Malformed JSON payloads are skipped, reported through the
// optional onParseErr hook, and never fatal.
func Decode(r io.Reader, onEvent func(Event) error, onParseErr func(error)) error {
	return sse.Read(r, func(rec sse.Record) error {
		if rec.Data == DoneData {
			return sse.ErrStop
		}

		var ev Event
		if err := json.Unmarshal([]byte(rec.Data), &ev); err != nil {
			if onParseErr != nil {
				onParseErr(fmt.Errorf("decoding event payload: %w", err))
			}
			return nil
		}

		return onEvent(ev)
	})
}
