// Package sse implements the line-oriented push-stream wire format used to
// carry chat events: field:value lines, blank-line-delimited records, and
// comment lines. The codec is payload-agnostic; internal/stream layers the
// chat event vocabulary on top.
package sse

import (
	"fmt"
	"io"
	"strings"
)

// Record is one wire record. Data is the joined value of all data lines;
// Event, ID and Retry are set only when the corresponding field appeared.
type Record struct {
	Data  string
	Event string
	ID    string
	Retry string
}

// WriteRecord serializes rec and a terminating blank line to w. A Data value
// containing newlines is emitted as one data line per line.
func WriteRecord(w io.Writer, rec Record) error {
	var b strings.Builder

	if rec.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", rec.Event)
	}
	if rec.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", rec.ID)
	}
	if rec.Retry != "" {
		fmt.Fprintf(&b, "retry: %s\n", rec.Retry)
	}
	for _, line := range strings.Split(rec.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteComment writes a comment line, which readers must ignore.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n", text)
	return err
}
