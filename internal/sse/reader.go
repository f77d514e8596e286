package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrStop is returned by a record handler to cancel reading before the
// underlying stream ends. Read swallows it and returns nil.
var ErrStop = errors.New("sse: stop")

// Read parses records from r and invokes handle for each complete record.
// Parsing rules:
//   - a line beginning with ':' is a comment and ignored
//   - the text before the first ':' names the field; the value is everything
//     after it, minus one optional leading space
//   - unknown field names are ignored
//   - a blank line flushes the current record if any field was set
//
// Records split across arbitrary read-chunk boundaries are reassembled. An
// unterminated trailing record at EOF is discarded.
func Read(r io.Reader, handle func(Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		dataLines []string
		rec       Record
		dirty     bool
	)

	flush := func() error {
		if !dirty {
			return nil
		}
		rec.Data = strings.Join(dataLines, "\n")
		err := handle(rec)
		rec = Record{}
		dataLines = nil
		dirty = false
		return err
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if line == "" {
			if err := flush(); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			dirty = true
		case "event":
			rec.Event = value
			dirty = true
		case "id":
			rec.ID = value
			dirty = true
		case "retry":
			rec.Retry = value
			dirty = true
		}
	}

	return scanner.Err()
}
