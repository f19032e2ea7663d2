package sse

import (
	"io"
	"strings"
)

// Event is a single SSE event written to a downstream client.
type Event struct {
	// Type is the SSE event type written as the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the event payload. Embedded newlines are split across multiple
	// "data:" lines, which a conforming client joins back with "\n".
	Data string

	// ID is written as the "id:" field when non-empty.
	ID string
}

// Encode renders the event in wire form, terminated by a blank line.
func (e Event) Encode() string {
	var b strings.Builder

	if e.ID != "" {
		b.WriteString("id: ")
		b.WriteString(e.ID)
		b.WriteByte('\n')
	}

	if e.Type != "" {
		b.WriteString("event: ")
		b.WriteString(e.Type)
		b.WriteByte('\n')
	}

	for _, line := range strings.Split(e.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	return b.String()
}

// WriteEvent encodes ev and writes it to w.
func WriteEvent(w io.Writer, ev Event) error {
	_, err := io.WriteString(w, ev.Encode())
	return err
}
