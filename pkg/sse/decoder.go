// Package sse provides a minimal, purpose-built line decoder for the
// server-sent-events style bodies returned by OpenAI-compatible chat
// completion endpoints, plus a small event encoder used when reel re-emits a
// session to a browser.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"bytes"
	"io"
)

// Decoder turns successive chunks of a response body into complete frame
// lines. A frame is one newline-terminated line with its terminator ("\n" or
// "\r\n") stripped. Fragments that are not yet terminated are buffered until
// the chunk that completes them arrives.
//
// ┌──────────────┐   ┌──────────────┐   ┌─────────────────────┐
// │ body chunks  │──▶│ Decoder.Feed │──▶│ dest io.Writer (opt)│
// └──────────────┘   └──────────────┘   └─────────────────────┘
// │
// ▼
// ┌──────────────┐
// │ []string     │
// └──────────────┘
//
// A Decoder holds state for exactly one response body. Create a new one per
// stream session.
type Decoder struct {
	// pending holds the unterminated tail of everything fed so far.
	pending []byte

	// dest optionally receives every raw chunk verbatim.
	dest io.Writer

	closed bool
}

// NewDecoder returns a Decoder with no tee destination.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// NewTeeDecoder returns a Decoder that also writes every raw chunk it is fed
// to dest before splitting it. This is used to record provider transcripts.
func NewTeeDecoder(dest io.Writer) *Decoder {
	return &Decoder{dest: dest}
}

// Feed appends chunk to the pending buffer and returns every complete line
// now available, in order. A write error from the tee destination is
// returned alongside the decoded lines; decoding itself never fails.
//
// Feeding after Close is a no-op.
func (d *Decoder) Feed(chunk []byte) ([]string, error) {
	if d.closed || len(chunk) == 0 {
		return nil, nil
	}

	var teeErr error
	if d.dest != nil {
		_, teeErr = d.dest.Write(chunk)
	}

	d.pending = append(d.pending, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}

		line := d.pending[:idx]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))

		d.pending = d.pending[idx+1:]
	}

	// Compact so a long stream does not keep the whole body reachable
	// through the backing array.
	if len(d.pending) == 0 {
		d.pending = nil
	} else if cap(d.pending) > 2*len(d.pending)+4096 {
		d.pending = append([]byte(nil), d.pending...)
	}

	return lines, teeErr
}

// Close signals end of stream. Any unterminated trailing fragment is
// discarded rather than emitted, and is returned so the caller can log it.
// Close is idempotent.
func (d *Decoder) Close() string {
	if d.closed {
		return ""
	}
	d.closed = true

	leftover := string(d.pending)
	d.pending = nil
	return leftover
}

// Pending reports how many bytes of an unterminated fragment are buffered.
func (d *Decoder) Pending() int {
	return len(d.pending)
}
