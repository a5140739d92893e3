// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// =============================================================================
// FRAME TYPE
// =============================================================================

// framePrefix marks a payload-bearing line in the wire format.
const framePrefix = "data: "

// Frame is one decoded record from the transport: the event type tag plus
// the raw JSON object it arrived in. Frames are ephemeral; they are produced
// and consumed within one decode cycle and never retained.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

// frameEnvelope extracts only the type tag; the rest of the object is kept
// raw so each vocabulary can decode its own payload shape.
type frameEnvelope struct {
	Type string `json:"type"`
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder splits an unbounded byte stream into complete frames.
//
// Reads from a chunked HTTP body can end mid-line, so the decoder holds the
// trailing incomplete line in carry between Feed calls. A frame is never
// parsed until its full line has arrived. The decoder is tied to one stream
// and is not restartable.
type Decoder struct {
	// carry holds the possibly-incomplete last line of the previous chunk.
	carry string

	logger *slog.Logger
}

// NewDecoder creates a decoder for one response body.
func NewDecoder() *Decoder {
	return &Decoder{logger: slog.Default()}
}

// Feed appends a chunk of bytes and returns every frame whose line completed
// within it. Lines without the record prefix and records with malformed JSON
// are dropped (the latter logged); neither aborts the stream.
func (d *Decoder) Feed(chunk []byte) []Frame {
	text := d.carry + string(chunk)

	lines := strings.Split(text, "\n")
	// The final element is everything after the last newline: either empty
	// (chunk ended exactly on a boundary) or an incomplete line.
	d.carry = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	var frames []Frame
	for _, line := range lines {
		if f, ok := d.parseLine(line); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

// Flush parses any residual carried content as a final line. Some servers
// omit the trailing newline on the terminal record; call Flush once at
// stream end so that record is not lost.
func (d *Decoder) Flush() (Frame, bool) {
	line := d.carry
	d.carry = ""
	return d.parseLine(line)
}

// parseLine decodes a single complete line into a frame.
func (d *Decoder) parseLine(line string) (Frame, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, framePrefix) {
		return Frame{}, false
	}

	payload := line[len(framePrefix):]
	var env frameEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		// One malformed record must not abort the remaining stream.
		d.logger.Debug("dropping malformed stream record",
			"error", err, "length", len(payload))
		return Frame{}, false
	}

	return Frame{Type: env.Type, Raw: json.RawMessage(payload)}, true
}

// =============================================================================
// SCAN LOOP
// =============================================================================

// scanBufferSize is the read size for the decode loop. Frames are far
// smaller than this in practice; the decoder handles any split.
const scanBufferSize = 4096

// Scan reads r to completion, invoking fn for every decoded frame in
// arrival order. The context is checked before each read; once cancelled no
// further reads are issued and buffered bytes are discarded. At natural
// stream end the decoder is flushed so a terminal record without a trailing
// newline is still delivered.
func Scan(ctx context.Context, r io.Reader, fn func(Frame)) error {
	dec := NewDecoder()
	buf := make([]byte, scanBufferSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				fn(f)
			}
		}
		if err != nil {
			if err == io.EOF {
				if f, ok := dec.Flush(); ok {
					fn(f)
				}
				return nil
			}
			return err
		}
	}
}
