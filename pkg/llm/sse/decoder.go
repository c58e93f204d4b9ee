// Package sse decodes OpenAI-style server-sent-event streams into content
// deltas. Network reads do not align with frame boundaries, so the decoder
// keeps the trailing partial line between calls.
package sse

import (
	"encoding/json"
	"strings"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// Decoder reassembles newline-delimited `data:` frames across read
// boundaries. The zero value is ready to use; a Decoder must not be shared
// between goroutines.
type Decoder struct {
	carry string
	done  bool
}

// NewDecoder returns a fresh Decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// completionChunk is the subset of the chat-completions chunk frame we read
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decode appends chunk to the carry-over buffer and returns the content
// deltas of every frame completed by it, in wire order. A malformed frame is
// skipped and logged, never fatal. Frames after the [DONE] sentinel are
// ignored.
func (d *Decoder) Decode(chunk []byte) []string {
	if d.done {
		return nil
	}

	buf := d.carry + string(chunk)
	lines := strings.Split(buf, "\n")
	// The last segment may be an incomplete frame, hold it back for the
	// next read.
	d.carry = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	var deltas []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Only data frames carry payloads; comments and other SSE fields
		// (event:, id:, retry:) are not ours to parse.
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, dataPrefix)
		if payload == doneSentinel {
			d.done = true
			break
		}

		var frame completionChunk
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			logging.LogDebugf("Skipping malformed SSE frame: %v", err)
			continue
		}
		if len(frame.Choices) == 0 {
			continue
		}
		if content := frame.Choices[0].Delta.Content; content != "" {
			deltas = append(deltas, content)
		}
	}
	return deltas
}

// Done reports whether the [DONE] sentinel has been seen
func (d *Decoder) Done() bool {
	return d.done
}
