package sse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/sse"
)

func frame(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n"
}

func TestDecoder_WholeFrames(t *testing.T) {
	d := sse.NewDecoder()

	deltas := d.Decode([]byte(frame("Hi") + frame(" there") + frame("!") + "data: [DONE]\n"))

	assert.Equal(t, []string{"Hi", " there", "!"}, deltas)
	assert.True(t, d.Done())
}

func TestDecoder_SplitAcrossReads(t *testing.T) {
	// One frame split mid-JSON across two reads must decode identically
	// to the unsplit stream.
	stream := frame("Hello") + frame(" world") + "data: [DONE]\n"

	for split := 1; split < len(stream); split++ {
		d := sse.NewDecoder()
		var deltas []string
		deltas = append(deltas, d.Decode([]byte(stream[:split]))...)
		deltas = append(deltas, d.Decode([]byte(stream[split:]))...)

		assert.Equal(t, []string{"Hello", " world"}, deltas, "split at %d", split)
		assert.True(t, d.Done(), "split at %d", split)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	stream := frame("a") + frame("b") + frame("c") + "data: [DONE]\n"

	d := sse.NewDecoder()
	var deltas []string
	for i := 0; i < len(stream); i++ {
		deltas = append(deltas, d.Decode([]byte{stream[i]})...)
	}

	assert.Equal(t, []string{"a", "b", "c"}, deltas)
}

func TestDecoder_MalformedFrameIsSkipped(t *testing.T) {
	stream := "data: {not json\n" + frame("X") + "data: {also broken]\n" + "data: [DONE]\n"

	d := sse.NewDecoder()
	deltas := d.Decode([]byte(stream))

	assert.Equal(t, []string{"X"}, deltas)
	assert.True(t, d.Done())
}

func TestDecoder_EmptyDeltaAndEmptyLines(t *testing.T) {
	stream := "\n\n" +
		`data: {"choices":[{"delta":{}}]}` + "\n" +
		frame("only") +
		`data: {"choices":[]}` + "\n" +
		"data: [DONE]\n"

	d := sse.NewDecoder()
	deltas := d.Decode([]byte(stream))

	assert.Equal(t, []string{"only"}, deltas)
}

func TestDecoder_NonDataLinesAreIgnored(t *testing.T) {
	stream := ": keep-alive comment\n" +
		"event: message\n" +
		frame("kept") +
		"id: 42\n" +
		"retry: 3000\n" +
		frame("also kept") +
		"data: [DONE]\n"

	d := sse.NewDecoder()
	deltas := d.Decode([]byte(stream))

	assert.Equal(t, []string{"kept", "also kept"}, deltas)
	assert.True(t, d.Done())
}

func TestDecoder_IgnoresFramesAfterDone(t *testing.T) {
	d := sse.NewDecoder()
	deltas := d.Decode([]byte("data: [DONE]\n" + frame("late")))
	assert.Empty(t, deltas)

	deltas = d.Decode([]byte(frame("later")))
	assert.Empty(t, deltas)
}

func TestDecoder_CarryWithoutNewlineStaysBuffered(t *testing.T) {
	d := sse.NewDecoder()

	// No trailing newline, the whole line stays in the carry buffer.
	assert.Empty(t, d.Decode([]byte(`data: {"choices":[{"delta":{"content":"held"}}]}`)))
	// The newline completes it.
	assert.Equal(t, []string{"held"}, d.Decode([]byte("\n")))
}
