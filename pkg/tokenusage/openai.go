package tokenusage

import (
	"bytes"
	"encoding/json"
	"strings"
)

// doneSentinel is the literal payload OpenAI-compatible servers send to
// mark the end of a stream. It is not JSON and must never be parsed as such.
const doneSentinel = "[DONE]"

var (
	boundaryLF   = []byte("\n\n")
	boundaryCRLF = []byte("\n\r\n")
)

// openaiEvent is the subset of an SSE data payload the parser cares
// about. Intermediate delta events carry no top-level usage object and
// are deliberately skipped.
type openaiEvent struct {
	Usage *openaiUsage `json:"usage"`
}

type openaiUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
}

// openaiParser consumes an OpenAI-compatible SSE stream. Events are
// delimited by a blank line; the parser buffers only the bytes after the
// last complete event and finalizes on the first event whose payload
// carries a top-level usage object.
type openaiParser struct {
	tail   []byte
	result Result
}

func newOpenAIParser() *openaiParser {
	return &openaiParser{}
}

// Feed appends a chunk and consumes every complete event in the buffer.
func (p *openaiParser) Feed(chunk []byte) {
	p.tail = append(p.tail, chunk...)

	for {
		event, rest, ok := splitEvent(p.tail)
		if !ok {
			return
		}
		p.tail = rest
		p.consumeEvent(event)
	}
}

// splitEvent cuts the first complete event off the buffer. Events end at
// a blank line; the blank line itself may be "\n" or "\r\n" regardless of
// how the preceding line was terminated, so the boundary is "\n\n" or
// "\n\r\n" (which also covers a pure CRLF "\r\n\r\n"). The earlier match
// wins. A stray "\r" left on the event is trimmed per line downstream.
func splitEvent(buf []byte) (event, rest []byte, ok bool) {
	i := bytes.Index(buf, boundaryLF)
	j := bytes.Index(buf, boundaryCRLF)
	switch {
	case i < 0 && j < 0:
		return nil, nil, false
	case j < 0 || (i >= 0 && i < j):
		return buf[:i], buf[i+len(boundaryLF):], true
	default:
		return buf[:j], buf[j+len(boundaryCRLF):], true
	}
}

// Finalize consumes an in-progress event that arrived without its
// terminating blank line and returns the result.
func (p *openaiParser) Finalize() Result {
	if len(bytes.TrimSpace(p.tail)) > 0 {
		p.consumeEvent(p.tail)
	}
	p.tail = nil
	return p.result
}

// consumeEvent parses one SSE event block. Per the SSE spec, the data
// payload is the concatenation of all "data:" field values joined with a
// newline; comment lines (leading ':') and non-data fields are ignored.
func (p *openaiParser) consumeEvent(event []byte) {
	var data strings.Builder
	hasData := false

	for _, rawLine := range bytes.Split(event, []byte("\n")) {
		line := strings.TrimSuffix(string(rawLine), "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			// A line with no colon is a field name with an empty value.
			field = line
		}
		if field != "data" {
			continue
		}
		// A single leading space after the colon is stripped, per spec.
		value = strings.TrimPrefix(value, " ")

		if hasData {
			data.WriteString("\n")
		}
		data.WriteString(value)
		hasData = true
	}

	if !hasData {
		return
	}

	payload := data.String()
	if payload == doneSentinel {
		// End-of-stream sentinel without usage: the result stays
		// incomplete and the aggregator reports a partial record.
		return
	}

	var unit openaiEvent
	if err := json.Unmarshal([]byte(payload), &unit); err != nil {
		p.result.Malformed++
		return
	}

	// First usage-bearing event wins; later occurrences are ignored.
	if unit.Usage == nil || p.result.Complete {
		return
	}

	p.result.Complete = true
	p.result.PromptTokens = unit.Usage.PromptTokens
	p.result.CompletionTokens = unit.Usage.CompletionTokens
}
