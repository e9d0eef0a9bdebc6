package tokenusage

import (
	"encoding/json"
	"strings"
)

// Descriptor holds what the metrics record needs to know about a request:
// the model asked for, a flattened prompt, and whether the client asked
// for a streamed response. It is extracted once, before forwarding, and
// read-only afterwards.
type Descriptor struct {
	Model  string
	Prompt string
	Stream bool
}

// requestBody is the schema-agnostic shape shared by Ollama and
// OpenAI-compatible chat/completion requests.
type requestBody struct {
	Model    string           `json:"model"`
	Prompt   string           `json:"prompt"`
	Messages []requestMessage `json:"messages"`
	Stream   *bool            `json:"stream"`
}

type requestMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// DescribeRequest extracts a Descriptor from a request body. Callers
// forward the original bytes unchanged. Extraction fails softly: anything
// unparseable yields a zero-valued Descriptor, never an error, and the
// request is still proxied.
func DescribeRequest(body []byte) Descriptor {
	var req requestBody
	if err := json.Unmarshal(body, &req); err != nil {
		return Descriptor{}
	}

	d := Descriptor{Model: req.Model}
	if req.Stream != nil {
		d.Stream = *req.Stream
	}

	if req.Prompt != "" {
		d.Prompt = req.Prompt
		return d
	}

	// Chat schema: flatten messages to "role: content" lines.
	lines := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		lines = append(lines, msg.Role+": "+messageText(msg.Content))
	}
	d.Prompt = strings.Join(lines, "\n")
	return d
}

// messageText renders a message content value as plain text. Content is
// usually a string, but OpenAI-compatible schemas also allow an array of
// typed parts; text parts are concatenated and the rest skipped.
func messageText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &parts); err != nil {
		return ""
	}

	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.Text)
	}
	return b.String()
}
