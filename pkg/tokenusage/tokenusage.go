// Package tokenusage recovers token usage from LLM streaming wire formats.
//
// Inference servers report token counts only in the terminal unit of a
// long-lived stream: Ollama's NDJSON puts them on the final line carrying
// "done": true, OpenAI-compatible servers put them in the final SSE event
// carrying a top-level "usage" object. The parsers here consume the raw
// byte stream incrementally, buffering only the unterminated tail between
// chunks, so they tolerate frames split at arbitrary chunk boundaries.
package tokenusage

import "strings"

// Format identifies the streaming wire format of an upstream response.
type Format string

const (
	// FormatOllama is newline-delimited JSON as produced by Ollama's
	// /api/generate and /api/chat endpoints.
	FormatOllama Format = "ollama"

	// FormatOpenAI is the text/event-stream format used by
	// OpenAI-compatible chat completion endpoints.
	FormatOpenAI Format = "openai"

	// FormatUnknown selects the passthrough parser, which never yields
	// token counts.
	FormatUnknown Format = "unknown"
)

// Result is the terminal value produced by a parser.
//
// Complete reports whether the stream's completion marker was observed.
// Nil token counts mean the stream never revealed them. Malformed counts
// delimited units that failed to parse as JSON; these are discarded
// without aborting the stream and surface as a warning in logs.
type Result struct {
	PromptTokens     *int
	CompletionTokens *int
	Complete         bool
	Malformed        int
}

// Parser incrementally consumes a response byte stream and produces a
// terminal Result. Feed appends a chunk; Finalize flushes any buffered
// tail and returns the accumulated result. A parser instance belongs to
// exactly one response and must not be reused.
type Parser interface {
	Feed(chunk []byte)
	Finalize() Result
}

// Detect selects the parser format for a response. The response
// Content-Type is authoritative when recognized; the upstream request
// path breaks ties for servers that omit or genericize the header.
// Unrecognized backends fall through to FormatUnknown.
func Detect(path, contentType string) Format {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text/event-stream"):
		return FormatOpenAI
	case strings.Contains(ct, "application/x-ndjson"):
		return FormatOllama
	case strings.Contains(ct, "application/json"):
		return FormatOllama
	}

	// Ollama's native endpoints live under /api/; OpenAI-compatible
	// surfaces live under /v1/.
	switch {
	case strings.HasPrefix(path, "/api/"):
		return FormatOllama
	case strings.HasPrefix(path, "/v1/"):
		return FormatOpenAI
	}

	return FormatUnknown
}

// NewParser instantiates the parser variant for the given format.
// The variant is selected once per response so the per-chunk path stays
// branch-free afterwards.
func NewParser(format Format) Parser {
	switch format {
	case FormatOllama:
		return newOllamaParser()
	case FormatOpenAI:
		return newOpenAIParser()
	default:
		return passthroughParser{}
	}
}
