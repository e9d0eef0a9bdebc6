package tokenusage

import (
	"bytes"
	"encoding/json"
)

// ollamaLine is the subset of an Ollama NDJSON line the parser cares
// about. Counts are pointers so absent fields stay distinguishable from
// zero: the final line legitimately omits prompt_eval_count when the
// prompt was served from cache.
type ollamaLine struct {
	Done            bool `json:"done"`
	PromptEvalCount *int `json:"prompt_eval_count"`
	EvalCount       *int `json:"eval_count"`
}

// ollamaParser consumes Ollama's NDJSON stream. It buffers only the bytes
// after the last newline and finalizes on the first line with done=true.
type ollamaParser struct {
	tail   []byte
	result Result
}

func newOllamaParser() *ollamaParser {
	return &ollamaParser{}
}

// Feed appends a chunk and consumes every complete line in the buffer.
func (p *ollamaParser) Feed(chunk []byte) {
	p.tail = append(p.tail, chunk...)

	for {
		i := bytes.IndexByte(p.tail, '\n')
		if i < 0 {
			return
		}
		line := p.tail[:i]
		p.tail = p.tail[i+1:]
		p.consumeLine(line)
	}
}

// Finalize consumes a trailing line that arrived without its newline
// (some servers do not terminate the final line) and returns the result.
func (p *ollamaParser) Finalize() Result {
	if len(bytes.TrimSpace(p.tail)) > 0 {
		p.consumeLine(p.tail)
	}
	p.tail = nil
	return p.result
}

func (p *ollamaParser) consumeLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var unit ollamaLine
	if err := json.Unmarshal(line, &unit); err != nil {
		p.result.Malformed++
		return
	}

	// First done=true line wins; a well-formed stream has exactly one.
	if !unit.Done || p.result.Complete {
		return
	}

	p.result.Complete = true
	p.result.PromptTokens = unit.PromptEvalCount
	p.result.CompletionTokens = unit.EvalCount
}
