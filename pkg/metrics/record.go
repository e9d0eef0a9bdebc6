// Package metrics defines the usage record emitted once per proxied request
// and the sink interface records are delivered to.
package metrics

import (
	"encoding/json"
	"time"
)

// Status describes how a request's usage record was finalized.
type Status string

const (
	// StatusComplete means the stream carried its completion marker and
	// token counts were recovered.
	StatusComplete Status = "complete"

	// StatusPartial means the stream ended (or was truncated) before a
	// completion marker was seen. Token counts are usually absent.
	StatusPartial Status = "partial"

	// StatusError means the upstream request failed in transport.
	StatusError Status = "error"
)

// Record is the terminal usage record for one proxied request.
// It is created exactly once by the aggregator and immutable afterwards.
//
// PromptTokens and CompletionTokens are pointers so that "not observed"
// serializes as JSON null rather than a misleading zero.
type Record struct {
	ID               string    `json:"id"`
	Model            string    `json:"model"`
	Prompt           string    `json:"prompt"`
	PromptTokens     *int      `json:"prompt_tokens"`
	CompletionTokens *int      `json:"completion_tokens"`
	LatencyMS        int64     `json:"latency_ms"`
	Timestamp        time.Time `json:"timestamp"`
	Status           Status    `json:"status"`
}

// TimestampLayout is the wire format for record timestamps: RFC3339 with
// millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// MarshalJSON keeps the wire timestamp in TimestampLayout regardless of
// the clock source's resolution.
func (r *Record) MarshalJSON() ([]byte, error) {
	type alias Record
	return json.Marshal(&struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{
		alias:     (*alias)(r),
		Timestamp: r.Timestamp.UTC().Format(TimestampLayout),
	})
}
