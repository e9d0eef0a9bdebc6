// Package nop provides a no-op metrics sink used for tests and disabled mode.
package nop

import (
	"context"

	"github.com/tokentap/tokentap/pkg/metrics"
)

// Sink is a no-op metrics sink.
type Sink struct{}

// NewSink creates a new no-op sink.
func NewSink() *Sink {
	return &Sink{}
}

// Emit validates input and otherwise does nothing.
func (s *Sink) Emit(_ context.Context, record *metrics.Record) error {
	if record == nil {
		return metrics.ErrNilRecord
	}
	return nil
}

// Close is a no-op.
func (s *Sink) Close() error {
	return nil
}
