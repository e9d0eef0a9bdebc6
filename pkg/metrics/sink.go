package metrics

import (
	"context"
	"errors"
)

// ErrNilRecord indicates a nil record was handed to a sink.
var ErrNilRecord = errors.New("nil metrics record")

// Sink receives finalized usage records. Implementations must be safe for
// concurrent use: many request tasks emit into one process-wide sink.
//
// Emission is best effort by contract: callers log sink errors and never
// propagate them into the request path.
type Sink interface {
	Emit(ctx context.Context, record *Record) error
	Close() error
}
