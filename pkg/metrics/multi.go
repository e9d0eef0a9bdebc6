package metrics

import "context"

// multiSink fans records out to multiple sinks.
type multiSink struct {
	sinks []Sink
}

// Multi creates a Sink that delivers every record to all provided sinks.
// Every sink is attempted even if an earlier one fails; the first error
// is returned after all attempts.
func Multi(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) Emit(ctx context.Context, record *Record) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
