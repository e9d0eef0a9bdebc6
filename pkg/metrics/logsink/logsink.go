// Package logsink emits usage records as newline-delimited JSON objects on
// an append-only log stream. This is the default sink: one compact JSON
// object per completed request, in the documented schema.
package logsink

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tokentap/tokentap/pkg/metrics"
)

// Sink writes one JSON object per record through a dedicated zap logger.
type Sink struct {
	log *zap.Logger
}

// NewSink creates a log sink writing to w. A nil writer defaults to stdout.
//
// The sink's encoder carries no time, level or message keys of its own,
// so the record fields are the entire line and the schema stays exactly
// the documented one. The locked write syncer serializes concurrent
// emissions so request tasks never interleave partial JSON objects.
func NewSink(w io.Writer) *Sink {
	if w == nil {
		w = os.Stdout
	}

	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LineEnding: zapcore.DefaultLineEnding,
	})
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zapcore.InfoLevel)

	return &Sink{log: zap.New(core)}
}

// Emit serializes the record and appends it to the stream. The pointer
// token counts go through zap's pointer fields so unobserved counts stay
// JSON null.
func (s *Sink) Emit(_ context.Context, record *metrics.Record) error {
	if record == nil {
		return metrics.ErrNilRecord
	}

	s.log.Info("",
		zap.String("id", record.ID),
		zap.String("model", record.Model),
		zap.String("prompt", record.Prompt),
		zap.Intp("prompt_tokens", record.PromptTokens),
		zap.Intp("completion_tokens", record.CompletionTokens),
		zap.Int64("latency_ms", record.LatencyMS),
		zap.String("timestamp", record.Timestamp.UTC().Format(metrics.TimestampLayout)),
		zap.String("status", string(record.Status)),
	)
	return nil
}

// Close flushes the underlying logger.
func (s *Sink) Close() error {
	return s.log.Sync()
}
