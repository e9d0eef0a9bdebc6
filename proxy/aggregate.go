package proxy

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokentap/tokentap/pkg/metrics"
	"github.com/tokentap/tokentap/pkg/tokenusage"
	"github.com/tokentap/tokentap/proxy/worker"
)

// aggregator combines the request descriptor, the parser's terminal
// result and wall-clock latency into exactly one usage record per
// request, however the stream ends.
type aggregator struct {
	requestID string
	desc      tokenusage.Descriptor
	start     time.Time
	pool      *worker.Pool
	logger    *zap.Logger
	once      sync.Once
}

func newAggregator(requestID string, desc tokenusage.Descriptor, start time.Time, pool *worker.Pool, logger *zap.Logger) *aggregator {
	return &aggregator{
		requestID: requestID,
		desc:      desc,
		start:     start,
		pool:      pool,
		logger:    logger,
	}
}

// finish builds and enqueues the record. Latency is measured at the
// moment of finalization, not at first byte. Calls after the first are
// no-ops, which makes the exactly-once guarantee local to this type:
// both the parser goroutine and the dispatcher's failure paths may call
// finish without coordinating.
func (a *aggregator) finish(result tokenusage.Result, status metrics.Status) {
	a.once.Do(func() {
		record := &metrics.Record{
			ID:               a.requestID,
			Model:            a.desc.Model,
			Prompt:           a.desc.Prompt,
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			LatencyMS:        time.Since(a.start).Milliseconds(),
			Timestamp:        time.Now().UTC(),
			Status:           status,
		}

		if result.Malformed > 0 {
			a.logger.Warn("discarded malformed stream units",
				zap.String("request_id", a.requestID),
				zap.Int("malformed", result.Malformed),
			)
		}

		a.pool.Enqueue(worker.Job{Record: record})
	})
}

// statusFor maps a parser result onto a record status: complete when the
// stream's completion marker was seen, partial otherwise.
func statusFor(result tokenusage.Result) metrics.Status {
	if result.Complete {
		return metrics.StatusComplete
	}
	return metrics.StatusPartial
}
