// Package worker provides an asynchronous worker pool that delivers
// finalized usage records to the configured metrics sink.
//
// The pool decouples sink latency from the proxy's HTTP hot path: a slow
// or failing sink never delays a client-facing stream, and sink errors are
// logged and swallowed rather than propagated into the request lifecycle.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokentap/tokentap/pkg/metrics"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// emitTimeout bounds a single sink emission so a wedged sink cannot pin a
// worker forever.
const emitTimeout = 10 * time.Second

// Job is a unit of work for the pool: one finalized usage record.
type Job struct {
	Record *metrics.Record
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Sink receives emitted records.
	Sink metrics.Sink

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool emits usage records asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Sink == nil {
		return nil, fmt.Errorf("worker pool requires a metrics sink")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := uint(0); i < c.NumWorkers; i++ {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a record for emission. Returns true if enqueued, false
// if the queue is full or the pool is closed, in which case the record is
// dropped. Enqueue never blocks the caller.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("record not queued, pool closed",
			zap.String("record_id", job.Record.ID),
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("record queued",
			zap.String("record_id", job.Record.ID),
			zap.String("model", job.Record.Model),
		)
		return true
	default:
		p.logger.Error("record not queued, queue full, record dropped",
			zap.String("record_id", job.Record.ID),
			zap.String("model", job.Record.Model),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight emissions to
// drain. Call this during graceful shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker continuously pulls jobs off the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("emission worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("emission worker stopped", zap.Uint("worker_id", id))
}

// processJob delivers one record to the sink. Sink failures are logged
// and swallowed: emission is best effort and must never surface anywhere
// near the request path.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := p.config.Sink.Emit(ctx, job.Record); err != nil {
		p.logger.Error("usage record emission failed",
			zap.String("record_id", job.Record.ID),
			zap.String("model", job.Record.Model),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("usage record emitted",
		zap.String("record_id", job.Record.ID),
		zap.String("status", string(job.Record.Status)),
	)
}
