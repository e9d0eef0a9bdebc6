package worker_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tokentap/tokentap/pkg/logger"
	"github.com/tokentap/tokentap/pkg/metrics"
	"github.com/tokentap/tokentap/proxy/worker"
)

// captureSink records every emitted record.
type captureSink struct {
	mu      sync.Mutex
	records []*metrics.Record
}

func (s *captureSink) Emit(_ context.Context, record *metrics.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) all() []*metrics.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*metrics.Record(nil), s.records...)
}

// gatedSink blocks every emission until released.
type gatedSink struct {
	release chan struct{}
}

func (s *gatedSink) Emit(_ context.Context, _ *metrics.Record) error {
	<-s.release
	return nil
}

func (s *gatedSink) Close() error { return nil }

var _ = Describe("Pool", func() {
	var sink *captureSink

	BeforeEach(func() {
		sink = &captureSink{}
	})

	Context("NewPool", func() {
		It("requires a sink", func() {
			_, err := worker.NewPool(&worker.Config{Logger: logger.Nop()})
			Expect(err).To(HaveOccurred())
		})

		It("applies worker and queue defaults", func() {
			wp, err := worker.NewPool(&worker.Config{Sink: sink, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			wp.Close()
		})
	})

	Context("Enqueue", func() {
		It("delivers every record to the sink", func() {
			wp, err := worker.NewPool(&worker.Config{
				Sink:       sink,
				NumWorkers: 3,
				QueueSize:  16,
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 10; i++ {
				ok := wp.Enqueue(worker.Job{Record: &metrics.Record{ID: "r", Status: metrics.StatusComplete}})
				Expect(ok).To(BeTrue())
			}

			wp.Close()
			Expect(sink.all()).To(HaveLen(10))
		})

		It("drops records without blocking when the queue is full", func() {
			gated := &gatedSink{release: make(chan struct{})}
			wp, err := worker.NewPool(&worker.Config{
				Sink:       gated,
				NumWorkers: 1,
				QueueSize:  1,
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			// The single worker blocks on the first record; the second sits
			// in the queue; later records must be rejected immediately.
			Expect(wp.Enqueue(worker.Job{Record: &metrics.Record{ID: "a"}})).To(BeTrue())
			Eventually(func() bool {
				return wp.Enqueue(worker.Job{Record: &metrics.Record{ID: "b"}})
			}).Should(BeFalse())

			close(gated.release)
			wp.Close()
		})

		It("rejects records after Close", func() {
			wp, err := worker.NewPool(&worker.Config{Sink: sink, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			wp.Close()

			ok := wp.Enqueue(worker.Job{Record: &metrics.Record{ID: "late"}})
			Expect(ok).To(BeFalse())
			Expect(sink.all()).To(BeEmpty())
		})
	})

	Context("Close", func() {
		It("drains queued records before returning", func() {
			wp, err := worker.NewPool(&worker.Config{
				Sink:       sink,
				NumWorkers: 1,
				QueueSize:  64,
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 50; i++ {
				wp.Enqueue(worker.Job{Record: &metrics.Record{ID: "r"}})
			}
			wp.Close()

			Expect(sink.all()).To(HaveLen(50))
		})

		It("is safe to call twice", func() {
			wp, err := worker.NewPool(&worker.Config{Sink: sink, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			wp.Close()
			wp.Close()
		})
	})
})
