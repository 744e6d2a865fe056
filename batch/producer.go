package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// producer pages the DataSource into the queue from a single goroutine.
type producer[T any] struct {
	source    DataSource[T]
	queue     *queue[T]
	batchSize int
	collapsed <-chan struct{}
	logger    *slog.Logger

	// ready is closed after the first push, or when run returns without one.
	ready     chan struct{}
	readyOnce sync.Once
	fetched   atomic.Int64
}

func newProducer[T any](src DataSource[T], q *queue[T], batchSize int, collapsed <-chan struct{}, logger *slog.Logger) *producer[T] {
	return &producer[T]{
		source:    src,
		queue:     q,
		batchSize: batchSize,
		collapsed: collapsed,
		logger:    logger,
		ready:     make(chan struct{}),
	}
}

// run drains the source. The queue is closed on every return path; a non-nil
// error means the source was not fully drained.
func (p *producer[T]) run(ctx context.Context) error {
	defer p.queue.close()
	defer p.signalReady()

	var seq int64
	offset := 0
	for {
		page, err := p.source.Page(ctx, offset, p.batchSize)
		if err != nil {
			return fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		p.logger.Debug("page fetched", slog.Int("offset", offset), slog.Int("size", len(page)))

		for _, payload := range page {
			if err := p.queue.push(ctx, p.collapsed, WorkItem[T]{Seq: seq, Payload: payload}); err != nil {
				p.logger.Warn("producer stopped early", slog.Int64("seq", seq), slog.Any("error", err))
				return err
			}
			seq++
			p.fetched.Add(1)
			p.signalReady()
		}

		if len(page) < p.batchSize {
			return nil
		}
		offset += len(page)
	}
}

func (p *producer[T]) signalReady() {
	p.readyOnce.Do(func() { close(p.ready) })
}
