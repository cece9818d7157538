package ward

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

const auditEmitTimeout = 2 * time.Second

// auditDispatcher decouples engine operations from the sink. Events go into
// a bounded queue; a single worker delivers them in order. When the queue is
// full the event is dropped and counted, never waited on.
type auditDispatcher struct {
	sink            AuditSink
	queue           chan AuditEvent
	stop            chan struct{}
	drained         chan struct{}
	shutdownTimeout time.Duration
	dropped         atomic.Uint64
	closed          atomic.Bool
}

func newAuditDispatcher(sink AuditSink, queueSize int, shutdownTimeout time.Duration) *auditDispatcher {
	if sink == nil {
		sink = NoopSink{}
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &auditDispatcher{
		sink:            sink,
		queue:           make(chan AuditEvent, queueSize),
		stop:            make(chan struct{}),
		drained:         make(chan struct{}),
		shutdownTimeout: shutdownTimeout,
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			deadline := time.Now().Add(d.shutdownTimeout)
			for {
				select {
				case ev := <-d.queue:
					if time.Now().After(deadline) {
						d.dropped.Add(1)
						continue
					}
					d.deliver(ev)
				default:
					close(d.drained)
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) deliver(ev AuditEvent) {
	// A panicking sink must not kill the worker.
	defer func() { _ = recover() }()

	ctx, cancel := context.WithTimeout(context.Background(), auditEmitTimeout)
	defer cancel()
	_ = d.sink.Emit(ctx, ev)
}

// Emit enqueues without blocking. Events offered after Close or while the
// queue is full are counted as dropped.
func (d *auditDispatcher) Emit(ev AuditEvent) {
	if d.closed.Load() {
		d.dropped.Add(1)
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded since startup.
func (d *auditDispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close drains buffered events within the shutdown timeout. Safe to call
// more than once.
func (d *auditDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		<-d.drained
		return nil
	}
	close(d.stop)

	select {
	case <-d.drained:
		return nil
	case <-time.After(d.shutdownTimeout + time.Second):
		return errors.New("audit dispatcher drain timed out")
	}
}
