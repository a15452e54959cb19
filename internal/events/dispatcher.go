package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sinkWriteTimeout = 5 * time.Second

// Dispatcher is an Emitter backed by a bounded queue and a fixed pool of
// workers writing to a Sink. A full queue drops the event.
type Dispatcher struct {
	sink  Sink
	log   *zap.SugaredLogger
	queue chan SessionInitialized

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sink Sink, log *zap.SugaredLogger, queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{sink: sink, log: log, queue: make(chan SessionInitialized, queueSize)}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Emit enqueues ev and returns immediately.
func (d *Dispatcher) Emit(ev SessionInitialized) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.InitializedAt.IsZero() {
		ev.InitializedAt = time.Now().UTC()
	}
	sessionsInitialized.WithLabelValues(ev.Transport).Inc()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		eventsDropped.Inc()
		d.log.Warnw("session event dropped: dispatcher closed", "tenant", ev.TenantID, "transport", ev.Transport)
		return
	}
	select {
	case d.queue <- ev:
	default:
		eventsDropped.Inc()
		d.log.Warnw("session event dropped: queue full", "tenant", ev.TenantID, "transport", ev.Transport)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.write(ev)
	}
}

func (d *Dispatcher) write(ev SessionInitialized) {
	defer func() {
		if rec := recover(); rec != nil {
			sinkWrites.WithLabelValues("error").Inc()
			d.log.Errorw("session event sink panic", "err", rec, "tenant", ev.TenantID)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()
	if err := d.sink.WriteSessionInitialized(ctx, ev); err != nil {
		sinkWrites.WithLabelValues("error").Inc()
		d.log.Warnw("session event write failed", "err", err, "tenant", ev.TenantID, "transport", ev.Transport)
		return
	}
	sinkWrites.WithLabelValues("ok").Inc()
}

// Close stops accepting events and waits for queued ones to be written, or
// for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
