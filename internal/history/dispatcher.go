package history

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/loykin/gatewayd/internal/metrics"
)

const (
	DefaultRate   = 20
	DefaultBuffer = 256

	sendTimeout = 5 * time.Second
)

// DispatcherConfig bounds the history fan-out.
type DispatcherConfig struct {
	Rate   float64 // events per second, <= 0 means DefaultRate
	Buffer int     // queued events before dropping, <= 0 means DefaultBuffer
}

// Dispatcher forwards events to every sink from a single goroutine.
// Emit never blocks; when the buffer is full the event is dropped.
type Dispatcher struct {
	sinks   []Sink
	limiter *rate.Limiter
	queue   chan Event
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// NewDispatcher starts the dispatch goroutine. Call Close to flush and stop it.
func NewDispatcher(sinks []Sink, cfg DispatcherConfig, log *slog.Logger) *Dispatcher {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	burst := int(cfg.Rate)
	if burst < 1 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sinks:   sinks,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), burst),
		queue:   make(chan Event, cfg.Buffer),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit queues e for delivery.
func (d *Dispatcher) Emit(e Event) {
	if d == nil || len(d.sinks) == 0 {
		return
	}
	select {
	case <-d.done:
		return
	default:
	}
	select {
	case d.queue <- e:
	default:
		metrics.IncHistoryDropped()
		d.log.Warn("history buffer full, dropping event", "type", e.Type, "id", e.ID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-d.ctx.Done():
			// Drain what was queued before Close without throttling.
			for {
				select {
				case e := <-d.queue:
					d.send(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	// Wait only fails once Close has cancelled ctx; deliver regardless.
	_ = d.limiter.Wait(d.ctx)
	d.send(e)
}

func (d *Dispatcher) send(e Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := s.Send(ctx, e); err != nil {
			metrics.IncHistoryFailure()
			d.log.Warn("history sink send failed", "type", e.Type, "error", err)
		}
		cancel()
	}
}

// Close flushes queued events, stops the goroutine and closes sinks that
// implement io.Closer.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var err error
	d.once.Do(func() {
		d.cancel()
		<-d.done
		for _, s := range d.sinks {
			if c, ok := s.(io.Closer); ok {
				if cerr := c.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}
		}
	})
	return err
}
