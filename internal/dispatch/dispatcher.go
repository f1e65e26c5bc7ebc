package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/skypro1111/vad-segmenter/internal/vad"
)

// Consumer receives utterances, typically a recognizer or a recorder
type Consumer interface {
	Name() string
	OnUtterance(ctx context.Context, u vad.Utterance) error
}

type funcConsumer struct {
	name string
	fn   func(ctx context.Context, u vad.Utterance) error
}

func (c funcConsumer) Name() string { return c.name }

func (c funcConsumer) OnUtterance(ctx context.Context, u vad.Utterance) error {
	return c.fn(ctx, u)
}

// Func adapts a function to the Consumer interface
func Func(name string, fn func(ctx context.Context, u vad.Utterance) error) Consumer {
	return funcConsumer{name: name, fn: fn}
}

// Recorder collects delivery measurements
type Recorder interface {
	RecordDispatch(consumer string, ok bool, took time.Duration)
	SetInFlight(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordDispatch(string, bool, time.Duration) {}
func (nopRecorder) SetInFlight(int)                            {}

// Config contains dispatcher configuration
type Config struct {
	MaxConcurrent   int           // Consumer calls running at once across all utterances
	ConsumerTimeout time.Duration // Per-call deadline, zero for none
}

// Stats is a snapshot of dispatcher counters
type Stats struct {
	Consumers  int    `json:"consumers"`
	Dispatched uint64 `json:"dispatched"`
	Delivered  uint64 `json:"delivered"`
	Failed     uint64 `json:"failed"`
	Dropped    uint64 `json:"dropped"`
	InFlight   int64  `json:"in_flight"`
}

// Dispatcher fans utterances out to a fixed set of consumers
type Dispatcher struct {
	config    Config
	logger    *slog.Logger
	recorder  Recorder
	consumers []Consumer
	sem       *semaphore.Weighted

	ctx    context.Context // Parent of every consumer call, canceled when Close gives up
	cancel context.CancelFunc

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	dispatched atomic.Uint64
	delivered  atomic.Uint64
	failed     atomic.Uint64
	dropped    atomic.Uint64
	inFlight   atomic.Int64
}

// New creates a dispatcher; consumers cannot be added later
func New(config Config, logger *slog.Logger, recorder Recorder, consumers ...Consumer) *Dispatcher {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if logger == nil {
		logger = slog.Default()
	}

	if recorder == nil {
		recorder = nopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		config:    config,
		logger:    logger,
		recorder:  recorder,
		consumers: append([]Consumer(nil), consumers...),
		sem:       semaphore.NewWeighted(int64(config.MaxConcurrent)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Dispatch hands u to every consumer and returns immediately. It never waits
// on a consumer or on the concurrency limit.
func (d *Dispatcher) Dispatch(u vad.Utterance) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn("Dropping utterance, dispatcher closed",
			slog.String("utterance_id", u.ID),
			slog.String("source", u.Source))
		return
	}

	d.dispatched.Add(1)
	d.wg.Add(1)
	go d.deliver(u)
}

// deliver runs every consumer for one utterance and waits for all of them.
// Each consumer gets its own copy of the samples.
func (d *Dispatcher) deliver(u vad.Utterance) {
	defer d.wg.Done()

	var wg sync.WaitGroup
	for _, consumer := range d.consumers {
		wg.Add(1)
		go func(c Consumer, u vad.Utterance) {
			defer wg.Done()
			d.invoke(c, u)
		}(consumer, u.Clone())
	}
	wg.Wait()
}

func (d *Dispatcher) invoke(c Consumer, u vad.Utterance) {
	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		d.failed.Add(1)
		d.logger.Warn("Utterance not delivered",
			slog.String("consumer", c.Name()),
			slog.String("utterance_id", u.ID),
			slog.String("error", err.Error()))
		return
	}
	defer d.sem.Release(1)

	d.recorder.SetInFlight(int(d.inFlight.Add(1)))
	defer func() {
		d.recorder.SetInFlight(int(d.inFlight.Add(-1)))
	}()

	ctx := d.ctx
	if d.config.ConsumerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.ConsumerTimeout)
		defer cancel()
	}

	start := time.Now()
	err := safeCall(ctx, c, u)
	took := time.Since(start)

	d.recorder.RecordDispatch(c.Name(), err == nil, took)

	if err != nil {
		d.failed.Add(1)
		d.logger.Error("Consumer failed",
			slog.String("consumer", c.Name()),
			slog.String("utterance_id", u.ID),
			slog.String("source", u.Source),
			slog.Duration("took", took),
			slog.String("error", err.Error()))
		return
	}

	d.delivered.Add(1)
	d.logger.Debug("Utterance delivered",
		slog.String("consumer", c.Name()),
		slog.String("utterance_id", u.ID),
		slog.Duration("took", took))
}

// safeCall turns a consumer panic into an error
func safeCall(ctx context.Context, c Consumer, u vad.Utterance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panicked: %v", r)
		}
	}()
	return c.OnUtterance(ctx, u)
}

// Close stops accepting utterances and waits for in-flight deliveries. If ctx
// ends first, running consumers see their context canceled and ctx.Err() is
// returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

// Stats returns a snapshot of the dispatcher counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Consumers:  len(d.consumers),
		Dispatched: d.dispatched.Load(),
		Delivered:  d.delivered.Load(),
		Failed:     d.failed.Load(),
		Dropped:    d.dropped.Load(),
		InFlight:   d.inFlight.Load(),
	}
}
