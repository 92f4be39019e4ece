package event

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/yaoapp/eventbus/config"
	"github.com/yaoapp/eventbus/event/types"
	"github.com/yaoapp/kun/log"
)

// Sentinel errors.
var (
	ErrUnknownAddress   = errors.New("event: no handler registered for address")
	ErrPayloadType      = errors.New("event: payload type does not match handler")
	ErrClosed           = errors.New("event: bus closed")
	ErrEmptyAddress     = errors.New("event: address is empty")
	ErrNilCallback      = errors.New("event: callback is nil")
	ErrInvalidThrottle  = errors.New("event: invalid throttle")
	ErrCapacityExceeded = errors.New("event: throttle window capacity exceeded")
	ErrHandlerPanic     = errors.New("event: handler panicked")
)

// Bus routes published values to the handlers registered for an address and
// runs them on the compute or I/O pool.
type Bus struct {
	id string

	mu       sync.RWMutex
	handlers map[string][]Registered // address -> handlers, append-only
	closed   atomic.Bool

	pools    *poolManager
	tracker  *tracker
	failures *failureLog
	lmgr     *listenerManager
	smgr     *subManager

	published  atomic.Uint64
	dispatched atomic.Uint64
	completed  atomic.Uint64
	failed     atomic.Uint64
	deferred   atomic.Uint64
	dropped    atomic.Uint64
	skipped    atomic.Uint64

	closeOnce sync.Once
}

// New creates a bus and starts its pools.
func New(opts ...Option) *Bus {
	o := &options{
		computeWorkers: runtime.GOMAXPROCS(0),
		ioWorkers:      types.DefaultIOWorkers,
		ioPrefix:       types.DefaultIOPrefix,
		failureLogRate: types.DefaultFailureLogRate,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.computeWorkers < 1 {
		o.computeWorkers = runtime.GOMAXPROCS(0)
	}
	if o.ioWorkers < 1 {
		o.ioWorkers = types.DefaultIOWorkers
	}
	if o.ioPrefix == "" {
		o.ioPrefix = types.DefaultIOPrefix
	}

	b := &Bus{
		id:       uuid.NewString(),
		handlers: make(map[string][]Registered),
		pools:    newPoolManager(o.computeWorkers, o.ioWorkers, o.ioPrefix),
		failures: newFailureLog(o.failureLogRate),
		lmgr:     newListenerManager(),
		smgr:     newSubManager(),
	}
	b.tracker = newTracker(b.pools.shutdownIO)

	log.With(log.F{
		"bus":     b.id,
		"compute": o.computeWorkers,
		"io":      o.ioWorkers,
		"prefix":  o.ioPrefix,
	}).Debug("event bus started")
	return b
}

// NewFromConfig creates a bus sized from cfg.
func NewFromConfig(cfg config.Config) *Bus {
	return New(
		ComputeWorkers(cfg.ComputeWorkers),
		IOWorkers(cfg.IOWorkers),
		IOPrefix(cfg.IOPrefix),
		FailureLogRate(cfg.FailureLogRate),
	)
}

// ID returns the bus instance ID used in log lines.
func (b *Bus) ID() string {
	return b.id
}

// Consume starts a handler registration for address.
func (b *Bus) Consume(address string) *Builder {
	return &Builder{bus: b, entry: types.HandlerEntry{Address: address}}
}

// AddHandler registers h for its address. Adding the same handler twice is a
// no-op.
func (b *Bus) AddHandler(h Registered) error {
	address := h.Entry().Address
	if address == "" {
		return ErrEmptyAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return ErrClosed
	}
	for _, existing := range b.handlers[address] {
		if existing == h {
			return nil
		}
	}
	b.handlers[address] = append(b.handlers[address], h)
	return nil
}

// Handlers returns the number of handlers registered for address.
func (b *Bus) Handlers(address string) int {
	return len(b.lookup(address))
}

func (b *Bus) lookup(address string) []Registered {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handlers[address]
}

// Shutdown registers fn to run once, the next time all outstanding work has
// drained and the I/O pool has been shut down.
func (b *Bus) Shutdown(fn func()) {
	b.tracker.onShutdown(fn)
}

// WaitTermination blocks until every submitted unit of work, including work
// queued behind a throttle, has finished.
//
// Publishing concurrently extends the wait. Do not call from a handler: the
// handler's own unit of work keeps the count above zero.
func (b *Bus) WaitTermination() {
	b.tracker.wait()
}

// WaitTerminationContext is WaitTermination bounded by ctx.
func (b *Bus) WaitTerminationContext(ctx context.Context) error {
	return b.tracker.waitContext(ctx)
}

// Close rejects further publishes, waits for outstanding work (bounded by
// ctx), stops listeners and shuts down both pools. Work still queued behind a
// throttle when ctx expires is dropped and counted in Stats.Dropped.
//
// Must not be called from a handler.
func (b *Bus) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		// publishes count their work under the read lock, so once this
		// returns every accepted publish is visible to the wait below
		b.mu.Lock()
		b.closed.Store(true)
		b.mu.Unlock()

		err = b.tracker.waitContext(ctx)
		if err != nil {
			log.Warn("event bus close: bus=%s outstanding=%d err=%v", b.id, b.tracker.outstanding(), err)
		}
		b.lmgr.stop(ctx)
		b.smgr.clear()
		b.pools.close()
		log.Debug("event bus closed: bus=%s", b.id)
	})
	return err
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() types.Stats {
	return types.Stats{
		Published:   b.published.Load(),
		Dispatched:  b.dispatched.Load(),
		Completed:   b.completed.Load(),
		Failed:      b.failed.Load(),
		Deferred:    b.deferred.Load(),
		Dropped:     b.dropped.Load(),
		Skipped:     b.skipped.Load(),
		Outstanding: b.tracker.outstanding(),
		IORestarts:  b.pools.restarts.Load(),
	}
}
