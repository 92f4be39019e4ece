package event

import (
	"fmt"
	"sync/atomic"

	"github.com/yaoapp/eventbus/event/types"
)

var publishIDCounter atomic.Uint64

func nextPublishID() string {
	id := publishIDCounter.Add(1)
	return fmt.Sprintf("pub-%d", id)
}

// Publish delivers value to every handler registered for address, each on
// its own pool. It never blocks on handler work.
//
// Returns ErrUnknownAddress when nothing is registered for address and
// ErrPayloadType when a handler cannot take value; nothing is dispatched in
// either case.
func (b *Bus) Publish(address string, value any) error {
	return b.publish(address, value, nil)
}

// Request is Publish followed by continuation(result) for every handler,
// run inside the same unit of work right after that handler's callback.
func (b *Bus) Request(address string, value any, continuation func(any)) error {
	if continuation == nil {
		return ErrNilCallback
	}
	return b.publish(address, value, continuation)
}

func (b *Bus) publish(address string, value any, continuation func(any)) error {
	handlers, err := b.reserve(address, value)
	if err != nil {
		return err
	}
	b.published.Add(1)

	env := &types.Envelope{
		ID:       nextPublishID(),
		Address:  address,
		Payload:  value,
		Handlers: len(handlers),
		Reply:    continuation != nil,
	}

	// Notify listeners and subscribers (non-blocking, before handlers)
	b.skipped.Add(uint64(b.lmgr.notify(env) + b.smgr.notify(env)))

	for _, h := range handlers {
		b.dispatched.Add(1)
		if h.run(b.executor(h.Entry().IO), b.wrap(env, h, value, continuation), b.drop) {
			b.deferred.Add(1)
		}
	}
	return nil
}

// reserve checks a publish and counts its units of work, one per handler, all
// before any is dispatched. It holds the registry read lock so Close cannot
// start draining between the closed check and the count.
func (b *Bus) reserve(address string, value any) ([]Registered, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed.Load() {
		return nil, ErrClosed
	}

	handlers := b.handlers[address]
	if len(handlers) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAddress, address)
	}
	for _, h := range handlers {
		if !h.accepts(value) {
			return nil, fmt.Errorf("%w: address %q expects %s, got %T", ErrPayloadType, address, h.inputType(), value)
		}
	}
	b.tracker.add(len(handlers))
	return handlers, nil
}

func (b *Bus) executor(io bool) types.Executor {
	if io {
		return ioExecutor{pm: b.pools}
	}
	return computeExecutor{pm: b.pools}
}

// wrap builds the unit of work for one handler. Whatever the callback does,
// the unit is marked done exactly once.
func (b *Bus) wrap(env *types.Envelope, h Registered, value any, continuation func(any)) func() {
	return func() {
		defer b.finish()
		defer b.recoverPanic(env, h.Entry())

		result := h.call(value)
		if continuation != nil {
			continuation(result)
		}
	}
}

func (b *Bus) recoverPanic(env *types.Envelope, entry types.HandlerEntry) {
	if r := recover(); r != nil {
		b.failed.Add(1)
		b.failures.report(b.id, env, entry, r)
	}
}

func (b *Bus) finish() {
	b.completed.Add(1)
	b.tracker.done()
}

// drop finishes a unit of work whose pool was closed before it could run.
func (b *Bus) drop() {
	b.dropped.Add(1)
	b.tracker.done()
}
