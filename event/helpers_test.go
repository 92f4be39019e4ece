package event_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yaoapp/eventbus/event"
)

// newBus returns a bus that is closed when the test ends.
func newBus(t testing.TB, opts ...event.Option) *event.Bus {
	t.Helper()
	bus := event.New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bus.Close(ctx)
	})
	return bus
}

// waitDone fails the test if the bus does not drain within d.
func waitDone(t testing.TB, bus *event.Bus, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := bus.WaitTerminationContext(ctx); err != nil {
		t.Fatalf("bus did not drain within %s: %v (stats %+v)", d, err, bus.Stats())
	}
}

// recorder collects values passed to a handler, in arrival order.
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
	at     []time.Time
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
	r.at = append(r.at, time.Now())
}

func (r *recorder[T]) get() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]T, len(r.values))
	copy(cp, r.values)
	return cp
}

func (r *recorder[T]) times() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]time.Time, len(r.at))
	copy(cp, r.at)
	return cp
}

// sink registers a no-op handler that takes any payload on each address.
func sink(t testing.TB, bus *event.Bus, addresses ...string) {
	t.Helper()
	for _, address := range addresses {
		if _, err := event.Callback(bus.Consume(address), func(v any) any { return v }); err != nil {
			t.Fatalf("register %s: %v", address, err)
		}
	}
}
