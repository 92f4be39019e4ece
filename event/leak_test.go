package event_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/yaoapp/eventbus/event"
	"github.com/yaoapp/eventbus/event/types"
)

// ---------------------------------------------------------------------------
// Helper: snapshot goroutine count after GC stabilization.
// ---------------------------------------------------------------------------

func stableGoroutineCount() int {
	// Let runtime settle: GC + finalizers + scheduler
	for i := 0; i < 5; i++ {
		runtime.GC()
		runtime.Gosched()
		time.Sleep(10 * time.Millisecond)
	}
	return runtime.NumGoroutine()
}

// leakListener is a no-op listener for leak tests.
type leakListener struct{}

func (l *leakListener) OnEnvelope(env *types.Envelope)     {}
func (l *leakListener) Shutdown(ctx context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Test: every drain shuts the I/O pool down; its workers must exit.
// ---------------------------------------------------------------------------

func TestLeak_IOPoolDrainCycles(t *testing.T) {
	bus := newBus(t, event.IOWorkers(4), event.FailureLogRate(0))
	_, _ = event.Callback(bus.Consume("leak").IO(true), func(v int) int { return v })

	before := stableGoroutineCount()

	const cycles = 500
	for i := 0; i < cycles; i++ {
		for j := 0; j < 3; j++ {
			if err := bus.Publish("leak", j); err != nil {
				t.Fatalf("cycle %d: Publish: %v", i, err)
			}
		}
		bus.WaitTermination()
	}

	// Let the last pool's workers exit
	time.Sleep(200 * time.Millisecond)
	after := stableGoroutineCount()

	leaked := after - before
	t.Logf("goroutines: before=%d after=%d delta=%d (over %d cycles, %d restarts)",
		before, after, leaked, cycles, bus.Stats().IORestarts)

	// Allow a small margin for runtime jitter (GC, timers, etc.)
	if leaked > 5 {
		t.Errorf("goroutine leak: %d goroutines accumulated over %d drain cycles", leaked, cycles)
	}
	if bus.Stats().IORestarts < cycles-1 {
		t.Errorf("expected the I/O pool to restart every cycle, got %d restarts", bus.Stats().IORestarts)
	}
}

// ---------------------------------------------------------------------------
// Test: throttle retries do not leave timers or goroutines behind.
// ---------------------------------------------------------------------------

func TestLeak_ThrottleCycles(t *testing.T) {
	bus := newBus(t)
	_, _ = event.Callback(bus.Consume("leak").Throttle(2, 5*time.Millisecond), func(v int) int { return v })

	before := stableGoroutineCount()

	const cycles = 50
	for i := 0; i < cycles; i++ {
		for j := 0; j < 6; j++ {
			_ = bus.Publish("leak", j)
		}
		waitDone(t, bus, time.Second)
	}

	after := stableGoroutineCount()
	leaked := after - before
	t.Logf("goroutines: before=%d after=%d delta=%d (over %d cycles)", before, after, leaked, cycles)

	if leaked > 5 {
		t.Errorf("goroutine leak: %d goroutines accumulated over %d throttle cycles", leaked, cycles)
	}
}

// ---------------------------------------------------------------------------
// Test: Close releases pools and listener goroutines.
// ---------------------------------------------------------------------------

func TestLeak_BusCreateClose(t *testing.T) {
	before := stableGoroutineCount()

	const cycles = 100
	for i := 0; i < cycles; i++ {
		bus := event.New(event.ComputeWorkers(2), event.IOWorkers(2))
		_ = bus.Listen("*", &leakListener{})
		_ = bus.Listen("leak.*", &leakListener{})
		sink(t, bus, "leak.work")
		_ = bus.Publish("leak.work", i)
		if err := bus.Close(context.Background()); err != nil {
			t.Fatalf("cycle %d: Close: %v", i, err)
		}
	}

	after := stableGoroutineCount()
	leaked := after - before
	t.Logf("goroutines: before=%d after=%d delta=%d (over %d cycles)", before, after, leaked, cycles)

	if leaked > 5 {
		t.Errorf("goroutine leak: %d goroutines accumulated over %d bus cycles", leaked, cycles)
	}
}

// ---------------------------------------------------------------------------
// Test: Subscriber create/unsubscribe cycles leak no goroutines or memory.
// ---------------------------------------------------------------------------

func TestLeak_SubscriberLifecycle(t *testing.T) {
	bus := newBus(t)
	sink(t, bus, "leak.work")

	before := stableGoroutineCount()
	runtime.GC()
	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)

	const cycles = 1000
	for i := 0; i < cycles; i++ {
		ch := make(chan *types.Envelope, 4)
		id := bus.Subscribe("leak.*", ch)
		_ = bus.Publish("leak.work", i)
		bus.Unsubscribe(id)
	}
	waitDone(t, bus, time.Second)

	after := stableGoroutineCount()
	runtime.GC()
	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	leaked := after - before
	t.Logf("goroutines: before=%d after=%d delta=%d; heap: before=%dKB after=%dKB",
		before, after, leaked, memBefore.HeapAlloc/1024, memAfter.HeapAlloc/1024)

	if leaked > 5 {
		t.Errorf("goroutine leak: %d goroutines accumulated over %d subscriber cycles", leaked, cycles)
	}
}
