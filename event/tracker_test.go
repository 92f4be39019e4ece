package event

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_OnZeroEachDrain(t *testing.T) {
	var zero atomic.Int32
	tr := newTracker(func() { zero.Add(1) })

	tr.add(2)
	tr.done()
	if n := zero.Load(); n != 0 {
		t.Fatalf("onZero ran with work outstanding (%d)", n)
	}
	tr.done()
	tr.add(1)
	tr.done()
	if n := zero.Load(); n != 2 {
		t.Fatalf("expected onZero twice, got %d", n)
	}
}

func TestTracker_ShutdownRunsOnce(t *testing.T) {
	var order []string
	tr := newTracker(func() { order = append(order, "zero") })
	tr.onShutdown(func() { order = append(order, "shutdown") })

	tr.add(1)
	tr.done()
	tr.add(1)
	tr.done()

	want := []string{"zero", "shutdown", "zero"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestTracker_NegativePanics(t *testing.T) {
	tr := newTracker(nil)
	defer func() {
		if recover() == nil {
			t.Fatal("done without add should panic")
		}
	}()
	tr.done()
}

func TestTracker_WaitWakesOnZero(t *testing.T) {
	tr := newTracker(nil)
	tr.add(1)

	done := make(chan struct{})
	go func() { tr.wait(); close(done) }()

	select {
	case <-done:
		t.Fatal("wait returned with work outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	tr.done()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after the count reached zero")
	}
}

func TestTracker_WaitContext(t *testing.T) {
	tr := newTracker(nil)
	if err := tr.waitContext(context.Background()); err != nil {
		t.Fatalf("idle tracker should not block, got %v", err)
	}

	tr.add(1)
	defer tr.done()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := tr.waitContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if n := tr.outstanding(); n != 1 {
		t.Fatalf("expected 1 outstanding, got %d", n)
	}
}
