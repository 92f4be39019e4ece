package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yaoapp/kun/log"
)

// tracker counts units of work that were submitted but have not finished.
//
// Every unit is added before it is handed to a pool and done exactly once
// when it finishes, so a zero count means nothing is running or queued.
type tracker struct {
	count atomic.Int64

	mu   sync.Mutex // pairs with cond; held while broadcasting
	cond *sync.Cond

	onZero func() // called each time the count drains to zero

	shutdownMu sync.Mutex
	shutdownFn func()
}

func newTracker(onZero func()) *tracker {
	t := &tracker{onZero: onZero}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// add registers n units of work.
func (t *tracker) add(n int) {
	c := t.count.Add(int64(n))
	log.Trace("event counter increment: count=%d", c)
}

// done marks one unit of work finished.
func (t *tracker) done() {
	c := t.count.Add(-1)
	log.Trace("event counter decrement: count=%d", c)
	if c < 0 {
		panic("event: outstanding counter went negative")
	}
	if c != 0 {
		return
	}

	defer t.broadcast()
	if t.onZero != nil {
		t.onZero()
	}
	t.shutdownMu.Lock()
	fn := t.shutdownFn
	t.shutdownFn = nil
	t.shutdownMu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *tracker) broadcast() {
	t.mu.Lock()
	t.cond.Broadcast()
	t.mu.Unlock()
}

// onShutdown registers fn to run once, the next time the count reaches zero.
func (t *tracker) onShutdown(fn func()) {
	t.shutdownMu.Lock()
	defer t.shutdownMu.Unlock()
	t.shutdownFn = fn
}

func (t *tracker) outstanding() int64 {
	return t.count.Load()
}

// wait blocks until the count is zero. The count is re-checked after every
// wakeup since a concurrent publish may raise it again.
func (t *tracker) wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.count.Load() > 0 {
		t.cond.Wait()
	}
}

// waitContext is wait bounded by ctx.
func (t *tracker) waitContext(ctx context.Context) error {
	stop := context.AfterFunc(ctx, t.broadcast)
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.count.Load() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	return nil
}
