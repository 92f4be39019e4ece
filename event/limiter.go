package event

import (
	"sync"
	"time"

	"github.com/yaoapp/eventbus/event/types"
	"github.com/yaoapp/kun/log"
)

// limiter admits at most permissions units of work per sliding period.
// Work that does not fit waits in a FIFO and is released in order as the
// window frees up, either when an admitted unit completes or when the single
// scheduled retry fires.
type limiter struct {
	address     string
	permissions int
	period      time.Duration

	// for testing purposes
	now   func() time.Time
	after func(time.Duration, func())

	mu        sync.Mutex
	window    *window
	pending   []queuedWork
	scheduled bool
}

// queuedWork is a unit waiting for the window. drop finishes it without
// running when its executor has been closed.
type queuedWork struct {
	run  func()
	drop func()
}

func newLimiter(address string, permissions int, period time.Duration) *limiter {
	return &limiter{
		address:     address,
		permissions: permissions,
		period:      period,
		now:         time.Now,
		after:       func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		window:      newWindow(permissions),
	}
}

// admit queues work behind any earlier work and drains what the window allows.
// Reports whether work had to wait.
func (l *limiter) admit(ex types.Executor, work, drop func()) bool {
	l.mu.Lock()
	l.pending = append(l.pending, queuedWork{run: work, drop: drop})
	dropped := l.drainLocked(ex)
	// draining pops from the head, so anything left includes our tail entry
	waiting := len(l.pending) > 0
	l.mu.Unlock()

	dropAll(dropped)
	return waiting
}

func (l *limiter) drain(ex types.Executor) {
	l.mu.Lock()
	dropped := l.drainLocked(ex)
	l.mu.Unlock()
	dropAll(dropped)
}

// drainLocked releases queued work while the window has room. Submission
// happens under the lock so release order matches queue order.
// Returns the units the caller must drop once the lock is released.
func (l *limiter) drainLocked(ex types.Executor) []queuedWork {
	for len(l.pending) > 0 {
		now := l.now()
		l.window.expire(now, l.period)
		if l.window.full() {
			l.scheduleLocked(ex, now)
			return nil
		}
		if err := l.window.add(now); err != nil {
			panic(err)
		}
		work := l.pending[0]
		l.pending[0] = queuedWork{}
		l.pending = l.pending[1:]
		if !ex.Submit(l.release(ex, work.run)) {
			// executor closed: nothing queued behind this unit can run either
			return append([]queuedWork{work}, l.abandonLocked()...)
		}
	}
	return nil
}

// abandonLocked empties the queue and returns what was in it.
func (l *limiter) abandonLocked() []queuedWork {
	dropped := l.pending
	l.pending = nil
	if len(dropped) > 0 {
		log.Warn("event throttle abandoned: address=%s dropped=%d", l.address, len(dropped))
	}
	return dropped
}

func dropAll(units []queuedWork) {
	for _, work := range units {
		work.drop()
	}
}

// scheduleLocked arms the single delayed retry for when the oldest admission
// leaves the window.
func (l *limiter) scheduleLocked(ex types.Executor, now time.Time) {
	if l.scheduled {
		return
	}
	l.scheduled = true

	wait := time.Duration(0)
	if oldest, ok := l.window.oldest(); ok {
		wait = l.period - now.Sub(oldest)
	}
	if wait < 0 {
		wait = 0
	}
	log.Debug("event throttle wait: address=%s wait=%s queued=%d", l.address, wait, len(l.pending))

	l.after(wait, func() {
		retry := func() {
			l.mu.Lock()
			l.scheduled = false
			dropped := l.drainLocked(ex)
			l.mu.Unlock()
			dropAll(dropped)
		}
		if ex.Submit(retry) {
			return
		}
		l.mu.Lock()
		l.scheduled = false
		dropped := l.abandonLocked()
		l.mu.Unlock()
		dropAll(dropped)
	})
}

// release wraps admitted work so its completion pulls the next queued unit.
func (l *limiter) release(ex types.Executor, work func()) func() {
	return func() {
		defer l.drain(ex)
		work()
	}
}

// queued returns the number of units waiting for the window.
func (l *limiter) queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
