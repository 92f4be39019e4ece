package event

import (
	"fmt"
	"time"
)

// window is a fixed-capacity ring of admission timestamps, oldest first.
// Timestamps are appended in non-decreasing order.
type window struct {
	stamps []time.Time
	start  int
	size   int
}

func newWindow(capacity int) *window {
	return &window{stamps: make([]time.Time, capacity)}
}

func (w *window) len() int { return w.size }

func (w *window) full() bool { return w.size == len(w.stamps) }

// add records t. It never overwrites: a full window returns ErrCapacityExceeded.
func (w *window) add(t time.Time) error {
	if w.full() {
		return fmt.Errorf("%w: %d", ErrCapacityExceeded, len(w.stamps))
	}
	w.stamps[(w.start+w.size)%len(w.stamps)] = t
	w.size++
	return nil
}

// oldest returns the earliest timestamp still in the window.
func (w *window) oldest() (time.Time, bool) {
	if w.size == 0 {
		return time.Time{}, false
	}
	return w.stamps[w.start], true
}

// expire drops every timestamp at least period older than now.
func (w *window) expire(now time.Time, period time.Duration) {
	for w.size > 0 && now.Sub(w.stamps[w.start]) >= period {
		w.stamps[w.start] = time.Time{}
		w.start = (w.start + 1) % len(w.stamps)
		w.size--
	}
}
