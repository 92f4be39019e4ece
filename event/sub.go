package event

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/yaoapp/eventbus/event/types"
)

var subIDCounter atomic.Uint64

func nextSubID() string {
	return fmt.Sprintf("sub-%d", subIDCounter.Add(1))
}

// subscription delivers matching envelopes to a caller-owned channel.
type subscription struct {
	id      string
	pattern string
	filter  func(*types.Envelope) bool
	ch      chan<- *types.Envelope
}

func (s *subscription) wants(env *types.Envelope) bool {
	if !matchPattern(s.pattern, env.Address) {
		return false
	}
	return s.filter == nil || s.filter(env)
}

// subManager keeps an immutable snapshot of subscriptions. Publishes read the
// snapshot without locking; changes copy it under mu.
type subManager struct {
	mu   sync.Mutex
	subs atomic.Pointer[[]*subscription]
}

func newSubManager() *subManager {
	sm := &subManager{}
	sm.subs.Store(&[]*subscription{})
	return sm
}

func (sm *subManager) subscribe(pattern string, ch chan<- *types.Envelope, opts ...types.FilterOption) string {
	fe := &types.FilterEntry{Pattern: pattern}
	for _, opt := range opts {
		opt(fe)
	}
	sub := &subscription{id: nextSubID(), pattern: pattern, filter: fe.Filter, ch: ch}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	next := append(slices.Clone(*sm.subs.Load()), sub)
	sm.subs.Store(&next)
	return sub.id
}

func (sm *subManager) unsubscribe(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	next := slices.DeleteFunc(slices.Clone(*sm.subs.Load()), func(s *subscription) bool {
		return s.id == id
	})
	sm.subs.Store(&next)
}

// notify offers env to every matching subscriber without blocking and returns
// how many were skipped because their channel was full.
func (sm *subManager) notify(env *types.Envelope) int {
	skipped := 0
	for _, sub := range *sm.subs.Load() {
		if !sub.wants(env) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			skipped++
		}
	}
	return skipped
}

func (sm *subManager) clear() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.subs.Store(&[]*subscription{})
}

func (sm *subManager) len() int {
	return len(*sm.subs.Load())
}

// Subscribe delivers every publish matching pattern to ch until Unsubscribe.
// Delivery never blocks: when ch is full the envelope is skipped and counted
// in Stats.Skipped. The returned ID is used for Unsubscribe.
func (b *Bus) Subscribe(pattern string, ch chan<- *types.Envelope, opts ...types.FilterOption) string {
	return b.smgr.subscribe(pattern, ch, opts...)
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.smgr.unsubscribe(id)
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	return b.smgr.len()
}
