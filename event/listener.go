package event

import (
	"context"
	"strings"
	"sync"

	"github.com/yaoapp/eventbus/event/types"
	"github.com/yaoapp/kun/log"
)

// listenerEntry holds a registered listener with its filter configuration.
type listenerEntry struct {
	pattern  string
	listener types.Listener
	filter   func(*types.Envelope) bool
	ch       chan *types.Envelope
	done     chan struct{}
}

// listenerManager fans publishes out to listeners. Each listener has its own
// goroutine, started at registration.
type listenerManager struct {
	mu      sync.RWMutex
	entries []*listenerEntry
	stopped bool
}

func newListenerManager() *listenerManager {
	return &listenerManager{}
}

// register adds a listener and starts its goroutine.
// Returns false if the manager has been stopped.
func (lm *listenerManager) register(pattern string, listener types.Listener, opts ...types.FilterOption) bool {
	fe := &types.FilterEntry{
		Pattern:    pattern,
		BufferSize: types.DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(fe)
	}
	if fe.BufferSize < 1 {
		fe.BufferSize = 1
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.stopped {
		return false
	}
	entry := &listenerEntry{
		pattern:  pattern,
		listener: listener,
		filter:   fe.Filter,
		ch:       make(chan *types.Envelope, fe.BufferSize),
		done:     make(chan struct{}),
	}
	lm.entries = append(lm.entries, entry)
	go lm.consume(entry)
	return true
}

// consume is the goroutine that reads from a listener's channel.
func (lm *listenerManager) consume(entry *listenerEntry) {
	defer close(entry.done)
	for env := range entry.ch {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("event listener panic: pattern=%s address=%s err=%v", entry.pattern, env.Address, r)
				}
			}()
			entry.listener.OnEnvelope(env)
		}()
	}
}

// notify offers env to every matching listener without blocking and returns
// how many were skipped because their buffer was full.
func (lm *listenerManager) notify(env *types.Envelope) int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	if lm.stopped {
		return 0
	}

	skipped := 0
	for _, entry := range lm.entries {
		if !matchPattern(entry.pattern, env.Address) {
			continue
		}
		if entry.filter != nil && !entry.filter(env) {
			continue
		}
		select {
		case entry.ch <- env:
		default:
			skipped++
			log.Warn("event listener buffer full: pattern=%s address=%s id=%s (skipped)", entry.pattern, env.Address, env.ID)
		}
	}
	return skipped
}

// stop closes every listener channel, waits for the goroutines to drain, then
// calls Shutdown on each listener.
func (lm *listenerManager) stop(ctx context.Context) {
	lm.mu.Lock()
	if lm.stopped {
		lm.mu.Unlock()
		return
	}
	lm.stopped = true
	entries := lm.entries
	lm.mu.Unlock()

	for _, entry := range entries {
		close(entry.ch)
	}
	for _, entry := range entries {
		<-entry.done
		if err := entry.listener.Shutdown(ctx); err != nil {
			log.Warn("event listener shutdown: pattern=%s err=%v", entry.pattern, err)
		}
	}
}

// matchPattern matches an address against a listener/subscriber pattern.
//   - "*" matches everything
//   - "foo.*" matches any address starting with "foo."
//   - "foo.bar" matches exactly "foo.bar"
func matchPattern(pattern, address string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(address, prefix)
	}
	return pattern == address
}

// Listen registers a persistent listener that observes every publish whose
// address matches pattern. Listeners are not handlers: they are not counted
// by WaitTermination. Returns ErrClosed after Close.
func (b *Bus) Listen(pattern string, listener types.Listener, opts ...types.FilterOption) error {
	if !b.lmgr.register(pattern, listener, opts...) {
		return ErrClosed
	}
	return nil
}
