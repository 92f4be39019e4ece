package event

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yaoapp/kun/log"
)

// poolManager owns the compute pool and the restartable I/O pool.
//
// The compute pool lives as long as the bus. The I/O pool is shut down every
// time the outstanding counter drains to zero and is recreated on the next
// submission.
type poolManager struct {
	compute   *workerPool
	computeID atomic.Uint64

	ioSize   int
	ioPrefix string
	ioID     atomic.Uint64 // worker index, monotonic across restarts

	mu       sync.Mutex // guards io recreation and closed
	io       atomic.Pointer[workerPool]
	closed   bool
	restarts atomic.Uint64
}

func newPoolManager(computeSize, ioSize int, ioPrefix string) *poolManager {
	pm := &poolManager{ioSize: ioSize, ioPrefix: ioPrefix}
	pm.compute = newWorkerPool("compute", computeSize, func() string {
		return fmt.Sprintf("compute-%d", pm.computeID.Add(1))
	})
	pm.io.Store(pm.newIOPool())
	return pm
}

func (pm *poolManager) newIOPool() *workerPool {
	return newWorkerPool(pm.ioPrefix, pm.ioSize, func() string {
		return fmt.Sprintf("%s-%d", pm.ioPrefix, pm.ioID.Add(1))
	})
}

// ioPool returns a live I/O pool, recreating it if it has been shut down.
// Returns nil once the manager is closed.
func (pm *poolManager) ioPool() *workerPool {
	if p := pm.io.Load(); p != nil && !p.isShutdown() {
		return p
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	p := pm.io.Load()
	if p != nil && !p.isShutdown() {
		return p
	}
	p = pm.newIOPool()
	pm.io.Store(p)
	n := pm.restarts.Add(1)
	log.Debug("event io pool restarted: prefix=%s size=%d restarts=%d", pm.ioPrefix, pm.ioSize, n)
	return p
}

// submitIO queues task on the I/O pool. A pool that is shut down between
// lookup and submit is replaced and the submit retried.
func (pm *poolManager) submitIO(task func()) bool {
	for {
		p := pm.ioPool()
		if p == nil {
			return false
		}
		if p.submit(task) {
			return true
		}
	}
}

func (pm *poolManager) submitCompute(task func()) bool {
	return pm.compute.submit(task)
}

// shutdownIO shuts down the current I/O pool without waiting for it.
func (pm *poolManager) shutdownIO() {
	if p := pm.io.Load(); p != nil {
		p.shutdown()
	}
}

// close shuts down both pools and waits for their workers to exit.
func (pm *poolManager) close() {
	pm.mu.Lock()
	pm.closed = true
	io := pm.io.Load()
	pm.mu.Unlock()

	pm.compute.shutdown()
	if io != nil {
		io.shutdown()
		io.wait()
	}
	pm.compute.wait()
}

// computeExecutor submits to the compute pool.
type computeExecutor struct{ pm *poolManager }

func (e computeExecutor) Submit(task func()) bool {
	if !e.pm.submitCompute(task) {
		log.Warn("event compute pool closed: task dropped")
		return false
	}
	return true
}

// ioExecutor submits to whichever I/O pool is live at submission time.
type ioExecutor struct{ pm *poolManager }

func (e ioExecutor) Submit(task func()) bool {
	if !e.pm.submitIO(task) {
		log.Warn("event io pool closed: task dropped (prefix=%s)", e.pm.ioPrefix)
		return false
	}
	return true
}
