package event

import (
	"context"
	"runtime/pprof"
	"sync"

	"github.com/yaoapp/kun/log"
)

// workerPool is a fixed set of named worker goroutines draining an unbounded
// FIFO task list. submit never blocks the caller.
//
// shutdown is graceful: tasks already accepted still run, new tasks are
// rejected so the caller can retry on a fresh pool.
type workerPool struct {
	name    string
	workers []string

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	wg sync.WaitGroup
}

// newWorkerPool starts size workers. nameWorker is called once per worker
// and returns its name, e.g. "io-3".
func newWorkerPool(name string, size int, nameWorker func() string) *workerPool {
	if size < 1 {
		size = 1
	}
	wp := &workerPool{name: name, workers: make([]string, 0, size)}
	wp.cond = sync.NewCond(&wp.mu)
	for i := 0; i < size; i++ {
		worker := nameWorker()
		wp.workers = append(wp.workers, worker)
		wp.wg.Add(1)
		go wp.loop(worker)
	}
	return wp
}

// loop runs tasks until the pool is shut down and its task list is empty.
func (wp *workerPool) loop(worker string) {
	defer wp.wg.Done()
	labels := pprof.Labels("pool", wp.name, "worker", worker)
	pprof.Do(context.Background(), labels, func(context.Context) {
		for {
			task, ok := wp.next()
			if !ok {
				return
			}
			wp.run(worker, task)
		}
	})
}

func (wp *workerPool) next() (func(), bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	for len(wp.tasks) == 0 && !wp.closed {
		wp.cond.Wait()
	}
	if len(wp.tasks) == 0 {
		return nil, false
	}
	task := wp.tasks[0]
	wp.tasks[0] = nil
	wp.tasks = wp.tasks[1:]
	return task, true
}

func (wp *workerPool) run(worker string, task func()) {
	defer wp.recoverPanic(worker)
	task()
}

func (wp *workerPool) recoverPanic(worker string) {
	if r := recover(); r != nil {
		log.Error("event worker panic: pool=%s worker=%s err=%v", wp.name, worker, r)
	}
}

// submit queues a task. Returns false if the pool has been shut down.
func (wp *workerPool) submit(task func()) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return false
	}
	wp.tasks = append(wp.tasks, task)
	wp.cond.Signal()
	return true
}

// shutdown stops accepting tasks. Workers exit once the backlog is empty.
// Safe to call from inside one of the pool's own tasks.
func (wp *workerPool) shutdown() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return
	}
	wp.closed = true
	wp.cond.Broadcast()
}

func (wp *workerPool) isShutdown() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.closed
}

// pending returns the number of accepted tasks not yet picked up by a worker.
func (wp *workerPool) pending() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.tasks)
}

// wait blocks until all workers exit. Must not be called from a worker.
func (wp *workerPool) wait() {
	wp.wg.Wait()
}
