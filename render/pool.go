package render

import (
	"sync"
	"sync/atomic"
)

// workerPool runs closures on a fixed set of goroutines that live as long as
// the engine, so tiles do not pay for goroutine start-up and every pass
// shares the same bound.
type workerPool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	running atomic.Bool
	once    sync.Once
}

func newWorkerPool(workers int) *workerPool {
	if workers < 1 {
		workers = 1
	}
	p := &workerPool{
		workers: workers,
		tasks:   make(chan func()),
	}
	p.running.Store(true)
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// submit hands task to an idle worker, waiting for one if all are busy.
// It reports false once the pool is closed.
func (p *workerPool) submit(task func()) bool {
	if !p.running.Load() {
		return false
	}
	p.tasks <- task
	return true
}

// close lets running tasks finish and stops the workers.
// Nothing may be submitted concurrently with or after close.
func (p *workerPool) close() {
	p.once.Do(func() {
		p.running.Store(false)
		close(p.tasks)
		p.wg.Wait()
	})
}
