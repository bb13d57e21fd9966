// Package parallel splits pixel loops into bands run on a worker pool.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines executing work items.
//
// Each worker owns a queue and steals from the others when its own queue
// is empty, so a band that hits the dense part of a scene does not hold
// the whole frame back.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll runs every work item and waits for all of them. On a closed
// pool the items run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for i, fn := range work {
		wrapped := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	wg.Wait()
}

// Close stops the pool after the queued work has run. Safe to call more
// than once.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// Band is a half-open index range [Lo, Hi).
type Band struct {
	Lo, Hi int
}

// Split divides [lo, hi) into at most n contiguous bands of near-equal
// length, each a multiple of align long except the last. align is the
// element size (4 for RGBA byte offsets) and must be positive.
func Split(lo, hi, n, align int) []Band {
	if hi <= lo || n <= 0 || align <= 0 {
		return nil
	}
	units := (hi - lo + align - 1) / align
	n = min(n, units)
	per := units / n
	extra := units % n

	bands := make([]Band, 0, n)
	start := lo
	for i := range n {
		size := per
		if i < extra {
			size++
		}
		end := min(start+size*align, hi)
		bands = append(bands, Band{Lo: start, Hi: end})
		start = end
	}
	return bands
}

// ForEach runs fn over the bands of [lo, hi) on the pool and waits.
// A nil pool runs fn once over the whole range.
func ForEach(p *WorkerPool, lo, hi, align int, fn func(b Band)) {
	if p == nil || p.workers == 1 {
		if hi > lo {
			fn(Band{Lo: lo, Hi: hi})
		}
		return
	}
	bands := Split(lo, hi, p.workers*2, align)
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b) }
	}
	p.ExecuteAll(work)
}
