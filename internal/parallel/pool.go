// Package parallel runs indexed work items on a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a work-stealing goroutine pool.
//
// Each worker pulls from its own queue and steals from the others when its
// queue is empty, so uneven items (sparse rows next to dense ones) balance
// out.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool starts a pool with the given number of workers. If workers is 0
// or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	depth := max(workers*4, 8)
	for i := range p.queues {
		p.queues[i] = make(chan func(), depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if work := p.steal(id); work != nil {
				work()
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

func (p *Pool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *Pool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.queues[i]:
			return work
		default:
		}
	}
	return nil
}

// Run calls fn(i) for every i in [0, n) and waits for all calls to return.
// It returns the error of the lowest failing index. A closed pool runs the
// items on the calling goroutine.
func (p *Pool) Run(n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	errs := make([]error, n)
	if !p.running.Load() || n == 1 {
		for i := range n {
			errs[i] = fn(i)
		}
		return first(errs)
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		work := func() {
			defer wg.Done()
			errs[i] = fn(i)
		}
		select {
		case p.queues[i%p.workers] <- work:
		case <-p.done:
			work()
		}
	}
	wg.Wait()
	return first(errs)
}

func first(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return p.workers }

// Close waits for queued work and stops the workers. Close is safe to call
// more than once.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}
