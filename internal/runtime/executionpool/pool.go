// Package executionpool bounds cold-tier work. Analytical queries can hold
// hundreds of milliseconds of wall time, so they run through a fixed worker
// pool with a bounded FIFO queue and a per-case outstanding cap that keeps
// one chatty case from starving the rest.
package executionpool

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned when work is submitted after Close.
	ErrClosed = errors.New("executionpool: closed")
	// ErrQueueFull is returned when the FIFO queue is at capacity.
	ErrQueueFull = errors.New("executionpool: queue full")
	// ErrCaseSaturated is returned when a case already has its maximum
	// number of outstanding tasks queued or running.
	ErrCaseSaturated = errors.New("executionpool: case saturated")
)

const (
	defaultQueueDepth   = 64
	defaultPerCaseLimit = 4
	defaultWorkers      = 1
)

// Config sizes the pool. Zero values take the defaults.
type Config struct {
	// QueueDepth caps tasks waiting for a worker.
	QueueDepth int
	// PerCaseLimit caps outstanding tasks per case, queued plus running.
	PerCaseLimit int
	// Workers is the number of concurrent executors.
	Workers int
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Submitted uint64
	Rejected  uint64
	Completed uint64
	Failed    uint64
	Depth     int
}

type task struct {
	caseID string
	fn     func(context.Context) error
	done   chan error
}

// Pool runs submitted tasks in FIFO order across a fixed worker set.
type Pool struct {
	queue chan task
	wg    sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	perCaseLimit int
	outstanding  map[string]int
	stats        Stats
}

// New starts the pool's workers.
func New(cfg Config) *Pool {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.PerCaseLimit <= 0 {
		cfg.PerCaseLimit = defaultPerCaseLimit
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	p := &Pool{
		queue:        make(chan task, cfg.QueueDepth),
		perCaseLimit: cfg.PerCaseLimit,
		outstanding:  make(map[string]int),
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.queue {
		err := t.fn(context.Background())
		p.mu.Lock()
		p.outstanding[t.caseID]--
		if p.outstanding[t.caseID] <= 0 {
			delete(p.outstanding, t.caseID)
		}
		if err != nil {
			p.stats.Failed++
		} else {
			p.stats.Completed++
		}
		p.mu.Unlock()
		t.done <- err
	}
}

// Submit enqueues fn and returns a channel that yields its error exactly
// once. Submission fails fast when the pool is closed, the queue is full,
// or the case is at its outstanding cap.
func (p *Pool) Submit(caseID string, fn func(context.Context) error) (<-chan error, error) {
	p.mu.Lock()
	if p.closed {
		p.stats.Rejected++
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.outstanding[caseID] >= p.perCaseLimit {
		p.stats.Rejected++
		p.mu.Unlock()
		return nil, ErrCaseSaturated
	}
	t := task{caseID: caseID, fn: fn, done: make(chan error, 1)}
	select {
	case p.queue <- t:
		p.outstanding[caseID]++
		p.stats.Submitted++
		p.mu.Unlock()
		return t.done, nil
	default:
		p.stats.Rejected++
		p.mu.Unlock()
		return nil, ErrQueueFull
	}
}

// Do submits fn and waits for it, honoring ctx while waiting. The task
// itself still runs to completion even when ctx expires first.
func (p *Pool) Do(ctx context.Context, caseID string, fn func(context.Context) error) error {
	done, err := p.Submit(caseID, fn)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Depth = len(p.queue)
	return s
}

// Close stops intake and waits for queued work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.queue)
	p.wg.Wait()
}
