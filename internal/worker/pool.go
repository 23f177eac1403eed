package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers. Results are drained by a single
// collector goroutine as they arrive, so the result handler never runs concurrently
// with itself.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	jobsOnce   sync.Once
	closeOnce  sync.Once
	collector  *ResultCollector
	onResult   func(Result)
	collected  chan struct{}
	started    bool
}

// NewPool creates a worker pool bound to ctx. Cancelling ctx stops the workers once
// their current job returns; queued jobs are dropped.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
		collector:  NewResultCollector(),
		collected:  make(chan struct{}),
	}
}

// OnResult registers fn to receive every result as it arrives. Must be called before Start.
func (p *Pool) OnResult(fn func(Result)) {
	p.onResult = fn
}

// Start starts the workers and the result collector
func (p *Pool) Start() {
	p.started = true
	go p.collect()
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) collect() {
	defer close(p.collected)
	for result := range p.results {
		if p.onResult != nil {
			p.onResult(result)
		}
		p.collector.Add(result)
	}
}

// worker is the worker goroutine that processes jobs
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			// The collector always drains, so a finished job's result is never lost.
			p.results <- job.Execute(p.ctx)
		}
	}
}

// Submit queues a job. It returns false without queueing once the pool is cancelled,
// which includes after Wait or Shutdown.
func (p *Pool) Submit(job Job) bool {
	select {
	case <-p.ctx.Done():
		return false
	default:
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Wait lets queued jobs finish and returns all results in arrival order
func (p *Pool) Wait() []Result {
	p.closeJobs()
	p.drain()
	p.cancelFunc()
	return p.collector.Results()
}

// Shutdown cancels the pool, waits for running jobs to return and returns what was collected
func (p *Pool) Shutdown() []Result {
	p.cancelFunc()
	p.closeJobs()
	p.drain()
	return p.collector.Results()
}

func (p *Pool) drain() {
	p.wg.Wait()
	p.closeResults()
	if p.started {
		<-p.collected
	}
}

func (p *Pool) closeJobs() {
	p.jobsOnce.Do(func() {
		close(p.jobQueue)
	})
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}

// ResultCollector provides a safer way to collect results as they arrive
type ResultCollector struct {
	results []Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make([]Result, 0),
	}
}

// Add adds a result to the collector (thread-safe)
func (c *ResultCollector) Add(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns a copy of all collected results
func (c *ResultCollector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}
