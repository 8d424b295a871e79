package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/slok/infraware/internal/log"
)

// PoolConfig is the configuration for the worker pool.
type PoolConfig struct {
	// Workers is the number of stage tasks that can run at the same time.
	Workers int
	// QueueSize is the number of scheduled tasks that can wait for a worker.
	QueueSize int
	Logger    log.Logger
}

func (c *PoolConfig) defaults() error {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Pool"})
	return nil
}

type task struct {
	name string
	run  func(ctx context.Context)
}

// Pool is a bounded worker pool that implements Scheduler. Tasks run with the
// pool context, when it's cancelled the tasks still queued are run with the
// cancelled context so they finish as interrupted.
type Pool struct {
	workers int
	queue   chan task
	mu      sync.Mutex
	stopped bool
	logger  log.Logger
}

// NewPool creates a new worker pool, it doesn't run tasks until Run is called.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Pool{
		workers: cfg.Workers,
		queue:   make(chan task, cfg.QueueSize),
		logger:  cfg.Logger,
	}, nil
}

var _ Scheduler = &Pool{}

// Schedule queues a task, it fails if the queue is full or the pool stopped.
func (p *Pool) Schedule(name string, run func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return fmt.Errorf("pool is stopped")
	}

	select {
	case p.queue <- task{name: name, run: run}:
		return nil
	default:
		return fmt.Errorf("pool queue is full")
	}
}

// Run runs the workers until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Infof("Starting %d workers", p.workers)

	g, gctx := errgroup.WithContext(ctx)
	for range p.workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case t := <-p.queue:
					p.run(gctx, t)
				}
			}
		})
	}
	err := g.Wait()

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	for {
		select {
		case t := <-p.queue:
			p.run(gctx, t)
		default:
			p.logger.Infof("Workers stopped")
			return err
		}
	}
}

func (p *Pool) run(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("Task %s panicked: %v", t.name, r)
		}
	}()

	p.logger.Debugf("Running task %s", t.name)
	t.run(ctx)
}
