package taskpool

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/provision/core/logger"
	"github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/core/monitoring"
)

var (
	// ErrClosed is returned by Submit after Join has been called.
	ErrClosed = errors.New("taskpool: pool closed")
	// ErrStopped is returned by Submit after Stop has been called.
	ErrStopped = errors.New("taskpool: pool stopped")
)

const (
	defaultSlack        = 2
	defaultPollInterval = 100 * time.Millisecond
)

// Resources maps resource names to the values a worker created at startup.
type Resources map[string]any

// Task is a unit of work. It receives the resources owned by the worker
// executing it.
type Task func(ctx context.Context, res Resources) error

// Factory creates one named resource for a worker.
type Factory func(ctx context.Context) (any, error)

// Teardown releases a resource created by the Factory of the same name.
type Teardown func(res any) error

// Config sets the pool dimensions.
type Config struct {
	Name         string        `json:"name"`
	Workers      int           `json:"workers"`
	QueueSlack   int           `json:"queue_slack"`
	PollInterval time.Duration `json:"poll_interval"`
}

// Option customizes a Pool.
type Option func(*Pool)

// WithResource registers a factory invoked once per worker at startup.
func WithResource(name string, f Factory) Option {
	return func(p *Pool) {
		p.order = append(p.order, name)
		p.factories[name] = f
	}
}

// WithTeardown registers the release function for a named resource.
func WithTeardown(name string, fn Teardown) Option {
	return func(p *Pool) { p.teardowns[name] = fn }
}

// WithLogger sets the pool logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) { p.log = logger.OrNop(l) }
}

// WithRecorder forwards task outcomes to a metrics sink.
func WithRecorder(r metrics.TaskRecorder) Option {
	return func(p *Pool) {
		if r != nil {
			p.rec = r
		}
	}
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Panicked  int64
	Dropped   int64
}

// Pool executes submitted tasks on a fixed set of workers.
type Pool struct {
	name string
	poll time.Duration
	log  logger.Logger
	rec  metrics.TaskRecorder

	order     []string
	factories map[string]Factory
	teardowns map[string]Teardown

	ctx    context.Context
	queue  chan Task
	stopCh chan struct{}
	stop   sync.Once
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	errMu       sync.Mutex
	teardownErr error

	submitted, completed, failed, panicked, dropped atomic.Int64
}

// NewPool creates resources for every worker and starts them. If any factory
// fails, resources created so far are torn down and the error is returned.
func NewPool(ctx context.Context, cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("taskpool: workers must be positive, got %d", cfg.Workers)
	}
	if cfg.QueueSlack <= 0 {
		cfg.QueueSlack = defaultSlack
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	p := &Pool{
		name:      cfg.Name,
		poll:      cfg.PollInterval,
		log:       logger.NopLogger{},
		rec:       metrics.NopSink{},
		factories: make(map[string]Factory),
		teardowns: make(map[string]Teardown),
		ctx:       ctx,
		queue:     make(chan Task, cfg.Workers+cfg.QueueSlack),
		stopCh:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}

	all := make([]Resources, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		res, err := p.open(ctx)
		if err != nil {
			for _, r := range all {
				_ = p.release(r)
			}
			return nil, fmt.Errorf("taskpool %s: worker %d: %w", p.name, i, err)
		}
		all = append(all, res)
	}
	for i, res := range all {
		p.wg.Add(1)
		go p.worker(i, res)
	}
	p.log.Debugw("task pool started", map[string]any{"pool": p.name, "workers": cfg.Workers, "queue": cap(p.queue)})
	return p, nil
}

func (p *Pool) open(ctx context.Context) (Resources, error) {
	res := make(Resources, len(p.order))
	for _, name := range p.order {
		v, err := p.factories[name](ctx)
		if err != nil {
			_ = p.release(res)
			return nil, fmt.Errorf("resource %s: %w", name, err)
		}
		res[name] = v
	}
	return res, nil
}

// release runs teardowns for the resources present in res.
func (p *Pool) release(res Resources) error {
	var errs []error
	for i := len(p.order) - 1; i >= 0; i-- {
		name := p.order[i]
		v, ok := res[name]
		if !ok {
			continue
		}
		fn, ok := p.teardowns[name]
		if !ok {
			continue
		}
		if err := fn(v); err != nil {
			errs = append(errs, fmt.Errorf("teardown %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Submit enqueues a task, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if t == nil {
		return errors.New("taskpool: nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}
	select {
	case p.queue <- t:
		p.submitted.Add(1)
		tasksSubmitted.WithLabelValues(p.name).Inc()
		return nil
	case <-p.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join waits until every submitted task has run, then shuts the workers down
// and releases their resources. It returns the combined teardown errors.
func (p *Pool) Join() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.drain()
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.teardownErr
}

// Stop asks workers to exit once their current task returns. Tasks still in
// the queue are dropped. Stop waits for the workers to release resources.
func (p *Pool) Stop() {
	p.stop.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.drain()
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
		Dropped:   p.dropped.Load(),
	}
}

func (p *Pool) drain() {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			if t != nil {
				p.dropped.Add(1)
				tasksDropped.WithLabelValues(p.name).Inc()
				_ = p.rec.RecordTask(metrics.TaskEvent{Pool: p.name, Outcome: metrics.TaskDropped})
			}
		default:
			return
		}
	}
}

func (p *Pool) worker(id int, res Resources) {
	defer p.wg.Done()
	defer func() {
		if err := p.release(res); err != nil {
			p.log.Errorw("resource teardown failed", map[string]any{"pool": p.name, "worker": id, "error": err.Error()})
			p.errMu.Lock()
			p.teardownErr = errors.Join(p.teardownErr, err)
			p.errMu.Unlock()
		}
	}()
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}
		select {
		case <-p.stopCh:
			return
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(id, t, res)
		case <-ticker.C:
		}
	}
}

func (p *Pool) run(id int, t Task, res Resources) {
	start := time.Now()
	outcome := metrics.TaskOK
	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome = metrics.TaskPanic
				err := monitoring.CapturePanic(r, map[string]string{"pool": p.name, "worker": strconv.Itoa(id)})
				p.log.Errorw("task panicked", map[string]any{"pool": p.name, "worker": id, "error": err.Error()})
			}
		}()
		if err := t(p.ctx, res); err != nil {
			outcome = metrics.TaskFailed
			p.log.Warnw("task failed", map[string]any{"pool": p.name, "worker": id, "error": err.Error()})
		}
	}()
	d := time.Since(start)
	switch outcome {
	case metrics.TaskPanic:
		p.panicked.Add(1)
	case metrics.TaskFailed:
		p.failed.Add(1)
	default:
		p.completed.Add(1)
	}
	tasksCompleted.WithLabelValues(p.name, outcome).Inc()
	taskDuration.WithLabelValues(p.name).Observe(d.Seconds())
	_ = p.rec.RecordTask(metrics.TaskEvent{Pool: p.name, Outcome: outcome, Duration: d})
}
