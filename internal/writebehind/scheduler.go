package writebehind

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"claims-go/internal/claims"
)

var (
	// ErrClosed is returned by Submit after Shutdown has started.
	ErrClosed = errors.New("write-behind scheduler is shut down")
	// ErrForcedShutdown is returned by Shutdown when the grace period ran out.
	ErrForcedShutdown = errors.New("write-behind scheduler forced shutdown")
)

const (
	defaultWorkers = 4
	defaultGrace   = 30 * time.Second
)

// Config sizes the worker pool.
type Config struct {
	Workers       int
	ShutdownGrace time.Duration
}

type task struct {
	claims.WriteTask
	keys    []string
	waiting int // keys on which another task is still ahead of this one
	running bool
}

// Scheduler runs WriteTasks on a fixed pool of workers. Every key has a FIFO
// queue and a task becomes runnable only when it heads the queue of each of
// its keys, so tasks sharing any key run one at a time in submission order.
// Because submission appends to all of a task's queues at once, the queues
// agree on a single order and multi-key tasks cannot deadlock.
type Scheduler struct {
	logger  claims.Logger
	grace   time.Duration
	metrics *metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	cond     *sync.Cond
	queues   map[string][]*task
	ready    []*task
	pending  int
	idle     chan struct{} // closed while pending == 0
	closed   bool
	stopping bool
}

var _ claims.Scheduler = (*Scheduler)(nil)

// New starts a Scheduler. reg may be nil to skip metric registration.
func New(cfg Config, logger claims.Logger, reg prometheus.Registerer) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultGrace
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	s := &Scheduler{
		logger:  logger,
		grace:   cfg.ShutdownGrace,
		metrics: newMetrics(reg),
		ctx:     ctx,
		cancel:  cancel,
		queues:  map[string][]*task{},
		idle:    idle,
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go s.worker()
	}
	return s
}

// Submit queues a task behind every earlier task that shares one of its keys.
func (s *Scheduler) Submit(t claims.WriteTask) error {
	keys := slices.Clone(t.Keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.metrics.tasks.WithLabelValues(t.Op, "rejected").Inc()
		return ErrClosed
	}

	tk := &task{WriteTask: t, keys: keys}
	for _, k := range keys {
		q := s.queues[k]
		if len(q) > 0 {
			tk.waiting++
		}
		s.queues[k] = append(q, tk)
	}

	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	s.metrics.pending.Set(float64(s.pending))

	if tk.waiting == 0 {
		s.ready = append(s.ready, tk)
		s.cond.Signal()
	}
	return nil
}

// Flush blocks until every task submitted before the call has finished.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits up to the grace period for the
// queue to drain. After that, tasks still queued are dropped, running tasks
// see their context cancelled, and ErrForcedShutdown is returned.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	s.closed = true
	s.stopping = true
	idle := s.idle
	s.cond.Broadcast()
	s.mu.Unlock()

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	dropped := 0
	select {
	case <-idle:
	case <-timer.C:
		dropped = s.dropQueued()
		s.cancel()
		s.logger.Warn("write queue did not drain within grace period, forcing shutdown",
			"grace", s.grace, "dropped", dropped)
	}

	s.wg.Wait()
	s.cancel()

	if dropped > 0 {
		return fmt.Errorf("%w: %d queued tasks dropped", ErrForcedShutdown, dropped)
	}
	return nil
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.ready) == 0 {
			if s.stopping && s.pending == 0 {
				s.mu.Unlock()
				return
			}
			s.cond.Wait()
		}
		tk := s.ready[0]
		s.ready = s.ready[1:]
		tk.running = true
		s.mu.Unlock()

		s.run(tk)
		s.finish(tk)
	}
}

func (s *Scheduler) run(tk *task) {
	start := time.Now()
	err := s.invoke(tk)
	s.metrics.duration.WithLabelValues(tk.Op).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.tasks.WithLabelValues(tk.Op, "failed").Inc()
		s.logger.Error("persistence task failed", "op", tk.Op, "keys", tk.keys, "error", err)
		return
	}
	s.metrics.tasks.WithLabelValues(tk.Op, "ok").Inc()
}

func (s *Scheduler) invoke(tk *task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return tk.Run(s.ctx)
}

// finish pops tk off each of its queues and releases the tasks now at the head.
func (s *Scheduler) finish(tk *task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range tk.keys {
		q := s.queues[k]
		if len(q) == 0 || q[0] != tk {
			continue
		}
		q = q[1:]
		if len(q) == 0 {
			delete(s.queues, k)
			continue
		}
		s.queues[k] = q
		next := q[0]
		next.waiting--
		if next.waiting == 0 {
			s.ready = append(s.ready, next)
			s.cond.Signal()
		}
	}
	s.complete(1)
}

// dropQueued discards every task that has not started and returns how many.
func (s *Scheduler) dropQueued() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := map[*task]bool{}
	for k, q := range s.queues {
		kept := q[:0]
		for _, tk := range q {
			if tk.running {
				kept = append(kept, tk)
			} else {
				dropped[tk] = true
			}
		}
		if len(kept) == 0 {
			delete(s.queues, k)
		} else {
			s.queues[k] = kept
		}
	}
	for _, tk := range s.ready {
		dropped[tk] = true
	}
	s.ready = nil

	for tk := range dropped {
		s.metrics.tasks.WithLabelValues(tk.Op, "dropped").Inc()
		s.logger.Error("dropping unwritten persistence task", "op", tk.Op, "keys", tk.keys)
	}
	s.complete(len(dropped))
	s.cond.Broadcast()
	return len(dropped)
}

// complete must be called with mu held.
func (s *Scheduler) complete(n int) {
	if n == 0 {
		return
	}
	s.pending -= n
	s.metrics.pending.Set(float64(s.pending))
	if s.pending == 0 {
		close(s.idle)
		s.cond.Broadcast()
	}
}

type metrics struct {
	tasks    *prometheus.CounterVec
	pending  prometheus.Gauge
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_writebehind_tasks_total",
			Help: "Persistence tasks by operation and result.",
		}, []string{"op", "result"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "claims_writebehind_pending_tasks",
			Help: "Persistence tasks queued or running.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claims_writebehind_task_duration_seconds",
			Help:    "Time spent running persistence tasks.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}
