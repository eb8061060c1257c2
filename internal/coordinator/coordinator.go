// Package coordinator runs background work on a fixed pool of permits and
// delivers tagged results to a single consumer.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/hangar/internal/domain"
)

const (
	DefaultPermits        = 4
	DefaultQueueSize      = 1024
	DefaultRequestTimeout = 30 * time.Second
)

// Kind separates feed fetches, which are subject to staleness discard,
// from mutations, which always apply.
type Kind int

const (
	KindFetch Kind = iota
	KindMutation
)

func (k Kind) String() string {
	if k == KindMutation {
		return "mutation"
	}
	return "fetch"
}

// Task is a unit of background work. The context carries the per-request
// deadline and is cancelled at shutdown.
type Task func(ctx context.Context) (any, error)

// Envelope is a completed task as delivered to the consumer.
type Envelope struct {
	ID         uuid.UUID
	Stream     string
	Generation uint64
	Kind       Kind
	Payload    any
	Err        error
	Warnings   []error // non-fatal problems, e.g. cache degradation
	Submitted  time.Time
	Completed  time.Time
}

// Handle identifies a submitted task.
type Handle struct {
	ID         uuid.UUID
	Stream     string
	Generation uint64
}

type Options struct {
	Permits        int
	QueueSize      int
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type job struct {
	env  Envelope
	task Task
}

// Coordinator owns the worker pool, the result channel and the per-stream
// generation counters. It is created once per process and closed at exit.
type Coordinator struct {
	opts   Options
	logger *slog.Logger

	queue   chan job
	results chan Envelope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	submitMu sync.RWMutex
	closed   bool

	gens *Generations

	inFlight atomic.Int64
	queued   atomic.Int64
}

// New starts a coordinator with opts.Permits workers.
func New(opts Options) *Coordinator {
	if opts.Permits < 1 {
		opts.Permits = DefaultPermits
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		opts:    opts,
		logger:  opts.Logger,
		queue:   make(chan job, opts.QueueSize),
		results: make(chan Envelope, opts.QueueSize+opts.Permits),
		ctx:     ctx,
		cancel:  cancel,
		gens:    NewGenerations(),
	}
	for i := 0; i < opts.Permits; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

// Results is the single channel every envelope is delivered on.
// It is closed by Close after the workers exit.
func (c *Coordinator) Results() <-chan Envelope { return c.results }

// Generations exposes the per-stream counters.
func (c *Coordinator) Generations() *Generations { return c.gens }

// Submit queues task under stream, tagged with the stream's current
// generation. Tasks start in submission order as permits free up.
// Submit never blocks; a full queue returns domain.ErrQueueFull.
func (c *Coordinator) Submit(stream string, kind Kind, task Task) (Handle, error) {
	c.submitMu.RLock()
	defer c.submitMu.RUnlock()
	if c.closed {
		return Handle{}, domain.ErrClosed
	}

	env := Envelope{
		ID:         uuid.New(),
		Stream:     stream,
		Generation: c.gens.Current(stream),
		Kind:       kind,
		Submitted:  time.Now(),
	}
	select {
	case c.queue <- job{env: env, task: task}:
		c.queued.Add(1)
	default:
		return Handle{}, domain.ErrQueueFull
	}
	c.logger.Debug("task submitted", "id", env.ID, "stream", stream, "generation", env.Generation, "kind", kind.String())
	return Handle{ID: env.ID, Stream: stream, Generation: env.Generation}, nil
}

// Accept reports whether env should be applied. Mutations are always
// applied. A fetch applies only if its generation is at least the newest
// issued and the newest applied for its stream; accepting records it as applied.
func (c *Coordinator) Accept(env Envelope) bool {
	if env.Kind == KindMutation {
		return true
	}
	ok := c.gens.Accept(env.Stream, env.Generation)
	if !ok {
		c.logger.Debug("discarding stale result", "id", env.ID, "stream", env.Stream, "generation", env.Generation)
	}
	return ok
}

// InFlight returns the number of tasks currently holding a permit.
func (c *Coordinator) InFlight() int { return int(c.inFlight.Load()) }

// Queued returns the number of tasks waiting for a permit.
func (c *Coordinator) Queued() int { return int(c.queued.Load()) }

// Close stops accepting work, cancels in-flight tasks, waits for the
// workers and closes the result channel. Undelivered results are dropped.
func (c *Coordinator) Close() {
	c.submitMu.Lock()
	if c.closed {
		c.submitMu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.submitMu.Unlock()

	c.cancel()
	c.wg.Wait()
	close(c.results)
	c.logger.Debug("coordinator stopped")
}

func (c *Coordinator) worker() {
	defer c.wg.Done()
	for j := range c.queue {
		c.queued.Add(-1)
		env := c.run(j)
		select {
		case c.results <- env:
		case <-c.ctx.Done():
		}
	}
}

func (c *Coordinator) run(j job) (env Envelope) {
	env = j.env
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.RequestTimeout)
	defer cancel()
	w := &warnings{}
	ctx = context.WithValue(ctx, warningsKey{}, w)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("task panicked", "id", env.ID, "stream", env.Stream, "panic", r)
			env.Payload = nil
			env.Err = fmt.Errorf("task panicked: %v", r)
		}
		env.Warnings = w.list()
		env.Completed = time.Now()
	}()

	env.Payload, env.Err = j.task(ctx)
	if env.Err != nil {
		c.logger.Debug("task failed", "id", env.ID, "stream", env.Stream, "error", env.Err)
	}
	return env
}

type warningsKey struct{}

type warnings struct {
	mu   sync.Mutex
	errs []error
}

func (w *warnings) add(err error) {
	w.mu.Lock()
	w.errs = append(w.errs, err)
	w.mu.Unlock()
}

func (w *warnings) list() []error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]error(nil), w.errs...)
}

// Warn attaches a non-fatal error to the envelope of the task running
// under ctx. Outside a task it is a no-op.
func Warn(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if w, ok := ctx.Value(warningsKey{}).(*warnings); ok {
		w.add(err)
	}
}
