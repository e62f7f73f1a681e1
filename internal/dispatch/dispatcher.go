package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/ironsheep/image-fetch/internal/cache"
	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/fingerprint"
	"github.com/ironsheep/image-fetch/internal/metrics"
	"github.com/ironsheep/image-fetch/internal/transform"
)

const (
	// DefaultWorkerCount is the worker pool size when none is configured.
	DefaultWorkerCount = 3
	// DefaultRetryBudget is the number of retries a task gets after its first attempt.
	DefaultRetryBudget = 2
	// DefaultRetryDelay is the fixed wait before a failed task is retried.
	DefaultRetryDelay = 500 * time.Millisecond
)

// Options configures a Dispatcher.
type Options struct {
	// WorkerCount is the number of concurrent fetch workers.
	WorkerCount int
	// RetryBudget is the number of retries after a recoverable failure.
	// Zero selects DefaultRetryBudget; a negative value disables retries.
	RetryBudget int
	// RetryDelay is the wait before each retry. Zero selects DefaultRetryDelay;
	// a negative value retries immediately.
	RetryDelay time.Duration
	// Cache is consulted before starting a task and written on success.
	// Defaults to cache.None.
	Cache cache.Cache
	// Listener, if set, is told about each terminally failed task once.
	Listener Listener
	// OnRelease, if set, is called from the delivery goroutine for every
	// request as it leaves the dispatcher, delivered or cancelled.
	OnRelease func(*Request)
	// Clock schedules retries. Defaults to the real clock.
	Clock clock.WithDelayedExecution
	// Logger for the dispatcher.
	Logger logr.Logger
}

// message is one unit of sequencer input. Exactly one field is set.
type message struct {
	submit  *Request
	outcome *outcome
}

// Dispatcher coalesces requests by fingerprint onto tasks run by a bounded
// worker pool. See the package documentation for the execution model.
type Dispatcher struct {
	opts     Options
	mailbox  *queue[message]
	work     *queue[*Task]
	delivery *deliveryLoop

	// tasks is owned by the sequencer goroutine.
	tasks    map[fingerprint.Key]*Task
	inFlight atomic.Int64

	started  atomic.Bool
	stopping atomic.Bool
}

// New creates a Dispatcher. Call Start to run it; requests submitted earlier
// are queued until then.
func New(opts Options) *Dispatcher {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = DefaultWorkerCount
	}
	switch {
	case opts.RetryBudget == 0:
		opts.RetryBudget = DefaultRetryBudget
	case opts.RetryBudget < 0:
		opts.RetryBudget = 0
	}
	switch {
	case opts.RetryDelay == 0:
		opts.RetryDelay = DefaultRetryDelay
	case opts.RetryDelay < 0:
		opts.RetryDelay = 0
	}
	if opts.Cache == nil {
		opts.Cache = cache.None
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	return &Dispatcher{
		opts:     opts,
		mailbox:  newQueue[message](),
		work:     newQueue[*Task](),
		delivery: newDeliveryLoop(opts.Listener, opts.OnRelease, opts.Logger.WithName("delivery")),
		tasks:    make(map[fingerprint.Key]*Task),
	}
}

// Start runs the sequencer, the workers and the delivery loop. It blocks
// until ctx is cancelled, then shuts down: queued and in-flight tasks fail
// with ErrStopped, and every pending delivery is made before Start returns.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	d.opts.Logger.Info("starting dispatcher", "workers", d.opts.WorkerCount,
		"retryBudget", d.opts.RetryBudget, "retryDelay", d.opts.RetryDelay)

	var workers sync.WaitGroup
	for i := range d.opts.WorkerCount {
		workers.Add(1)
		go d.worker(ctx, i, &workers)
	}

	sequencerDone := make(chan struct{})
	go func() {
		defer close(sequencerDone)
		d.sequence(ctx)
	}()
	go d.delivery.run()

	<-ctx.Done()
	d.opts.Logger.Info("dispatcher shutting down")
	d.stopping.Store(true)

	d.work.close()
	workers.Wait()

	d.mailbox.close()
	<-sequencerDone

	d.delivery.stop()
	d.opts.Logger.Info("dispatcher shutdown complete")
	return nil
}

// Submit hands r to the sequencer. It never blocks.
//
// Requests without a consumer, sink, key or fetcher are rejected with
// ErrInvalidRequest; nothing is delivered for them.
func (d *Dispatcher) Submit(r *Request) error {
	if err := r.validate(); err != nil {
		return err
	}
	if d.stopping.Load() || !d.mailbox.push(message{submit: r}) {
		return ErrStopped
	}
	return nil
}

// InFlight returns the number of tasks in the in-flight table.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Cache returns the memory cache the dispatcher consults.
func (d *Dispatcher) Cache() cache.Cache {
	return d.opts.Cache
}

func (d *Dispatcher) sequence(ctx context.Context) {
	for {
		m, ok := d.mailbox.pop()
		if !ok {
			break
		}
		switch {
		case m.submit != nil:
			d.handleSubmit(ctx, m.submit)
		case m.outcome != nil:
			d.handleOutcome(ctx, m.outcome)
		}
	}

	// Tasks waiting on a retry timer, or queued after the workers exited.
	for _, t := range d.tasks {
		if t.retryTimer != nil {
			t.retryTimer.Stop()
		}
		failuresTotal.WithLabelValues(ReasonStopped).Inc()
		d.finish(t, batch{err: ErrStopped})
	}
}

func (d *Dispatcher) handleSubmit(ctx context.Context, r *Request) {
	logger := d.opts.Logger.WithValues("key", r.Key.Short(), "request", r.ID)

	if t, ok := d.tasks[r.Key]; ok {
		t.join(r)
		joinedTotal.Inc()
		logger.V(1).Info("joined in-flight task", "joined", len(t.joined))
		return
	}

	if ctx.Err() != nil {
		d.delivery.enqueue(batch{key: r.Key, source: r.Source, requests: []*Request{r}, err: ErrStopped})
		return
	}

	if !r.SkipCache {
		if b, ok := d.opts.Cache.Get(r.Key); ok {
			cacheHitsTotal.Inc()
			logger.V(1).Info("memory cache hit")
			d.delivery.enqueue(batch{
				key:        r.Key,
				source:     r.Source,
				requests:   []*Request{r},
				bitmap:     b,
				loadedFrom: fetch.LoadedFromMemory,
			})
			return
		}
	}

	cacheMissesTotal.Inc()
	t := newTask(r, d.opts.RetryBudget)
	d.tasks[r.Key] = t
	d.updateInFlight()
	logger.V(1).Info("started task", "source", r.Source.ID(), "kind", r.Kind.String(), "skipCache", r.SkipCache)
	d.schedule(t)
}

func (d *Dispatcher) handleOutcome(ctx context.Context, o *outcome) {
	t := o.task
	if d.tasks[t.Key] != t {
		d.opts.Logger.Error(fmt.Errorf("no in-flight task for %s", t.Key), "dropping outcome")
		return
	}
	logger := d.opts.Logger.WithValues("key", t.Key.Short(), "source", t.Source.ID(), "attempt", t.attempts)

	if o.err == nil {
		if !t.SkipCache {
			d.opts.Cache.Set(t.Key, o.bitmap)
		}
		logger.V(1).Info("task complete", "loadedFrom", o.loadedFrom.String(), "requests", len(t.joined))
		d.finish(t, batch{bitmap: o.bitmap, loadedFrom: o.loadedFrom})
		return
	}

	if ctx.Err() != nil {
		failuresTotal.WithLabelValues(ReasonStopped).Inc()
		d.finish(t, batch{err: fmt.Errorf("%w: %w", ErrStopped, o.err)})
		return
	}

	recoverable := fetch.IsRecoverable(o.err)
	if recoverable && t.retryCount > 0 {
		t.retryCount--
		retriesTotal.Inc()
		logger.V(1).Info("retrying task", "error", o.err.Error(), "retriesLeft", t.retryCount, "delay", d.opts.RetryDelay)
		t.retryTimer = d.opts.Clock.AfterFunc(d.opts.RetryDelay, func() {
			d.enqueueWork(t)
		})
		t.attempts++
		return
	}

	reason := ReasonUnrecoverable
	switch {
	case transform.IsContractViolation(o.err):
		reason = ReasonContractViolation
		logger.Error(o.err, "transformation broke the bitmap ownership contract")
	case recoverable:
		reason = ReasonRetriesExhausted
		logger.Info("task failed after retries", "error", o.err.Error())
	default:
		logger.Info("task failed", "error", o.err.Error())
	}
	failuresTotal.WithLabelValues(reason).Inc()
	d.finish(t, batch{err: o.err, notify: true})
}

// schedule queues t's next attempt immediately.
func (d *Dispatcher) schedule(t *Task) {
	t.attempts++
	d.enqueueWork(t)
}

func (d *Dispatcher) enqueueWork(t *Task) {
	if d.work.push(t) {
		workQueueSize.Set(float64(d.work.len()))
	}
}

// finish removes t from the table and hands its joined requests to delivery
// in the same sequencer step.
func (d *Dispatcher) finish(t *Task, b batch) {
	delete(d.tasks, t.Key)
	d.updateInFlight()

	b.key = t.Key
	b.source = t.Source
	b.requests = t.joined
	t.joined = nil
	d.delivery.enqueue(b)
}

func (d *Dispatcher) updateInFlight() {
	d.inFlight.Store(int64(len(d.tasks)))
	tasksInFlight.Set(float64(len(d.tasks)))
}

func (d *Dispatcher) worker(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := d.opts.Logger.WithValues("worker", id)
	logger.V(1).Info("worker started")
	defer logger.V(1).Info("worker stopped")

	for {
		t, ok := d.work.pop()
		if !ok {
			return
		}
		workQueueSize.Set(float64(d.work.len()))

		var o outcome
		if ctx.Err() != nil {
			o = outcome{task: t, err: ErrStopped}
		} else {
			start := time.Now()
			o = t.hunt(ctx)
			metrics.ObserveSince(fetchDuration.WithLabelValues(t.Kind.String()), start)
		}
		if o.err != nil {
			logger.V(1).Info("attempt failed", "key", t.Key.Short(), "error", o.err.Error(),
				"recoverable", fetch.IsRecoverable(o.err))
		}
		d.mailbox.push(message{outcome: &o})
	}
}
