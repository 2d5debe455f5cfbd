// Package queue implements the outbound send queue: buffered messages
// dispatched under a per-window rate limit and a concurrency ceiling,
// ordered by priority then enqueue time, with delayed retries and
// recorded terminal failures.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emailmax/warmup/internal/metrics"
	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/pool"
	"github.com/emailmax/warmup/internal/schedule"
	"github.com/emailmax/warmup/internal/transport"
)

// Outcome is the final result of one queued message: either sent, or
// terminally failed after its attempts were exhausted.
type Outcome struct {
	ItemID   string
	Attempts int
	Err      error
}

// Receipt is handed back by Enqueue. Done receives exactly one Outcome
// when the item reaches a terminal state.
type Receipt struct {
	ID   string
	Done <-chan Outcome
}

// Item is one buffered outbound message. The sending credentials travel
// with the item; the queue acquires the pooled connection lazily at send
// time, not at enqueue time.
type Item struct {
	ID          string
	Credentials *model.Credentials
	Message     *transport.Outgoing
	Priority    int
	EnqueuedAt  time.Time
	Attempts    int
	MaxAttempts int
	LastError   string

	seq   uint64
	done  chan Outcome
	index int
}

// Options configures the queue.
type Options struct {
	// TickInterval is the dispatch period.
	TickInterval time.Duration

	// MaxPerWindow and WindowDuration bound admissions per rate window.
	MaxPerWindow   int
	WindowDuration time.Duration

	// MaxConcurrent bounds in-flight sends.
	MaxConcurrent int

	// RetryDelays is indexed by completed attempts; the last configured
	// delay is reused beyond the list length.
	RetryDelays []time.Duration

	// DefaultMaxAttempts applies when Enqueue is called with
	// maxAttempts <= 0.
	DefaultMaxAttempts int
}

func (o *Options) withDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.MaxPerWindow <= 0 {
		o.MaxPerWindow = 30
	}
	if o.WindowDuration <= 0 {
		o.WindowDuration = time.Hour
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 5
	}
	if len(o.RetryDelays) == 0 {
		o.RetryDelays = []time.Duration{30 * time.Second, 2 * time.Minute, 5 * time.Minute}
	}
	if o.DefaultMaxAttempts <= 0 {
		o.DefaultMaxAttempts = 3
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Pending    int `json:"pending"`
	InFlight   int `json:"in_flight"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Retried    int `json:"retried"`
	WindowSent int `json:"window_sent"`
}

// window is the rate-limit accounting. sentCount resets to zero exactly
// when now-windowStart >= windowDuration.
type window struct {
	sentCount   int
	windowStart time.Time
}

// FailureObserver is notified of every terminal failure, in addition to
// the per-item Done channel.
type FailureObserver func(item *Item, err error)

// Queue is the outbound send queue. Construct with New, start the
// dispatch loop with Start, and stop it with Stop.
type Queue struct {
	pool  *pool.Pool
	opts  Options
	sched *schedule.Scheduler

	mu        sync.Mutex
	items     itemHeap
	inFlight  int
	win       window
	stats     Stats
	nextSeq   uint64
	onFailure FailureObserver
	running   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a queue dispatching through the given connection pool.
func New(p *pool.Pool, opts Options) *Queue {
	opts.withDefaults()
	return &Queue{
		pool:   p,
		opts:   opts,
		sched:  schedule.New(),
		win:    window{windowStart: time.Now()},
		stopCh: make(chan struct{}),
	}
}

// OnFailure registers the terminal-failure observer. Must be called
// before Start.
func (q *Queue) OnFailure(fn FailureObserver) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailure = fn
}

// Enqueue buffers a message for sending. Priority runs 1 (highest) to 10
// (lowest); out-of-range values are clamped. maxAttempts <= 0 selects the
// configured default.
func (q *Queue) Enqueue(creds *model.Credentials, msg *transport.Outgoing, priority, maxAttempts int) (*Receipt, error) {
	if msg == nil || len(msg.To) == 0 {
		return nil, fmt.Errorf("enqueue: message has no recipients")
	}
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = q.opts.DefaultMaxAttempts
	}

	item := &Item{
		ID:          uuid.New().String(),
		Credentials: creds,
		Message:     msg,
		Priority:    priority,
		EnqueuedAt:  time.Now(),
		MaxAttempts: maxAttempts,
		done:        make(chan Outcome, 1),
	}

	q.mu.Lock()
	item.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.items, item)
	pending := q.items.Len()
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(pending))
	return &Receipt{ID: item.ID, Done: item.done}, nil
}

// Start launches the dispatch loop. Safe to call once per queue.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(ctx)
}

// Stop halts dispatching, cancels scheduled retries, and waits for
// in-flight sends to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	close(q.stopCh)
	q.sched.Stop()
	q.wg.Wait()
}

// Drain blocks until the queue is empty and no sends are in flight, or
// the context is cancelled.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.items.Len() == 0 && q.inFlight == 0 && q.sched.Pending() == 0
		q.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// GetStats returns a snapshot of the queue counters.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Pending = q.items.Len()
	s.InFlight = q.inFlight
	s.WindowSent = q.win.sentCount
	return s
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.Tick(ctx)
		}
	}
}

// Tick runs one dispatch pass: reset the rate window if it expired, then
// admit items while the queue is non-empty, the in-flight count is under
// the concurrency ceiling, and the window has admissions left. Among
// ready items, lower priority value sends first; ties break by enqueue
// order. Exposed for tests; the Start loop calls it on the tick interval.
func (q *Queue) Tick(ctx context.Context) {
	q.mu.Lock()
	now := time.Now()
	if now.Sub(q.win.windowStart) >= q.opts.WindowDuration {
		q.win.sentCount = 0
		q.win.windowStart = now
	}

	var admitted []*Item
	deferred := false
	for q.items.Len() > 0 && q.inFlight < q.opts.MaxConcurrent {
		if q.win.sentCount >= q.opts.MaxPerWindow {
			// Not an error: admission resumes when the window resets.
			deferred = true
			break
		}
		item := heap.Pop(&q.items).(*Item)
		item.Attempts++
		q.inFlight++
		q.win.sentCount++
		admitted = append(admitted, item)
	}
	pending := q.items.Len()
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(pending))
	if deferred {
		metrics.QueueRateDeferred.Inc()
	}

	for _, item := range admitted {
		q.wg.Add(1)
		go q.dispatch(ctx, item)
	}
}

// dispatch performs one send attempt: acquire the sender's pooled
// connection, send, and hand the connection back (or discard it on a
// transport error).
func (q *Queue) dispatch(ctx context.Context, item *Item) {
	defer q.wg.Done()

	err := q.sendOnce(ctx, item)

	q.mu.Lock()
	q.inFlight--
	q.mu.Unlock()

	if err == nil {
		q.mu.Lock()
		q.stats.Sent++
		q.mu.Unlock()
		metrics.QueueSends.WithLabelValues("success").Inc()
		item.done <- Outcome{ItemID: item.ID, Attempts: item.Attempts}
		return
	}

	item.LastError = err.Error()

	// Pool exhaustion is deferred admission, not a consumed attempt.
	if errors.Is(err, pool.ErrExhausted) {
		q.mu.Lock()
		item.Attempts--
		q.mu.Unlock()
		q.requeueAfter(item, q.retryDelay(1))
		return
	}

	if item.Attempts < item.MaxAttempts {
		q.mu.Lock()
		q.stats.Retried++
		q.mu.Unlock()
		metrics.QueueSends.WithLabelValues("retry").Inc()
		slog.Warn("queue: send failed, scheduling retry",
			"item", item.ID, "attempt", item.Attempts, "max_attempts", item.MaxAttempts, "error", err)
		q.requeueAfter(item, q.retryDelay(item.Attempts))
		return
	}

	// Attempts exhausted: record the terminal failure exactly once.
	q.mu.Lock()
	q.stats.Failed++
	observer := q.onFailure
	q.mu.Unlock()

	metrics.QueueSends.WithLabelValues("failure").Inc()
	slog.Error("queue: send terminally failed",
		"item", item.ID, "attempts", item.Attempts, "error", err)
	if observer != nil {
		observer(item, err)
	}
	item.done <- Outcome{ItemID: item.ID, Attempts: item.Attempts, Err: err}
}

func (q *Queue) sendOnce(ctx context.Context, item *Item) error {
	lease, err := q.pool.AcquireSender(ctx, item.Credentials)
	if err != nil {
		return err
	}

	if err := lease.Sender.Send(ctx, item.Message); err != nil {
		q.pool.Discard(lease)
		return err
	}
	q.pool.Release(lease)
	return nil
}

// retryDelay returns the delay before retry number `attempts`, reusing
// the last configured delay beyond the list length.
func (q *Queue) retryDelay(attempts int) time.Duration {
	delays := q.opts.RetryDelays
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}

// requeueAfter schedules the item back onto the heap through the
// scheduler, so pending retries are cancellable as a unit on Stop.
func (q *Queue) requeueAfter(item *Item, delay time.Duration) {
	q.sched.After(delay, func() {
		q.mu.Lock()
		item.seq = q.nextSeq
		q.nextSeq++
		heap.Push(&q.items, item)
		q.mu.Unlock()
	})
}
