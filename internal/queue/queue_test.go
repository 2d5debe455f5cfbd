package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/pool"
	"github.com/emailmax/warmup/internal/queue"
	"github.com/emailmax/warmup/internal/transport"
	"github.com/emailmax/warmup/tests/testutil"
)

type fixture struct {
	world *testutil.MailWorld
	pool  *pool.Pool
	queue *queue.Queue
	a, b  *model.Credentials
}

func newFixture(t *testing.T, opts queue.Options) *fixture {
	t.Helper()

	world := testutil.NewMailWorld()
	a := world.AddAccount("a", "a@test.com")
	b := world.AddAccount("b", "b@test.com")

	p := pool.New(world, pool.Options{MaxConnections: 10, EvictInterval: time.Hour})
	t.Cleanup(p.Close)

	return &fixture{world: world, pool: p, queue: queue.New(p, opts), a: a, b: b}
}

func outgoing(from *model.Credentials, to *model.Credentials) *transport.Outgoing {
	return &transport.Outgoing{
		From:      from.Email,
		To:        []string{to.Email},
		Subject:   "hello",
		Body:      "hi there",
		MessageID: transport.NewMessageID(from.Domain()),
	}
}

func waitOutcome(t *testing.T, r *queue.Receipt) queue.Outcome {
	t.Helper()
	select {
	case out := <-r.Done:
		return out
	case <-time.After(2 * time.Second):
		t.Fatalf("no outcome for item %s", r.ID)
		return queue.Outcome{}
	}
}

func TestEnqueueValidation(t *testing.T) {
	f := newFixture(t, queue.Options{})

	_, err := f.queue.Enqueue(f.a, &transport.Outgoing{From: f.a.Email}, 5, 1)
	assert.Error(t, err)

	_, err = f.queue.Enqueue(f.a, nil, 5, 1)
	assert.Error(t, err)
}

func TestTickSendsMessage(t *testing.T) {
	f := newFixture(t, queue.Options{MaxPerWindow: 100})

	r, err := f.queue.Enqueue(f.a, outgoing(f.a, f.b), 5, 1)
	require.NoError(t, err)

	f.queue.Tick(context.Background())
	out := waitOutcome(t, r)

	assert.NoError(t, out.Err)
	assert.Equal(t, 1, out.Attempts)
	require.Len(t, f.world.Messages("b@test.com", "INBOX"), 1)
	assert.Equal(t, "hello", f.world.Messages("b@test.com", "INBOX")[0].Subject)

	stats := f.queue.GetStats()
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 0, stats.Pending)
}

func TestPriorityThenFIFO(t *testing.T) {
	// MaxConcurrent 1 admits exactly one item per tick, exposing the
	// heap order.
	f := newFixture(t, queue.Options{MaxPerWindow: 100, MaxConcurrent: 1})
	ctx := context.Background()

	low, _ := f.queue.Enqueue(f.a, outgoing(f.a, f.b), 9, 1)
	highFirst, _ := f.queue.Enqueue(f.a, outgoing(f.a, f.b), 2, 1)
	highSecond, _ := f.queue.Enqueue(f.a, outgoing(f.a, f.b), 2, 1)

	var order []string
	for _, want := range []*queue.Receipt{highFirst, highSecond, low} {
		f.queue.Tick(ctx)
		out := waitOutcome(t, want)
		require.NoError(t, out.Err)
		order = append(order, out.ItemID)
	}

	assert.Equal(t, []string{highFirst.ID, highSecond.ID, low.ID}, order)
}

func TestRateWindowCapsAdmissions(t *testing.T) {
	f := newFixture(t, queue.Options{
		MaxPerWindow:   2,
		WindowDuration: time.Hour,
		MaxConcurrent:  10,
	})
	ctx := context.Background()

	var receipts []*queue.Receipt
	for i := 0; i < 5; i++ {
		r, err := f.queue.Enqueue(f.a, outgoing(f.a, f.b), 5, 1)
		require.NoError(t, err)
		receipts = append(receipts, r)
	}

	f.queue.Tick(ctx)
	waitOutcome(t, receipts[0])
	waitOutcome(t, receipts[1])

	stats := f.queue.GetStats()
	assert.Equal(t, 2, stats.WindowSent)
	assert.Equal(t, 3, stats.Pending)

	// The window has no admissions left: further ticks send nothing.
	f.queue.Tick(ctx)
	assert.Equal(t, 3, f.queue.GetStats().Pending)
	assert.Len(t, f.world.Messages("b@test.com", "INBOX"), 2)
}

func TestRetryThenSuccess(t *testing.T) {
	f := newFixture(t, queue.Options{
		MaxPerWindow: 100,
		RetryDelays:  []time.Duration{5 * time.Millisecond},
	})
	ctx := context.Background()

	f.world.FailSend("a@test.com", errors.New("transient smtp failure"))
	r, err := f.queue.Enqueue(f.a, outgoing(f.a, f.b), 5, 3)
	require.NoError(t, err)

	f.queue.Tick(ctx)
	time.Sleep(20 * time.Millisecond) // first attempt fails, retry re-buffers

	f.world.FailSend("a@test.com", nil)
	f.queue.Tick(ctx)
	out := waitOutcome(t, r)

	assert.NoError(t, out.Err)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 1, f.queue.GetStats().Retried)
}

func TestTerminalFailureCountedOnce(t *testing.T) {
	f := newFixture(t, queue.Options{
		MaxPerWindow: 100,
		RetryDelays:  []time.Duration{time.Millisecond},
	})
	ctx := context.Background()

	sendErr := errors.New("mailbox gone")
	f.world.FailSend("a@test.com", sendErr)

	var observed int
	f.queue.OnFailure(func(item *queue.Item, err error) { observed++ })

	r, err := f.queue.Enqueue(f.a, outgoing(f.a, f.b), 5, 2)
	require.NoError(t, err)

	f.queue.Tick(ctx)
	time.Sleep(20 * time.Millisecond)
	f.queue.Tick(ctx)
	out := waitOutcome(t, r)

	require.Error(t, out.Err)
	assert.ErrorContains(t, out.Err, "mailbox gone")
	assert.Equal(t, 2, out.Attempts)

	stats := f.queue.GetStats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, observed)
	assert.Empty(t, f.world.Messages("b@test.com", "INBOX"))
}

func TestPoolExhaustionDefersWithoutConsumingAttempt(t *testing.T) {
	world := testutil.NewMailWorld()
	a := world.AddAccount("a", "a@test.com")
	b := world.AddAccount("b", "b@test.com")

	// Ceiling of one, already held: the queue cannot dial.
	p := pool.New(world, pool.Options{MaxConnections: 1, EvictInterval: time.Hour})
	t.Cleanup(p.Close)
	blocker, err := p.AcquireMailbox(context.Background(), a)
	require.NoError(t, err)

	q := queue.New(p, queue.Options{
		MaxPerWindow: 100,
		RetryDelays:  []time.Duration{5 * time.Millisecond},
	})
	r, err := q.Enqueue(a, outgoing(a, b), 5, 1)
	require.NoError(t, err)

	q.Tick(context.Background())
	time.Sleep(20 * time.Millisecond)

	// Deferred, not failed: with only one allowed attempt the item must
	// still be alive and succeed once capacity frees up.
	assert.Equal(t, 0, q.GetStats().Failed)

	p.Discard(blocker)
	q.Tick(context.Background())

	out := waitOutcome(t, r)
	assert.NoError(t, out.Err)
	assert.Equal(t, 1, out.Attempts)
}

func TestDrain(t *testing.T) {
	f := newFixture(t, queue.Options{TickInterval: 2 * time.Millisecond, MaxPerWindow: 100})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.queue.Start(ctx)
	t.Cleanup(f.queue.Stop)

	for i := 0; i < 4; i++ {
		_, err := f.queue.Enqueue(f.a, outgoing(f.a, f.b), 5, 1)
		require.NoError(t, err)
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, 2*time.Second)
	defer drainCancel()
	require.NoError(t, f.queue.Drain(drainCtx))
	assert.Len(t, f.world.Messages("b@test.com", "INBOX"), 4)
}
