package warmup_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmax/warmup/internal/content"
	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/pool"
	"github.com/emailmax/warmup/internal/queue"
	"github.com/emailmax/warmup/internal/store"
	"github.com/emailmax/warmup/internal/warmup"
	"github.com/emailmax/warmup/tests/testutil"
)

// engine bundles a fully wired orchestrator over the fake mail network.
type engine struct {
	world *testutil.MailWorld
	dir   *testutil.Directory
	store *store.SQLiteStore
	orch  *warmup.Orchestrator
}

// newEngine wires accounts a1..aN as both the mail network and the
// directory, with a fixed greeting template registered.
func newEngine(t *testing.T, emails map[string]string, defaults model.CrossSendConfig) *engine {
	t.Helper()

	world := testutil.NewMailWorld()
	var creds []*model.Credentials
	for id, email := range emails {
		creds = append(creds, world.AddAccount(id, email))
	}
	dir := testutil.NewDirectory(creds...)

	p := pool.New(world, pool.Options{MaxConnections: 20, EvictInterval: time.Hour})
	t.Cleanup(p.Close)

	q := queue.New(p, queue.Options{
		TickInterval:       2 * time.Millisecond,
		MaxPerWindow:       1000,
		MaxConcurrent:      10,
		RetryDelays:        []time.Duration{2 * time.Millisecond},
		DefaultMaxAttempts: 1,
	})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	t.Cleanup(func() {
		q.Stop()
		cancel()
	})

	st := testutil.NewTestStore(t)

	registry := content.NewRegistry()
	registry.Register(&content.Template{
		ID:      "greeting",
		Type:    content.TypeGreeting,
		Subject: "Hi {{receiver_name}}",
		Body:    "Hello {{receiver_name}}, greetings from {{sender_name}}.",
	})

	if defaults.Strategy == "" {
		defaults.Strategy = model.StrategySequential
	}
	if defaults.MaxAttempts == 0 {
		defaults.MaxAttempts = 1
	}
	if defaults.Priority == 0 {
		defaults.Priority = 5
	}

	gen := content.NewGenerator(rand.New(rand.NewSource(42)))
	orch := warmup.New(dir, registry, gen, p, q, st, warmup.Options{
		Defaults:    defaults,
		SpamFolders: []string{"Spam"},
		Rand:        rand.New(rand.NewSource(42)),
	})

	return &engine{world: world, dir: dir, store: st, orch: orch}
}

func threeByTwo(t *testing.T, defaults model.CrossSendConfig) *engine {
	return newEngine(t, map[string]string{
		"s1": "s1@test.com", "s2": "s2@test.com", "s3": "s3@test.com",
		"r1": "r1@test.com", "r2": "r2@test.com",
	}, defaults)
}

func TestCrossSendFullCrossProduct(t *testing.T) {
	e := threeByTwo(t, model.CrossSendConfig{CollectStats: true})
	ctx := context.Background()

	res, err := e.orch.CrossSend(ctx,
		[]string{"s1", "s2", "s3"}, []string{"r1", "r2"}, "greeting", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 6, res.Successful)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1.0, res.DeliveryRate)
	assert.Len(t, res.Interactions, 6)
	assert.Empty(t, res.Errors)

	// Every receiver got one message per sender, fully interpolated.
	for _, rcv := range []string{"r1@test.com", "r2@test.com"} {
		msgs := e.world.Messages(rcv, "INBOX")
		require.Len(t, msgs, 3, rcv)
		assert.Equal(t, "Hi "+rcv[:2], msgs[0].Subject)
	}

	counts, err := e.store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, counts[model.StatusSent])
}

func TestCrossSendExcludesSelfPairs(t *testing.T) {
	e := newEngine(t, map[string]string{
		"a": "a@test.com", "b": "b@test.com", "c": "c@test.com",
	}, model.CrossSendConfig{})

	all := []string{"a", "b", "c"}
	res, err := e.orch.CrossSend(context.Background(), all, all, "greeting", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Total) // 3*3 minus the 3 self-pairs
	assert.Equal(t, 6, res.Successful)
	for _, in := range res.Interactions {
		assert.NotEqual(t, in.SenderID, in.ReceiverID)
	}
}

func TestCrossSendPartialFailure(t *testing.T) {
	e := threeByTwo(t, model.CrossSendConfig{CollectStats: true})
	ctx := context.Background()

	e.world.FailSend("s2@test.com", errors.New("smtp rejected"))

	res, err := e.orch.CrossSend(ctx,
		[]string{"s1", "s2", "s3"}, []string{"r1", "r2"}, "greeting", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 4, res.Successful)
	assert.Equal(t, 2, res.Failed)
	assert.InDelta(t, 4.0/6.0, res.DeliveryRate, 1e-9)

	require.Len(t, res.Errors, 2)
	for _, se := range res.Errors {
		assert.Equal(t, "s2", se.SenderID)
		assert.Contains(t, se.Reason, "smtp rejected")
	}

	counts, err := e.store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts[model.StatusSent])
	assert.Equal(t, 2, counts[model.StatusFailed])

	// Failed interactions carry the reason and timestamp.
	failed, err := e.store.GetInteractions(ctx, store.InteractionFilter{
		Statuses: []model.InteractionStatus{model.StatusFailed},
	})
	require.NoError(t, err)
	for _, in := range failed {
		assert.Contains(t, in.FailureReason, "smtp rejected")
		assert.NotNil(t, in.FailedAt)
	}
}

func TestCrossSendAllFailedRatesAreZero(t *testing.T) {
	e := newEngine(t, map[string]string{"a": "a@test.com", "b": "b@test.com"},
		model.CrossSendConfig{CollectStats: true})
	e.world.FailSend("a@test.com", errors.New("down"))

	res, err := e.orch.CrossSend(context.Background(),
		[]string{"a"}, []string{"b"}, "greeting", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.DeliveryRate)
	assert.Equal(t, 0.0, res.OpenRate)
	assert.Equal(t, 0.0, res.ReplyRate)
	assert.Equal(t, 0.0, res.RescueRate)
}

func TestCrossSendValidation(t *testing.T) {
	e := newEngine(t, map[string]string{"a": "a@test.com", "b": "b@test.com"},
		model.CrossSendConfig{})
	ctx := context.Background()

	_, err := e.orch.CrossSend(ctx, nil, []string{"b"}, "greeting", nil, nil)
	assert.ErrorContains(t, err, "no senders")

	_, err = e.orch.CrossSend(ctx, []string{"a"}, nil, "greeting", nil, nil)
	assert.ErrorContains(t, err, "no receivers")

	_, err = e.orch.CrossSend(ctx, []string{"a", "ghost"}, []string{"b"}, "greeting", nil, nil)
	assert.ErrorContains(t, err, "ghost")

	_, err = e.orch.CrossSend(ctx, []string{"a"}, []string{"b"}, "nope", nil, nil)
	assert.ErrorContains(t, err, "not registered")

	// Only self-pairs: nothing to send.
	_, err = e.orch.CrossSend(ctx, []string{"a"}, []string{"a"}, "greeting", nil, nil)
	assert.ErrorContains(t, err, "no valid sender/receiver pairs")

	// Validation failures never reach the store.
	counts, err := e.store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestCrossSendStrategies(t *testing.T) {
	for _, strategy := range []model.Strategy{
		model.StrategySequential,
		model.StrategyBatched,
		model.StrategyParallel,
		model.StrategySpaced,
		model.StrategyRandom,
	} {
		t.Run(string(strategy), func(t *testing.T) {
			e := threeByTwo(t, model.CrossSendConfig{
				Strategy:      strategy,
				BatchSize:     2,
				SendDelay:     time.Millisecond,
				MaxConcurrent: 3,
			})

			res, err := e.orch.CrossSend(context.Background(),
				[]string{"s1", "s2", "s3"}, []string{"r1", "r2"}, "greeting", nil, nil)
			require.NoError(t, err)
			assert.Equal(t, 6, res.Total)
			assert.Equal(t, 6, res.Successful)
			assert.Len(t, e.world.Messages("r1@test.com", "INBOX"), 3)
			assert.Len(t, e.world.Messages("r2@test.com", "INBOX"), 3)
		})
	}
}

func TestCrossSendShuffleKeepsCoverage(t *testing.T) {
	e := threeByTwo(t, model.CrossSendConfig{
		ShuffleSenders:   true,
		ShuffleReceivers: true,
	})

	res, err := e.orch.CrossSend(context.Background(),
		[]string{"s1", "s2", "s3"}, []string{"r1", "r2"}, "greeting", nil, nil)
	require.NoError(t, err)

	// Shuffling reorders dispatch but never changes the pair set.
	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 6, res.Successful)

	seen := make(map[string]bool)
	for _, in := range res.Interactions {
		seen[in.SenderID+"->"+in.ReceiverID] = true
	}
	assert.Len(t, seen, 6)
}

func TestCrossSendOverridesApply(t *testing.T) {
	e := newEngine(t, map[string]string{"a": "a@test.com", "b": "b@test.com"},
		model.CrossSendConfig{Strategy: model.StrategySequential})

	res, err := e.orch.CrossSend(context.Background(),
		[]string{"a"}, []string{"b"}, "greeting", nil,
		&model.CrossSendConfig{Strategy: model.StrategyParallel})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
}

func TestCrossSendCallerVariablesWin(t *testing.T) {
	e := newEngine(t, map[string]string{"a": "a@test.com", "b": "b@test.com"},
		model.CrossSendConfig{})

	_, err := e.orch.CrossSend(context.Background(),
		[]string{"a"}, []string{"b"}, "greeting",
		map[string]string{"receiver_name": "friend"}, nil)
	require.NoError(t, err)

	msgs := e.world.Messages("b@test.com", "INBOX")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi friend", msgs[0].Subject)
}

func TestCrossSendCancellation(t *testing.T) {
	e := threeByTwo(t, model.CrossSendConfig{
		Strategy:  model.StrategySequential,
		SendDelay: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := e.orch.CrossSend(ctx,
		[]string{"s1", "s2", "s3"}, []string{"r1", "r2"}, "greeting", nil, nil)
	require.ErrorIs(t, err, context.Canceled)

	// Partial result: some pairs dispatched, not all.
	require.NotNil(t, res)
	assert.Equal(t, 6, res.Total)
	assert.Less(t, res.Successful, 6)
	assert.Greater(t, res.Successful, 0)
}
