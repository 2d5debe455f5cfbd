// Package warmup is the interaction orchestrator: it turns sender and
// receiver account lists into individual send interactions, dispatches
// them through the outbound queue under a configurable pacing strategy,
// and tracks each interaction through its delivery lifecycle.
package warmup

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emailmax/warmup/internal/content"
	"github.com/emailmax/warmup/internal/credential"
	"github.com/emailmax/warmup/internal/metrics"
	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/pool"
	"github.com/emailmax/warmup/internal/queue"
	"github.com/emailmax/warmup/internal/store"
	"github.com/emailmax/warmup/internal/transport"
)

// defaultSpamFolders are the folder names checked during verification
// and rescue when the runner does not configure its own list.
var defaultSpamFolders = []string{"Spam", "Junk", "Junk E-mail", "[Gmail]/Spam"}

// Options configures an Orchestrator.
type Options struct {
	// Defaults is the base cross-send configuration; per-call overrides
	// merge on top of it.
	Defaults model.CrossSendConfig

	// SpamFolders are the receiver-side folders searched by the
	// verification and rescue passes, in addition to the inbox.
	SpamFolders []string

	// Rand is the random source for shuffles and jitter; nil selects a
	// time-seeded one.
	Rand *rand.Rand
}

// Orchestrator coordinates cross-send runs and the follow-up
// verification passes. Safe for concurrent use.
type Orchestrator struct {
	directory credential.Directory
	templates *content.Registry
	generator *content.Generator
	pool      *pool.Pool
	queue     *queue.Queue
	store     store.Store

	defaults    model.CrossSendConfig
	spamFolders []string

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

func New(dir credential.Directory, templates *content.Registry, gen *content.Generator,
	p *pool.Pool, q *queue.Queue, st store.Store, opts Options) *Orchestrator {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	folders := opts.SpamFolders
	if len(folders) == 0 {
		folders = defaultSpamFolders
	}
	return &Orchestrator{
		directory:   dir,
		templates:   templates,
		generator:   gen,
		pool:        p,
		queue:       q,
		store:       st,
		defaults:    opts.Defaults,
		spamFolders: folders,
		rng:         rng,
	}
}

// pair is one sender/receiver assignment within a run.
type pair struct {
	sender   *model.Credentials
	receiver *model.Credentials
}

// run carries the shared state of one cross-send invocation. The result
// is mutated under mu because some strategies dispatch pairs
// concurrently.
type run struct {
	cfg  model.CrossSendConfig
	tmpl *content.Template
	vars map[string]string

	mu     sync.Mutex
	result *model.CrossSendResult
}

func (r *run) record(in model.Interaction, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.result.Interactions = append(r.result.Interactions, in)
	if err != nil {
		r.result.Failed++
		r.result.Errors = append(r.result.Errors, model.SendError{
			SenderID:   in.SenderID,
			ReceiverID: in.ReceiverID,
			Reason:     err.Error(),
		})
		return
	}
	r.result.Successful++
}

// CrossSend sends one message from every sender to every receiver,
// excluding self-pairs, paced by the configured strategy. Validation of
// accounts and template happens before anything is dispatched. A
// cancelled context stops dispatching; the partial result is returned
// alongside the context error.
func (o *Orchestrator) CrossSend(ctx context.Context, senderIDs, receiverIDs []string,
	templateID string, variables map[string]string, overrides *model.CrossSendConfig) (*model.CrossSendResult, error) {

	if len(senderIDs) == 0 {
		return nil, fmt.Errorf("cross-send: no senders given")
	}
	if len(receiverIDs) == 0 {
		return nil, fmt.Errorf("cross-send: no receivers given")
	}

	cfg := o.defaults.Merge(overrides)

	tmpl, err := o.templates.Template(templateID)
	if err != nil {
		return nil, fmt.Errorf("cross-send: %w", err)
	}

	senders, err := o.resolveAll(ctx, senderIDs)
	if err != nil {
		return nil, fmt.Errorf("cross-send: %w", err)
	}
	receivers, err := o.resolveAll(ctx, receiverIDs)
	if err != nil {
		return nil, fmt.Errorf("cross-send: %w", err)
	}

	if cfg.ShuffleSenders {
		o.shuffle(len(senders), func(i, j int) { senders[i], senders[j] = senders[j], senders[i] })
	}
	if cfg.ShuffleReceivers {
		o.shuffle(len(receivers), func(i, j int) { receivers[i], receivers[j] = receivers[j], receivers[i] })
	}

	pairs := buildPairs(senders, receivers)
	if len(pairs) == 0 {
		return nil, fmt.Errorf("cross-send: no valid sender/receiver pairs")
	}

	r := &run{
		cfg:  cfg,
		tmpl: tmpl,
		vars: variables,
		result: &model.CrossSendResult{
			Total:     len(pairs),
			StartedAt: time.Now(),
		},
	}

	slog.Info("cross-send: run starting",
		"strategy", cfg.Strategy, "senders", len(senders), "receivers", len(receivers), "pairs", len(pairs))

	runErr := o.dispatch(ctx, r, pairs)

	res := r.result
	res.FinishedAt = time.Now()
	res.DeliveryRate = model.Ratio(res.Successful, res.Total)
	if cfg.CollectStats {
		collectRunRates(res)
	}

	if err := o.store.SaveResult(ctx, *res); err != nil {
		slog.Warn("cross-send: saving result failed", "error", err)
	}
	metrics.CrossSendRuns.WithLabelValues(string(cfg.Strategy)).Inc()

	slog.Info("cross-send: run finished",
		"total", res.Total, "successful", res.Successful, "failed", res.Failed,
		"duration", res.FinishedAt.Sub(res.StartedAt))

	return res, runErr
}

// resolveAll resolves every account id through the directory, failing on
// the first unknown id so invalid runs are rejected before any send.
func (o *Orchestrator) resolveAll(ctx context.Context, ids []string) ([]*model.Credentials, error) {
	out := make([]*model.Credentials, 0, len(ids))
	for _, id := range ids {
		creds, err := o.directory.GetCredentials(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, creds)
	}
	return out, nil
}

// buildPairs forms the sender x receiver cross product, skipping pairs
// where an account would mail itself.
func buildPairs(senders, receivers []*model.Credentials) []pair {
	pairs := make([]pair, 0, len(senders)*len(receivers))
	for _, s := range senders {
		for _, rcv := range receivers {
			if s.AccountID == rcv.AccountID || s.Email == rcv.Email {
				continue
			}
			pairs = append(pairs, pair{sender: s, receiver: rcv})
		}
	}
	return pairs
}

func (o *Orchestrator) dispatch(ctx context.Context, r *run, pairs []pair) error {
	switch r.cfg.Strategy {
	case model.StrategyBatched:
		return o.dispatchBatched(ctx, r, pairs)
	case model.StrategyParallel:
		return o.dispatchParallel(ctx, r, pairs)
	case model.StrategySpaced:
		return o.dispatchSerial(ctx, r, pairs, func() time.Duration {
			return o.jitter(r.cfg.SendDelay, 0.8, 1.2)
		})
	case model.StrategyRandom:
		shuffled := make([]pair, len(pairs))
		copy(shuffled, pairs)
		o.shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		return o.dispatchSerial(ctx, r, shuffled, func() time.Duration {
			return o.jitter(r.cfg.SendDelay, 0.5, 1.5)
		})
	default:
		return o.dispatchSerial(ctx, r, pairs, func() time.Duration {
			return r.cfg.SendDelay
		})
	}
}

// dispatchSerial sends pairs one at a time, sleeping delay() between
// consecutive pairs but not after the last.
func (o *Orchestrator) dispatchSerial(ctx context.Context, r *run, pairs []pair, delay func() time.Duration) error {
	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.sendPair(ctx, r, p); err != nil {
			return err
		}
		if i < len(pairs)-1 {
			if err := sleep(ctx, delay()); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatchBatched sends fixed-size batches; pairs within a batch run
// concurrently and the configured delay separates batches.
func (o *Orchestrator) dispatchBatched(ctx context.Context, r *run, pairs []pair) error {
	size := r.cfg.BatchSize
	if size <= 0 {
		size = 1
	}

	for start := 0; start < len(pairs); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + size
		if end > len(pairs) {
			end = len(pairs)
		}

		g, gctx := errgroup.WithContext(ctx)
		if r.cfg.MaxConcurrent > 0 {
			g.SetLimit(r.cfg.MaxConcurrent)
		}
		for _, p := range pairs[start:end] {
			p := p
			g.Go(func() error { return o.sendPair(gctx, r, p) })
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if end < len(pairs) {
			if err := sleep(ctx, r.cfg.SendDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatchParallel sends every pair concurrently under the configured
// concurrency ceiling, with no inter-pair delay.
func (o *Orchestrator) dispatchParallel(ctx context.Context, r *run, pairs []pair) error {
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.MaxConcurrent > 0 {
		g.SetLimit(r.cfg.MaxConcurrent)
	}
	for _, p := range pairs {
		p := p
		g.Go(func() error { return o.sendPair(gctx, r, p) })
	}
	return g.Wait()
}

// sendPair executes one interaction end to end: render the content,
// persist the pending record, enqueue the message, and wait for the
// queue's terminal outcome. Send failures are recorded on the run and do
// not abort the remaining pairs; only context cancellation propagates.
func (o *Orchestrator) sendPair(ctx context.Context, r *run, p pair) error {
	tmpl := r.tmpl
	if r.cfg.RandomizeContent {
		tmpl = o.generator.Variants(tmpl, 1)[0]
	}
	resolved := tmpl.Resolve(o.pairVariables(p, r.vars))

	in := model.Interaction{
		ID:         uuid.New().String(),
		SenderID:   p.sender.AccountID,
		ReceiverID: p.receiver.AccountID,
		Type:       model.InteractionInitialContact,
		Status:     model.StatusPending,
		Subject:    resolved.Subject,
		Content:    resolved.Body,
		MessageID:  transport.NewMessageID(p.sender.Domain()),
		ThreadID:   uuid.New().String(),
		CreatedAt:  time.Now(),
	}
	if err := o.store.CreateInteraction(ctx, in); err != nil {
		r.record(in, fmt.Errorf("persisting interaction: %w", err))
		return nil
	}
	metrics.Interactions.WithLabelValues(string(model.StatusPending)).Inc()

	msg := &transport.Outgoing{
		From:      p.sender.Email,
		To:        []string{p.receiver.Email},
		Subject:   resolved.Subject,
		Body:      resolved.Body,
		MessageID: in.MessageID,
	}
	receipt, err := o.queue.Enqueue(p.sender, msg, r.cfg.Priority, r.cfg.MaxAttempts)
	if err != nil {
		o.markFailed(ctx, &in, err)
		r.record(in, err)
		return nil
	}

	select {
	case out := <-receipt.Done:
		if out.Err != nil {
			o.markFailed(ctx, &in, out.Err)
			r.record(in, out.Err)
			return nil
		}
		o.advance(ctx, &in, model.StatusSent)
		r.record(in, nil)
		return nil
	case <-ctx.Done():
		err := ctx.Err()
		o.markFailed(ctx, &in, err)
		r.record(in, err)
		return err
	}
}

// pairVariables merges the built-in per-pair variables with the
// caller's; caller values win on collision.
func (o *Orchestrator) pairVariables(p pair, extra map[string]string) map[string]string {
	vars := map[string]string{
		"sender_name":    p.sender.LocalPart(),
		"sender_email":   p.sender.Email,
		"receiver_name":  p.receiver.LocalPart(),
		"receiver_email": p.receiver.Email,
		"timestamp":      time.Now().Format(time.RFC1123Z),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

// advance moves an interaction forward and persists it. Illegal
// transitions are dropped with a warning rather than corrupting the
// lifecycle.
func (o *Orchestrator) advance(ctx context.Context, in *model.Interaction, to model.InteractionStatus) bool {
	if !in.Advance(to, time.Now()) {
		slog.Warn("interaction: illegal status transition dropped",
			"interaction", in.ID, "from", in.Status, "to", to)
		return false
	}
	if err := o.store.UpdateInteraction(ctx, *in); err != nil {
		slog.Warn("interaction: persisting status failed",
			"interaction", in.ID, "status", in.Status, "error", err)
	}
	metrics.Interactions.WithLabelValues(string(to)).Inc()
	return true
}

func (o *Orchestrator) markFailed(ctx context.Context, in *model.Interaction, cause error) {
	in.FailureReason = cause.Error()
	o.advance(ctx, in, model.StatusFailed)
}

// collectRunRates derives the lifecycle rates from the run's interaction
// statuses as of completion; later verification passes advance the
// stored records but not a saved result.
func collectRunRates(res *model.CrossSendResult) {
	var delivered, read, replied, rescued int
	for _, in := range res.Interactions {
		switch in.Status {
		case model.StatusDelivered:
			delivered++
		case model.StatusRead:
			delivered, read = delivered+1, read+1
		case model.StatusReplied:
			delivered, read, replied = delivered+1, read+1, replied+1
		case model.StatusRescued:
			rescued++
		}
	}
	res.OpenRate = model.Ratio(read, delivered)
	res.ReplyRate = model.Ratio(replied, delivered)
	res.RescueRate = model.Ratio(rescued, res.Successful)
}

func (o *Orchestrator) shuffle(n int, swap func(i, j int)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rng.Shuffle(n, swap)
}

// jitter scales d by a random factor in [lo, hi).
func (o *Orchestrator) jitter(d time.Duration, lo, hi float64) time.Duration {
	o.mu.Lock()
	f := lo + o.rng.Float64()*(hi-lo)
	o.mu.Unlock()
	return time.Duration(float64(d) * f)
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
