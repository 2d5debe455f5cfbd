// Package app assembles the engine from configuration: the account
// directory, persistence, connection pool, send queue, per-account
// mailbox monitors, and the orchestrator on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emailmax/warmup/internal/content"
	"github.com/emailmax/warmup/internal/credential"
	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/monitor"
	"github.com/emailmax/warmup/internal/pool"
	"github.com/emailmax/warmup/internal/queue"
	"github.com/emailmax/warmup/internal/store"
	"github.com/emailmax/warmup/internal/transport"
	"github.com/emailmax/warmup/internal/warmup"
)

// App owns the engine's long-lived components. Construct with New,
// start the background loops with Start, and tear down with Close.
type App struct {
	cfg       *model.Config
	store     *store.SQLiteStore
	directory *credential.StaticDirectory
	pool      *pool.Pool
	queue     *queue.Queue
	registry  *content.Registry
	orch      *warmup.Orchestrator
	monitors  []*monitor.Monitor

	metricsSrv *http.Server
}

// New builds the engine. Credentials are resolved eagerly so a
// misconfigured account fails startup instead of the first send.
func New(ctx context.Context, cfg *model.Config) (*App, error) {
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured")
	}

	directory, err := credential.NewStaticDirectory(ctx, cfg.Accounts)
	if err != nil {
		return nil, fmt.Errorf("building account directory: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", cfg.StorePath, err)
	}

	dialer := &transport.NetDialer{}
	p := pool.New(dialer, pool.Options{
		MaxConnections: cfg.Pool.MaxConnections,
		IdleTimeout:    cfg.Pool.IdleTimeout,
		EvictInterval:  cfg.Pool.EvictInterval,
	})

	q := queue.New(p, queue.Options{
		TickInterval:       cfg.Queue.TickInterval,
		MaxPerWindow:       cfg.Queue.MaxPerWindow,
		WindowDuration:     cfg.Queue.WindowDuration,
		MaxConcurrent:      cfg.Queue.MaxConcurrent,
		RetryDelays:        cfg.Queue.RetryDelays,
		DefaultMaxAttempts: cfg.Queue.MaxAttempts,
	})

	generator := content.NewGenerator(nil)
	registry := content.NewRegistry()
	if err := seedTemplates(registry, generator); err != nil {
		st.Close()
		return nil, fmt.Errorf("seeding templates: %w", err)
	}

	orch := warmup.New(directory, registry, generator, p, q, st, warmup.Options{
		Defaults: cfg.CrossSend,
	})

	a := &App{
		cfg:       cfg,
		store:     st,
		directory: directory,
		pool:      p,
		queue:     q,
		registry:  registry,
		orch:      orch,
	}

	for _, id := range directory.AccountIDs() {
		creds, err := directory.GetCredentials(ctx, id)
		if err != nil {
			st.Close()
			return nil, err
		}
		m := monitor.New(dialer, creds, monitor.Options{
			Mailbox:           cfg.Monitor.Mailbox,
			PollInterval:      cfg.Monitor.PollInterval,
			ReconnectInterval: cfg.Monitor.ReconnectInterval,
		})
		m.OnEvent(a.handleEvent)
		a.monitors = append(a.monitors, m)
	}

	return a, nil
}

// seedTemplates registers one generated template per type under a
// stable id, so runs can be addressed by type name.
func seedTemplates(registry *content.Registry, gen *content.Generator) error {
	for _, typ := range []content.TemplateType{
		content.TypeGreeting, content.TypeQuestion, content.TypeUpdate, content.TypeThanks,
	} {
		tmpl, err := gen.Generate(content.Params{Type: typ, Length: content.LengthMedium})
		if err != nil {
			return err
		}
		tmpl.ID = string(typ)
		registry.Register(tmpl)
	}
	return nil
}

// Start launches the queue dispatch loop, the per-account monitors, and
// the metrics listener when one is configured.
func (a *App) Start(ctx context.Context) error {
	a.queue.Start(ctx)

	for _, m := range a.monitors {
		if err := m.StartListening(ctx); err != nil {
			return fmt.Errorf("starting monitor: %w", err)
		}
	}

	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metricsSrv = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}
		go func() {
			slog.Info("metrics listener starting", "addr", a.cfg.MetricsAddr)
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics listener failed", "error", err)
			}
		}()
	}

	slog.Info("engine started",
		"accounts", len(a.directory.AccountIDs()), "monitors", len(a.monitors))
	return nil
}

// Orchestrator exposes the interaction orchestrator.
func (a *App) Orchestrator() *warmup.Orchestrator { return a.orch }

// Directory exposes the account directory.
func (a *App) Directory() credential.Directory { return a.directory }

// Queue exposes the outbound send queue.
func (a *App) Queue() *queue.Queue { return a.queue }

// Registry exposes the template registry.
func (a *App) Registry() *content.Registry { return a.registry }

// handleEvent reacts to mailbox observations. A new message that
// references one of our message ids closes the reply loop on the
// originating interaction.
func (a *App) handleEvent(ev monitor.Event) {
	if ev.Kind != monitor.EventNewMessage || ev.Message == nil || ev.Message.InReplyTo == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	advanced, err := a.orch.MarkReplied(ctx, ev.Message.InReplyTo)
	if err != nil {
		slog.Warn("reply correlation failed",
			"account", ev.AccountID, "in_reply_to", ev.Message.InReplyTo, "error", err)
		return
	}
	if advanced {
		slog.Info("reply observed",
			"account", ev.AccountID, "in_reply_to", ev.Message.InReplyTo)
	}
}

// Close stops the background loops and releases every connection. Safe
// to call after a partial Start.
func (a *App) Close() {
	for _, m := range a.monitors {
		m.StopListening()
	}
	a.queue.Stop()

	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}

	a.pool.Close()
	if err := a.store.Close(); err != nil {
		slog.Warn("closing store failed", "error", err)
	}
}
