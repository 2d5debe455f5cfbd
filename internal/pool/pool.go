// Package pool maintains a keyed cache of reusable transport
// connections, bounded by a global ceiling, with idle eviction. It is
// the single source of truth for whether a credential key's connection
// is free: every send/fetch path acquires before use and releases (or
// discards) after, including on error paths.
package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/emailmax/warmup/internal/metrics"
	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/transport"
)

// ErrExhausted is returned by Acquire when the pool is at its ceiling
// and no free connection exists for the key. Callers must treat it as
// retryable.
var ErrExhausted = errors.New("connection pool exhausted")

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("connection pool closed")

// Options bounds the pool.
type Options struct {
	// MaxConnections is the global ceiling across all keys.
	MaxConnections int

	// IdleTimeout is how long a free connection may sit unused before
	// eviction closes it.
	IdleTimeout time.Duration

	// EvictInterval is how often the eviction pass runs.
	EvictInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.MaxConnections <= 0 {
		o.MaxConnections = 10
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.EvictInterval <= 0 {
		o.EvictInterval = time.Minute
	}
}

type entry struct {
	key        string
	mailbox    transport.Mailbox
	sender     transport.Sender
	lastUsedAt time.Time
	inUse      bool
}

func (e *entry) closer() io.Closer {
	if e.mailbox != nil {
		return e.mailbox
	}
	return e.sender
}

// Lease is a held connection. Exactly one of Mailbox or Sender is set,
// matching the acquire call. The holder must hand it back with Release
// (connection healthy) or Discard (connection suspect).
type Lease struct {
	Mailbox transport.Mailbox
	Sender  transport.Sender
	e       *entry
}

// Pool is a keyed cache of live transport connections.
type Pool struct {
	dialer transport.Dialer
	opts   Options

	mu      sync.Mutex
	entries map[string][]*entry
	total   int
	closed  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a pool and starts its eviction loop.
func New(dialer transport.Dialer, opts Options) *Pool {
	opts.withDefaults()
	p := &Pool{
		dialer:  dialer,
		opts:    opts,
		entries: make(map[string][]*entry),
		stopCh:  make(chan struct{}),
	}

	p.wg.Add(1)
	go p.evictLoop()
	return p
}

// AcquireMailbox returns a leased IMAP session for the credentials,
// reusing a free pooled connection when one exists under the key.
func (p *Pool) AcquireMailbox(ctx context.Context, creds *model.Credentials) (*Lease, error) {
	return p.acquire(ctx, creds, creds.IMAPKey(), "imap")
}

// AcquireSender returns a leased SMTP session for the credentials.
func (p *Pool) AcquireSender(ctx context.Context, creds *model.Credentials) (*Lease, error) {
	return p.acquire(ctx, creds, creds.SMTPKey(), "smtp")
}

func (p *Pool) acquire(ctx context.Context, creds *model.Credentials, key, kind string) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	// Reuse a free entry under this key: no new network handshake.
	for _, e := range p.entries[key] {
		if !e.inUse {
			e.inUse = true
			e.lastUsedAt = time.Now()
			p.mu.Unlock()
			metrics.PoolConnectionsCurrent.WithLabelValues("active").Inc()
			metrics.PoolConnectionsCurrent.WithLabelValues("idle").Dec()
			return &Lease{Mailbox: e.mailbox, Sender: e.sender, e: e}, nil
		}
	}

	// All entries under the key are in use (or none exist). Open an
	// additional keyed instance if the global ceiling allows it.
	if p.total >= p.opts.MaxConnections {
		p.mu.Unlock()
		metrics.PoolExhaustions.Inc()
		return nil, ErrExhausted
	}
	p.total++ // reserve the slot before the network call
	p.mu.Unlock()

	e := &entry{key: key, inUse: true, lastUsedAt: time.Now()}
	var dialErr error
	switch kind {
	case "imap":
		e.mailbox, dialErr = p.dialer.DialMailbox(ctx, creds.Email, creds.Secret, creds.IMAPHost, creds.IMAPPort, creds.IMAPTLS)
	default:
		e.sender, dialErr = p.dialer.DialSender(ctx, creds.Email, creds.Secret, creds.SMTPHost, creds.SMTPPort, creds.SMTPTLS)
	}

	p.mu.Lock()
	if dialErr != nil {
		p.total--
		p.mu.Unlock()
		return nil, dialErr
	}
	if p.closed {
		p.total--
		p.mu.Unlock()
		closeQuietly(e)
		return nil, ErrClosed
	}
	p.entries[key] = append(p.entries[key], e)
	p.mu.Unlock()

	metrics.PoolConnectionsOpened.WithLabelValues(kind).Inc()
	metrics.PoolConnectionsCurrent.WithLabelValues("active").Inc()
	return &Lease{Mailbox: e.mailbox, Sender: e.sender, e: e}, nil
}

// Release hands a healthy connection back for reuse.
func (p *Pool) Release(l *Lease) {
	if l == nil || l.e == nil {
		return
	}

	p.mu.Lock()
	closed := p.closed
	if !closed {
		l.e.inUse = false
		l.e.lastUsedAt = time.Now()
	}
	p.mu.Unlock()

	if closed {
		closeQuietly(l.e)
		return
	}
	metrics.PoolConnectionsCurrent.WithLabelValues("active").Dec()
	metrics.PoolConnectionsCurrent.WithLabelValues("idle").Inc()
	l.e = nil
}

// Discard closes the connection and forgets the entry. Use after a
// transport error, when the session may be broken.
func (p *Pool) Discard(l *Lease) {
	if l == nil || l.e == nil {
		return
	}

	p.mu.Lock()
	p.remove(l.e)
	p.mu.Unlock()

	closeQuietly(l.e)
	metrics.PoolConnectionsCurrent.WithLabelValues("active").Dec()
	l.e = nil
}

// EvictIdle closes and forgets every free entry whose idle time exceeds
// the idle timeout. Runs automatically on the eviction interval; exposed
// for tests and manual sweeps.
func (p *Pool) EvictIdle() {
	cutoff := time.Now().Add(-p.opts.IdleTimeout)

	p.mu.Lock()
	var evicted []*entry
	for _, list := range p.entries {
		for _, e := range list {
			if !e.inUse && e.lastUsedAt.Before(cutoff) {
				evicted = append(evicted, e)
			}
		}
	}
	for _, e := range evicted {
		p.remove(e)
	}
	p.mu.Unlock()

	for _, e := range evicted {
		closeQuietly(e)
		metrics.PoolConnectionsCurrent.WithLabelValues("idle").Dec()
	}
}

// Stats reports the current pool occupancy.
type Stats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Idle   int `json:"idle"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s Stats
	for _, list := range p.entries {
		for _, e := range list {
			s.Total++
			if e.inUse {
				s.Active++
			} else {
				s.Idle++
			}
		}
	}
	return s
}

// Close stops the eviction loop and closes every pooled connection.
// In-use connections are closed too; their holders will observe errors
// and must not release back.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	var all []*entry
	for _, list := range p.entries {
		all = append(all, list...)
	}
	p.entries = make(map[string][]*entry)
	p.total = 0
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	for _, e := range all {
		closeQuietly(e)
	}
}

// remove forgets an entry; caller holds the lock.
func (p *Pool) remove(e *entry) {
	list := p.entries[e.key]
	for i, cand := range list {
		if cand == e {
			p.entries[e.key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(p.entries[e.key]) == 0 {
		delete(p.entries, e.key)
	}
	if p.total > 0 {
		p.total--
	}
}

func (p *Pool) evictLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.EvictIdle()
		}
	}
}

// closeQuietly closes a connection, logging failures. A failed close
// never prevents the pool from forgetting the entry.
func closeQuietly(e *entry) {
	if c := e.closer(); c != nil {
		if err := c.Close(); err != nil {
			slog.Warn("pool: closing connection", "key", e.key, "error", err)
		}
	}
}
