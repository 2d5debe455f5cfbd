// Package monitor watches one mailbox per account over a dedicated
// transport connection, emitting typed events to registered listeners.
// New-mail detection is polling-based (pseudo-IDLE): the abstract mail
// transport does not assume server push support, so the monitor re-polls
// on a configurable interval.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emailmax/warmup/internal/metrics"
	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/transport"
)

// EventKind discriminates monitor events.
type EventKind string

const (
	EventNewMessage      EventKind = "new_message"
	EventMessageFlagged  EventKind = "message_flagged"
	EventMessageDeleted  EventKind = "message_deleted"
	EventConnectionError EventKind = "connection_error"
	EventConnectionClose EventKind = "connection_closed"
)

// Event is one observation from a watched mailbox. Message is set for
// the message-level kinds; Err for connection errors.
type Event struct {
	Kind      EventKind
	AccountID string
	Mailbox   string
	Message   *transport.Message
	Err       error
	At        time.Time
}

// State is the monitor connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Listening
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	default:
		return "disconnected"
	}
}

// Listener receives events synchronously within the poll tick. It must
// not block for long: the same dedicated connection is reused for the
// next poll.
type Listener func(Event)

// Options configures a Monitor.
type Options struct {
	// Mailbox is the watched mailbox name; defaults to INBOX.
	Mailbox string

	// PollInterval is the pseudo-IDLE period; defaults to 30s.
	PollInterval time.Duration

	// ReconnectInterval is the fixed delay between reconnect attempts
	// after a connection failure; defaults to 1m.
	ReconnectInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.Mailbox == "" {
		o.Mailbox = "INBOX"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = time.Minute
	}
}

// Monitor watches one account's mailbox. The connection is dedicated,
// never pooled: poll cadence must not contend with send traffic.
type Monitor struct {
	dialer transport.Dialer
	creds  *model.Credentials
	opts   Options

	mu        sync.Mutex
	state     State
	conn      transport.Mailbox
	mailbox   string
	listeners []Listener
	seen      map[EventKind]map[uint32]struct{}
	running   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a monitor for the given account credentials.
func New(dialer transport.Dialer, creds *model.Credentials, opts Options) *Monitor {
	opts.withDefaults()
	return &Monitor{
		dialer:  dialer,
		creds:   creds,
		opts:    opts,
		mailbox: opts.Mailbox,
		seen:    makeSeen(),
	}
}

func makeSeen() map[EventKind]map[uint32]struct{} {
	return map[EventKind]map[uint32]struct{}{
		EventNewMessage:     {},
		EventMessageFlagged: {},
		EventMessageDeleted: {},
	}
}

// OnEvent registers a listener. Register before StartListening.
func (m *Monitor) OnEvent(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns the current connection state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartListening opens the dedicated connection and begins the poll
// loop. On connection failure the monitor emits a ConnectionError and
// keeps retrying on the reconnect interval until StopListening.
func (m *Monitor) StartListening(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor for %s already listening", m.creds.AccountID)
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// StopListening cancels pending timers, closes the dedicated connection,
// and emits ConnectionClosed. No events fire after it returns.
func (m *Monitor) StopListening() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			slog.Warn("monitor: closing connection", "account", m.creds.AccountID, "error", err)
		}
	}
	m.emit(Event{Kind: EventConnectionClose, AccountID: m.creds.AccountID, Mailbox: m.currentMailbox(), At: time.Now()})
}

// ChangeMailbox tears down the current poll target and re-points the
// monitor at the named mailbox. On failure the previously active mailbox
// is re-selected, so the monitor never points at an unopened mailbox.
func (m *Monitor) ChangeMailbox(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.state != Listening {
		return fmt.Errorf("monitor for %s is not listening", m.creds.AccountID)
	}

	previous := m.mailbox
	if err := m.conn.Select(ctx, name); err != nil {
		if rollbackErr := m.conn.Select(ctx, previous); rollbackErr != nil {
			// Connection is unusable; the next poll will reconnect.
			slog.Warn("monitor: rollback select failed", "account", m.creds.AccountID, "mailbox", previous, "error", rollbackErr)
		}
		return fmt.Errorf("changing mailbox to %s: %w", name, err)
	}

	m.mailbox = name
	m.seen = makeSeen() // UIDs are per-mailbox
	return nil
}

// run is the monitor loop: connect, poll on the interval, and on any
// failure disconnect and retry after the reconnect interval. Retries
// never give up; a watched mailbox is expected to become reachable
// again eventually.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		if !m.connect(ctx) {
			// Connection failed; wait out the reconnect interval.
			metrics.MonitorReconnects.Inc()
			select {
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(m.opts.ReconnectInterval):
				continue
			}
		}

		if !m.listen(ctx) {
			return
		}
		// listen returned due to a poll failure: disconnect and retry.
		metrics.MonitorReconnects.Inc()
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(m.opts.ReconnectInterval):
		}
	}
}

// connect opens the dedicated connection and selects the watched
// mailbox, emitting a ConnectionError on failure.
func (m *Monitor) connect(ctx context.Context) bool {
	m.mu.Lock()
	m.state = Connecting
	mailbox := m.mailbox
	m.mu.Unlock()

	conn, err := m.dialer.DialMailbox(ctx, m.creds.Email, m.creds.Secret, m.creds.IMAPHost, m.creds.IMAPPort, m.creds.IMAPTLS)
	if err == nil {
		if selErr := conn.Select(ctx, mailbox); selErr != nil {
			_ = conn.Close()
			err = selErr
		}
	}

	if err != nil {
		m.mu.Lock()
		m.state = Disconnected
		m.mu.Unlock()
		m.emit(Event{Kind: EventConnectionError, AccountID: m.creds.AccountID, Mailbox: mailbox, Err: err, At: time.Now()})
		return false
	}

	m.mu.Lock()
	m.conn = conn
	m.state = Listening
	m.mu.Unlock()

	slog.Info("monitor: listening", "account", m.creds.AccountID, "mailbox", mailbox)
	return true
}

// listen polls until stopped (returns false) or a poll fails (returns
// true, signalling the caller to reconnect).
func (m *Monitor) listen(ctx context.Context) bool {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	// Poll immediately so a fresh connection surfaces state without
	// waiting a full interval.
	if err := m.poll(ctx); err != nil {
		m.disconnect(err)
		return true
	}

	for {
		select {
		case <-m.stopCh:
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if err := m.poll(ctx); err != nil {
				m.disconnect(err)
				return true
			}
		}
	}
}

// poll runs the three searches and emits an event per newly observed
// message. Listeners run synchronously within the tick.
func (m *Monitor) poll(ctx context.Context) error {
	m.mu.Lock()
	conn := m.conn
	mailbox := m.mailbox
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("monitor for %s has no connection", m.creds.AccountID)
	}

	unseen, err := conn.SearchUnseen(ctx)
	if err != nil {
		return err
	}
	m.emitNew(EventNewMessage, mailbox, unseen)

	flagged, err := conn.SearchFlagged(ctx)
	if err != nil {
		return err
	}
	m.emitNew(EventMessageFlagged, mailbox, flagged)

	deleted, err := conn.SearchDeleted(ctx)
	if err != nil {
		return err
	}
	m.emitNew(EventMessageDeleted, mailbox, deleted)

	return nil
}

// emitNew emits one event per message not yet reported under this kind.
func (m *Monitor) emitNew(kind EventKind, mailbox string, msgs []transport.Message) {
	for i := range msgs {
		msg := msgs[i]

		m.mu.Lock()
		if _, ok := m.seen[kind][msg.UID]; ok {
			m.mu.Unlock()
			continue
		}
		m.seen[kind][msg.UID] = struct{}{}
		m.mu.Unlock()

		m.emit(Event{
			Kind:      kind,
			AccountID: m.creds.AccountID,
			Mailbox:   mailbox,
			Message:   &msg,
			At:        time.Now(),
		})
	}
}

func (m *Monitor) disconnect(err error) {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	mailbox := m.mailbox
	m.mu.Unlock()

	if conn != nil {
		if closeErr := conn.Close(); closeErr != nil {
			slog.Warn("monitor: closing failed connection", "account", m.creds.AccountID, "error", closeErr)
		}
	}
	m.emit(Event{Kind: EventConnectionError, AccountID: m.creds.AccountID, Mailbox: mailbox, Err: err, At: time.Now()})
}

func (m *Monitor) emit(ev Event) {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	metrics.MonitorEvents.WithLabelValues(string(ev.Kind)).Inc()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (m *Monitor) currentMailbox() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mailbox
}
