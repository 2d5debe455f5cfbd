package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmax/warmup/internal/monitor"
	"github.com/emailmax/warmup/internal/transport"
	"github.com/emailmax/warmup/tests/testutil"
)

// recorder collects monitor events under a lock.
type recorder struct {
	mu     sync.Mutex
	events []monitor.Event
}

func (r *recorder) record(ev monitor.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofKind(kind monitor.EventKind) []monitor.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []monitor.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func fastOptions() monitor.Options {
	return monitor.Options{
		PollInterval:      5 * time.Millisecond,
		ReconnectInterval: 5 * time.Millisecond,
	}
}

func TestMonitorEmitsNewMessageOnce(t *testing.T) {
	world := testutil.NewMailWorld()
	creds := world.AddAccount("a", "a@test.com")

	m := monitor.New(world, creds, fastOptions())
	rec := &recorder{}
	m.OnEvent(rec.record)

	require.NoError(t, m.StartListening(context.Background()))
	t.Cleanup(m.StopListening)

	require.Eventually(t, func() bool { return m.State() == monitor.Listening },
		time.Second, 5*time.Millisecond)

	world.Inject("a@test.com", "INBOX", transport.Message{
		MessageID: "m1@x.com", Subject: "ping", From: "b@test.com",
	})

	require.Eventually(t, func() bool { return len(rec.ofKind(monitor.EventNewMessage)) == 1 },
		time.Second, 5*time.Millisecond)

	ev := rec.ofKind(monitor.EventNewMessage)[0]
	assert.Equal(t, "a", ev.AccountID)
	assert.Equal(t, "INBOX", ev.Mailbox)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "ping", ev.Message.Subject)

	// Subsequent polls must not re-report the same UID.
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, rec.ofKind(monitor.EventNewMessage), 1)
}

func TestMonitorFlaggedAndDeleted(t *testing.T) {
	world := testutil.NewMailWorld()
	creds := world.AddAccount("a", "a@test.com")

	m := monitor.New(world, creds, fastOptions())
	rec := &recorder{}
	m.OnEvent(rec.record)

	require.NoError(t, m.StartListening(context.Background()))
	t.Cleanup(m.StopListening)

	world.Inject("a@test.com", "INBOX", transport.Message{
		MessageID: "m1@x.com", Flags: []string{"\\Flagged", "\\Seen"},
	})
	world.Inject("a@test.com", "INBOX", transport.Message{
		MessageID: "m2@x.com", Flags: []string{"\\Deleted", "\\Seen"},
	})

	require.Eventually(t, func() bool {
		return len(rec.ofKind(monitor.EventMessageFlagged)) == 1 &&
			len(rec.ofKind(monitor.EventMessageDeleted)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.ofKind(monitor.EventNewMessage))
}

func TestMonitorReconnectsAfterDialFailure(t *testing.T) {
	world := testutil.NewMailWorld()
	creds := world.AddAccount("a", "a@test.com")
	world.FailDial("a@test.com", errors.New("imap down"))

	m := monitor.New(world, creds, fastOptions())
	rec := &recorder{}
	m.OnEvent(rec.record)

	require.NoError(t, m.StartListening(context.Background()))
	t.Cleanup(m.StopListening)

	require.Eventually(t, func() bool { return len(rec.ofKind(monitor.EventConnectionError)) >= 2 },
		time.Second, 5*time.Millisecond)
	assert.NotEqual(t, monitor.Listening, m.State())

	// Endpoint comes back: the retry loop recovers without intervention.
	world.FailDial("a@test.com", nil)
	require.Eventually(t, func() bool { return m.State() == monitor.Listening },
		time.Second, 5*time.Millisecond)
}

func TestMonitorStopEmitsConnectionClosed(t *testing.T) {
	world := testutil.NewMailWorld()
	creds := world.AddAccount("a", "a@test.com")

	m := monitor.New(world, creds, fastOptions())
	rec := &recorder{}
	m.OnEvent(rec.record)

	require.NoError(t, m.StartListening(context.Background()))
	require.Eventually(t, func() bool { return m.State() == monitor.Listening },
		time.Second, 5*time.Millisecond)

	m.StopListening()
	assert.Equal(t, monitor.Disconnected, m.State())
	assert.Len(t, rec.ofKind(monitor.EventConnectionClose), 1)
	assert.Equal(t, 0, world.OpenConns())

	// No events after stop.
	world.Inject("a@test.com", "INBOX", transport.Message{MessageID: "late@x.com"})
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.ofKind(monitor.EventNewMessage))

	// Stop is idempotent.
	m.StopListening()
	assert.Len(t, rec.ofKind(monitor.EventConnectionClose), 1)
}

func TestChangeMailbox(t *testing.T) {
	world := testutil.NewMailWorld()
	creds := world.AddAccount("a", "a@test.com")
	world.RouteInbound("a@test.com", "Archive")

	m := monitor.New(world, creds, fastOptions())
	rec := &recorder{}
	m.OnEvent(rec.record)

	require.NoError(t, m.StartListening(context.Background()))
	t.Cleanup(m.StopListening)
	require.Eventually(t, func() bool { return m.State() == monitor.Listening },
		time.Second, 5*time.Millisecond)

	// Switching to a missing mailbox fails and keeps watching the old one.
	require.Error(t, m.ChangeMailbox(context.Background(), "NoSuchFolder"))

	require.NoError(t, m.ChangeMailbox(context.Background(), "Archive"))
	world.Inject("a@test.com", "Archive", transport.Message{MessageID: "m1@x.com", Subject: "hi"})

	require.Eventually(t, func() bool {
		evs := rec.ofKind(monitor.EventNewMessage)
		return len(evs) == 1 && evs[0].Mailbox == "Archive"
	}, time.Second, 5*time.Millisecond)
}

func TestStartListeningTwiceFails(t *testing.T) {
	world := testutil.NewMailWorld()
	creds := world.AddAccount("a", "a@test.com")

	m := monitor.New(world, creds, fastOptions())
	require.NoError(t, m.StartListening(context.Background()))
	t.Cleanup(m.StopListening)

	assert.Error(t, m.StartListening(context.Background()))
}
