// Package testutil provides test doubles shared across packages: an
// in-memory store and a fake mail network whose sends land in the
// receiver account's folders.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/transport"
)

const seenFlag = "\\Seen"

// MailWorld is an in-memory mail network. Every transport session opened
// through it shares the same state, so a message sent from one account
// is observable through another account's mailbox session.
type MailWorld struct {
	mu        sync.Mutex
	accounts  map[string]*mailAccount // keyed by email
	sendErr   map[string]error        // injected per-sender send failure
	dialErr   map[string]error        // injected per-email dial failure
	inbound   map[string]string       // receiver email -> landing folder
	dials     int
	openConns int
}

type mailAccount struct {
	email   string
	folders map[string][]transport.Message
	nextUID uint32
}

func NewMailWorld() *MailWorld {
	return &MailWorld{
		accounts: make(map[string]*mailAccount),
		sendErr:  make(map[string]error),
		dialErr:  make(map[string]error),
		inbound:  make(map[string]string),
	}
}

// AddAccount registers a mailbox with an INBOX and returns credentials
// pointing at the fake endpoints.
func (w *MailWorld) AddAccount(id, email string) *model.Credentials {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.accounts[email] = &mailAccount{
		email:   email,
		folders: map[string][]transport.Message{"INBOX": {}},
		nextUID: 1,
	}
	return &model.Credentials{
		AccountID: id,
		Email:     email,
		Secret:    "secret",
		IMAPHost:  "imap.test", IMAPPort: "993",
		SMTPHost: "smtp.test", SMTPPort: "465",
		IMAPTLS: true, SMTPTLS: true,
	}
}

// FailSend makes every send from the given address fail with err; nil
// clears the injection.
func (w *MailWorld) FailSend(email string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.sendErr, email)
		return
	}
	w.sendErr[email] = err
}

// FailDial makes every session open for the given address fail with err.
func (w *MailWorld) FailDial(email string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		delete(w.dialErr, email)
		return
	}
	w.dialErr[email] = err
}

// RouteInbound makes messages for the given receiver land in the named
// folder instead of the INBOX, creating the folder if needed.
func (w *MailWorld) RouteInbound(email, folder string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inbound[email] = folder
	if acct := w.accounts[email]; acct != nil {
		if _, ok := acct.folders[folder]; !ok {
			acct.folders[folder] = []transport.Message{}
		}
	}
}

// Messages returns a snapshot of a folder's contents.
func (w *MailWorld) Messages(email, folder string) []transport.Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	acct := w.accounts[email]
	if acct == nil {
		return nil
	}
	out := make([]transport.Message, len(acct.folders[folder]))
	copy(out, acct.folders[folder])
	return out
}

// Inject places a message directly into an account's folder, bypassing
// the send path.
func (w *MailWorld) Inject(email, folder string, msg transport.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	acct := w.accounts[email]
	if acct == nil {
		return
	}
	msg.UID = acct.nextUID
	acct.nextUID++
	acct.folders[folder] = append(acct.folders[folder], msg)
}

// SetFlag adds a flag to every copy of the message with the given id in
// the account.
func (w *MailWorld) SetFlag(email, messageID, flag string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	acct := w.accounts[email]
	if acct == nil {
		return
	}
	for folder, msgs := range acct.folders {
		for i := range msgs {
			if msgs[i].MessageID == transport.CanonicalMessageID(messageID) {
				msgs[i].Flags = append(msgs[i].Flags, flag)
			}
		}
		acct.folders[folder] = msgs
	}
}

// Dials reports how many sessions have been opened.
func (w *MailWorld) Dials() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dials
}

// OpenConns reports sessions opened and not yet closed.
func (w *MailWorld) OpenConns() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openConns
}

func (w *MailWorld) deliver(from string, msg *transport.Outgoing) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.sendErr[from]; err != nil {
		return err
	}

	for _, to := range msg.To {
		acct := w.accounts[to]
		if acct == nil {
			return fmt.Errorf("no such mailbox %q", to)
		}
		folder := w.inbound[to]
		if folder == "" {
			folder = "INBOX"
		}
		stored := transport.Message{
			UID:       acct.nextUID,
			MessageID: transport.CanonicalMessageID(msg.MessageID),
			InReplyTo: transport.CanonicalMessageID(msg.InReplyTo),
			Subject:   msg.Subject,
			From:      from,
			To:        msg.To,
			Date:      time.Now(),
		}
		acct.nextUID++
		acct.folders[folder] = append(acct.folders[folder], stored)
	}
	return nil
}

// DialMailbox opens a fake IMAP session. MailWorld implements
// transport.Dialer.
func (w *MailWorld) DialMailbox(_ context.Context, email, _, _, _ string, _ bool) (transport.Mailbox, error) {
	if err := w.checkDial(email); err != nil {
		return nil, err
	}
	return &fakeMailbox{world: w, email: email}, nil
}

// DialSender opens a fake SMTP session.
func (w *MailWorld) DialSender(_ context.Context, email, _, _, _ string, _ bool) (transport.Sender, error) {
	if err := w.checkDial(email); err != nil {
		return nil, err
	}
	return &fakeSender{world: w, email: email}, nil
}

func (w *MailWorld) checkDial(email string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.dialErr[email]; err != nil {
		return err
	}
	if w.accounts[email] == nil {
		return fmt.Errorf("no such account %q", email)
	}
	w.dials++
	w.openConns++
	return nil
}

func (w *MailWorld) closed() {
	w.mu.Lock()
	w.openConns--
	w.mu.Unlock()
}

type fakeSender struct {
	world  *MailWorld
	email  string
	closed bool
}

func (s *fakeSender) Send(_ context.Context, msg *transport.Outgoing) error {
	return s.world.deliver(s.email, msg)
}

func (s *fakeSender) Close() error {
	if !s.closed {
		s.closed = true
		s.world.closed()
	}
	return nil
}

type fakeMailbox struct {
	world    *MailWorld
	email    string
	selected string
	closed   bool
}

func (m *fakeMailbox) ListMailboxes(_ context.Context) ([]string, error) {
	m.world.mu.Lock()
	defer m.world.mu.Unlock()

	acct := m.world.accounts[m.email]
	names := make([]string, 0, len(acct.folders))
	for name := range acct.folders {
		names = append(names, name)
	}
	return names, nil
}

func (m *fakeMailbox) Select(_ context.Context, mailbox string) error {
	m.world.mu.Lock()
	defer m.world.mu.Unlock()

	acct := m.world.accounts[m.email]
	if _, ok := acct.folders[mailbox]; !ok {
		return fmt.Errorf("no such folder %q", mailbox)
	}
	m.selected = mailbox
	return nil
}

func (m *fakeMailbox) SearchUnseen(_ context.Context) ([]transport.Message, error) {
	return m.filter(func(msg *transport.Message) bool { return !msg.Seen() })
}

func (m *fakeMailbox) SearchFlagged(_ context.Context) ([]transport.Message, error) {
	return m.filter(func(msg *transport.Message) bool { return msg.HasFlag("\\Flagged") })
}

func (m *fakeMailbox) SearchDeleted(_ context.Context) ([]transport.Message, error) {
	return m.filter(func(msg *transport.Message) bool { return msg.HasFlag("\\Deleted") })
}

func (m *fakeMailbox) FindMessageID(_ context.Context, messageID string) (*transport.Message, error) {
	want := transport.CanonicalMessageID(messageID)
	msgs, err := m.filter(func(msg *transport.Message) bool { return msg.MessageID == want })
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

func (m *fakeMailbox) filter(keep func(*transport.Message) bool) ([]transport.Message, error) {
	m.world.mu.Lock()
	defer m.world.mu.Unlock()

	if m.selected == "" {
		return nil, fmt.Errorf("no folder selected")
	}
	acct := m.world.accounts[m.email]
	var out []transport.Message
	for i := range acct.folders[m.selected] {
		if keep(&acct.folders[m.selected][i]) {
			out = append(out, acct.folders[m.selected][i])
		}
	}
	return out, nil
}

func (m *fakeMailbox) MarkSeen(_ context.Context, uid uint32) error {
	m.world.mu.Lock()
	defer m.world.mu.Unlock()

	acct := m.world.accounts[m.email]
	msgs := acct.folders[m.selected]
	for i := range msgs {
		if msgs[i].UID == uid && !msgs[i].Seen() {
			msgs[i].Flags = append(msgs[i].Flags, seenFlag)
			return nil
		}
	}
	return nil
}

func (m *fakeMailbox) Move(_ context.Context, uid uint32, mailbox string) error {
	m.world.mu.Lock()
	defer m.world.mu.Unlock()

	acct := m.world.accounts[m.email]
	if _, ok := acct.folders[mailbox]; !ok {
		acct.folders[mailbox] = []transport.Message{}
	}
	src := acct.folders[m.selected]
	for i := range src {
		if src[i].UID == uid {
			acct.folders[mailbox] = append(acct.folders[mailbox], src[i])
			acct.folders[m.selected] = append(src[:i:i], src[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no message with UID %d in %s", uid, m.selected)
}

func (m *fakeMailbox) Close() error {
	if !m.closed {
		m.closed = true
		m.world.closed()
	}
	return nil
}
