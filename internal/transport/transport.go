// Package transport provides the abstract mail transport consumed by the
// warmup engine: authenticated IMAP sessions for observing mailboxes and
// authenticated SMTP sessions for sending, plus provider endpoint
// detection and connection diagnostics.
package transport

import (
	"context"
	"strings"
	"time"
)

// Message is the transport-level view of a stored message, as returned
// by mailbox searches.
type Message struct {
	UID       uint32
	MessageID string
	InReplyTo string
	Subject   string
	From      string
	To        []string
	Date      time.Time
	Flags     []string
}

// HasFlag reports whether the message carries the given IMAP flag
// (e.g. "\Seen"). Comparison is case-insensitive.
func (m *Message) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// Seen reports whether the message has been read.
func (m *Message) Seen() bool { return m.HasFlag("\\Seen") }

// Outgoing is a message to be sent through a Sender. MessageID must be
// populated before sending (see NewMessageID) so callers can correlate
// the send with later mailbox observations.
type Outgoing struct {
	From      string
	To        []string
	Subject   string
	Body      string
	MessageID string
	InReplyTo string
}

// Mailbox is one authenticated inbound session. Implementations own
// exactly one underlying network connection; Close releases it.
// A Mailbox is not safe for concurrent use.
type Mailbox interface {
	// ListMailboxes returns the names of all mailboxes in the account.
	ListMailboxes(ctx context.Context) ([]string, error)

	// Select opens the named mailbox; subsequent searches operate on it.
	Select(ctx context.Context, mailbox string) error

	// SearchUnseen returns messages in the selected mailbox without the
	// \Seen flag.
	SearchUnseen(ctx context.Context) ([]Message, error)

	// SearchFlagged returns messages carrying the \Flagged flag.
	SearchFlagged(ctx context.Context) ([]Message, error)

	// SearchDeleted returns messages carrying the \Deleted flag.
	SearchDeleted(ctx context.Context) ([]Message, error)

	// FindMessageID searches the selected mailbox for a message with the
	// given Message-ID header. Returns nil without error when absent.
	FindMessageID(ctx context.Context, messageID string) (*Message, error)

	// MarkSeen adds the \Seen flag to the message with the given UID.
	MarkSeen(ctx context.Context, uid uint32) error

	// Move moves the message with the given UID into another mailbox.
	Move(ctx context.Context, uid uint32, mailbox string) error

	Close() error
}

// Sender is one authenticated outbound session.
// A Sender is not safe for concurrent use.
type Sender interface {
	// Send transmits the message. The Message-ID travels inside the
	// message headers; the caller keeps it for correlation.
	Send(ctx context.Context, msg *Outgoing) error

	Close() error
}

// Dialer opens authenticated transport sessions from credentials. The
// connection pool and the mailbox monitors are both built on top of it.
type Dialer interface {
	DialMailbox(ctx context.Context, email, secret, host, port string, tls bool) (Mailbox, error)
	DialSender(ctx context.Context, email, secret, host, port string, tls bool) (Sender, error)
}

// CanonicalMessageID strips the angle brackets and surrounding space
// from a Message-ID header value so ids from different transports
// compare equal.
func CanonicalMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return id
}
