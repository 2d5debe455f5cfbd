package transport

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// imapMailbox is a live authenticated IMAP session built on go-imap v2.
type imapMailbox struct {
	client   *imapclient.Client
	addr     string
	selected string
}

// dialIMAP connects, authenticates, and returns a live session. Opening
// is fallible (network, TLS, auth) and every failure path surfaces as a
// classified error with the connection torn down.
func dialIMAP(_ context.Context, email, secret, host, port string, useTLS bool) (*imapMailbox, error) {
	addr := host + ":" + port

	var client *imapclient.Client
	var err error
	if useTLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, connectError(addr, err)
	}

	if err := client.Login(email, secret).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{Address: email, Hint: credentialHint(email), Err: err}
	}

	return &imapMailbox{client: client, addr: addr}, nil
}

func (m *imapMailbox) ListMailboxes(_ context.Context) ([]string, error) {
	listCmd := m.client.List("", "*", nil)
	boxes, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes on %s: %w", m.addr, err)
	}

	names := make([]string, 0, len(boxes))
	for _, box := range boxes {
		names = append(names, box.Mailbox)
	}
	return names, nil
}

func (m *imapMailbox) Select(_ context.Context, mailbox string) error {
	if _, err := m.client.Select(mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s on %s: %w", mailbox, m.addr, err)
	}
	m.selected = mailbox
	return nil
}

func (m *imapMailbox) SearchUnseen(ctx context.Context) ([]Message, error) {
	return m.search(ctx, &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	})
}

func (m *imapMailbox) SearchFlagged(ctx context.Context) ([]Message, error) {
	return m.search(ctx, &imap.SearchCriteria{
		Flag: []imap.Flag{imap.FlagFlagged},
	})
}

func (m *imapMailbox) SearchDeleted(ctx context.Context) ([]Message, error) {
	return m.search(ctx, &imap.SearchCriteria{
		Flag: []imap.Flag{imap.FlagDeleted},
	})
}

func (m *imapMailbox) FindMessageID(ctx context.Context, messageID string) (*Message, error) {
	msgs, err := m.search(ctx, &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Message-ID", Value: "<" + CanonicalMessageID(messageID) + ">"},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// search runs a UID search and fetches envelope data for every hit.
func (m *imapMailbox) search(_ context.Context, criteria *imap.SearchCriteria) ([]Message, error) {
	searchData, err := m.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s on %s: %w", m.selected, m.addr, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSetNum(uids...)
	fetchOpts := &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	}

	fetchCmd := m.client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		messages = append(messages, messageFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages on %s: %w", m.addr, err)
	}
	return messages, nil
}

func (m *imapMailbox) MarkSeen(_ context.Context, uid uint32) error {
	uidSet := imap.UIDSetNum(imap.UID(uid))
	storeCmd := m.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking UID %d seen on %s: %w", uid, m.addr, err)
	}
	return nil
}

func (m *imapMailbox) Move(_ context.Context, uid uint32, mailbox string) error {
	uidSet := imap.UIDSetNum(imap.UID(uid))
	if _, err := m.client.Move(uidSet, mailbox).Wait(); err != nil {
		return fmt.Errorf("moving UID %d to %s on %s: %w", uid, mailbox, m.addr, err)
	}
	return nil
}

func (m *imapMailbox) Close() error {
	return m.client.Logout().Wait()
}

// messageFromBuffer extracts a Message from a FetchMessageBuffer.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer) Message {
	msg := Message{
		UID: uint32(buf.UID),
	}

	if buf.Envelope != nil {
		msg.MessageID = CanonicalMessageID(buf.Envelope.MessageID)
		if len(buf.Envelope.InReplyTo) > 0 {
			msg.InReplyTo = CanonicalMessageID(buf.Envelope.InReplyTo[0])
		}
		msg.Subject = buf.Envelope.Subject
		msg.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			msg.From = buf.Envelope.From[0].Addr()
		}
		for _, to := range buf.Envelope.To {
			msg.To = append(msg.To, to.Addr())
		}
	}

	for _, flag := range buf.Flags {
		msg.Flags = append(msg.Flags, string(flag))
	}

	return msg
}
