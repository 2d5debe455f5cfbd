package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// smtpSender is a live authenticated SMTP session built on go-smtp.
type smtpSender struct {
	client *smtp.Client
	addr   string
	email  string
}

func dialSMTP(_ context.Context, email, secret, host, port string, useTLS bool) (*smtpSender, error) {
	addr := host + ":" + port
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	var client *smtp.Client
	var err error
	if useTLS {
		client, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return nil, connectError(addr, err)
	}

	auth := sasl.NewPlainClient("", email, secret)
	if err := client.Auth(auth); err != nil {
		_ = client.Close()
		return nil, &AuthError{Address: email, Hint: credentialHint(email), Err: err}
	}

	return &smtpSender{client: client, addr: addr, email: email}, nil
}

// Send builds the MIME message and transmits it over the live session.
func (s *smtpSender) Send(_ context.Context, msg *Outgoing) error {
	if msg.MessageID == "" {
		return fmt.Errorf("outgoing message to %v has no Message-ID", msg.To)
	}

	raw, err := BuildMIME(msg)
	if err != nil {
		return fmt.Errorf("building message for %v: %w", msg.To, err)
	}

	if err := s.client.SendMail(msg.From, msg.To, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("sending via %s: %w", s.addr, err)
	}
	return nil
}

func (s *smtpSender) Close() error {
	if err := s.client.Quit(); err != nil {
		return s.client.Close()
	}
	return nil
}

// NewMessageID generates a provider message identifier for the given
// sender domain, without angle brackets.
func NewMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return uuid.New().String() + "@" + domain
}

// BuildMIME renders an Outgoing message as an RFC 5322 text/plain
// message using go-message.
func BuildMIME(msg *Outgoing) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Address: msg.From}})

	toList := make([]*mail.Address, 0, len(msg.To))
	for _, to := range msg.To {
		toList = append(toList, &mail.Address{Address: to})
	}
	h.SetAddressList("To", toList)
	h.SetMessageID(CanonicalMessageID(msg.MessageID))
	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{CanonicalMessageID(msg.InReplyTo)})
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.Copy(w, strings.NewReader(msg.Body)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finishing message: %w", err)
	}
	return buf.Bytes(), nil
}
