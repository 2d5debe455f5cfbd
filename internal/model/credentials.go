package model

import (
	"fmt"
	"strings"
)

// Credentials holds everything needed to open authenticated transport
// sessions for a single mailbox account. A Credentials value is immutable
// for the lifetime of the sessions opened from it; the account-management
// collaborator supplies a fresh value when a secret is rotated.
type Credentials struct {
	// AccountID is the identifier the account-management collaborator
	// knows this account by.
	AccountID string

	// Email is the full mailbox address, also used as the login name.
	Email string

	// Secret is the account password or app password.
	Secret string

	// IMAPHost and IMAPPort locate the inbound (IMAP) endpoint.
	IMAPHost string
	IMAPPort string

	// SMTPHost and SMTPPort locate the outbound (SMTP) endpoint.
	SMTPHost string
	SMTPPort string

	// IMAPTLS selects implicit TLS for IMAP; when false the client
	// connects with STARTTLS.
	IMAPTLS bool

	// SMTPTLS selects implicit TLS for SMTP; when false the client
	// connects with STARTTLS.
	SMTPTLS bool
}

// Validate checks that the credential set is complete enough to open
// both transport sessions.
func (c *Credentials) Validate() error {
	switch {
	case c.Email == "" || !strings.Contains(c.Email, "@"):
		return fmt.Errorf("credentials for %q: invalid email address", c.AccountID)
	case c.Secret == "":
		return fmt.Errorf("credentials for %q: missing secret", c.AccountID)
	case c.IMAPHost == "" || c.IMAPPort == "":
		return fmt.Errorf("credentials for %q: missing IMAP endpoint", c.AccountID)
	case c.SMTPHost == "" || c.SMTPPort == "":
		return fmt.Errorf("credentials for %q: missing SMTP endpoint", c.AccountID)
	}
	return nil
}

// IMAPKey identifies the inbound endpoint this credential set opens
// sessions against. Two credential sets with the same IMAPKey share
// pooled inbound connections.
func (c *Credentials) IMAPKey() string {
	return c.Email + "|" + c.IMAPHost + ":" + c.IMAPPort
}

// SMTPKey identifies the outbound endpoint this credential set opens
// sessions against.
func (c *Credentials) SMTPKey() string {
	return c.Email + "|" + c.SMTPHost + ":" + c.SMTPPort
}

// LocalPart returns the part of the email address before the "@".
func (c *Credentials) LocalPart() string {
	if i := strings.Index(c.Email, "@"); i >= 0 {
		return c.Email[:i]
	}
	return c.Email
}

// Domain returns the part of the email address after the "@".
func (c *Credentials) Domain() string {
	if i := strings.Index(c.Email, "@"); i >= 0 {
		return c.Email[i+1:]
	}
	return ""
}
