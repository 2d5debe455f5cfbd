package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectEndpointsKnownProviders(t *testing.T) {
	tests := []struct {
		email    string
		imapHost string
		smtpHost string
		provider string
	}{
		{"a@gmail.com", "imap.gmail.com", "smtp.gmail.com", "gmail"},
		{"a@googlemail.com", "imap.gmail.com", "smtp.gmail.com", "gmail"},
		{"a@outlook.com", "outlook.office365.com", "smtp.office365.com", "outlook"},
		{"a@hotmail.com", "outlook.office365.com", "smtp.office365.com", "outlook"},
		{"a@yahoo.com.br", "imap.mail.yahoo.com", "smtp.mail.yahoo.com", "yahoo"},
	}

	for _, tc := range tests {
		t.Run(tc.email, func(t *testing.T) {
			ep := DetectEndpoints(context.Background(), tc.email)
			assert.Equal(t, tc.imapHost, ep.IMAPHost)
			assert.Equal(t, tc.smtpHost, ep.SMTPHost)
			assert.Equal(t, tc.provider, ep.Provider)
			assert.Equal(t, "993", ep.IMAPPort)
			assert.True(t, ep.IMAPTLS)
			assert.Equal(t, "587", ep.SMTPPort)
			assert.False(t, ep.SMTPTLS)
		})
	}
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", domainOf("user@example.com"))
	assert.Equal(t, "example.com", domainOf("User@EXAMPLE.COM"))
	assert.Equal(t, "tag", domainOf("a@b@tag"))
	assert.Equal(t, "noat", domainOf("noat"))
}

func TestCredentialHint(t *testing.T) {
	assert.Contains(t, credentialHint("a@gmail.com"), "app password")
	assert.Contains(t, credentialHint("a@yahoo.com"), "app password")
	assert.Empty(t, credentialHint("a@example.com"))
	assert.Empty(t, credentialHint("a@outlook.com"))
}

func TestCanonicalMessageID(t *testing.T) {
	assert.Equal(t, "abc@x.com", CanonicalMessageID("<abc@x.com>"))
	assert.Equal(t, "abc@x.com", CanonicalMessageID("  <abc@x.com> "))
	assert.Equal(t, "abc@x.com", CanonicalMessageID("abc@x.com"))
	assert.Equal(t, "", CanonicalMessageID(""))
}
