package transport

import (
	"context"
	"net"
	"strings"
	"time"
)

// Endpoints holds the detected transport endpoints for an email domain.
type Endpoints struct {
	IMAPHost string
	IMAPPort string
	IMAPTLS  bool
	SMTPHost string
	SMTPPort string
	SMTPTLS  bool

	// Provider is the detected provider key ("gmail", "outlook",
	// "yahoo") or empty when the endpoints were inferred.
	Provider string
}

// knownProviders maps a provider key to its published endpoints.
// IMAP uses implicit TLS on 993; SMTP uses STARTTLS submission on 587.
var knownProviders = map[string]Endpoints{
	"gmail": {
		IMAPHost: "imap.gmail.com", IMAPPort: "993", IMAPTLS: true,
		SMTPHost: "smtp.gmail.com", SMTPPort: "587", SMTPTLS: false,
		Provider: "gmail",
	},
	"outlook": {
		IMAPHost: "outlook.office365.com", IMAPPort: "993", IMAPTLS: true,
		SMTPHost: "smtp.office365.com", SMTPPort: "587", SMTPTLS: false,
		Provider: "outlook",
	},
	"yahoo": {
		IMAPHost: "imap.mail.yahoo.com", IMAPPort: "993", IMAPTLS: true,
		SMTPHost: "smtp.mail.yahoo.com", SMTPPort: "587", SMTPTLS: false,
		Provider: "yahoo",
	},
}

// credentialHints gives provider-specific guidance surfaced alongside
// authentication failures.
var credentialHints = map[string]string{
	"gmail": "Gmail accounts require an app password in the form: xxxx xxxx xxxx xxxx",
	"yahoo": "Yahoo accounts require app access to be enabled and an app password",
}

// credentialHint returns the app-password hint for the email's provider,
// or an empty string for unknown providers.
func credentialHint(email string) string {
	ep := lookupKnown(domainOf(email))
	if ep == nil {
		return ""
	}
	return credentialHints[ep.Provider]
}

// DetectEndpoints resolves transport endpoints for an email address:
// known providers first, then MX-record inference, then the conventional
// imap.<domain>/smtp.<domain> fallback.
func DetectEndpoints(ctx context.Context, email string) Endpoints {
	domain := domainOf(email)

	if ep := lookupKnown(domain); ep != nil {
		return *ep
	}

	if ep := inferFromMX(ctx, domain); ep != nil {
		return *ep
	}

	return Endpoints{
		IMAPHost: "imap." + domain, IMAPPort: "993", IMAPTLS: true,
		SMTPHost: "smtp." + domain, SMTPPort: "587", SMTPTLS: false,
	}
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return strings.ToLower(email[i+1:])
	}
	return strings.ToLower(email)
}

func lookupKnown(domain string) *Endpoints {
	switch {
	case strings.Contains(domain, "gmail") || strings.Contains(domain, "googlemail"):
		ep := knownProviders["gmail"]
		return &ep
	case strings.Contains(domain, "outlook") || strings.Contains(domain, "hotmail") || strings.Contains(domain, "live"):
		ep := knownProviders["outlook"]
		return &ep
	case strings.Contains(domain, "yahoo"):
		ep := knownProviders["yahoo"]
		return &ep
	}
	return nil
}

// inferFromMX resolves the domain's MX records and matches the exchange
// host against the known providers.
func inferFromMX(ctx context.Context, domain string) *Endpoints {
	resolveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	records, err := net.DefaultResolver.LookupMX(resolveCtx, domain)
	if err != nil || len(records) == 0 {
		return nil
	}

	mx := strings.ToLower(records[0].Host)
	switch {
	case strings.Contains(mx, "google") || strings.Contains(mx, "gmail"):
		ep := knownProviders["gmail"]
		return &ep
	case strings.Contains(mx, "outlook") || strings.Contains(mx, "microsoft"):
		ep := knownProviders["outlook"]
		return &ep
	case strings.Contains(mx, "yahoo"):
		ep := knownProviders["yahoo"]
		return &ep
	}
	return nil
}
