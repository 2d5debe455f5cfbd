package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emailmax/warmup/internal/model"
)

// ProbeStep is one diagnostic check inside a ProbeReport: a structured
// success flag plus a human-readable message, never a panic or an
// unclassified error.
type ProbeStep struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ProbeReport is the outcome of validating one credential set.
type ProbeReport struct {
	Success bool        `json:"success"`
	Steps   []ProbeStep `json:"steps"`

	// Hint carries provider-specific credential guidance when an
	// authentication step failed.
	Hint string `json:"hint,omitempty"`
}

func (r *ProbeReport) add(name string, success bool, format string, args ...any) {
	r.Steps = append(r.Steps, ProbeStep{
		Name:    name,
		Success: success,
		Message: fmt.Sprintf(format, args...),
	})
	if !success {
		r.Success = false
	}
}

const probeTimeout = 10 * time.Second

// Probe validates a credential set end to end: DNS resolution, TCP
// reachability, then a full authenticated IMAP and SMTP session. Each
// transport short-circuits on its first failed step; both transports are
// always probed so the report covers the whole credential set.
func Probe(ctx context.Context, dialer Dialer, creds *model.Credentials) *ProbeReport {
	report := &ProbeReport{Success: true}

	if probeEndpoint(ctx, report, "imap", creds.IMAPHost, creds.IMAPPort) {
		box, err := dialer.DialMailbox(ctx, creds.Email, creds.Secret, creds.IMAPHost, creds.IMAPPort, creds.IMAPTLS)
		if err != nil {
			report.add("imap_login", false, "IMAP login failed for %s: %v", creds.Email, err)
			noteAuthHint(report, err)
		} else {
			report.add("imap_login", true, "IMAP login succeeded for %s", creds.Email)
			if err := box.Select(ctx, "INBOX"); err != nil {
				report.add("imap_inbox", false, "selecting INBOX failed: %v", err)
			} else {
				report.add("imap_inbox", true, "INBOX opened")
			}
			_ = box.Close()
		}
	}

	if probeEndpoint(ctx, report, "smtp", creds.SMTPHost, creds.SMTPPort) {
		sender, err := dialer.DialSender(ctx, creds.Email, creds.Secret, creds.SMTPHost, creds.SMTPPort, creds.SMTPTLS)
		if err != nil {
			report.add("smtp_login", false, "SMTP login failed for %s: %v", creds.Email, err)
			noteAuthHint(report, err)
		} else {
			report.add("smtp_login", true, "SMTP login succeeded for %s", creds.Email)
			_ = sender.Close()
		}
	}

	return report
}

// probeEndpoint runs the DNS and TCP checks for one endpoint, returning
// whether the authenticated session probe should proceed.
func probeEndpoint(ctx context.Context, report *ProbeReport, kind, host, port string) bool {
	dnsCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(dnsCtx, host)
	if err != nil || len(addrs) == 0 {
		report.add(kind+"_dns", false, "cannot resolve %s: %v", host, err)
		return false
	}
	report.add(kind+"_dns", true, "%s resolves to %s", host, addrs[0])

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), probeTimeout)
	if err != nil {
		report.add(kind+"_tcp", false, "%s", describeDialError(host, port, err))
		return false
	}
	_ = conn.Close()
	report.add(kind+"_tcp", true, "connected to %s:%s", host, port)
	return true
}

// describeDialError converts raw dial errors into friendlier messages,
// distinguishing refusals from timeouts.
func describeDialError(host, port string, err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("timed out connecting to %s:%s", host, port)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("connection to %s:%s refused or unreachable: %v", host, port, opErr.Err)
	}
	return fmt.Sprintf("cannot connect to %s:%s: %v", host, port, err)
}

func noteAuthHint(report *ProbeReport, err error) {
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Hint != "" {
		report.Hint = authErr.Hint
	}
}
