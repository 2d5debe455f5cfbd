// Package credential supplies transport credentials to the engine. The
// engine itself never persists account configuration; it consumes a
// Directory, the account-management collaborator's contract.
package credential

import (
	"context"
	"fmt"

	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/transport"
)

// NotFoundError is returned when an account id does not resolve.
type NotFoundError struct {
	AccountID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("account %q not found", e.AccountID)
}

// Directory resolves account ids to transport credentials.
type Directory interface {
	// GetCredentials returns the credentials for an account, or a
	// *NotFoundError.
	GetCredentials(ctx context.Context, accountID string) (*model.Credentials, error)

	// AccountIDs lists every known account id.
	AccountIDs() []string
}

// StaticDirectory is an in-memory Directory built from configuration.
type StaticDirectory struct {
	accounts map[string]*model.Credentials
	order    []string
}

// NewStaticDirectory builds a directory from account configuration.
// Missing secrets are resolved from the system keyring under the account
// id; missing endpoints are auto-detected from the email domain.
func NewStaticDirectory(ctx context.Context, accounts []model.AccountConfig) (*StaticDirectory, error) {
	d := &StaticDirectory{accounts: make(map[string]*model.Credentials, len(accounts))}

	for _, ac := range accounts {
		creds, err := resolve(ctx, ac)
		if err != nil {
			return nil, err
		}
		if _, dup := d.accounts[ac.ID]; dup {
			return nil, fmt.Errorf("duplicate account id %q", ac.ID)
		}
		d.accounts[ac.ID] = creds
		d.order = append(d.order, ac.ID)
	}

	return d, nil
}

func (d *StaticDirectory) GetCredentials(_ context.Context, accountID string) (*model.Credentials, error) {
	creds, ok := d.accounts[accountID]
	if !ok {
		return nil, &NotFoundError{AccountID: accountID}
	}
	return creds, nil
}

func (d *StaticDirectory) AccountIDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// resolve fills in an account's secret and endpoints.
func resolve(ctx context.Context, ac model.AccountConfig) (*model.Credentials, error) {
	creds := &model.Credentials{
		AccountID: ac.ID,
		Email:     ac.Email,
		Secret:    ac.Secret,
		IMAPHost:  ac.IMAPHost,
		IMAPPort:  ac.IMAPPort,
		SMTPHost:  ac.SMTPHost,
		SMTPPort:  ac.SMTPPort,
		IMAPTLS:   ac.IMAPTLS,
		SMTPTLS:   ac.SMTPTLS,
	}

	if creds.Secret == "" {
		secret, err := Get(ac.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving secret for %q: %w", ac.ID, err)
		}
		creds.Secret = secret
	}

	if creds.IMAPHost == "" || creds.SMTPHost == "" {
		ep := transport.DetectEndpoints(ctx, ac.Email)
		if creds.IMAPHost == "" {
			creds.IMAPHost = ep.IMAPHost
			creds.IMAPPort = ep.IMAPPort
			creds.IMAPTLS = ep.IMAPTLS
		}
		if creds.SMTPHost == "" {
			creds.SMTPHost = ep.SMTPHost
			creds.SMTPPort = ep.SMTPPort
			creds.SMTPTLS = ep.SMTPTLS
		}
	}

	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}
