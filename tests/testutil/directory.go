package testutil

import (
	"context"

	"github.com/emailmax/warmup/internal/credential"
	"github.com/emailmax/warmup/internal/model"
)

// Directory is a fixed in-memory account directory for tests.
type Directory struct {
	ids   []string
	creds map[string]*model.Credentials
}

func NewDirectory(creds ...*model.Credentials) *Directory {
	d := &Directory{creds: make(map[string]*model.Credentials, len(creds))}
	for _, c := range creds {
		d.creds[c.AccountID] = c
		d.ids = append(d.ids, c.AccountID)
	}
	return d
}

func (d *Directory) GetCredentials(_ context.Context, accountID string) (*model.Credentials, error) {
	c, ok := d.creds[accountID]
	if !ok {
		return nil, &credential.NotFoundError{AccountID: accountID}
	}
	return c, nil
}

func (d *Directory) AccountIDs() []string { return d.ids }
