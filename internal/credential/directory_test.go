package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmax/warmup/internal/model"
)

func accounts() []model.AccountConfig {
	return []model.AccountConfig{
		{
			ID: "alice", Email: "alice@example.com", Secret: "pw1",
			IMAPHost: "imap.example.com", IMAPPort: "993", IMAPTLS: true,
			SMTPHost: "smtp.example.com", SMTPPort: "587",
		},
		{
			ID: "bob", Email: "bob@gmail.com", Secret: "pw2",
			// Endpoints omitted: auto-detected from the provider.
		},
	}
}

func TestStaticDirectory(t *testing.T) {
	ctx := context.Background()
	d, err := NewStaticDirectory(ctx, accounts())
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, d.AccountIDs())

	alice, err := d.GetCredentials(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", alice.Email)
	assert.Equal(t, "imap.example.com", alice.IMAPHost)

	bob, err := d.GetCredentials(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "imap.gmail.com", bob.IMAPHost)
	assert.Equal(t, "993", bob.IMAPPort)
	assert.True(t, bob.IMAPTLS)
	assert.Equal(t, "smtp.gmail.com", bob.SMTPHost)

	_, err = d.GetCredentials(ctx, "carol")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "carol", notFound.AccountID)
}

func TestStaticDirectoryRejectsDuplicates(t *testing.T) {
	dup := append(accounts(), model.AccountConfig{
		ID: "alice", Email: "other@example.com", Secret: "pw",
		IMAPHost: "h", IMAPPort: "993", SMTPHost: "h", SMTPPort: "587",
	})
	_, err := NewStaticDirectory(context.Background(), dup)
	assert.ErrorContains(t, err, "duplicate account id")
}

func TestStaticDirectoryValidates(t *testing.T) {
	_, err := NewStaticDirectory(context.Background(), []model.AccountConfig{
		{ID: "broken", Email: "not-an-email", Secret: "pw"},
	})
	assert.Error(t, err)
}
