package transport

import "context"

// NetDialer is the production Dialer: real IMAP and SMTP sessions over
// the network.
type NetDialer struct{}

func (NetDialer) DialMailbox(ctx context.Context, email, secret, host, port string, tls bool) (Mailbox, error) {
	return dialIMAP(ctx, email, secret, host, port, tls)
}

func (NetDialer) DialSender(ctx context.Context, email, secret, host, port string, tls bool) (Sender, error) {
	return dialSMTP(ctx, email, secret, host, port, tls)
}
