package email

import "context"

// Provider sends operator-facing notification mail.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
