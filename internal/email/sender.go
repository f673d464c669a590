package email

import "context"

// Sender delivers transactional email to domain claimants.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
