// Package mail delivers transactional email for challenge flows.
package mail

import "context"

// Mailer sends a single HTML message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}
