// Package delivery defines the interface between the dispatch loop and the
// message delivery backends.
package delivery

import (
	"context"

	"github.com/envialite/envialite/internal/email"
)

// Settings are the batch-wide SMTP connection parameters supplied with each
// request. Transports that deliver through an API instead of SMTP ignore
// them.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Transport is a delivery backend. Open establishes one authenticated
// session that serves an entire batch; connection or authentication
// failures abort the batch before any message is composed.
type Transport interface {
	// Name returns the human-readable name of this transport.
	Name() string

	// Open establishes a session for one batch. It returns an error if
	// connecting or authenticating fails.
	Open(ctx context.Context, settings Settings) (Session, error)
}

// Session is an open delivery channel. Send transmits a single composed
// message; a send failure is isolated to that message and leaves the
// session usable for the rest of the batch.
type Session interface {
	Send(ctx context.Context, msg *email.Message) error
	Close() error
}
