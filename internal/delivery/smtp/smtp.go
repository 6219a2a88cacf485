// Package smtp implements the live SMTP delivery transport. One client
// connection is dialed and authenticated per batch and every message in the
// batch is sent over that connection.
package smtp

import (
	"bytes"
	"context"
	"fmt"

	mail "github.com/wneessen/go-mail"

	"github.com/envialite/envialite/internal/delivery"
	"github.com/envialite/envialite/internal/email"
)

// defaultPort is used when the request leaves the SMTP port unset.
const defaultPort = 587

// Transport opens SMTP sessions using the per-batch settings from the
// request: STARTTLS followed by AUTH with the supplied credentials.
type Transport struct{}

// New creates the SMTP transport.
func New() *Transport {
	return &Transport{}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Open dials the configured host, negotiates STARTTLS and authenticates.
// Any failure here is batch-fatal; no per-message results exist yet.
func (t *Transport) Open(ctx context.Context, settings delivery.Settings) (delivery.Session, error) {
	if settings.Host == "" {
		return nil, fmt.Errorf("smtp: server host is required")
	}

	port := settings.Port
	if port == 0 {
		port = defaultPort
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if settings.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(settings.Username),
			mail.WithPassword(settings.Password),
		)
	}

	client, err := mail.NewClient(settings.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp: create client: %w", err)
	}

	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("smtp: connect to %s:%d: %w", settings.Host, port, err)
	}

	return &session{client: client}, nil
}

// session wraps an authenticated go-mail client connection.
type session struct {
	client *mail.Client
}

// Send transmits one composed message over the open connection. Errors are
// per-message; the connection stays usable for subsequent sends.
func (s *session) Send(_ context.Context, msg *email.Message) error {
	m, err := buildMsg(msg)
	if err != nil {
		return err
	}
	if err := s.client.Send(m); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}

// Close terminates the SMTP connection gracefully.
func (s *session) Close() error {
	return s.client.Close()
}

// buildMsg converts the composed message to its wire form. Bcc addresses
// become envelope recipients only; go-mail keeps them out of the written
// headers.
func buildMsg(msg *email.Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("smtp: set sender: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("smtp: set recipients: %w", err)
	}
	if len(msg.Cc) > 0 {
		if err := m.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("smtp: set cc: %w", err)
		}
	}
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return nil, fmt.Errorf("smtp: set bcc: %w", err)
		}
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)

	for _, att := range msg.Attachments {
		err := m.AttachReader(att.Filename, bytes.NewReader(att.Content),
			mail.WithFileContentType(mail.ContentType(att.ContentType)))
		if err != nil {
			return nil, fmt.Errorf("smtp: attach %s: %w", att.Filename, err)
		}
	}

	return m, nil
}
