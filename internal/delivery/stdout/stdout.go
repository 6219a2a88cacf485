// Package stdout implements a development transport that prints each
// composed message to standard output instead of delivering it. Unlike the
// request-level demo mode, it exercises the full merge, resolve and compose
// path.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/envialite/envialite/internal/delivery"
	"github.com/envialite/envialite/internal/email"
)

// Transport prints messages in a human-readable format. Opening and
// sending always succeed.
type Transport struct {
	writer io.Writer
}

// New creates a Transport that writes to os.Stdout.
func New() *Transport {
	return &Transport{writer: os.Stdout}
}

// NewWithWriter creates a Transport that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Transport {
	return &Transport{writer: w}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "stdout"
}

// Open returns a session immediately; there is nothing to connect to.
func (t *Transport) Open(_ context.Context, _ delivery.Settings) (delivery.Session, error) {
	return &session{writer: t.writer}, nil
}

type session struct {
	writer io.Writer
}

// Send prints the message, including the otherwise hidden Bcc list so the
// operator can verify envelope recipients during a dry run.
func (s *session) Send(_ context.Context, msg *email.Message) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}
	if len(msg.Bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", strings.Join(msg.Bcc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")
	b.WriteString(msg.HTMLBody + "\n")

	if len(msg.Attachments) > 0 {
		names := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			names = append(names, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(names, ", "))
	}

	b.WriteString("========================================\n")

	// A write error to stdout is not a delivery failure.
	fmt.Fprint(s.writer, b.String())
	return nil
}

// Close is a no-op.
func (s *session) Close() error {
	return nil
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
