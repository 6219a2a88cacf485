// Package dispatch runs a merge batch: one delivery session per batch, one
// personalized message per recipient, with per-message failure isolation
// and an order-preserving results report.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/envialite/envialite/internal/attach"
	"github.com/envialite/envialite/internal/compose"
	"github.com/envialite/envialite/internal/delivery"
	"github.com/envialite/envialite/internal/merge"
	"github.com/envialite/envialite/internal/recipient"
)

// Batch is one invocation of the engine: one template against N recipients,
// with its attachment pool and batch-wide connection settings. All fields
// are read-only for the duration of the run.
type Batch struct {
	Template   string
	Subject    string
	From       string
	Recipients []*recipient.Recipient
	Pool       *attach.Pool
	Settings   delivery.Settings

	// DemoMode synthesizes a success result for every recipient without
	// opening the transport. It is an explicit per-batch input, not
	// process state, so the loop stays a pure function of its arguments.
	DemoMode bool
}

// Result is the outcome for a single recipient.
type Result struct {
	Email     string
	RowNumber int
	Success   bool
	Error     string
}

// Report aggregates the per-recipient outcomes of a completed batch.
// OK means the batch ran to completion, not that every message was
// delivered; individual failures live in Results.
type Report struct {
	Results []Result
	Summary string
	OK      bool
	Demo    bool
}

// Run dispatches the batch through the given transport.
//
// The session lifecycle is strictly sequential: Open (connect, STARTTLS,
// authenticate) happens once; an open failure aborts the whole batch with
// no per-recipient results. After that, each recipient is merged, resolved,
// composed and sent in input order over the same session. Any per-recipient
// failure is recorded and the loop advances; the session is closed on every
// exit path, and a close failure is logged without disturbing recorded
// results.
func Run(ctx context.Context, batch *Batch, transport delivery.Transport) (*Report, error) {
	if batch.DemoMode {
		return demoReport(batch), nil
	}

	session, err := transport.Open(ctx, batch.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s session: %w", transport.Name(), err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			slog.Warn("failed to close delivery session",
				"transport", transport.Name(),
				"error", closeErr,
			)
		}
	}()

	// The global set is a batch-level property, computed once.
	globals := attach.ResolveGlobals(batch.Pool, batch.Recipients, batch.Template)

	results := make([]Result, 0, len(batch.Recipients))
	sent := 0
	for _, r := range batch.Recipients {
		if err := sendOne(ctx, session, batch, r, globals); err != nil {
			slog.Warn("message send failed",
				"row", r.RowNumber,
				"email", r.Address(),
				"error", err,
			)
			results = append(results, Result{
				Email:     r.Address(),
				RowNumber: r.RowNumber,
				Error:     err.Error(),
			})
			continue
		}
		sent++
		results = append(results, Result{
			Email:     r.Address(),
			RowNumber: r.RowNumber,
			Success:   true,
		})
	}

	return &Report{
		Results: results,
		Summary: fmt.Sprintf("Sent %d of %d emails", sent, len(results)),
		OK:      true,
	}, nil
}

// sendOne personalizes, composes and transmits the message for a single
// recipient. Every returned error is isolated to this recipient.
func sendOne(ctx context.Context, session delivery.Session, batch *Batch, r *recipient.Recipient, globals map[string]struct{}) error {
	env, err := recipient.BuildEnvelope(r)
	if err != nil {
		return err
	}

	subject := merge.Merge(batch.Subject, r.Fields)
	body := merge.Merge(batch.Template, r.Fields)
	attachments := attach.ResolveForRecipient(r, batch.Template, batch.Pool, globals)

	msg, err := compose.Compose(batch.From, env, subject, body, attachments)
	if err != nil {
		return err
	}

	return session.Send(ctx, msg)
}

// demoReport synthesizes a success result per recipient without any
// network I/O, for dry-run validation of templates and recipient data.
func demoReport(batch *Batch) *Report {
	results := make([]Result, 0, len(batch.Recipients))
	for _, r := range batch.Recipients {
		results = append(results, Result{
			Email:     r.Address(),
			RowNumber: r.RowNumber,
			Success:   true,
		})
	}
	return &Report{
		Results: results,
		Summary: fmt.Sprintf("DEMO MODE: Would have sent %d emails successfully", len(results)),
		OK:      true,
		Demo:    true,
	}
}

// Check verifies connectivity and credentials by opening a session and
// closing it immediately, without sending any message.
func Check(ctx context.Context, transport delivery.Transport, settings delivery.Settings) error {
	session, err := transport.Open(ctx, settings)
	if err != nil {
		return fmt.Errorf("%s connection failed: %w", transport.Name(), err)
	}
	if err := session.Close(); err != nil {
		slog.Warn("failed to close delivery session after connectivity check",
			"transport", transport.Name(),
			"error", err,
		)
	}
	return nil
}
