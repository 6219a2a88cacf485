// Package ses implements a delivery transport backed by the AWS SES v2
// API, for deployments that dispatch batches without an SMTP relay. It is
// selected by server configuration and ignores the per-request SMTP
// settings.
package ses

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/envialite/envialite/internal/delivery"
	"github.com/envialite/envialite/internal/email"
)

// Config holds the settings for creating the SES transport.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Sender overrides the per-message From address when set. SES requires
	// a verified sending identity, which the merge request's fromEmail may
	// not be.
	Sender string
}

// SendEmailAPI is the subset of the SES v2 client used by the transport.
// Tests substitute a mock implementation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport delivers messages through the SES v2 SendEmail API.
type Transport struct {
	sender string
	client SendEmailAPI
}

// New creates a Transport with a real SES client for the configured region
// and credentials.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Transport{
		sender: cfg.Sender,
		client: sesv2.NewFromConfig(awsCfg),
	}, nil
}

// NewWithClient creates a Transport with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI) *Transport {
	return &Transport{sender: sender, client: client}
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "ses"
}

// Open returns a session for the batch. The API client is long-lived, so
// opening only validates that the transport is usable; per-request SMTP
// settings are ignored.
func (t *Transport) Open(_ context.Context, _ delivery.Settings) (delivery.Session, error) {
	if t.client == nil {
		return nil, fmt.Errorf("ses: transport not configured")
	}
	return &session{sender: t.sender, client: t.client}, nil
}

type session struct {
	sender string
	client SendEmailAPI
}

// Send delivers one message through the SendEmail API. Messages with
// attachments go through the raw MIME path; simple messages use the
// structured content form. Each message is attempted exactly once; failed
// sends are reported to the dispatcher, never retried here.
func (s *session) Send(ctx context.Context, msg *email.Message) error {
	from := s.sender
	if from == "" {
		from = msg.From
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
	}

	if len(msg.Attachments) > 0 {
		raw, err := buildRawMessage(from, msg)
		if err != nil {
			return fmt.Errorf("ses: build raw message: %w", err)
		}
		input.Content = &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		}
	} else {
		input.Content = &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(msg.HTMLBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		}
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses: send: %w", err)
	}
	return nil
}

// Close is a no-op; the underlying API client has no per-batch state.
func (s *session) Close() error {
	return nil
}

// buildRawMessage constructs the multipart MIME message for the raw send
// path. Bcc recipients are carried only in the Destination, never in the
// written headers.
func buildRawMessage(from string, msg *email.Message) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	if len(msg.To) > 0 {
		fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	}
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyHeader := make(textproto.MIMEHeader)
	bodyHeader.Set("Content-Type", "text/html; charset=UTF-8")
	part, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	part.Write([]byte(msg.HTMLBody))

	for _, att := range msg.Attachments {
		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", att.ContentType)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s", mime.QEncoding.Encode("UTF-8", att.Filename)))

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}

		part.Write([]byte(encodeBase64WithLineBreaks(att.Content)))
	}

	writer.Close()
	return buf.Bytes(), nil
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line
// breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
