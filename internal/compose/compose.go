// Package compose builds per-recipient messages from merged content and
// resolved attachments.
package compose

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/envialite/envialite/internal/attach"
	"github.com/envialite/envialite/internal/email"
	"github.com/envialite/envialite/internal/recipient"
)

// ErrAttachmentEncoding marks a message whose attachment payload could not
// be decoded. Composition of that one message is aborted; sibling
// recipients are unaffected.
var ErrAttachmentEncoding = errors.New("attachment encoding error")

// defaultContentType is used for pool entries supplied without a MIME type.
const defaultContentType = "application/octet-stream"

// Compose assembles the wire message for one recipient: the merged body
// becomes an HTML part with plain-text newlines converted to line breaks,
// and each resolved attachment is decoded and tagged with its pool key and
// MIME type. A decode failure on any attachment fails the whole message
// with ErrAttachmentEncoding.
func Compose(from string, env recipient.Envelope, subject, body string, attachments []attach.Entry) (*email.Message, error) {
	msg := &email.Message{
		From:     from,
		To:       env.To,
		Cc:       env.Cc,
		Bcc:      env.Bcc,
		Subject:  subject,
		HTMLBody: htmlBody(body),
	}

	for _, entry := range attachments {
		content, err := decodePayload(entry.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrAttachmentEncoding, entry.Name, err)
		}

		contentType := entry.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}

		msg.Attachments = append(msg.Attachments, email.Attachment{
			Filename:    entry.Name,
			ContentType: contentType,
			Content:     content,
		})
	}

	return msg, nil
}

// htmlBody converts plain-text newlines to HTML line breaks.
func htmlBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.ReplaceAll(body, "\n", "<br>\n")
}

// decodePayload decodes a base64 attachment payload, tolerating embedded
// line breaks and missing padding.
func decodePayload(data string) ([]byte, error) {
	cleaned := strings.NewReplacer("\r", "", "\n", "", " ", "").Replace(data)

	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(cleaned)
}
