package server

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/envialite/envialite/internal/attach"
	"github.com/envialite/envialite/internal/delivery"
	"github.com/envialite/envialite/internal/dispatch"
	"github.com/envialite/envialite/internal/recipient"
)

// defaultSubject is used when the request omits the subject line.
const defaultSubject = "Mail Merge"

// sendRequest is the wire shape of a merge-and-dispatch request. Recipient
// objects carry arbitrary merge fields, so they are decoded generically.
type sendRequest struct {
	Template     string                       `json:"template"`
	Subject      string                       `json:"subject"`
	FromEmail    string                       `json:"fromEmail"`
	Recipients   []map[string]json.RawMessage `json:"recipients"`
	Attachments  map[string]attachmentData    `json:"attachments"`
	SMTPServer   string                       `json:"smtpServer"`
	SMTPPort     flexInt                      `json:"smtpPort"`
	SMTPUser     string                       `json:"smtpUser"`
	SMTPPassword string                       `json:"smtpPassword"`
	DemoMode     bool                         `json:"demoMode"`
}

// attachmentData is one pool entry as supplied by the client. Data is
// either bare base64 or a data URL whose media-type prefix is ignored.
type attachmentData struct {
	Data string `json:"data"`
	Type string `json:"type"`
}

// checkRequest is the wire shape of a connectivity check.
type checkRequest struct {
	SMTPServer   string  `json:"smtpServer"`
	SMTPPort     flexInt `json:"smtpPort"`
	SMTPUser     string  `json:"smtpUser"`
	SMTPPassword string  `json:"smtpPassword"`
}

// flexInt decodes a JSON number or a numeric string. Browser clients send
// the SMTP port in either form.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer value %q", s)
	}
	*f = flexInt(n)
	return nil
}

// sendResponse and checkResponse are the wire shapes of the engine's
// answers. Error uses a pointer so per-recipient results serialize an
// explicit null on success.
type sendResponse struct {
	Success bool         `json:"success"`
	Summary string       `json:"summary,omitempty"`
	Results []wireResult `json:"results,omitempty"`
	Demo    bool         `json:"demo,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type wireResult struct {
	Email     string  `json:"email"`
	RowNumber int     `json:"rowNumber"`
	Success   bool    `json:"success"`
	Error     *string `json:"error"`
}

type checkResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// toBatch converts a decoded request into an engine batch. Recipient rows
// with no non-empty field are skipped; missing row numbers default to the
// 1-based input position. Attachment pool keys are inserted in sorted
// order so fuzzy-match tie-breaking is deterministic for equal requests.
func (req *sendRequest) toBatch() *dispatch.Batch {
	subject := req.Subject
	if subject == "" {
		subject = defaultSubject
	}

	batch := &dispatch.Batch{
		Template: req.Template,
		Subject:  subject,
		From:     req.FromEmail,
		Pool:     attach.NewPool(),
		Settings: delivery.Settings{
			Host:     req.SMTPServer,
			Port:     int(req.SMTPPort),
			Username: req.SMTPUser,
			Password: req.SMTPPassword,
		},
		DemoMode: req.DemoMode,
	}

	for i, row := range req.Recipients {
		r := decodeRecipient(row, i+1)
		if r != nil {
			batch.Recipients = append(batch.Recipients, r)
		}
	}

	names := make([]string, 0, len(req.Attachments))
	for name := range req.Attachments {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		att := req.Attachments[name]
		batch.Pool.Add(attach.Entry{
			Name:        name,
			ContentType: att.Type,
			Data:        stripDataURL(att.Data),
		})
	}

	return batch
}

// decodeRecipient converts one generic JSON row into a Recipient. Scalar
// values become strings; the rowNumber key (or legacy _rowNumber) sets the
// diagnostic row number. Returns nil when every field is empty.
func decodeRecipient(row map[string]json.RawMessage, position int) *recipient.Recipient {
	fields := make(map[string]string, len(row))
	rowNumber := position

	for key, raw := range row {
		if key == "rowNumber" || key == "_rowNumber" {
			if n, err := strconv.Atoi(strings.Trim(string(raw), `"`)); err == nil {
				rowNumber = n
			}
			continue
		}
		fields[key] = decodeScalar(raw)
	}

	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			return &recipient.Recipient{Fields: fields, RowNumber: rowNumber}
		}
	}
	return nil
}

// decodeScalar renders a JSON scalar as the string the merge engine
// substitutes. Null becomes the empty string.
func decodeScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

// stripDataURL drops the media-type prefix of a data URL, returning the
// base64 payload. Bare base64 input passes through unchanged.
func stripDataURL(data string) string {
	if i := strings.Index(data, ","); i >= 0 {
		return data[i+1:]
	}
	return data
}
