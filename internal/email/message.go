// Package email defines the core message data model shared by the composer
// and the delivery transports.
package email

// Message is a fully composed, per-recipient email ready for transmission.
// It is built fresh for each recipient and never mutated after construction.
type Message struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment is a decoded file attached to a composed message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// EnvelopeRecipients returns the complete transport-level recipient list
// (To + Cc + Bcc). Bcc addresses receive the message but must never appear
// in visible headers; keeping them out of the wire headers is the
// transport's responsibility.
func (m *Message) EnvelopeRecipients() []string {
	rcpts := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	rcpts = append(rcpts, m.To...)
	rcpts = append(rcpts, m.Cc...)
	rcpts = append(rcpts, m.Bcc...)
	return rcpts
}
