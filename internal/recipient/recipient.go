// Package recipient models batch recipients and builds validated
// transmission envelopes from their address fields.
package recipient

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidAddress marks a recipient whose address fields failed
// validation. The failure is isolated to that recipient's send.
var ErrInvalidAddress = errors.New("invalid address")

// Recipient is one row of the batch input: an ordered set of merge fields
// keyed by column name (case-sensitive), plus the 1-based source row number
// for diagnostics. Constructed once per batch and read-only afterward.
type Recipient struct {
	Fields    map[string]string
	RowNumber int
}

// Field returns the named field value, or the empty string if absent.
func (r *Recipient) Field(name string) string {
	return r.Fields[name]
}

// Address returns the recipient's primary address field: "email",
// falling back to "to".
func (r *Recipient) Address() string {
	if v := r.Fields["email"]; v != "" {
		return v
	}
	return r.Fields["to"]
}

// addressPattern is a deliberately simple syntactic check: a local part and
// a domain containing at least one dot, with no whitespace anywhere.
// Exotic but legal RFC 5322 addresses are rejected; that is an accepted
// limitation for this tool.
var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateAddress reports whether addr passes the syntactic address check.
func ValidateAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// ExpandList splits a multi-address field on commas or semicolons, trims
// whitespace, and drops empty segments. An empty or absent field yields an
// empty list, which is valid for Cc and Bcc.
func ExpandList(field string) []string {
	if strings.TrimSpace(field) == "" {
		return nil
	}

	parts := strings.FieldsFunc(field, func(r rune) bool {
		return r == ',' || r == ';'
	})

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Envelope is the validated address set for one recipient's message.
// To, Cc and Bcc are the visible-header lists; the transport-level
// recipient list is their union.
type Envelope struct {
	To  []string
	Cc  []string
	Bcc []string
}

// BuildEnvelope expands and validates the recipient's To, Cc and Bcc
// fields. To is required: it must expand to at least one address and every
// entry must be valid. Cc and Bcc are optional, but when present every
// entry must be valid. Any violation fails this recipient's send with an
// address-validation error.
func BuildEnvelope(r *Recipient) (Envelope, error) {
	to := ExpandList(r.Address())
	if len(to) == 0 {
		return Envelope{}, fmt.Errorf("%w: recipient row %d has no destination address", ErrInvalidAddress, r.RowNumber)
	}
	for _, addr := range to {
		if !ValidateAddress(addr) {
			return Envelope{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
		}
	}

	cc := ExpandList(r.Field("cc"))
	for _, addr := range cc {
		if !ValidateAddress(addr) {
			return Envelope{}, fmt.Errorf("%w in cc: %q", ErrInvalidAddress, addr)
		}
	}

	bcc := ExpandList(r.Field("bcc"))
	for _, addr := range bcc {
		if !ValidateAddress(addr) {
			return Envelope{}, fmt.Errorf("%w in bcc: %q", ErrInvalidAddress, addr)
		}
	}

	return Envelope{To: to, Cc: cc, Bcc: bcc}, nil
}
