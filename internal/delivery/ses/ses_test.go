package ses

import (
	"context"
	"errors"
	"strings"
	"testing"

	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/envialite/envialite/internal/delivery"
	"github.com/envialite/envialite/internal/email"
)

// mockSESClient records SendEmail inputs and returns a scripted error.
type mockSESClient struct {
	inputs  []*sesv2.SendEmailInput
	sendErr error
}

func (m *mockSESClient) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &sesv2.SendEmailOutput{}, nil
}

func testMessage() *email.Message {
	return &email.Message{
		From:     "sender@example.com",
		To:       []string{"a@example.com"},
		Cc:       []string{"b@example.com"},
		Bcc:      []string{"c@example.com"},
		Subject:  "Hello",
		HTMLBody: "<b>Hi</b>",
	}
}

func TestOpen_RequiresClient(t *testing.T) {
	t.Parallel()

	transport := &Transport{}
	if _, err := transport.Open(context.Background(), delivery.Settings{}); err == nil {
		t.Fatal("got nil error, want unconfigured transport failure")
	}
}

func TestSend_SimpleContent(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	transport := NewWithClient("verified@example.com", mock)

	session, err := transport.Open(context.Background(), delivery.Settings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := session.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.inputs) != 1 {
		t.Fatalf("got %d calls, want 1", len(mock.inputs))
	}
	input := mock.inputs[0]
	if *input.FromEmailAddress != "verified@example.com" {
		t.Errorf("From: got %q, want configured sender override", *input.FromEmailAddress)
	}
	if input.Content.Simple == nil {
		t.Fatal("content: got nil Simple, want structured form without attachments")
	}
	if input.Content.Raw != nil {
		t.Error("content: Raw set for message without attachments")
	}
	if got := *input.Content.Simple.Subject.Data; got != "Hello" {
		t.Errorf("subject: got %q", got)
	}
	if got := input.Destination.BccAddresses; len(got) != 1 || got[0] != "c@example.com" {
		t.Errorf("Destination.Bcc: got %v", got)
	}
}

func TestSend_NoSenderOverrideUsesMessageFrom(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	transport := NewWithClient("", mock)

	session, _ := transport.Open(context.Background(), delivery.Settings{})
	if err := session.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := *mock.inputs[0].FromEmailAddress; got != "sender@example.com" {
		t.Errorf("From: got %q, want message sender", got)
	}
}

func TestSend_RawContentWithAttachments(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	transport := NewWithClient("verified@example.com", mock)

	msg := testMessage()
	msg.Attachments = []email.Attachment{
		{Filename: "note.txt", ContentType: "text/plain", Content: []byte("hello")},
	}

	session, _ := transport.Open(context.Background(), delivery.Settings{})
	if err := session.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := mock.inputs[0]
	if input.Content.Raw == nil {
		t.Fatal("content: got nil Raw, want raw MIME path for attachments")
	}
	raw := string(input.Content.Raw.Data)
	if !strings.Contains(raw, "multipart/mixed") {
		t.Errorf("raw message not multipart:\n%s", raw)
	}
	if !strings.Contains(raw, "note.txt") {
		t.Errorf("raw message missing attachment:\n%s", raw)
	}
	// Bcc rides in the Destination only, never in written headers.
	if strings.Contains(raw, "Bcc:") {
		t.Errorf("raw message leaks Bcc header:\n%s", raw)
	}
	if got := input.Destination.BccAddresses; len(got) != 1 || got[0] != "c@example.com" {
		t.Errorf("Destination.Bcc: got %v", got)
	}
}

func TestSend_APIErrorWrapped(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{sendErr: errors.New("throttled")}
	transport := NewWithClient("verified@example.com", mock)

	session, _ := transport.Open(context.Background(), delivery.Settings{})
	err := session.Send(context.Background(), testMessage())
	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("got %v, want wrapped API error", err)
	}
	// Exactly one attempt, no retries.
	if len(mock.inputs) != 1 {
		t.Errorf("got %d attempts, want 1", len(mock.inputs))
	}
}

func TestEncodeBase64WithLineBreaks(t *testing.T) {
	t.Parallel()

	encoded := encodeBase64WithLineBreaks(make([]byte, 100))
	for _, line := range strings.Split(encoded, "\r\n") {
		if len(line) > 76 {
			t.Errorf("line length %d exceeds 76: %q", len(line), line)
		}
	}
}
