package delivery

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"gopkg.in/gomail.v2"
)

type fakeChannel struct {
	name string
	err  error
	sent int
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, _ Payload) error {
	c.sent++
	return c.err
}

func TestDispatcher_Send(t *testing.T) {
	ok := &fakeChannel{name: "inapp"}
	failing := &fakeChannel{name: "webhook", err: errors.New("connection refused")}
	d := NewDispatcher(log.New(io.Discard, "", 0), []Channel{ok, failing})

	attempts := d.Send(context.Background(), []string{"inapp", "webhook"}, testPayload())
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d", len(attempts))
	}
	if !attempts[0].Succeeded || attempts[0].Channel != "inapp" {
		t.Fatalf("inapp attempt: %+v", attempts[0])
	}
	if attempts[1].Succeeded {
		t.Fatalf("webhook attempt: %+v", attempts[1])
	}
	if !strings.Contains(attempts[1].Error, "connection refused") {
		t.Fatalf("error = %q", attempts[1].Error)
	}
	if ok.sent != 1 || failing.sent != 1 {
		t.Fatalf("sends: inapp=%d webhook=%d", ok.sent, failing.sent)
	}
}

func TestDispatcher_UnknownChannelRecordedAsFailure(t *testing.T) {
	d := NewDispatcher(log.New(io.Discard, "", 0), []Channel{&fakeChannel{name: "inapp"}})

	attempts := d.Send(context.Background(), []string{"pager"}, testPayload())
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d", len(attempts))
	}
	if attempts[0].Succeeded || attempts[0].Error != "unknown channel" {
		t.Fatalf("attempt: %+v", attempts[0])
	}
}

func TestDispatcher_OneFailureNeverBlocksOthers(t *testing.T) {
	first := &fakeChannel{name: "email", err: errors.New("smtp down")}
	second := &fakeChannel{name: "inapp"}
	d := NewDispatcher(log.New(io.Discard, "", 0), []Channel{first, second})

	attempts := d.Send(context.Background(), []string{"email", "inapp"}, testPayload())
	if attempts[0].Succeeded {
		t.Fatalf("email attempt: %+v", attempts[0])
	}
	if !attempts[1].Succeeded {
		t.Fatalf("inapp attempt: %+v", attempts[1])
	}
}

func TestFailureError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	failure := &FailureError{Channel: "webhook", Err: cause}
	if !IsFailure(failure) {
		t.Fatal("IsFailure should match")
	}
	if !errors.Is(failure, cause) {
		t.Fatal("unwrap broken")
	}
	if IsFailure(cause) {
		t.Fatal("plain error reported as failure")
	}
}

type fakeDialer struct {
	err  error
	sent []*gomail.Message
}

func (d *fakeDialer) DialAndSend(messages ...*gomail.Message) error {
	d.sent = append(d.sent, messages...)
	return d.err
}

func TestEmailChannel_Send(t *testing.T) {
	dialer := &fakeDialer{}
	channel, err := NewEmailChannel(dialer, "alerts@example.com", "Alerts")
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if err := channel.Send(context.Background(), testPayload()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(dialer.sent) != 1 {
		t.Fatalf("sent = %d", len(dialer.sent))
	}
	msg := dialer.sent[0]
	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "anna@example.com" {
		t.Fatalf("to = %v", got)
	}
	if got := msg.GetHeader("Subject"); len(got) != 1 || !strings.Contains(got[0], "Invoice overdue") {
		t.Fatalf("subject = %v", got)
	}
}

func TestEmailChannel_NoAddress(t *testing.T) {
	channel, err := NewEmailChannel(&fakeDialer{}, "", "")
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	payload := testPayload()
	payload.UserEmail = ""
	if err := channel.Send(context.Background(), payload); err == nil {
		t.Fatal("expected error for missing address")
	}
}
