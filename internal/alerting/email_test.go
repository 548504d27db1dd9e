package alerting

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestEmailNotify(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	notifier := NewEmailNotifier("smtp.example.com", 587, "user", "pass", "bot@example.com", "ops@example.com", zerolog.Nop())
	notifier.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		if auth == nil {
			t.Fatal("expected plain auth when a username is set")
		}
		return nil
	}

	if err := notifier.Notify(context.Background(), testDeal()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("unexpected addr %q", gotAddr)
	}
	if gotFrom != "bot@example.com" {
		t.Fatalf("unexpected from %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Flight deal: CDG -> NRT at 150.00 EUR") {
		t.Fatalf("message missing subject:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "Usual price: ~413.50 EUR") {
		t.Fatalf("message missing body line:\n%s", gotMsg)
	}
}

func TestEmailNotifyNoAuthWithoutUsername(t *testing.T) {
	notifier := NewEmailNotifier("localhost", 25, "", "", "a@b", "c@d", zerolog.Nop())
	notifier.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		if auth != nil {
			t.Fatal("expected nil auth without a username")
		}
		return nil
	}
	if err := notifier.Notify(context.Background(), testDeal()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmailNotifySendFailure(t *testing.T) {
	notifier := NewEmailNotifier("localhost", 25, "", "", "a@b", "c@d", zerolog.Nop())
	notifier.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}
	err := notifier.Notify(context.Background(), testDeal())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

func TestEmailNotifyHonoursCancelledContext(t *testing.T) {
	notifier := NewEmailNotifier("localhost", 25, "", "", "a@b", "c@d", zerolog.Nop())
	called := false
	notifier.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := notifier.Notify(ctx, testDeal()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("send must not run after cancellation")
	}
}
