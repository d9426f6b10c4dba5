package email

import (
	"context"
	"strings"
	"testing"

	"clinic/internal/platform/config"
)

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	mailer := New(config.Config{EmailEnabled: false, SMTPHost: "smtp.example.com"})
	if _, ok := mailer.(noopMailer); !ok {
		t.Fatalf("expected noop mailer, got %T", mailer)
	}
	if err := mailer.Send(context.Background(), "a@example.com", "b@example.com", "s", "b"); err != nil {
		t.Fatalf("noop send: %v", err)
	}
}

func TestBuildMessageStripsHeaderInjection(t *testing.T) {
	msg := string(buildMessage("ops@example.com", "a@example.com", "Payroll run voided\r\nBcc: evil@example.com", "body"))
	if strings.Contains(msg, "\r\nBcc:") {
		t.Fatalf("expected subject line breaks removed, got %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nbody") {
		t.Fatalf("expected blank line before body, got %q", msg)
	}
}

func TestSplitRecipients(t *testing.T) {
	got := splitRecipients(" a@example.com, ,b@example.com ")
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Fatalf("unexpected recipients %v", got)
	}
}
