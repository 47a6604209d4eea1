package mailchecker

import (
	"context"
	"testing"

	"github.com/ccdsupport/ticketdesk/internal/config"
	"github.com/ccdsupport/ticketdesk/internal/healthcheck"
)

func TestCheckerDisabled(t *testing.T) {
	t.Parallel()

	items := NewChecker(config.MailConfig{}).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusWarn {
		t.Fatalf("unexpected checks: %+v", items)
	}
}

func TestCheckerEnabled(t *testing.T) {
	t.Parallel()

	items := NewChecker(config.MailConfig{Host: "smtp.example.com", Port: 587, From: "support@example.com"}).ListChecks(context.Background())
	if len(items) != 1 || items[0].Status != healthcheck.StatusOK {
		t.Fatalf("unexpected checks: %+v", items)
	}
	if items[0].Metadata["host"] != "smtp.example.com" {
		t.Fatalf("expected host metadata, got %v", items[0].Metadata)
	}
}
