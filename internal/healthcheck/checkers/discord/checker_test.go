package discordchecker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ccdsupport/ticketdesk/internal/healthcheck"
	"github.com/ccdsupport/ticketdesk/internal/protocol"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

type fakeRelay struct {
	configured bool
	ids        ticket.Identities
	channels   []protocol.ChannelInfo
	err        error
}

func (f *fakeRelay) Configured() bool { return f.configured }

func (f *fakeRelay) Identities(context.Context) ticket.Identities { return f.ids }

func (f *fakeRelay) ListCategoryChannels(context.Context, string, string) ([]protocol.ChannelInfo, error) {
	return f.channels, f.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckerMissingToken(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), &fakeRelay{}).ListChecks(context.Background())
	if len(items) != 1 {
		t.Fatalf("expected 1 check, got %d", len(items))
	}
	if items[0].ID != checkTypeToken || items[0].Status != healthcheck.StatusError {
		t.Fatalf("unexpected check: %+v", items[0])
	}
}

func TestCheckerHealthy(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), &fakeRelay{
		configured: true,
		ids:        ticket.Identities{BotID: "bot", SupportID: "staff"},
		channels:   []protocol.ChannelInfo{{ID: "1"}, {ID: "2"}},
	}).ListChecks(context.Background())
	if len(items) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(items))
	}
	for _, item := range items {
		if item.Status != healthcheck.StatusOK {
			t.Fatalf("expected ok for %s, got %s", item.ID, item.Status)
		}
	}
	if items[2].Metadata["channel_count"] != 2 {
		t.Fatalf("expected channel_count 2, got %v", items[2].Metadata["channel_count"])
	}
}

func TestCheckerCategoryFailure(t *testing.T) {
	t.Parallel()

	items := NewChecker(newTestLogger(), &fakeRelay{
		configured: true,
		ids:        ticket.Identities{SupportID: "staff"},
		err:        errors.New("missing access"),
	}).ListChecks(context.Background())
	if items[1].Status != healthcheck.StatusWarn {
		t.Fatalf("expected warn for unresolved bot user, got %s", items[1].Status)
	}
	if items[2].Status != healthcheck.StatusError || items[2].Detail != "missing access" {
		t.Fatalf("unexpected category check: %+v", items[2])
	}
}
