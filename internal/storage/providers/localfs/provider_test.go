package localfs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ccdsupport/ticketdesk/internal/storage"
)

func TestProviderRoundTrip(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx := context.Background()
	if err := p.Put(ctx, "packages/900.json", strings.NewReader(`{"id":"growth"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := p.Open(ctx, "packages/900.json")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != `{"id":"growth"}` {
		t.Fatalf("unexpected content %q", data)
	}

	keys, err := p.ListPrefix(ctx, "packages/9")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0] != "packages/900.json" {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err := p.Delete(ctx, "packages/900.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := p.Open(ctx, "packages/900.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := p.Delete(ctx, "packages/900.json"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestProviderRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	for _, key := range []string{"../x/y", "/etc/passwd", "single", "ns/"} {
		if err := p.Put(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}
