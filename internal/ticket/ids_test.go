package ticket

import "testing"

func TestCompareIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"9", "10", -1},
		{"110", "109", 1},
		{"123", "123", 0},
		{"", "1", -1},
		{"0042", "42", 0},
		{"1234567890123456789", "1234567890123456788", 1},
	}
	for _, tt := range tests {
		if got := CompareIDs(tt.a, tt.b); got != tt.want {
			t.Fatalf("CompareIDs(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNewestIDNeverMovesBackward(t *testing.T) {
	t.Parallel()

	if got := NewestID("100", "99"); got != "100" {
		t.Fatalf("expected 100, got %s", got)
	}
	if got := NewestID("", "5"); got != "5" {
		t.Fatalf("expected 5, got %s", got)
	}
	if got := NewestID("5", ""); got != "5" {
		t.Fatalf("expected 5, got %s", got)
	}
}

func TestSortProviderMessages(t *testing.T) {
	t.Parallel()

	items := []ProviderMessage{{ID: "100"}, {ID: "9"}, {ID: "12"}}
	SortProviderMessages(items)
	if items[0].ID != "9" || items[1].ID != "12" || items[2].ID != "100" {
		t.Fatalf("unexpected order: %+v", items)
	}
}
