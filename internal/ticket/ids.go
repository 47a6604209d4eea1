package ticket

import (
	"sort"
	"strings"
)

// CompareIDs orders provider snowflake identifiers numerically. Identifiers are decimal strings,
// so a longer identifier is newer. It returns -1, 0 or 1.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(strings.TrimSpace(a), "0")
	b = strings.TrimLeft(strings.TrimSpace(b), "0")
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return strings.Compare(a, b)
}

// NewestID returns whichever identifier is newer.
func NewestID(a, b string) string {
	if CompareIDs(b, a) > 0 {
		return strings.TrimSpace(b)
	}
	return strings.TrimSpace(a)
}

// SortProviderMessages orders messages oldest first.
func SortProviderMessages(items []ProviderMessage) {
	sort.SliceStable(items, func(i, j int) bool {
		return CompareIDs(items[i].ID, items[j].ID) < 0
	})
}
