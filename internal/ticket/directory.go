package ticket

import (
	"sort"
	"strings"
	"sync"
)

// ChannelPrefix is prepended to normalized tokens to form provider channel names.
const ChannelPrefix = "ticket-"

// NormalizeToken strips a leading "ticket-" prefix and lower-cases the token.
func NormalizeToken(raw string) string {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.TrimPrefix(token, "#")
	token = strings.TrimPrefix(token, ChannelPrefix)
	return strings.TrimSpace(token)
}

// ChannelName returns the provider channel name for a ticket token.
func ChannelName(token string) string {
	return ChannelPrefix + NormalizeToken(token)
}

// Entry maps one ticket token to its provider channel.
type Entry struct {
	Token     string
	ChannelID string
	Initial   []Message
}

// Directory maps normalized ticket tokens to channel handles.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewDirectory() *Directory {
	return &Directory{entries: map[string]Entry{}}
}

// Put records the channel for token, replacing any previous handle.
func (d *Directory) Put(token, channelID string, initial []Message) Entry {
	entry := Entry{
		Token:     NormalizeToken(token),
		ChannelID: strings.TrimSpace(channelID),
		Initial:   append([]Message(nil), initial...),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[entry.Token] = entry
	return entry
}

// Lookup resolves a token in any accepted spelling.
func (d *Directory) Lookup(token string) (Entry, bool) {
	key := NormalizeToken(token)
	if key == "" {
		return Entry{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[key]
	return entry, ok
}

// ChannelID resolves a token to its channel handle.
func (d *Directory) ChannelID(token string) (string, bool) {
	entry, ok := d.Lookup(token)
	return entry.ChannelID, ok
}

// Remove drops the mapping for token.
func (d *Directory) Remove(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, NormalizeToken(token))
}

// Reset drops every mapping.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = map[string]Entry{}
}

// Tokens lists the known tokens in sorted order.
func (d *Directory) Tokens() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.entries))
	for token := range d.entries {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of mappings.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
