// Package packages persists the package chosen for each ticket channel.
package packages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ccdsupport/ticketdesk/internal/storage"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

const namespace = "packages"

// Selection is the stored record for one channel.
type Selection struct {
	ChannelID  string         `json:"channelId"`
	Package    ticket.Package `json:"package"`
	SelectedAt time.Time      `json:"selectedAt"`
}

type Store struct {
	provider storage.Provider
}

func NewStore(provider storage.Provider) *Store {
	return &Store{provider: provider}
}

// Save records pkg as the selection for channelID, replacing any earlier one.
func (s *Store) Save(ctx context.Context, channelID string, pkg ticket.Package) (Selection, error) {
	key, err := selectionKey(channelID)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{
		ChannelID:  strings.TrimSpace(channelID),
		Package:    pkg,
		SelectedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(sel)
	if err != nil {
		return Selection{}, fmt.Errorf("marshal selection: %w", err)
	}
	if err := s.provider.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return Selection{}, fmt.Errorf("save selection: %w", err)
	}
	return sel, nil
}

// Get returns the stored selection. ok is false when nothing was selected.
func (s *Store) Get(ctx context.Context, channelID string) (Selection, bool, error) {
	key, err := selectionKey(channelID)
	if err != nil {
		return Selection{}, false, err
	}
	rc, err := s.provider.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Selection{}, false, nil
		}
		return Selection{}, false, err
	}
	defer rc.Close()
	var sel Selection
	if err := json.NewDecoder(rc).Decode(&sel); err != nil {
		return Selection{}, false, fmt.Errorf("decode selection: %w", err)
	}
	return sel, true, nil
}

// Delete forgets the selection for channelID.
func (s *Store) Delete(ctx context.Context, channelID string) error {
	key, err := selectionKey(channelID)
	if err != nil {
		return err
	}
	return s.provider.Delete(ctx, key)
}

func selectionKey(channelID string) (string, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" || strings.ContainsAny(channelID, `/\.`) {
		return "", fmt.Errorf("invalid channel id %q", channelID)
	}
	return namespace + "/" + channelID + ".json", nil
}
