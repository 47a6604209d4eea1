package packages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccdsupport/ticketdesk/internal/storage/providers/localfs"
	"github.com/ccdsupport/ticketdesk/internal/ticket"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	provider, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	return NewStore(provider)
}

func TestStoreSaveGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "900")
	require.NoError(t, err)
	assert.False(t, ok)

	growth, _ := ticket.FindPackage(ticket.DefaultCatalog, "growth")
	_, err = store.Save(ctx, "900", growth)
	require.NoError(t, err)

	sel, ok, err := store.Get(ctx, "900")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "growth", sel.Package.ID)
	assert.Equal(t, "900", sel.ChannelID)

	require.NoError(t, store.Delete(ctx, "900"))
	_, ok, err = store.Get(ctx, "900")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreRejectsInvalidChannelID(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Save(context.Background(), "../x", ticket.Package{ID: "starter"})
	assert.Error(t, err)
}
