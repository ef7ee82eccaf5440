package balancesnapshots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWALStore_SaveAndReplay(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UnixMilli()
	snapshots := []Snapshot{
		{ProductID: "BTC-USDT", Currency: "1000", CurrencyHold: "0", Asset: "0", AssetHold: "0", Time: now},
		{ProductID: "BTC-USDT", Currency: "800", CurrencyHold: "200", Asset: "0", AssetHold: "0", Time: now + 60_000},
	}
	for _, s := range snapshots {
		require.NoError(t, store.Save(s))
	}

	records, err := store.SnapshotsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1000", records[0].Snapshot.Currency)
	assert.Equal(t, "200", records[1].Snapshot.CurrencyHold)
	assert.Less(t, records[0].Index, records[1].Index)

	tail, err := store.SnapshotsAfter(records[0].Index)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "800", tail[0].Snapshot.Currency)

	none, err := store.SnapshotsAfter(store.CurrentIndex())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWALStore_SaveRequiresProduct(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.Save(Snapshot{Currency: "1000"}))
}
