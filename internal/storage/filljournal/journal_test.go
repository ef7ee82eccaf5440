package filljournal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

func TestJournal_AppendAndReplay(t *testing.T) {
	journal, err := New(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	base := time.Now().Truncate(time.Millisecond).UTC()
	fills := []Fill{
		{OrderID: "1001", ProductID: "BTC-USDT", Side: domain.SideBuy,
			Price: decimal.NewFromInt(20000), Size: decimal.RequireFromString("0.01"),
			Fee: decimal.RequireFromString("0.00001"), Time: base},
		{OrderID: "1002", ProductID: "BTC-USDT", Side: domain.SideSell,
			Price: decimal.NewFromInt(21000), Size: decimal.RequireFromString("0.01"),
			Fee: decimal.RequireFromString("0.21"), Time: base.Add(time.Minute)},
	}
	for _, f := range fills {
		require.NoError(t, journal.Append(f))
	}

	replayed, err := journal.FillsAfter(0)
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	assert.Equal(t, domain.OrderID("1001"), replayed[0].OrderID)
	assert.True(t, replayed[0].Price.Equal(decimal.NewFromInt(20000)))
	assert.Equal(t, domain.SideSell, replayed[1].Side)

	// incremental readers resume from the last index they saw
	tail, err := journal.FillsAfter(journal.CurrentIndex() - 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, domain.OrderID("1002"), tail[0].OrderID)

	none, err := journal.FillsAfter(journal.CurrentIndex())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournal_AppendRequiresProduct(t *testing.T) {
	journal, err := New(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	assert.Error(t, journal.Append(Fill{OrderID: "1001"}))
}
