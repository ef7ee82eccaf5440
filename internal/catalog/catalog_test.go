package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

type staticFetcher struct {
	products []domain.Instrument
}

func (f *staticFetcher) FetchProducts(ctx context.Context) ([]domain.Instrument, error) {
	return f.products, nil
}

func testInstrument() domain.Instrument {
	return domain.Instrument{
		ID:             "BTCUSDT",
		ProductID:      "BTCUSDT",
		Asset:          "BTC",
		Currency:       "USDT",
		Venue:          "binance",
		Normalized:     "binance.BTC-USDT",
		Label:          "BTC/USDT",
		Active:         true,
		MinSize:        "1e-5",
		PriceIncrement: "0.01",
		SizeIncrement:  "1E-4",
	}
}

func TestCatalog_RefreshNormalizesAndPersists(t *testing.T) {
	repo := NewFileRepository(t.TempDir())
	cat := New("binance", repo, &staticFetcher{products: []domain.Instrument{
		testInstrument(),
		{ID: "DEADUSDT", ProductID: "DEADUSDT", Active: false},
	}}, nil)

	products, err := cat.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, products, 1, "inactive instruments are filtered out")

	// scientific notation collapses to plain decimal strings
	assert.Equal(t, "0.00001", products[0].MinSize)
	assert.Equal(t, "0.0001", products[0].SizeIncrement)
	assert.Equal(t, "0.01", products[0].PriceIncrement)
}

func TestFileRepository_SaveCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exchanges")
	repo := NewFileRepository(dir)

	// a repository over a directory that does not exist yet loads empty
	products, err := repo.Load("binance")
	require.NoError(t, err)
	assert.Empty(t, products)

	require.NoError(t, repo.Save("binance", []domain.Instrument{testInstrument()}))
	reloaded, err := repo.Load("binance")
	require.NoError(t, err)
	assert.Len(t, reloaded, 1)
}

func TestCatalog_SnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	repo := NewFileRepository(dir)
	cat := New("binance", repo, &staticFetcher{products: []domain.Instrument{testInstrument()}}, nil)

	written, err := cat.Refresh(context.Background(), true)
	require.NoError(t, err)

	// a fresh catalog over the same dir must reload the identical record
	reloaded := New("binance", NewFileRepository(dir), nil, nil)
	got := reloaded.Get()
	require.Len(t, got, 1)
	assert.Equal(t, written[0], got[0])
}

func TestCatalog_GetWithoutSnapshotIsEmptyNotError(t *testing.T) {
	cat := New("binance", NewFileRepository(t.TempDir()), nil, nil)
	assert.Empty(t, cat.Get())
}

func TestCatalog_RefreshWithoutForceServesSnapshot(t *testing.T) {
	fetcher := &staticFetcher{products: []domain.Instrument{testInstrument()}}
	cat := New("binance", NewFileRepository(t.TempDir()), fetcher, nil)

	_, err := cat.Refresh(context.Background(), true)
	require.NoError(t, err)

	// mutate the venue side; an unforced refresh must not see it
	fetcher.products = nil
	products, err := cat.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestCatalog_Normalize(t *testing.T) {
	cat := New("binance", NewFileRepository(t.TempDir()), &staticFetcher{products: []domain.Instrument{testInstrument()}}, nil)
	_, err := cat.Refresh(context.Background(), true)
	require.NoError(t, err)

	for _, selector := range []string{"binance.BTC-USDT", "BTCUSDT", "btcusdt"} {
		inst := cat.Normalize(selector)
		require.NotNil(t, inst, selector)
		assert.Equal(t, "binance.BTC-USDT", inst.Normalized)
	}

	assert.Nil(t, cat.Normalize("binance.DOGE-USDT"))
	assert.Nil(t, cat.Normalize(""))
}

func TestNormalizeNumeric(t *testing.T) {
	assert.Equal(t, "0.00000001", NormalizeNumeric("1e-8"))
	assert.Equal(t, "12345", NormalizeNumeric("1.2345E4"))
	assert.Equal(t, "0.01", NormalizeNumeric("0.01"))
	assert.Equal(t, "", NormalizeNumeric(""))
	assert.Equal(t, "not-a-number", NormalizeNumeric("not-a-number"))
}

func TestIncrementFromPrecision(t *testing.T) {
	assert.Equal(t, "0.0001", IncrementFromPrecision(4))
	assert.Equal(t, "1", IncrementFromPrecision(0))
}
