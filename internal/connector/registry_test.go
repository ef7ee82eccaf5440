package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_UnknownVenueIsTypedError(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.New("nosuch")
	require.Error(t, err)

	var unknown *ErrUnknownVenue
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nosuch", unknown.Venue)
}

func TestRegistry_EmptyVenueUsesDefault(t *testing.T) {
	registry := NewRegistry()
	registry.Register("binance", func() (Connector, error) { return nil, nil })
	registry.SetDefault("binance")

	_, err := registry.New("")
	assert.NoError(t, err)
}

func TestRegistry_Venues(t *testing.T) {
	registry := NewRegistry()
	registry.Register("hyperliquid", func() (Connector, error) { return nil, nil })
	registry.Register("binance", func() (Connector, error) { return nil, nil })

	assert.Equal(t, []string{"binance", "hyperliquid"}, registry.Venues())
}
