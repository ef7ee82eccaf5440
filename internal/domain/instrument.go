// Package domain defines core data structures shared by every connector.
package domain

import "fmt"

// Instrument is a venue-scoped tradable pair together with the trading
// constraints needed to round order sizes and prices correctly.
type Instrument struct {
	// ID is the venue's own symbol identifier (for example "BTCUSDT").
	ID string `json:"id"`
	// Asset is the base currency symbol.
	Asset string `json:"asset"`
	// Currency is the quote currency symbol.
	Currency string `json:"currency"`
	// Venue identifies the exchange this instrument belongs to.
	Venue string `json:"venue"`
	// ProductID is the venue-qualified pair identifier, e.g. "BTC-USDT".
	ProductID string `json:"product_id"`
	// Normalized is the globally-unique key "venue.ASSET-CURRENCY".
	Normalized string `json:"normalized"`
	// Label is a human-readable pair label, e.g. "BTC/USDT".
	Label string `json:"label"`
	// Active reports whether the venue currently allows trading the pair.
	Active bool `json:"active"`

	// MinSize is the smallest order size the venue accepts, as a plain
	// decimal string.
	MinSize string `json:"min_size"`
	// PriceIncrement is the price tick size as a plain decimal string.
	PriceIncrement string `json:"increment"`
	// SizeIncrement is the size step as a plain decimal string.
	SizeIncrement string `json:"asset_increment"`

	// MakerRate and TakerRate are per-market fee percentages reported by the
	// venue, empty when the venue does not publish them.
	MakerRate string `json:"maker,omitempty"`
	TakerRate string `json:"taker,omitempty"`
}

// String returns the normalized key.
func (i Instrument) String() string {
	return i.Normalized
}

// NormalizedKey builds the cross-venue instrument key.
func NormalizedKey(venue, asset, currency string) string {
	return fmt.Sprintf("%s.%s-%s", venue, asset, currency)
}

// ProductKey builds the venue-local pair identifier.
func ProductKey(asset, currency string) string {
	return fmt.Sprintf("%s-%s", asset, currency)
}
