package domain

import "github.com/shopspring/decimal"

// Balance is the per-session, per-instrument account state. Currency is the
// quote side, Asset the base side; the hold fields are the portions reserved
// by open orders and are recomputed from the open-order set, never drifted
// incrementally.
type Balance struct {
	Currency     decimal.Decimal `json:"currency"`
	CurrencyHold decimal.Decimal `json:"currency_hold"`
	Asset        decimal.Decimal `json:"asset"`
	AssetHold    decimal.Decimal `json:"asset_hold"`

	// Futures-only fields; zero-valued on spot venues.
	UnrealizedProfit decimal.Decimal `json:"unrealizedProfit,omitempty"`
	Leverage         int             `json:"leverage,omitempty"`
	Isolated         bool            `json:"isolated,omitempty"`
	PositionSide     PositionSide    `json:"positionSide,omitempty"`
}

// AvailableCurrency is quote balance not reserved by open buy orders.
func (b *Balance) AvailableCurrency() decimal.Decimal {
	return b.Currency.Sub(b.CurrencyHold)
}

// AvailableAsset is base balance not reserved by open sell orders.
func (b *Balance) AvailableAsset() decimal.Decimal {
	return b.Asset.Sub(b.AssetHold)
}
