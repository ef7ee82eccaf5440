package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is an external price/volume observation consumed once by the matching
// engine. Ticks for one product must arrive in non-decreasing time order.
type Tick struct {
	ProductID string
	Price     decimal.Decimal
	Size      decimal.Decimal
	Time      time.Time
}

// Trade is a public venue trade.
type Trade struct {
	TradeID   string
	ProductID string
	Price     decimal.Decimal
	Size      decimal.Decimal
	Side      Side
	Time      time.Time
}

// Tick converts a public trade into a matching-engine tick.
func (t Trade) Tick() Tick {
	return Tick{
		ProductID: t.ProductID,
		Price:     t.Price,
		Size:      t.Size,
		Time:      t.Time,
	}
}
