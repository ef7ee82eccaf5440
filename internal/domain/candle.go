package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a time-bucketed OHLCV sample.
type Candle struct {
	OpenTime  time.Time
	CloseTime time.Time
	Period    string
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Quote is the current best bid/ask.
type Quote struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// Ticker is a venue ticker snapshot keyed by normalized instrument.
type Ticker struct {
	ProductID  string
	Normalized string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	Last       decimal.Decimal
	Volume     decimal.Decimal
	Time       time.Time
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook is a depth snapshot, bids descending and asks ascending.
type OrderBook struct {
	ProductID string
	Bids      []BookLevel
	Asks      []BookLevel
	Time      time.Time
}
