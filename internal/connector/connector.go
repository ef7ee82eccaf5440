// Package connector defines the capability contract every venue backend
// satisfies: live centralized exchanges, decentralized swap venues, and the
// local simulator. The trading loop programs against this interface only.
package connector

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

// BalanceQuery selects the instrument whose balance to shape.
type BalanceQuery struct {
	ProductID    string
	Asset        string
	Currency     string
	PositionSide domain.PositionSide
}

// TradesQuery selects a public trade window.
type TradesQuery struct {
	ProductID   string
	From        int64 // unix millis, 0 for "recent"
	To          int64
	LastTradeID string
	Limit       int
}

// KLinesQuery selects a candle window.
type KLinesQuery struct {
	ProductID string
	Period    string
	From      int64 // unix millis, 0 for "latest"
	Limit     int
}

// QuoteQuery selects the instrument to quote.
type QuoteQuery struct {
	ProductID string
}

// TickersQuery selects instruments for a bulk ticker snapshot; empty means
// all session symbols.
type TickersQuery struct {
	Products []domain.Instrument
}

// DepthQuery selects an order book snapshot.
type DepthQuery struct {
	ProductID string
	Limit     int
}

// OrderRequest is the input to Buy and Sell.
type OrderRequest struct {
	ProductID    string
	Size         decimal.Decimal
	Price        decimal.Decimal
	OrderType    domain.OrderType
	PostOnly     bool
	PositionSide domain.PositionSide
}

// OrderQuery addresses a single existing order.
type OrderQuery struct {
	OrderID   domain.OrderID
	ProductID string
}

// OrdersQuery selects historical/open orders.
type OrdersQuery struct {
	ProductID string
	Since     int64
	Limit     int
}

// LeverageQuery configures futures leverage for an instrument.
type LeverageQuery struct {
	ProductID string
	Leverage  int
}

// MarginModeQuery configures the futures margin mode for an instrument.
type MarginModeQuery struct {
	ProductID string
	Isolated  bool
}

// Connector is the uniform operation set over interchangeable backends.
// Every method blocks until completion or ctx cancellation; callers run them
// from their own goroutines when they want requests in flight concurrently.
// All methods are idempotent-safe under the retry policy: re-issuing a
// request after a transient failure is not observably different from issuing
// it once.
//
// Trading operations never return business rejections as errors; a rejected
// buy or sell comes back as an Order with status rejected and a reject
// reason the strategy layer can branch on.
type Connector interface {
	// RefreshProducts fetches and persists the instrument catalog when force
	// is set, otherwise returns the last persisted snapshot.
	RefreshProducts(ctx context.Context, force bool) ([]domain.Instrument, error)

	GetBalance(ctx context.Context, q BalanceQuery) (*domain.Balance, error)
	GetTrades(ctx context.Context, q TradesQuery) ([]domain.Trade, error)
	GetKLines(ctx context.Context, q KLinesQuery) ([]domain.Candle, error)
	GetQuote(ctx context.Context, q QuoteQuery) (*domain.Quote, error)
	GetTickers(ctx context.Context, q TickersQuery) (map[string]domain.Ticker, error)
	GetDepth(ctx context.Context, q DepthQuery) (*domain.OrderBook, error)

	Buy(ctx context.Context, req OrderRequest) (*domain.Order, error)
	Sell(ctx context.Context, req OrderRequest) (*domain.Order, error)
	// CancelOrder is a no-op returning nil when the order is already done,
	// cancelled or unknown.
	CancelOrder(ctx context.Context, q OrderQuery) error
	GetOrder(ctx context.Context, q OrderQuery) (*domain.Order, error)
	GetOrders(ctx context.Context, q OrdersQuery) ([]domain.Order, error)

	// UpdateLeverage and UpdateMarginMode are futures-only; spot venues
	// treat them as no-ops.
	UpdateLeverage(ctx context.Context, q LeverageQuery) error
	UpdateMarginMode(ctx context.Context, q MarginModeQuery) error

	// InitFees loads maker/taker fee rates from venue credentials or config
	// overrides. Must be called before trading.
	InitFees(ctx context.Context) error
	// Fees returns the maker and taker fee rates as percentages.
	Fees() (maker, taker decimal.Decimal)
}
