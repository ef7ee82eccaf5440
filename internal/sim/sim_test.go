package sim

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/connector"
	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

func newBacktestSim(t *testing.T, cfg Config) *Sim {
	t.Helper()
	cfg.Backtest = true
	cfg.Logger = zap.NewNop()
	if cfg.Currency.IsZero() && cfg.Asset.IsZero() {
		cfg.Currency = decimal.NewFromInt(1000)
	}
	s := New(cfg)
	s.RegisterInstrument(domain.Instrument{
		ProductID:      "BTC-USDT",
		Asset:          "BTC",
		Currency:       "USDT",
		Normalized:     "binance.BTC-USDT",
		PriceIncrement: "0.01",
		SizeIncrement:  "0.0001",
	})
	return s
}

func TestSim_BacktestBuyAutoFills(t *testing.T) {
	s := newBacktestSim(t, Config{
		MakerFee: decimal.RequireFromString("0.1"),
		TakerFee: decimal.RequireFromString("0.2"),
	})
	require.NoError(t, s.InitFees(context.Background()))

	order, err := s.Buy(context.Background(), connector.OrderRequest{
		ProductID: "BTC-USDT",
		Size:      decimal.RequireFromString("0.01"),
		Price:     decimal.NewFromInt(20000),
		OrderType: domain.OrderTypeMaker,
	})
	require.NoError(t, err)
	require.NotNil(t, order)

	// backtest mode settles against a synthetic tick immediately
	got, err := s.GetOrder(context.Background(), connector.OrderQuery{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)
	assert.True(t, got.FilledSize.Equal(got.OrigSize))

	bal, err := s.GetBalance(context.Background(), connector.BalanceQuery{ProductID: "BTC-USDT"})
	require.NoError(t, err)
	assert.True(t, bal.Currency.Equal(decimal.NewFromInt(800)), "currency = %s", bal.Currency)
	assert.True(t, bal.CurrencyHold.IsZero())
}

func TestSim_RejectionIsAResultNotAnError(t *testing.T) {
	s := newBacktestSim(t, Config{})
	require.NoError(t, s.InitFees(context.Background()))

	order, err := s.Buy(context.Background(), connector.OrderRequest{
		ProductID: "BTC-USDT",
		Size:      decimal.RequireFromString("0.1"),
		Price:     decimal.NewFromInt(20000),
		OrderType: domain.OrderTypeMaker,
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.StatusRejected, order.Status)
	assert.Equal(t, domain.RejectReasonBalance, order.RejectReason)

	orders, err := s.GetOrders(context.Background(), connector.OrdersQuery{ProductID: "BTC-USDT"})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestSim_CancelDoneOrderIsNoop(t *testing.T) {
	s := newBacktestSim(t, Config{})
	require.NoError(t, s.InitFees(context.Background()))

	order, err := s.Buy(context.Background(), connector.OrderRequest{
		ProductID: "BTC-USDT",
		Size:      decimal.RequireFromString("0.01"),
		Price:     decimal.NewFromInt(20000),
		OrderType: domain.OrderTypeMaker,
	})
	require.NoError(t, err)

	before, err := s.GetBalance(context.Background(), connector.BalanceQuery{ProductID: "BTC-USDT"})
	require.NoError(t, err)

	require.NoError(t, s.CancelOrder(context.Background(), connector.OrderQuery{OrderID: order.ID}))

	got, err := s.GetOrder(context.Background(), connector.OrderQuery{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)

	after, err := s.GetBalance(context.Background(), connector.BalanceQuery{ProductID: "BTC-USDT"})
	require.NoError(t, err)
	assert.True(t, before.Currency.Equal(after.Currency))
	assert.True(t, before.Asset.Equal(after.Asset))
}

func TestSim_FuturesScalesFeesByLeverage(t *testing.T) {
	s := newBacktestSim(t, Config{
		Future:   true,
		Leverage: 10,
		MakerFee: decimal.RequireFromString("0.02"),
		TakerFee: decimal.RequireFromString("0.05"),
	})
	require.NoError(t, s.InitFees(context.Background()))

	// reported rates stay raw; only the engine applies the leverage multiple
	maker, taker := s.Fees()
	assert.True(t, maker.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, taker.Equal(decimal.RequireFromString("0.05")))

	order, err := s.Buy(context.Background(), connector.OrderRequest{
		ProductID: "BTC-USDT",
		Size:      decimal.NewFromInt(1),
		Price:     decimal.NewFromInt(100),
		OrderType: domain.OrderTypeMaker,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusDone, mustOrder(t, s, order.ID).Status)

	bal, err := s.GetBalance(context.Background(), connector.BalanceQuery{ProductID: "BTC-USDT"})
	require.NoError(t, err)
	// buy fee comes out of the asset leg: 1 - 1*0.02%*10 = 0.998
	assert.True(t, bal.Asset.Equal(decimal.RequireFromString("0.998")), "asset = %s", bal.Asset)
	assert.Equal(t, 10, bal.Leverage)
}

func TestSim_BacktestQuoteFollowsLastTick(t *testing.T) {
	s := newBacktestSim(t, Config{})

	quote, err := s.GetQuote(context.Background(), connector.QuoteQuery{ProductID: "BTC-USDT"})
	require.NoError(t, err)
	assert.True(t, quote.Bid.IsZero())

	s.ProcessTick(domain.Tick{ProductID: "BTC-USDT", Price: decimal.NewFromInt(123)})
	quote, err = s.GetQuote(context.Background(), connector.QuoteQuery{ProductID: "BTC-USDT"})
	require.NoError(t, err)
	assert.True(t, quote.Bid.Equal(decimal.NewFromInt(123)))
	assert.True(t, quote.Ask.Equal(decimal.NewFromInt(123)))
}

func TestSim_StatePersistsAcrossSessions(t *testing.T) {
	dir := t.TempDir()

	s := newBacktestSim(t, Config{StateDir: dir})
	require.NoError(t, s.InitFees(context.Background()))

	_, err := s.Buy(context.Background(), connector.OrderRequest{
		ProductID: "BTC-USDT",
		Size:      decimal.RequireFromString("0.01"),
		Price:     decimal.NewFromInt(20000),
		OrderType: domain.OrderTypeMaker,
	})
	require.NoError(t, err)

	// a new session over the same state dir resumes the mutated balances
	restarted := newBacktestSim(t, Config{StateDir: dir})
	bal, err := restarted.GetBalance(context.Background(), connector.BalanceQuery{ProductID: "BTC-USDT"})
	require.NoError(t, err)
	assert.True(t, bal.Currency.Equal(decimal.NewFromInt(800)), "currency = %s", bal.Currency)
	assert.True(t, bal.Asset.Equal(decimal.RequireFromString("0.01")), "asset = %s", bal.Asset)
}

func mustOrder(t *testing.T, s *Sim, id domain.OrderID) *domain.Order {
	t.Helper()
	order, err := s.GetOrder(context.Background(), connector.OrderQuery{OrderID: id})
	require.NoError(t, err)
	return order
}
