package sim

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
	"github.com/daniel-lucas-silva/xcoin/internal/ledger"
	"github.com/daniel-lucas-silva/xcoin/internal/storage/filljournal"
)

func newTestEngine(t *testing.T, cfg EngineConfig, currency, asset string) (*Engine, *ledger.Book) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	book := ledger.NewBook()
	book.Init("BTC-USDT", decimal.RequireFromString(currency), decimal.RequireFromString(asset))
	e := NewEngine(cfg, book)
	e.RegisterInstrument(domain.Instrument{
		ProductID:      "BTC-USDT",
		PriceIncrement: "0.01",
		SizeIncrement:  "0.0001",
	})
	return e, book
}

func TestEngine_BuyFillMovesBalances(t *testing.T) {
	e, book := newTestEngine(t, EngineConfig{
		MakerFee: decimal.RequireFromString("0.1"),
	}, "1000", "0")

	now := time.Now()
	order := e.Submit(domain.SideBuy, "BTC-USDT", domain.OrderTypeMaker,
		decimal.NewFromInt(20000), decimal.RequireFromString("0.01"), false, "", now)
	require.Equal(t, domain.StatusOpen, order.Status)
	assert.Equal(t, "1001", string(order.ID))

	// admitted order holds its cost
	bal := book.Snapshot("BTC-USDT")
	assert.True(t, bal.CurrencyHold.Equal(decimal.NewFromInt(200)), "hold = %s", bal.CurrencyHold)

	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT",
		Price:     decimal.NewFromInt(19900),
		Size:      decimal.NewFromInt(1),
		Time:      now.Add(time.Second),
	})

	got := e.Order(order.ID)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusDone, got.Status)
	assert.True(t, got.FilledSize.Add(got.RemainingSize).Equal(got.OrigSize))

	bal = book.Snapshot("BTC-USDT")
	// fee 0.1% of size: 0.01 - 0.00001 = 0.00999
	assert.True(t, bal.Asset.Equal(decimal.RequireFromString("0.01")), "asset = %s", bal.Asset)
	assert.True(t, bal.Currency.Equal(decimal.NewFromInt(800)), "currency = %s", bal.Currency)
	assert.True(t, bal.CurrencyHold.IsZero())
}

func TestEngine_BuyRejectedOnInsufficientBalance(t *testing.T) {
	e, book := newTestEngine(t, EngineConfig{}, "1000", "0")

	order := e.Submit(domain.SideBuy, "BTC-USDT", domain.OrderTypeMaker,
		decimal.NewFromInt(20000), decimal.RequireFromString("0.1"), false, "", time.Now())

	require.Equal(t, domain.StatusRejected, order.Status)
	assert.Equal(t, domain.RejectReasonBalance, order.RejectReason)
	assert.Empty(t, order.ID)
	assert.Empty(t, e.Orders("BTC-USDT", 0, 0))

	bal := book.Snapshot("BTC-USDT")
	assert.True(t, bal.CurrencyHold.IsZero())
	assert.True(t, bal.AssetHold.IsZero())
}

func TestEngine_SellRejectedWithoutAsset(t *testing.T) {
	e, _ := newTestEngine(t, EngineConfig{}, "1000", "0.5")

	order := e.Submit(domain.SideSell, "BTC-USDT", domain.OrderTypeMaker,
		decimal.NewFromInt(20000), decimal.NewFromInt(1), false, "", time.Now())

	require.Equal(t, domain.StatusRejected, order.Status)
	assert.Equal(t, domain.RejectReasonBalance, order.RejectReason)
}

func TestEngine_SettleDelayIgnoresEarlyTicks(t *testing.T) {
	e, _ := newTestEngine(t, EngineConfig{
		SettleDelay: 5 * time.Second,
	}, "0", "1")

	t0 := time.Now()
	order := e.Submit(domain.SideSell, "BTC-USDT", domain.OrderTypeMaker,
		decimal.NewFromInt(100), decimal.NewFromInt(1), false, "", t0)
	require.Equal(t, domain.StatusOpen, order.Status)

	// first tick arrives before the settle delay and must be ignored even
	// though 95 < 100 would not match anyway; use a matching price
	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT", Price: decimal.NewFromInt(105),
		Size: decimal.NewFromInt(1), Time: t0.Add(time.Second),
	})
	assert.Equal(t, domain.StatusOpen, e.Order(order.ID).Status)

	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT", Price: decimal.NewFromInt(105),
		Size: decimal.NewFromInt(1), Time: t0.Add(5*time.Second + time.Millisecond),
	})
	assert.Equal(t, domain.StatusDone, e.Order(order.ID).Status)
}

func TestEngine_PartialFillsKeepOrderOpen(t *testing.T) {
	e, book := newTestEngine(t, EngineConfig{}, "0", "2")

	t0 := time.Now()
	order := e.Submit(domain.SideSell, "BTC-USDT", domain.OrderTypeTaker,
		decimal.NewFromInt(100), decimal.NewFromInt(1), false, "", t0)
	require.Equal(t, domain.StatusOpen, order.Status)

	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT", Price: decimal.NewFromInt(100),
		Size: decimal.RequireFromString("0.4"), Time: t0.Add(time.Second),
	})

	got := e.Order(order.ID)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.True(t, got.FilledSize.Equal(decimal.RequireFromString("0.4")))
	assert.True(t, got.RemainingSize.Equal(decimal.RequireFromString("0.6")))
	assert.True(t, got.FilledSize.Add(got.RemainingSize).Equal(got.OrigSize))

	// hold shrinks with the remaining size
	assert.True(t, book.Snapshot("BTC-USDT").AssetHold.Equal(decimal.RequireFromString("0.6")))

	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT", Price: decimal.NewFromInt(100),
		Size: decimal.NewFromInt(5), Time: t0.Add(2 * time.Second),
	})
	got = e.Order(order.ID)
	assert.Equal(t, domain.StatusDone, got.Status)
	assert.True(t, book.Snapshot("BTC-USDT").AssetHold.IsZero())
}

func TestEngine_ZeroSizeTickFillsFully(t *testing.T) {
	e, _ := newTestEngine(t, EngineConfig{}, "0", "1")

	t0 := time.Now()
	order := e.Submit(domain.SideSell, "BTC-USDT", domain.OrderTypeTaker,
		decimal.NewFromInt(100), decimal.NewFromInt(1), false, "", t0)

	// ticker-derived ticks carry no size and stand for unbounded liquidity
	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT", Price: decimal.NewFromInt(101), Time: t0.Add(time.Second),
	})
	assert.Equal(t, domain.StatusDone, e.Order(order.ID).Status)
}

func TestEngine_CancelReleasesHold(t *testing.T) {
	e, book := newTestEngine(t, EngineConfig{}, "1000", "0")

	order := e.Submit(domain.SideBuy, "BTC-USDT", domain.OrderTypeMaker,
		decimal.NewFromInt(100), decimal.NewFromInt(1), false, "", time.Now())
	require.True(t, book.Snapshot("BTC-USDT").CurrencyHold.Equal(decimal.NewFromInt(100)))

	e.Cancel(order.ID)
	got := e.Order(order.ID)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.True(t, book.Snapshot("BTC-USDT").CurrencyHold.IsZero())

	// cancelling again (or cancelling unknown ids) is a success no-op
	before := book.Snapshot("BTC-USDT")
	e.Cancel(order.ID)
	e.Cancel("no-such-order")
	after := book.Snapshot("BTC-USDT")
	assert.Equal(t, domain.StatusCancelled, e.Order(order.ID).Status)
	assert.True(t, before.Currency.Equal(after.Currency))
	assert.True(t, before.CurrencyHold.Equal(after.CurrencyHold))
}

func TestEngine_MakerSlippageIsAdverse(t *testing.T) {
	e, book := newTestEngine(t, EngineConfig{
		SlippagePct: decimal.NewFromInt(1),
	}, "1000", "0")

	t0 := time.Now()
	order := e.Submit(domain.SideBuy, "BTC-USDT", domain.OrderTypeMaker,
		decimal.NewFromInt(100), decimal.NewFromInt(1), false, "", t0)

	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT", Price: decimal.NewFromInt(99),
		Size: decimal.NewFromInt(1), Time: t0.Add(time.Second),
	})
	require.Equal(t, domain.StatusDone, e.Order(order.ID).Status)

	// paid 100 * 1.01 = 101, not the tick price
	bal := book.Snapshot("BTC-USDT")
	assert.True(t, bal.Currency.Equal(decimal.NewFromInt(899)), "currency = %s", bal.Currency)
}

func TestEngine_TakerFillsAtTickPrice(t *testing.T) {
	e, book := newTestEngine(t, EngineConfig{}, "1000", "0")

	t0 := time.Now()
	order := e.Submit(domain.SideBuy, "BTC-USDT", domain.OrderTypeTaker,
		decimal.NewFromInt(100), decimal.NewFromInt(1), false, "", t0)

	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT", Price: decimal.NewFromInt(98),
		Size: decimal.NewFromInt(1), Time: t0.Add(time.Second),
	})
	require.Equal(t, domain.StatusDone, e.Order(order.ID).Status)

	bal := book.Snapshot("BTC-USDT")
	assert.True(t, bal.Currency.Equal(decimal.NewFromInt(902)), "currency = %s", bal.Currency)
}

func TestEngine_ShortCloseRealizesInversePnl(t *testing.T) {
	e, book := newTestEngine(t, EngineConfig{}, "1000", "0")

	t0 := time.Now()
	buy := e.Submit(domain.SideBuy, "BTC-USDT", domain.OrderTypeTaker,
		decimal.NewFromInt(100), decimal.NewFromInt(1), false, domain.PositionSideShort, t0)
	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT", Price: decimal.NewFromInt(100),
		Size: decimal.NewFromInt(1), Time: t0.Add(time.Second),
	})
	require.Equal(t, domain.StatusDone, e.Order(buy.ID).Status)
	require.True(t, e.EntryPrice("BTC-USDT").Equal(decimal.NewFromInt(100)))

	sell := e.Submit(domain.SideSell, "BTC-USDT", domain.OrderTypeTaker,
		decimal.NewFromInt(90), decimal.NewFromInt(1), false, domain.PositionSideShort, t0.Add(2*time.Second))
	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT", Price: decimal.NewFromInt(90),
		Size: decimal.NewFromInt(1), Time: t0.Add(3 * time.Second),
	})
	require.Equal(t, domain.StatusDone, e.Order(sell.ID).Status)

	// entered at 100, exited at 90: short realizes 2*100 - 90 = 110
	bal := book.Snapshot("BTC-USDT")
	assert.True(t, bal.Currency.Equal(decimal.NewFromInt(1010)), "currency = %s", bal.Currency)
}

func TestEngine_FillCallbackReadsEngineState(t *testing.T) {
	var (
		e     *Engine
		seen  []filljournal.Fill
		bal   domain.Balance
		entry decimal.Decimal
	)
	cfg := EngineConfig{
		Logger: zap.NewNop(),
		// the callback must be able to call back into the engine, the way
		// the simulator persists state after every fill
		OnFill: func(f filljournal.Fill) {
			bal = e.Balance(f.ProductID)
			entry = e.EntryPrice(f.ProductID)
			seen = append(seen, f)
		},
	}
	book := ledger.NewBook()
	book.Init("BTC-USDT", decimal.NewFromInt(1000), decimal.Zero)
	e = NewEngine(cfg, book)
	e.RegisterInstrument(domain.Instrument{
		ProductID:      "BTC-USDT",
		PriceIncrement: "0.01",
		SizeIncrement:  "0.0001",
	})

	now := time.Now()
	e.Submit(domain.SideBuy, "BTC-USDT", domain.OrderTypeMaker,
		decimal.NewFromInt(100), decimal.NewFromInt(1), false, "", now)
	e.ProcessTick(domain.Tick{
		ProductID: "BTC-USDT",
		Price:     decimal.NewFromInt(99),
		Size:      decimal.NewFromInt(1),
		Time:      now.Add(time.Second),
	})

	require.Len(t, seen, 1)
	assert.True(t, seen[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, bal.Currency.Equal(decimal.NewFromInt(900)), "currency = %s", bal.Currency)
	assert.True(t, bal.CurrencyHold.IsZero(), "holds are recomputed before delivery")
	assert.True(t, entry.Equal(decimal.NewFromInt(100)))
}

func TestEngine_HoldRecomputeMatchesReferenceSum(t *testing.T) {
	e, book := newTestEngine(t, EngineConfig{
		SettleDelay: time.Hour, // keep everything open
	}, "10000", "10")

	t0 := time.Now()
	refCurrency := decimal.Zero
	refAsset := decimal.Zero
	for i := 1; i <= 5; i++ {
		price := decimal.NewFromInt(int64(100 * i))
		size := decimal.NewFromInt(int64(i))
		buy := e.Submit(domain.SideBuy, "BTC-USDT", domain.OrderTypeMaker, price, size, false, "", t0)
		require.Equal(t, domain.StatusOpen, buy.Status)
		refCurrency = refCurrency.Add(price.Mul(size))

		sell := e.Submit(domain.SideSell, "BTC-USDT", domain.OrderTypeMaker, price, decimal.NewFromInt(1), false, "", t0)
		require.Equal(t, domain.StatusOpen, sell.Status)
		refAsset = refAsset.Add(decimal.NewFromInt(1))

		bal := book.Snapshot("BTC-USDT")
		assert.True(t, bal.CurrencyHold.Equal(refCurrency), "step %d: currency hold %s != %s", i, bal.CurrencyHold, refCurrency)
		assert.True(t, bal.AssetHold.Equal(refAsset), "step %d: asset hold %s != %s", i, bal.AssetHold, refAsset)
	}
}

func TestEngine_OrderIDsAreSequentialFrom1001(t *testing.T) {
	e, _ := newTestEngine(t, EngineConfig{SettleDelay: time.Hour}, "10000", "0")

	for i := 0; i < 3; i++ {
		order := e.Submit(domain.SideBuy, "BTC-USDT", domain.OrderTypeMaker,
			decimal.NewFromInt(1), decimal.NewFromInt(1), false, "", time.Now())
		require.Equal(t, domain.StatusOpen, order.Status)
		assert.Equal(t, domain.OrderID([]string{"1001", "1002", "1003"}[i]), order.ID)
	}
}
