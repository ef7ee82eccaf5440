package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

func openOrder(id string, side domain.Side, price, size int64) *domain.Order {
	return domain.NewOrder(domain.OrderID(id), "BTC-USDT", side, domain.OrderTypeMaker,
		decimal.NewFromInt(price), decimal.NewFromInt(size), time.Now())
}

func TestBook_RecomputeDerivesHoldsFromOpenSet(t *testing.T) {
	book := NewBook()
	book.Init("BTC-USDT", decimal.NewFromInt(1000), decimal.NewFromInt(5))

	open := []*domain.Order{
		openOrder("1", domain.SideBuy, 100, 2),  // 200 currency
		openOrder("2", domain.SideBuy, 50, 1),   // 50 currency
		openOrder("3", domain.SideSell, 120, 3), // 3 asset
	}
	book.Recompute("BTC-USDT", open)

	bal := book.Snapshot("BTC-USDT")
	assert.True(t, bal.CurrencyHold.Equal(decimal.NewFromInt(250)))
	assert.True(t, bal.AssetHold.Equal(decimal.NewFromInt(3)))
	assert.True(t, book.AvailableCurrency("BTC-USDT").Equal(decimal.NewFromInt(750)))
	assert.True(t, book.AvailableAsset("BTC-USDT").Equal(decimal.NewFromInt(2)))
}

func TestBook_RecomputeIsIdempotent(t *testing.T) {
	book := NewBook()
	book.Init("BTC-USDT", decimal.NewFromInt(1000), decimal.NewFromInt(5))

	open := []*domain.Order{openOrder("1", domain.SideBuy, 100, 2)}
	book.Recompute("BTC-USDT", open)
	first := book.Snapshot("BTC-USDT")

	for i := 0; i < 3; i++ {
		book.Recompute("BTC-USDT", open)
	}
	again := book.Snapshot("BTC-USDT")
	assert.True(t, first.CurrencyHold.Equal(again.CurrencyHold))
	assert.True(t, first.AssetHold.Equal(again.AssetHold))
}

func TestBook_RecomputeSkipsClosedAndForeignOrders(t *testing.T) {
	book := NewBook()
	book.Init("BTC-USDT", decimal.NewFromInt(1000), decimal.NewFromInt(5))

	done := openOrder("1", domain.SideBuy, 100, 2)
	_ = done.ApplyFill(done.RemainingSize, time.Now())
	cancelled := openOrder("2", domain.SideSell, 100, 2)
	cancelled.Cancel(time.Now())
	foreign := domain.NewOrder("3", "ETH-USDT", domain.SideBuy, domain.OrderTypeMaker,
		decimal.NewFromInt(10), decimal.NewFromInt(1), time.Now())

	book.Recompute("BTC-USDT", []*domain.Order{done, cancelled, foreign})

	bal := book.Snapshot("BTC-USDT")
	assert.True(t, bal.CurrencyHold.IsZero())
	assert.True(t, bal.AssetHold.IsZero())
}

func TestBook_AdjustClampsAssetAtZero(t *testing.T) {
	book := NewBook()
	book.Init("BTC-USDT", decimal.NewFromInt(100), decimal.NewFromInt(1))

	book.Adjust("BTC-USDT", decimal.NewFromInt(-2), decimal.NewFromInt(50))

	bal := book.Snapshot("BTC-USDT")
	assert.True(t, bal.Asset.IsZero())
	assert.True(t, bal.Currency.Equal(decimal.NewFromInt(150)))
}
