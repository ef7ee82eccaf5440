// Package ledger tracks per-instrument free and held balances. Holds are
// always recomputed from the full open-order set, never adjusted
// incrementally, so a recompute is idempotent and cannot drift.
package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

// Book owns the balances of one session. Free amounts are mutated through
// Adjust (fill application); hold amounts only through Recompute.
type Book struct {
	mu       sync.RWMutex
	balances map[string]*domain.Balance
}

// NewBook creates an empty balance book.
func NewBook() *Book {
	return &Book{balances: make(map[string]*domain.Balance)}
}

// Init seeds the balance record for a product. Existing state is replaced.
func (b *Book) Init(productID string, currency, asset decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[productID] = &domain.Balance{
		Currency: currency,
		Asset:    asset,
	}
}

// SetFutures stamps the futures metadata onto a product's balance.
func (b *Book) SetFutures(productID string, leverage int, isolated bool, side domain.PositionSide) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.ensure(productID)
	bal.Leverage = leverage
	bal.Isolated = isolated
	bal.PositionSide = side
}

// Recompute derives currency_hold and asset_hold for a product from its open
// orders: sum of remaining*price over open buys, and sum of remaining over
// open sells.
func (b *Book) Recompute(productID string, open []*domain.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.ensure(productID)
	currencyHold := decimal.Zero
	assetHold := decimal.Zero

	for _, o := range open {
		if !o.Open() || o.ProductID != productID {
			continue
		}
		if o.Side == domain.SideBuy {
			currencyHold = currencyHold.Add(o.RemainingSize.Mul(o.Price))
		} else {
			assetHold = assetHold.Add(o.RemainingSize)
		}
	}

	bal.CurrencyHold = currencyHold
	bal.AssetHold = assetHold
}

// Adjust applies a fill's balance deltas. Positive values credit, negative
// debit. Holds are untouched; callers recompute them afterwards.
func (b *Book) Adjust(productID string, assetDelta, currencyDelta decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.ensure(productID)
	bal.Asset = bal.Asset.Add(assetDelta)
	bal.Currency = bal.Currency.Add(currencyDelta)
	if bal.Asset.LessThan(decimal.Zero) {
		bal.Asset = decimal.Zero
	}
}

// SetUnrealized records the unrealized futures P&L for a product.
func (b *Book) SetUnrealized(productID string, pnl decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensure(productID).UnrealizedProfit = pnl
}

// AvailableCurrency is quote balance minus quote hold.
func (b *Book) AvailableCurrency(productID string) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[productID]; ok {
		return bal.AvailableCurrency()
	}
	return decimal.Zero
}

// AvailableAsset is base balance minus base hold.
func (b *Book) AvailableAsset(productID string) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[productID]; ok {
		return bal.AvailableAsset()
	}
	return decimal.Zero
}

// Snapshot returns a copy of the product's balance record.
func (b *Book) Snapshot(productID string) domain.Balance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[productID]; ok {
		return *bal
	}
	return domain.Balance{}
}

// caller must hold b.mu
func (b *Book) ensure(productID string) *domain.Balance {
	bal, ok := b.balances[productID]
	if !ok {
		bal = &domain.Balance{}
		b.balances[productID] = bal
	}
	return bal
}
