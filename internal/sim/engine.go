// Package sim is the local paper-trading backend: a matching engine that
// replays price ticks against locally-held open orders, plus a connector
// shell that delegates market data to a real venue.
package sim

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
	"github.com/daniel-lucas-silva/xcoin/internal/ledger"
	"github.com/daniel-lucas-silva/xcoin/internal/storage/filljournal"
)

const firstOrderID = 1001

var hundred = decimal.NewFromInt(100)

// EngineConfig tunes the matching behavior.
type EngineConfig struct {
	SettleDelay time.Duration   // minimum age of an order before a tick can fill it
	SlippagePct decimal.Decimal // adverse price nudge on maker fills, percent
	MakerFee    decimal.Decimal // percent, already leverage-scaled by the caller
	TakerFee    decimal.Decimal
	FullFill    bool // backtest: every matching tick fills the full remaining size
	Logger      *zap.Logger

	// OnFill is invoked after every fill, with holds already recomputed and
	// the engine lock released, so it may call back into the engine.
	OnFill func(filljournal.Fill)
}

type instrumentLimits struct {
	priceDP int32
	sizeDP  int32
}

// Engine owns the simulated order book state: the order map, the balance
// book, and per-product entry prices for short P&L. All mutation is
// serialized behind one mutex so no read observes a half-updated hold.
type Engine struct {
	cfg    EngineConfig
	book   *ledger.Book
	logger *zap.Logger

	mu         sync.Mutex
	orders     map[domain.OrderID]*domain.Order
	nextID     int64
	limits     map[string]instrumentLimits
	entryPrice map[string]decimal.Decimal
	clock      time.Time
}

// NewEngine creates an engine over the given balance book.
func NewEngine(cfg EngineConfig, book *ledger.Book) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		book:       book,
		logger:     cfg.Logger,
		orders:     make(map[domain.OrderID]*domain.Order),
		nextID:     firstOrderID,
		limits:     make(map[string]instrumentLimits),
		entryPrice: make(map[string]decimal.Decimal),
	}
}

// SetFees replaces the fee rates, e.g. after the underlying venue reports its
// account tier.
func (e *Engine) SetFees(maker, taker decimal.Decimal) {
	e.mu.Lock()
	e.cfg.MakerFee, e.cfg.TakerFee = maker, taker
	e.mu.Unlock()
}

// RegisterInstrument records the rounding increments used when applying
// fills for a product.
func (e *Engine) RegisterInstrument(inst domain.Instrument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lim := instrumentLimits{priceDP: 8, sizeDP: 8}
	if inc, err := decimal.NewFromString(inst.PriceIncrement); err == nil && inc.IsPositive() {
		lim.priceDP = -inc.Exponent()
	}
	if inc, err := decimal.NewFromString(inst.SizeIncrement); err == nil && inc.IsPositive() {
		lim.sizeDP = -inc.Exponent()
	}
	e.limits[inst.ProductID] = lim
}

// Now is the engine clock: the newest tick time seen, or wall time before
// the first tick.
func (e *Engine) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clock.IsZero() {
		return time.Now()
	}
	return e.clock
}

// Submit runs the admission check and opens the order, or returns a rejected
// order result. Rejections never create an order and never change holds.
func (e *Engine) Submit(side domain.Side, productID string, typ domain.OrderType, price, size decimal.Decimal, postOnly bool, posSide domain.PositionSide, now time.Time) *domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	if side == domain.SideBuy {
		cost := size.Mul(price)
		available := e.book.AvailableCurrency(productID)
		e.logger.Debug("buy admission",
			zap.String("product", productID),
			zap.String("cost", cost.String()),
			zap.String("available", available.String()))
		if cost.GreaterThan(available) {
			return domain.RejectedOrder(productID, side, domain.RejectReasonBalance)
		}
	} else {
		available := e.book.AvailableAsset(productID)
		e.logger.Debug("sell admission",
			zap.String("product", productID),
			zap.String("size", size.String()),
			zap.String("available", available.String()))
		if size.GreaterThan(available) {
			return domain.RejectedOrder(productID, side, domain.RejectReasonBalance)
		}
	}

	id := domain.OrderID(strconv.FormatInt(e.nextID, 10))
	e.nextID++

	order := domain.NewOrder(id, productID, side, typ, price, size, now)
	order.PostOnly = postOnly
	order.PositionSide = posSide
	e.orders[id] = order
	e.recalcHoldLocked(productID)
	return order.Clone()
}

// Cancel moves an open order to cancelled and releases its hold. Cancelling
// a done, cancelled, or unknown order is a success no-op.
func (e *Engine) Cancel(id domain.OrderID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	order, ok := e.orders[id]
	if !ok || !order.Open() {
		return
	}
	order.Cancel(e.nowLocked())
	e.recalcHoldLocked(order.ProductID)
}

// Order returns a copy of the order, or nil when unknown.
func (e *Engine) Order(id domain.OrderID) *domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	if order, ok := e.orders[id]; ok {
		return order.Clone()
	}
	return nil
}

// Orders lists orders for a product in id order.
func (e *Engine) Orders(productID string, since int64, limit int) []domain.Order {
	e.mu.Lock()
	out := make([]domain.Order, 0, len(e.orders))
	for _, o := range e.orders {
		if productID != "" && o.ProductID != productID {
			continue
		}
		if since > 0 && o.CreatedAt.UnixMilli() < since {
			continue
		}
		out = append(out, *o.Clone())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Balance returns the product's balance snapshot.
func (e *Engine) Balance(productID string) domain.Balance {
	return e.book.Snapshot(productID)
}

// ProcessTick matches one tick against the open orders of its product.
// Orders younger than the settle delay are skipped. Ticks must arrive in
// non-decreasing time order per product.
func (e *Engine) ProcessTick(tick domain.Tick) {
	e.mu.Lock()
	e.clock = tick.Time

	var fills []filljournal.Fill
	for _, id := range e.openIDsLocked(tick.ProductID) {
		order := e.orders[id]
		if tick.Time.Sub(order.CreatedAt) < e.cfg.SettleDelay {
			continue
		}
		matches := e.cfg.FullFill ||
			(order.Side == domain.SideBuy && tick.Price.LessThanOrEqual(order.Price)) ||
			(order.Side == domain.SideSell && tick.Price.GreaterThanOrEqual(order.Price))
		if !matches {
			continue
		}
		if fill, ok := e.fillLocked(order, tick); ok {
			fills = append(fills, fill)
		}
		e.recalcHoldLocked(order.ProductID)
	}
	e.mu.Unlock()

	// Fills are delivered outside the lock so the callback can read engine
	// state (balances, entry price) through the public accessors.
	if e.cfg.OnFill != nil {
		for _, fill := range fills {
			e.cfg.OnFill(fill)
		}
	}
}

func (e *Engine) fillLocked(order *domain.Order, tick domain.Tick) (filljournal.Fill, bool) {
	size := order.RemainingSize
	if !e.cfg.FullFill && tick.Size.IsPositive() && tick.Size.LessThan(size) {
		size = tick.Size
	}

	// Makers eat slippage against their own price; takers trade at the tick.
	price := tick.Price
	if order.Type == domain.OrderTypeMaker {
		nudge := order.Price.Mul(e.cfg.SlippagePct).Div(hundred)
		if order.Side == domain.SideBuy {
			price = order.Price.Add(nudge)
		} else {
			price = order.Price.Sub(nudge)
		}
	}

	rate := e.cfg.TakerFee
	if order.Type == domain.OrderTypeMaker {
		rate = e.cfg.MakerFee
	}

	lim, ok := e.limits[order.ProductID]
	if !ok {
		lim = instrumentLimits{priceDP: 8, sizeDP: 8}
	}

	var fee decimal.Decimal
	if order.Side == domain.SideBuy {
		total := price.Mul(size)
		fee = size.Mul(rate).Div(hundred)
		e.book.Adjust(order.ProductID,
			size.Sub(fee).Round(lim.sizeDP),
			total.Neg().Round(lim.priceDP))
		e.entryPrice[order.ProductID] = price
	} else {
		total := price.Mul(size)
		if order.PositionSide == domain.PositionSideShort {
			// closing a short earns the entry value twice over the exit value
			entry := e.entryPrice[order.ProductID].Mul(size)
			total = entry.Add(entry).Sub(total)
		}
		fee = total.Mul(rate).Div(hundred)
		e.book.Adjust(order.ProductID,
			size.Neg().Round(lim.sizeDP),
			total.Sub(fee).Round(lim.priceDP))
	}

	if err := order.ApplyFill(size, tick.Time); err != nil {
		e.logger.Error("fill application failed",
			zap.String("order", string(order.ID)), zap.Error(err))
		return filljournal.Fill{}, false
	}

	if order.Status == domain.StatusDone {
		e.logger.Debug("full fill",
			zap.String("product", order.ProductID),
			zap.String("side", string(order.Side)))
	} else {
		e.logger.Debug("partial fill",
			zap.String("product", order.ProductID),
			zap.String("side", string(order.Side)),
			zap.String("remaining", order.RemainingSize.String()))
	}

	return filljournal.Fill{
		OrderID:   order.ID,
		ProductID: order.ProductID,
		Side:      order.Side,
		Price:     price,
		Size:      size,
		Fee:       fee,
		Time:      tick.Time,
	}, true
}

// openIDsLocked returns the product's open order ids in submission order.
func (e *Engine) openIDsLocked(productID string) []domain.OrderID {
	ids := make([]domain.OrderID, 0, len(e.orders))
	for id, o := range e.orders {
		if o.Open() && o.ProductID == productID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })
	return ids
}

// idLess orders numeric ids numerically so submission order survives past
// any digit-count boundary.
func idLess(a, b domain.OrderID) bool {
	ai, aerr := strconv.ParseInt(string(a), 10, 64)
	bi, berr := strconv.ParseInt(string(b), 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

func (e *Engine) recalcHoldLocked(productID string) {
	open := make([]*domain.Order, 0, len(e.orders))
	for _, o := range e.orders {
		if o.Open() {
			open = append(open, o)
		}
	}
	e.book.Recompute(productID, open)
}

func (e *Engine) nowLocked() time.Time {
	if e.clock.IsZero() {
		return time.Now()
	}
	return e.clock
}

// EntryPrice is the last buy fill price for a product, used as the short
// entry when closing.
func (e *Engine) EntryPrice(productID string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entryPrice[productID]
}
