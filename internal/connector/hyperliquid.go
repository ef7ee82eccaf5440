package connector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/catalog"
	"github.com/daniel-lucas-silva/xcoin/internal/domain"
	"github.com/daniel-lucas-silva/xcoin/internal/marketdata"
	"github.com/daniel-lucas-silva/xcoin/pkg/retry"
)

const hyperliquidVenue = "hyperliquid"

// Perp prices allow at most six decimals minus the size precision.
const hyperliquidMaxDecimals = 6

// HyperliquidConfig wires a decentralized perp connector.
type HyperliquidConfig struct {
	Exchange    *hyperliquid.Exchange
	AccountAddr string
	CatalogDir  string
	Retry       *retry.Policy
	Logger      *zap.Logger
	SlippagePct decimal.Decimal // taker slippage tolerance, percent
	Leverage    int
	Isolated    bool
	MakerFee    decimal.Decimal
	TakerFee    decimal.Decimal
}

// Hyperliquid is the decentralized-venue backend. On-chain venues keep no
// queryable per-client order history, so the connector tracks its own orders
// by cloid and reconciles status against the venue on demand.
type Hyperliquid struct {
	exchange    *hyperliquid.Exchange
	accountAddr string
	catalog     *catalog.Catalog
	retry       *retry.Policy
	logger      *zap.Logger

	slippagePct decimal.Decimal
	isolated    bool

	mu       sync.Mutex
	orders   map[domain.OrderID]*domain.Order
	leverage map[string]int

	defaultLeverage int
	maker           decimal.Decimal
	taker           decimal.Decimal
}

var _ Connector = (*Hyperliquid)(nil)
var _ catalog.Fetcher = (*Hyperliquid)(nil)

// NewHyperliquid builds the connector. A missing wallet key fails at
// construction, before any signing is attempted.
func NewHyperliquid(cfg HyperliquidConfig) (*Hyperliquid, error) {
	if cfg.Exchange == nil || cfg.AccountAddr == "" {
		return nil, errors.Wrap(ErrMissingCredentials, hyperliquidVenue)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}
	h := &Hyperliquid{
		exchange:        cfg.Exchange,
		accountAddr:     cfg.AccountAddr,
		retry:           cfg.Retry,
		logger:          cfg.Logger,
		slippagePct:     cfg.SlippagePct,
		isolated:        cfg.Isolated,
		orders:          make(map[domain.OrderID]*domain.Order),
		leverage:        make(map[string]int),
		defaultLeverage: cfg.Leverage,
		maker:           cfg.MakerFee,
		taker:           cfg.TakerFee,
	}
	h.catalog = catalog.New(hyperliquidVenue, catalog.NewFileRepository(cfg.CatalogDir), h, cfg.Logger)
	return h, nil
}

// FetchProducts lists the perp universe. Every instrument quotes in USD.
func (h *Hyperliquid) FetchProducts(ctx context.Context) ([]domain.Instrument, error) {
	meta, err := h.exchange.Info().Meta(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch perp universe")
	}

	products := make([]domain.Instrument, 0, len(meta.Universe))
	for _, asset := range meta.Universe {
		priceDigits := hyperliquidMaxDecimals - asset.SzDecimals
		if priceDigits < 0 {
			priceDigits = 0
		}
		products = append(products, domain.Instrument{
			ID:             asset.Name,
			ProductID:      asset.Name,
			Asset:          asset.Name,
			Currency:       "USD",
			Venue:          hyperliquidVenue,
			Normalized:     domain.NormalizedKey(hyperliquidVenue, asset.Name, "USD"),
			Label:          asset.Name + "/USD",
			Active:         true,
			MinSize:        catalog.IncrementFromPrecision(asset.SzDecimals),
			SizeIncrement:  catalog.IncrementFromPrecision(asset.SzDecimals),
			PriceIncrement: catalog.IncrementFromPrecision(priceDigits),
		})
	}
	return products, nil
}

func (h *Hyperliquid) RefreshProducts(ctx context.Context, force bool) ([]domain.Instrument, error) {
	return retry.DoWithData(ctx, h.retry, "refreshProducts", func(ctx context.Context) ([]domain.Instrument, error) {
		return h.catalog.Refresh(ctx, force)
	})
}

func (h *Hyperliquid) GetBalance(ctx context.Context, q BalanceQuery) (*domain.Balance, error) {
	coin := h.coin(q.ProductID)

	return retry.DoWithData(ctx, h.retry, "getBalance", func(ctx context.Context) (*domain.Balance, error) {
		state, err := h.exchange.Info().UserState(ctx, h.accountAddr)
		if err != nil {
			return nil, errors.Wrap(err, "fetch user state")
		}

		total, err := decimal.NewFromString(state.MarginSummary.TotalRawUsd)
		if err != nil {
			return nil, errors.Wrap(err, "parse account value")
		}
		withdrawable, err := decimal.NewFromString(state.Withdrawable)
		if err != nil {
			return nil, errors.Wrap(err, "parse withdrawable")
		}

		h.mu.Lock()
		isolated := h.isolated
		h.mu.Unlock()

		bal := &domain.Balance{
			Currency:     total,
			CurrencyHold: total.Sub(withdrawable),
			Leverage:     h.leverageFor(coin),
			Isolated:     isolated,
		}
		for _, ap := range state.AssetPositions {
			if ap.Position.Coin != coin {
				continue
			}
			if err := applyPerpPosition(bal, ap.Position); err != nil {
				return nil, err
			}
		}
		return bal, nil
	})
}

// applyPerpPosition maps a venue position onto the balance: signed size
// becomes asset amount plus position side, and the position PnL fills the
// futures unrealized-profit leg.
func applyPerpPosition(bal *domain.Balance, pos hyperliquid.Position) error {
	size, err := decimal.NewFromString(pos.Szi)
	if err != nil {
		return errors.Wrap(err, "parse position size")
	}
	if size.IsNegative() {
		bal.PositionSide = domain.PositionSideShort
		size = size.Neg()
	} else if size.IsPositive() {
		bal.PositionSide = domain.PositionSideLong
	}
	bal.Asset = size

	if pos.UnrealizedPnl != "" {
		pnl, err := decimal.NewFromString(pos.UnrealizedPnl)
		if err != nil {
			return errors.Wrap(err, "parse unrealized pnl")
		}
		bal.UnrealizedProfit = pnl
	}
	return nil
}

// GetTrades synthesizes a trade stream from one-minute candles: on-chain
// venues expose no public per-trade feed through this API.
func (h *Hyperliquid) GetTrades(ctx context.Context, q TradesQuery) ([]domain.Trade, error) {
	from := q.From
	if from == 0 {
		from = time.Now().Add(-time.Hour).UnixMilli()
	}
	candles, err := h.GetKLines(ctx, KLinesQuery{ProductID: q.ProductID, Period: "1m", From: from})
	if err != nil {
		return nil, err
	}

	trades := make([]domain.Trade, 0, len(candles))
	for _, c := range candles {
		if q.To > 0 && c.CloseTime.UnixMilli() > q.To {
			break
		}
		side := domain.SideBuy
		if c.Close.LessThan(c.Open) {
			side = domain.SideSell
		}
		trades = append(trades, domain.Trade{
			TradeID:   strconv.FormatInt(c.CloseTime.UnixMilli(), 10),
			ProductID: q.ProductID,
			Price:     c.Close,
			Size:      c.Volume,
			Side:      side,
			Time:      c.CloseTime,
		})
	}
	if q.Limit > 0 && len(trades) > q.Limit {
		trades = trades[len(trades)-q.Limit:]
	}
	return trades, nil
}

func (h *Hyperliquid) GetKLines(ctx context.Context, q KLinesQuery) ([]domain.Candle, error) {
	coin := h.coin(q.ProductID)
	dur, err := marketdata.ParsePeriod(q.Period)
	if err != nil {
		return nil, NewTerminal(domain.RejectReasonBadRequest, "bad period %q", q.Period)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 500
	}
	from := q.From
	to := time.Now().UnixMilli()
	if from == 0 {
		from = to - int64(dur/time.Millisecond)*int64(limit)
	}

	return retry.DoWithData(ctx, h.retry, "getKLines", func(ctx context.Context) ([]domain.Candle, error) {
		raw, err := h.exchange.Info().CandlesSnapshot(ctx, coin, q.Period, from, to)
		if err != nil {
			return nil, errors.Wrap(err, "fetch candles")
		}

		candles := make([]domain.Candle, 0, len(raw))
		for _, k := range raw {
			c := domain.Candle{
				OpenTime:  time.UnixMilli(k.TimeOpen),
				CloseTime: time.UnixMilli(k.TimeClose),
				Period:    q.Period,
			}
			if c.Open, err = decimal.NewFromString(k.Open); err != nil {
				return nil, errors.Wrap(err, "parse open")
			}
			if c.High, err = decimal.NewFromString(k.High); err != nil {
				return nil, errors.Wrap(err, "parse high")
			}
			if c.Low, err = decimal.NewFromString(k.Low); err != nil {
				return nil, errors.Wrap(err, "parse low")
			}
			if c.Close, err = decimal.NewFromString(k.Close); err != nil {
				return nil, errors.Wrap(err, "parse close")
			}
			if c.Volume, err = decimal.NewFromString(k.Volume); err != nil {
				return nil, errors.Wrap(err, "parse volume")
			}
			candles = append(candles, c)
		}
		merged, err := marketdata.Merge(candles, q.Period)
		if err != nil {
			return nil, err
		}
		if q.Limit > 0 && len(merged) > q.Limit {
			merged = merged[len(merged)-q.Limit:]
		}
		return merged, nil
	})
}

// GetQuote serves both sides from the mid price; the venue API exposes mids,
// not a two-sided book.
func (h *Hyperliquid) GetQuote(ctx context.Context, q QuoteQuery) (*domain.Quote, error) {
	coin := h.coin(q.ProductID)
	return retry.DoWithData(ctx, h.retry, "getQuote", func(ctx context.Context) (*domain.Quote, error) {
		mid, err := h.mid(ctx, coin)
		if err != nil {
			return nil, err
		}
		return &domain.Quote{Bid: mid, Ask: mid}, nil
	})
}

func (h *Hyperliquid) GetTickers(ctx context.Context, q TickersQuery) (map[string]domain.Ticker, error) {
	products := q.Products
	if len(products) == 0 {
		products = h.catalog.Get()
	}

	return retry.DoWithData(ctx, h.retry, "getTickers", func(ctx context.Context) (map[string]domain.Ticker, error) {
		mids, err := h.exchange.Info().AllMids(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "fetch mids")
		}

		now := time.Now()
		out := make(map[string]domain.Ticker, len(products))
		for _, p := range products {
			raw, ok := mids[p.ProductID]
			if !ok {
				continue
			}
			mid, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "parse mid for %s", p.ProductID)
			}
			out[p.Normalized] = domain.Ticker{
				ProductID:  p.ProductID,
				Normalized: p.Normalized,
				Bid:        mid,
				Ask:        mid,
				Last:       mid,
				Time:       now,
			}
		}
		return out, nil
	})
}

// GetDepth returns a one-level book built from the mid price.
func (h *Hyperliquid) GetDepth(ctx context.Context, q DepthQuery) (*domain.OrderBook, error) {
	coin := h.coin(q.ProductID)
	return retry.DoWithData(ctx, h.retry, "getDepth", func(ctx context.Context) (*domain.OrderBook, error) {
		mid, err := h.mid(ctx, coin)
		if err != nil {
			return nil, err
		}
		level := domain.BookLevel{Price: mid}
		return &domain.OrderBook{
			ProductID: q.ProductID,
			Bids:      []domain.BookLevel{level},
			Asks:      []domain.BookLevel{level},
			Time:      time.Now(),
		}, nil
	})
}

func (h *Hyperliquid) Buy(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	return h.placeOrder(ctx, domain.SideBuy, req)
}

func (h *Hyperliquid) Sell(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	return h.placeOrder(ctx, domain.SideSell, req)
}

func (h *Hyperliquid) placeOrder(ctx context.Context, side domain.Side, req OrderRequest) (*domain.Order, error) {
	coin := h.coin(req.ProductID)
	isBuy := side == domain.SideBuy
	clientID := uuid.NewString()
	cloid := cloidFromID(clientID)

	size := req.Size
	if inst := h.catalog.Normalize(req.ProductID); inst != nil && inst.SizeIncrement != "" {
		if inc, err := decimal.NewFromString(inst.SizeIncrement); err == nil && inc.IsPositive() {
			size = size.Div(inc).Floor().Mul(inc)
		}
	}

	order, err := retry.DoWithData(ctx, h.retry, "placeOrder", func(ctx context.Context) (*domain.Order, error) {
		price := req.Price
		tif := hyperliquid.TifGtc
		if req.OrderType == domain.OrderTypeTaker {
			tif = hyperliquid.TifIoc
			slippage, _ := h.slippagePct.Div(decimal.NewFromInt(100)).Float64()
			px, err := h.exchange.SlippagePrice(ctx, coin, isBuy, slippage, nil)
			if err != nil {
				return nil, errors.Wrap(err, "compute slippage price")
			}
			price = decimal.NewFromFloat(px)
		}

		pxFloat, _ := price.Float64()
		szFloat, _ := size.Float64()
		_, err := h.exchange.Order(ctx, hyperliquid.CreateOrderRequest{
			Coin:          coin,
			IsBuy:         isBuy,
			Price:         pxFloat,
			Size:          szFloat,
			ClientOrderID: &cloid,
			OrderType: hyperliquid.OrderType{
				Limit: &hyperliquid.LimitOrderType{Tif: tif},
			},
		}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "submit order")
		}

		return domain.NewOrder(domain.OrderID(cloid), req.ProductID, side, req.OrderType, price, size, time.Now()), nil
	})
	if err != nil {
		if rejected := rejectionFromTerminal(err, req.ProductID, side); rejected != nil {
			return rejected, nil
		}
		return nil, err
	}

	h.mu.Lock()
	h.orders[order.ID] = order.Clone()
	h.mu.Unlock()
	return order.Clone(), nil
}

// CancelOrder always succeeds: on-chain fills land atomically, so by the time
// a cancel would reach the chain the order is either gone or already filled.
func (h *Hyperliquid) CancelOrder(ctx context.Context, q OrderQuery) error {
	h.mu.Lock()
	if o, ok := h.orders[q.OrderID]; ok {
		o.Cancel(time.Now())
	}
	h.mu.Unlock()
	return nil
}

func (h *Hyperliquid) GetOrder(ctx context.Context, q OrderQuery) (*domain.Order, error) {
	h.mu.Lock()
	local, ok := h.orders[q.OrderID]
	if ok {
		local = local.Clone()
	}
	h.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("unknown order %s", q.OrderID)
	}

	return retry.DoWithData(ctx, h.retry, "getOrder", func(ctx context.Context) (*domain.Order, error) {
		res, err := h.exchange.Info().QueryOrderByCloid(ctx, h.accountAddr, string(q.OrderID))
		if err != nil {
			return nil, errors.Wrap(err, "query order")
		}
		if res.Status != hyperliquid.OrderQueryStatusSuccess {
			// venue has no record yet, report the local view
			return local, nil
		}

		now := time.Now()
		switch res.Order.Status {
		case hyperliquid.OrderStatusValueFilled:
			if local.Open() {
				if err := local.ApplyFill(local.RemainingSize, now); err != nil {
					return nil, err
				}
			}
		case hyperliquid.OrderStatusValueCanceled, hyperliquid.OrderStatusValueRejected:
			local.Cancel(now)
		}

		h.mu.Lock()
		h.orders[q.OrderID] = local.Clone()
		h.mu.Unlock()
		return local, nil
	})
}

// GetOrders serves from the local order log; the chain keeps no per-client
// history addressable by our ids.
func (h *Hyperliquid) GetOrders(ctx context.Context, q OrdersQuery) ([]domain.Order, error) {
	h.mu.Lock()
	orders := make([]domain.Order, 0, len(h.orders))
	for _, o := range h.orders {
		if q.ProductID != "" && o.ProductID != q.ProductID {
			continue
		}
		if q.Since > 0 && o.CreatedAt.UnixMilli() < q.Since {
			continue
		}
		orders = append(orders, *o.Clone())
	}
	h.mu.Unlock()

	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	if q.Limit > 0 && len(orders) > q.Limit {
		orders = orders[:q.Limit]
	}
	return orders, nil
}

func (h *Hyperliquid) UpdateLeverage(ctx context.Context, q LeverageQuery) error {
	coin := h.coin(q.ProductID)
	return h.retry.Do(ctx, "updateLeverage", func(ctx context.Context) error {
		h.mu.Lock()
		cross := !h.isolated
		h.mu.Unlock()
		if _, err := h.exchange.UpdateLeverage(ctx, q.Leverage, coin, cross); err != nil {
			return errors.Wrap(err, "update leverage")
		}
		h.mu.Lock()
		h.leverage[coin] = q.Leverage
		h.mu.Unlock()
		return nil
	})
}

// UpdateMarginMode re-submits the current leverage with the new cross flag;
// the venue has no standalone margin-mode call.
func (h *Hyperliquid) UpdateMarginMode(ctx context.Context, q MarginModeQuery) error {
	coin := h.coin(q.ProductID)
	return h.retry.Do(ctx, "updateMarginMode", func(ctx context.Context) error {
		if _, err := h.exchange.UpdateLeverage(ctx, h.leverageFor(coin), coin, !q.Isolated); err != nil {
			return errors.Wrap(err, "update margin mode")
		}
		h.mu.Lock()
		h.isolated = q.Isolated
		h.mu.Unlock()
		return nil
	})
}

// InitFees uses configured rates; the venue exposes no per-account fee
// endpoint through this API.
func (h *Hyperliquid) InitFees(ctx context.Context) error {
	h.mu.Lock()
	if h.maker.IsZero() && h.taker.IsZero() {
		// published base tier
		h.maker = decimal.NewFromFloat(0.015)
		h.taker = decimal.NewFromFloat(0.045)
	}
	maker, taker := h.maker, h.taker
	h.mu.Unlock()

	h.logger.Info("venue fees loaded",
		zap.String("venue", hyperliquidVenue),
		zap.String("maker_pct", maker.String()),
		zap.String("taker_pct", taker.String()))
	return nil
}

func (h *Hyperliquid) Fees() (decimal.Decimal, decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maker, h.taker
}

func (h *Hyperliquid) coin(productID string) string {
	if inst := h.catalog.Normalize(productID); inst != nil {
		return inst.ProductID
	}
	return productID
}

func (h *Hyperliquid) leverageFor(coin string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lev, ok := h.leverage[coin]; ok {
		return lev
	}
	return h.defaultLeverage
}

func (h *Hyperliquid) mid(ctx context.Context, coin string) (decimal.Decimal, error) {
	mids, err := h.exchange.Info().AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "fetch mids")
	}
	raw, ok := mids[coin]
	if !ok {
		return decimal.Zero, NewTerminal(domain.RejectReasonBadSymbol, "no mid for %s", coin)
	}
	mid, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse mid for %s", coin)
	}
	return mid, nil
}

// cloidFromID derives a deterministic 128-bit venue client order id from an
// arbitrary client id.
func cloidFromID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "0x" + hex.EncodeToString(sum[:16])
}
