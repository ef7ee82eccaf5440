package connector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/catalog"
	"github.com/daniel-lucas-silva/xcoin/internal/domain"
	"github.com/daniel-lucas-silva/xcoin/internal/marketdata"
	"github.com/daniel-lucas-silva/xcoin/pkg/retry"
)

const binanceVenue = "binance"

// client order ids carry this prefix so venue-side orders placed by other
// tooling never collide with ours.
const binanceClientPrefix = "xcoin-"

// BinanceConfig wires a live spot connector.
type BinanceConfig struct {
	Client     *binance.Client
	CatalogDir string
	Retry      *retry.Policy
	Logger     *zap.Logger
	MakerFee   decimal.Decimal // percent override, zero to read from the account
	TakerFee   decimal.Decimal
}

// Binance is the live centralized-venue backend. All venue errors pass
// through the retry policy; only terminal business failures and context
// cancellation escape.
type Binance struct {
	client  *binance.Client
	catalog *catalog.Catalog
	retry   *retry.Policy
	logger  *zap.Logger

	makerOverride decimal.Decimal
	takerOverride decimal.Decimal
	maker         decimal.Decimal
	taker         decimal.Decimal
}

var _ Connector = (*Binance)(nil)
var _ catalog.Fetcher = (*Binance)(nil)

// NewBinance builds the connector. The client must carry real credentials;
// placeholder keys fail fast here instead of on the first signed call.
func NewBinance(cfg BinanceConfig) (*Binance, error) {
	if cfg.Client == nil {
		return nil, errors.Wrap(ErrMissingCredentials, binanceVenue)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	b := &Binance{
		client:        cfg.Client,
		retry:         cfg.Retry,
		logger:        cfg.Logger,
		makerOverride: cfg.MakerFee,
		takerOverride: cfg.TakerFee,
	}
	b.catalog = catalog.New(binanceVenue, catalog.NewFileRepository(cfg.CatalogDir), b, cfg.Logger)
	return b, nil
}

// FetchProducts implements catalog.Fetcher from the exchange info endpoint.
func (b *Binance) FetchProducts(ctx context.Context) ([]domain.Instrument, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, translateBinanceErr(err)
	}

	products := make([]domain.Instrument, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		inst := domain.Instrument{
			ID:         s.Symbol,
			ProductID:  s.Symbol,
			Asset:      s.BaseAsset,
			Currency:   s.QuoteAsset,
			Venue:      binanceVenue,
			Normalized: domain.NormalizedKey(binanceVenue, s.BaseAsset, s.QuoteAsset),
			Label:      s.BaseAsset + "/" + s.QuoteAsset,
			Active:     s.Status == "TRADING",
		}
		if f := s.LotSizeFilter(); f != nil {
			inst.MinSize = f.MinQuantity
			inst.SizeIncrement = f.StepSize
		}
		if f := s.PriceFilter(); f != nil {
			inst.PriceIncrement = f.TickSize
		}
		products = append(products, inst)
	}
	return products, nil
}

// RefreshProducts fetches and persists the catalog, or serves the cached
// snapshot when force is unset.
func (b *Binance) RefreshProducts(ctx context.Context, force bool) ([]domain.Instrument, error) {
	return retry.DoWithData(ctx, b.retry, "refreshProducts", func(ctx context.Context) ([]domain.Instrument, error) {
		return b.catalog.Refresh(ctx, force)
	})
}

func (b *Binance) GetBalance(ctx context.Context, q BalanceQuery) (*domain.Balance, error) {
	asset, currency := q.Asset, q.Currency
	if inst := b.catalog.Normalize(q.ProductID); inst != nil {
		asset, currency = inst.Asset, inst.Currency
	}

	return retry.DoWithData(ctx, b.retry, "getBalance", func(ctx context.Context) (*domain.Balance, error) {
		acc, err := b.client.NewGetAccountService().Do(ctx)
		if err != nil {
			return nil, translateBinanceErr(err)
		}

		bal := &domain.Balance{}
		for _, entry := range acc.Balances {
			free, err := decimal.NewFromString(entry.Free)
			if err != nil {
				return nil, errors.Wrapf(err, "parse free balance for %s", entry.Asset)
			}
			locked, err := decimal.NewFromString(entry.Locked)
			if err != nil {
				return nil, errors.Wrapf(err, "parse locked balance for %s", entry.Asset)
			}
			switch entry.Asset {
			case currency:
				bal.Currency = free.Add(locked)
				bal.CurrencyHold = locked
			case asset:
				bal.Asset = free.Add(locked)
				bal.AssetHold = locked
			}
		}
		return bal, nil
	})
}

func (b *Binance) GetTrades(ctx context.Context, q TradesQuery) ([]domain.Trade, error) {
	symbol := b.symbol(q.ProductID)

	return retry.DoWithData(ctx, b.retry, "getTrades", func(ctx context.Context) ([]domain.Trade, error) {
		svc := b.client.NewAggTradesService().Symbol(symbol)
		if q.Limit > 0 {
			svc = svc.Limit(q.Limit)
		}
		if q.LastTradeID != "" {
			fromID, err := strconv.ParseInt(q.LastTradeID, 10, 64)
			if err != nil {
				return nil, NewTerminal(domain.RejectReasonBadRequest, "trade cursor %q is not numeric", q.LastTradeID)
			}
			// resume after the last seen trade
			svc = svc.FromID(fromID + 1)
		} else if q.From > 0 {
			svc = svc.StartTime(q.From)
			if q.To > 0 {
				svc = svc.EndTime(q.To)
			}
		}

		raw, err := svc.Do(ctx)
		if err != nil {
			return nil, translateBinanceErr(err)
		}

		trades := make([]domain.Trade, 0, len(raw))
		for _, t := range raw {
			price, err := decimal.NewFromString(t.Price)
			if err != nil {
				return nil, errors.Wrap(err, "parse trade price")
			}
			size, err := decimal.NewFromString(t.Quantity)
			if err != nil {
				return nil, errors.Wrap(err, "parse trade size")
			}
			side := domain.SideBuy
			if t.IsBuyerMaker {
				side = domain.SideSell
			}
			trades = append(trades, domain.Trade{
				TradeID:   strconv.FormatInt(t.AggTradeID, 10),
				ProductID: q.ProductID,
				Price:     price,
				Size:      size,
				Side:      side,
				Time:      time.UnixMilli(t.Timestamp),
			})
		}
		return trades, nil
	})
}

func (b *Binance) GetKLines(ctx context.Context, q KLinesQuery) ([]domain.Candle, error) {
	symbol := b.symbol(q.ProductID)
	if _, err := marketdata.ParsePeriod(q.Period); err != nil {
		return nil, NewTerminal(domain.RejectReasonBadRequest, "bad period %q", q.Period)
	}

	return retry.DoWithData(ctx, b.retry, "getKLines", func(ctx context.Context) ([]domain.Candle, error) {
		svc := b.client.NewKlinesService().Symbol(symbol).Interval(q.Period)
		if q.Limit > 0 {
			svc = svc.Limit(q.Limit)
		}
		if q.From > 0 {
			svc = svc.StartTime(q.From)
		}
		raw, err := svc.Do(ctx)
		if err != nil {
			return nil, translateBinanceErr(err)
		}

		candles := make([]domain.Candle, 0, len(raw))
		for _, k := range raw {
			c, err := candleFromKline(k, q.Period)
			if err != nil {
				return nil, err
			}
			candles = append(candles, c)
		}
		return marketdata.Merge(candles, q.Period)
	})
}

func (b *Binance) GetQuote(ctx context.Context, q QuoteQuery) (*domain.Quote, error) {
	symbol := b.symbol(q.ProductID)

	return retry.DoWithData(ctx, b.retry, "getQuote", func(ctx context.Context) (*domain.Quote, error) {
		books, err := b.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
		if err != nil {
			return nil, translateBinanceErr(err)
		}
		if len(books) == 0 {
			return nil, errors.Errorf("no book ticker for %s", symbol)
		}
		bid, err := decimal.NewFromString(books[0].BidPrice)
		if err != nil {
			return nil, errors.Wrap(err, "parse bid")
		}
		ask, err := decimal.NewFromString(books[0].AskPrice)
		if err != nil {
			return nil, errors.Wrap(err, "parse ask")
		}
		return &domain.Quote{Bid: bid, Ask: ask}, nil
	})
}

func (b *Binance) GetTickers(ctx context.Context, q TickersQuery) (map[string]domain.Ticker, error) {
	products := q.Products
	if len(products) == 0 {
		products = b.catalog.Get()
	}
	want := make(map[string]domain.Instrument, len(products))
	for _, p := range products {
		want[p.ProductID] = p
	}

	return retry.DoWithData(ctx, b.retry, "getTickers", func(ctx context.Context) (map[string]domain.Ticker, error) {
		stats, err := b.client.NewListPriceChangeStatsService().Do(ctx)
		if err != nil {
			return nil, translateBinanceErr(err)
		}

		out := make(map[string]domain.Ticker, len(want))
		for _, s := range stats {
			inst, ok := want[s.Symbol]
			if !ok {
				continue
			}
			t := domain.Ticker{
				ProductID:  inst.ProductID,
				Normalized: inst.Normalized,
				Time:       time.UnixMilli(s.CloseTime),
			}
			if t.Last, err = decimal.NewFromString(s.LastPrice); err != nil {
				return nil, errors.Wrap(err, "parse last price")
			}
			if t.Bid, err = decimal.NewFromString(s.BidPrice); err != nil {
				return nil, errors.Wrap(err, "parse bid price")
			}
			if t.Ask, err = decimal.NewFromString(s.AskPrice); err != nil {
				return nil, errors.Wrap(err, "parse ask price")
			}
			if t.Volume, err = decimal.NewFromString(s.Volume); err != nil {
				return nil, errors.Wrap(err, "parse volume")
			}
			out[inst.Normalized] = t
		}
		return out, nil
	})
}

func (b *Binance) GetDepth(ctx context.Context, q DepthQuery) (*domain.OrderBook, error) {
	symbol := b.symbol(q.ProductID)
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	return retry.DoWithData(ctx, b.retry, "getDepth", func(ctx context.Context) (*domain.OrderBook, error) {
		res, err := b.client.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
		if err != nil {
			return nil, translateBinanceErr(err)
		}

		book := &domain.OrderBook{ProductID: q.ProductID, Time: time.Now()}
		for _, lvl := range res.Bids {
			level, err := bookLevel(lvl.Price, lvl.Quantity)
			if err != nil {
				return nil, err
			}
			book.Bids = append(book.Bids, level)
		}
		for _, lvl := range res.Asks {
			level, err := bookLevel(lvl.Price, lvl.Quantity)
			if err != nil {
				return nil, err
			}
			book.Asks = append(book.Asks, level)
		}
		return book, nil
	})
}

func (b *Binance) Buy(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	return b.placeOrder(ctx, domain.SideBuy, req)
}

func (b *Binance) Sell(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	return b.placeOrder(ctx, domain.SideSell, req)
}

func (b *Binance) placeOrder(ctx context.Context, side domain.Side, req OrderRequest) (*domain.Order, error) {
	symbol := b.symbol(req.ProductID)
	size := req.Size
	if inst := b.catalog.Normalize(req.ProductID); inst != nil && inst.SizeIncrement != "" {
		if inc, err := decimal.NewFromString(inst.SizeIncrement); err == nil && inc.IsPositive() {
			size = size.Div(inc).Floor().Mul(inc)
		}
	}
	clientID := binanceClientPrefix + uuid.NewString()

	order, err := retry.DoWithData(ctx, b.retry, "placeOrder", func(ctx context.Context) (*domain.Order, error) {
		svc := b.client.NewCreateOrderService().
			Symbol(symbol).
			Quantity(size.String()).
			NewClientOrderID(clientID)
		if side == domain.SideBuy {
			svc = svc.Side(binance.SideTypeBuy)
		} else {
			svc = svc.Side(binance.SideTypeSell)
		}
		switch {
		case req.OrderType == domain.OrderTypeTaker:
			svc = svc.Type(binance.OrderTypeMarket)
		case req.PostOnly:
			svc = svc.Type(binance.OrderTypeLimitMaker).Price(req.Price.String())
		default:
			svc = svc.Type(binance.OrderTypeLimit).
				TimeInForce(binance.TimeInForceTypeGTC).
				Price(req.Price.String())
		}

		res, err := svc.Do(ctx)
		if err != nil {
			return nil, translateBinanceErr(err)
		}
		return binanceOrderFromCreate(res, req.ProductID, side, req.OrderType)
	})
	if err != nil {
		if rejected := rejectionFromTerminal(err, req.ProductID, side); rejected != nil {
			b.logger.Debug("order rejected by venue",
				zap.String("product", req.ProductID),
				zap.String("side", string(side)),
				zap.String("reason", rejected.RejectReason))
			return rejected, nil
		}
		return nil, err
	}
	return order, nil
}

// CancelOrder succeeds when the order is already gone; a cancel whose intent
// is satisfied is not a failure.
func (b *Binance) CancelOrder(ctx context.Context, q OrderQuery) error {
	symbol := b.symbol(q.ProductID)
	return b.retry.Do(ctx, "cancelOrder", func(ctx context.Context) error {
		_, err := b.client.NewCancelOrderService().
			Symbol(symbol).
			OrigClientOrderID(string(q.OrderID)).
			Do(ctx)
		return translateBinanceErr(err)
	})
}

func (b *Binance) GetOrder(ctx context.Context, q OrderQuery) (*domain.Order, error) {
	symbol := b.symbol(q.ProductID)
	return retry.DoWithData(ctx, b.retry, "getOrder", func(ctx context.Context) (*domain.Order, error) {
		res, err := b.client.NewGetOrderService().
			Symbol(symbol).
			OrigClientOrderID(string(q.OrderID)).
			Do(ctx)
		if err != nil {
			return nil, translateBinanceErr(err)
		}
		return binanceOrder(res, q.ProductID)
	})
}

func (b *Binance) GetOrders(ctx context.Context, q OrdersQuery) ([]domain.Order, error) {
	symbol := b.symbol(q.ProductID)
	return retry.DoWithData(ctx, b.retry, "getOrders", func(ctx context.Context) ([]domain.Order, error) {
		svc := b.client.NewListOrdersService().Symbol(symbol)
		if q.Since > 0 {
			svc = svc.StartTime(q.Since)
		}
		if q.Limit > 0 {
			svc = svc.Limit(q.Limit)
		}
		raw, err := svc.Do(ctx)
		if err != nil {
			return nil, translateBinanceErr(err)
		}

		orders := make([]domain.Order, 0, len(raw))
		for _, r := range raw {
			o, err := binanceOrder(r, q.ProductID)
			if err != nil {
				return nil, err
			}
			orders = append(orders, *o)
		}
		return orders, nil
	})
}

// UpdateLeverage is a no-op on spot.
func (b *Binance) UpdateLeverage(ctx context.Context, q LeverageQuery) error { return nil }

// UpdateMarginMode is a no-op on spot.
func (b *Binance) UpdateMarginMode(ctx context.Context, q MarginModeQuery) error { return nil }

// InitFees reads maker/taker commission from the account unless both
// overrides are configured.
func (b *Binance) InitFees(ctx context.Context) error {
	if b.makerOverride.IsPositive() && b.takerOverride.IsPositive() {
		b.maker, b.taker = b.makerOverride, b.takerOverride
		return nil
	}
	return b.retry.Do(ctx, "initFees", func(ctx context.Context) error {
		acc, err := b.client.NewGetAccountService().Do(ctx)
		if err != nil {
			return translateBinanceErr(err)
		}
		// commissions come back in basis points
		b.maker = decimal.NewFromInt(acc.MakerCommission).Div(decimal.NewFromInt(100))
		b.taker = decimal.NewFromInt(acc.TakerCommission).Div(decimal.NewFromInt(100))
		if b.makerOverride.IsPositive() {
			b.maker = b.makerOverride
		}
		if b.takerOverride.IsPositive() {
			b.taker = b.takerOverride
		}
		b.logger.Info("venue fees loaded",
			zap.String("venue", binanceVenue),
			zap.String("maker_pct", b.maker.String()),
			zap.String("taker_pct", b.taker.String()))
		return nil
	})
}

func (b *Binance) Fees() (decimal.Decimal, decimal.Decimal) { return b.maker, b.taker }

// symbol resolves user-facing selectors (normalized key, label, raw symbol)
// into the venue symbol.
func (b *Binance) symbol(productID string) string {
	if inst := b.catalog.Normalize(productID); inst != nil {
		return inst.ProductID
	}
	return productID
}

func bookLevel(price, qty string) (domain.BookLevel, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.BookLevel{}, errors.Wrap(err, "parse depth price")
	}
	s, err := decimal.NewFromString(qty)
	if err != nil {
		return domain.BookLevel{}, errors.Wrap(err, "parse depth size")
	}
	return domain.BookLevel{Price: p, Size: s}, nil
}

func candleFromKline(k *binance.Kline, period string) (domain.Candle, error) {
	var c domain.Candle
	var err error
	if c.Open, err = decimal.NewFromString(k.Open); err != nil {
		return c, errors.Wrap(err, "parse open")
	}
	if c.High, err = decimal.NewFromString(k.High); err != nil {
		return c, errors.Wrap(err, "parse high")
	}
	if c.Low, err = decimal.NewFromString(k.Low); err != nil {
		return c, errors.Wrap(err, "parse low")
	}
	if c.Close, err = decimal.NewFromString(k.Close); err != nil {
		return c, errors.Wrap(err, "parse close")
	}
	if c.Volume, err = decimal.NewFromString(k.Volume); err != nil {
		return c, errors.Wrap(err, "parse volume")
	}
	c.OpenTime = time.UnixMilli(k.OpenTime)
	c.CloseTime = time.UnixMilli(k.CloseTime)
	c.Period = period
	return c, nil
}

func binanceOrderFromCreate(res *binance.CreateOrderResponse, productID string, side domain.Side, typ domain.OrderType) (*domain.Order, error) {
	price, err := decimal.NewFromString(res.Price)
	if err != nil {
		return nil, errors.Wrap(err, "parse order price")
	}
	orig, err := decimal.NewFromString(res.OrigQuantity)
	if err != nil {
		return nil, errors.Wrap(err, "parse order size")
	}
	executed, err := decimal.NewFromString(res.ExecutedQuantity)
	if err != nil {
		return nil, errors.Wrap(err, "parse executed size")
	}

	o := domain.NewOrder(domain.OrderID(res.ClientOrderID), productID, side, typ, price, orig, time.UnixMilli(res.TransactTime))
	if executed.IsPositive() {
		if err := o.ApplyFill(executed, time.UnixMilli(res.TransactTime)); err != nil {
			return nil, err
		}
	}
	applyBinanceStatus(o, res.Status, time.UnixMilli(res.TransactTime))
	return o, nil
}

func binanceOrder(res *binance.Order, productID string) (*domain.Order, error) {
	price, err := decimal.NewFromString(res.Price)
	if err != nil {
		return nil, errors.Wrap(err, "parse order price")
	}
	orig, err := decimal.NewFromString(res.OrigQuantity)
	if err != nil {
		return nil, errors.Wrap(err, "parse order size")
	}
	executed, err := decimal.NewFromString(res.ExecutedQuantity)
	if err != nil {
		return nil, errors.Wrap(err, "parse executed size")
	}

	side := domain.SideBuy
	if res.Side == binance.SideTypeSell {
		side = domain.SideSell
	}
	typ := domain.OrderTypeMaker
	if res.Type == binance.OrderTypeMarket {
		typ = domain.OrderTypeTaker
	}

	o := domain.NewOrder(domain.OrderID(res.ClientOrderID), productID, side, typ, price, orig, time.UnixMilli(res.Time))
	if executed.IsPositive() && executed.LessThan(orig) {
		if err := o.ApplyFill(executed, time.UnixMilli(res.UpdateTime)); err != nil {
			return nil, err
		}
	} else if executed.GreaterThanOrEqual(orig) && orig.IsPositive() {
		if err := o.ApplyFill(orig, time.UnixMilli(res.UpdateTime)); err != nil {
			return nil, err
		}
	}
	applyBinanceStatus(o, res.Status, time.UnixMilli(res.UpdateTime))
	return o, nil
}

func applyBinanceStatus(o *domain.Order, status binance.OrderStatusType, at time.Time) {
	switch status {
	case binance.OrderStatusTypeFilled:
		o.Status = domain.StatusDone
		o.DoneAt = at
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired, binance.OrderStatusTypeRejected:
		o.Cancel(at)
	}
}

// rejectionFromTerminal maps a terminal venue error with a business reject
// reason into a rejected order result.
func rejectionFromTerminal(err error, productID string, side domain.Side) *domain.Order {
	var terminal *TerminalError
	if !errors.As(err, &terminal) {
		return nil
	}
	switch terminal.Reason {
	case domain.RejectReasonBalance, domain.RejectReasonInvalidOrder,
		domain.RejectReasonBadSymbol, domain.RejectReasonBadRequest:
		return domain.RejectedOrder(productID, side, terminal.Reason)
	}
	return nil
}

// translateBinanceErr folds venue API codes into the retry taxonomy:
// already-gone orders are benign, malformed requests are terminal, and
// everything else stays transient.
func translateBinanceErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	msg := strings.ToLower(apiErr.Message)
	switch apiErr.Code {
	case -2011, -2013:
		// cancel rejected / order does not exist
		return NewBenign("order already gone: %s", apiErr.Message)
	case -1121:
		return NewTerminal(domain.RejectReasonBadSymbol, "%s", apiErr.Message)
	case -1013:
		// filter failure such as MIN_NOTIONAL or LOT_SIZE
		return NewTerminal(domain.RejectReasonInvalidOrder, "%s", apiErr.Message)
	case -2010:
		if strings.Contains(msg, "insufficient") {
			return NewTerminal(domain.RejectReasonBalance, "%s", apiErr.Message)
		}
		return NewTerminal(domain.RejectReasonInvalidOrder, "%s", apiErr.Message)
	case -1100, -1101, -1102, -1103, -1104, -1106:
		return NewTerminal(domain.RejectReasonBadRequest, "%s", apiErr.Message)
	}
	if strings.Contains(apiErr.Message, "MIN_NOTIONAL") {
		return NewTerminal(domain.RejectReasonInvalidOrder, "%s", apiErr.Message)
	}
	return err
}
