package feed

import (
	"context"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

// BybitTickerFeed polls the bybit spot ticker as a secondary price source.
// Its ticks carry no size, which the matching engine treats as unbounded
// liquidity.
type BybitTickerFeed struct {
	client    *bybit.Client
	symbol    string
	productID string
	interval  time.Duration
	logger    *zap.Logger
}

// NewBybitTickerFeed builds a polling ticker feed. symbol is the venue
// symbol (e.g. BTCUSDT), productID the local instrument id the ticks carry.
func NewBybitTickerFeed(client *bybit.Client, symbol, productID string, interval time.Duration, logger *zap.Logger) *BybitTickerFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &BybitTickerFeed{
		client:    client,
		symbol:    symbol,
		productID: productID,
		interval:  interval,
		logger:    logger,
	}
}

func (f *BybitTickerFeed) Stream(ctx context.Context, ticks chan<- domain.Tick) error {
	timer := time.NewTicker(f.interval)
	defer timer.Stop()

	for {
		price, err := f.poll()
		if err != nil {
			f.logger.Warn("ticker poll failed", zap.String("symbol", f.symbol), zap.Error(err))
		} else {
			select {
			case ticks <- domain.Tick{ProductID: f.productID, Price: price, Time: time.Now()}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *BybitTickerFeed) poll() (decimal.Decimal, error) {
	symbol := bybit.SymbolV5(f.symbol)
	result, err := f.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(result.Result.Spot.List) == 0 {
		return decimal.Decimal{}, errors.Errorf("empty ticker response for %s", f.symbol)
	}
	return decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
}
