// Package feed turns venue market data into the tick stream the matching
// engine consumes.
package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/connector"
	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

// Feed streams ticks for one product until ctx is cancelled.
type Feed interface {
	Stream(ctx context.Context, ticks chan<- domain.Tick) error
}

// TradeFeed polls a venue's public trade history and replays it as ticks.
// A last-seen trade id keeps consecutive polls from emitting the same trade
// twice; the cursor lives in memory, so a process restart starts from the
// venue's recent window again.
type TradeFeed struct {
	conn      connector.Connector
	productID string
	interval  time.Duration
	logger    *zap.Logger

	cursor string
}

// NewTradeFeed builds a polling trade feed.
func NewTradeFeed(conn connector.Connector, productID string, interval time.Duration, logger *zap.Logger) *TradeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &TradeFeed{conn: conn, productID: productID, interval: interval, logger: logger}
}

// Stream polls until ctx ends. Poll errors are logged and the next interval
// tried; the connector's retry policy already absorbed transient failures.
func (f *TradeFeed) Stream(ctx context.Context, ticks chan<- domain.Tick) error {
	timer := time.NewTicker(f.interval)
	defer timer.Stop()

	for {
		trades, err := f.conn.GetTrades(ctx, connector.TradesQuery{
			ProductID:   f.productID,
			LastTradeID: f.cursor,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("trade poll failed", zap.String("product", f.productID), zap.Error(err))
		}
		for _, trade := range trades {
			f.cursor = trade.TradeID
			select {
			case ticks <- trade.Tick():
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
