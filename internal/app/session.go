// Package app wires a trading session: connector selection, catalog warmup,
// fee initialization, and in simulated modes the tick pipeline feeding the
// matching engine.
package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/config"
	"github.com/daniel-lucas-silva/xcoin/internal/connector"
	"github.com/daniel-lucas-silva/xcoin/internal/domain"
	"github.com/daniel-lucas-silva/xcoin/internal/events"
	"github.com/daniel-lucas-silva/xcoin/internal/feed"
	"github.com/daniel-lucas-silva/xcoin/internal/sim"
	"github.com/daniel-lucas-silva/xcoin/internal/storage/balancesnapshots"
)

// Session runs one configured trading session over a single connector.
type Session struct {
	cfg    *config.Config
	conn   connector.Connector
	sim    *sim.Sim // nil in live mode
	feeds  []feed.Feed
	bus    *events.Bus
	logger *zap.Logger

	snapshots *balancesnapshots.WALStore // optional balance history

	products []domain.Instrument
}

// New assembles a session. conn is the session connector; simulated modes
// pass the simulator, live mode the venue connector directly.
func New(cfg *config.Config, conn connector.Connector, bus *events.Bus, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{cfg: cfg, conn: conn, bus: bus, logger: logger}
	if simConn, ok := conn.(*sim.Sim); ok {
		s.sim = simConn
	}
	return s
}

// SetSnapshotStore attaches a WAL recording every periodic balance read.
func (s *Session) SetSnapshotStore(store *balancesnapshots.WALStore) {
	s.snapshots = store
}

// AddFeed attaches a tick source; only meaningful in simulated modes.
func (s *Session) AddFeed(f feed.Feed) {
	s.feeds = append(s.feeds, f)
}

// Warmup refreshes the catalog, resolves the session instruments, loads fee
// rates, and applies futures settings. Must run before Run.
func (s *Session) Warmup(ctx context.Context) error {
	products, err := s.conn.RefreshProducts(ctx, true)
	if err != nil {
		return errors.Wrap(err, "refresh products")
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.TypeProductsRefreshed, Venue: s.cfg.Venue})
	}

	byKey := make(map[string]domain.Instrument, len(products))
	for _, p := range products {
		byKey[p.Normalized] = p
		byKey[p.ProductID] = p
	}
	for _, selector := range s.cfg.Symbols {
		inst, ok := byKey[selector]
		if !ok {
			return errors.Errorf("symbol %s not found on %s", selector, s.cfg.Venue)
		}
		s.products = append(s.products, inst)
		if s.sim != nil {
			s.sim.RegisterInstrument(inst)
		}
	}
	if len(s.products) == 0 {
		return errors.New("no tradable symbols configured")
	}

	if err := s.conn.InitFees(ctx); err != nil {
		return errors.Wrap(err, "init fees")
	}

	if s.cfg.Future {
		for _, inst := range s.products {
			if err := s.conn.UpdateLeverage(ctx, connector.LeverageQuery{
				ProductID: inst.ProductID,
				Leverage:  s.cfg.Leverage,
			}); err != nil {
				return errors.Wrapf(err, "set leverage for %s", inst.ProductID)
			}
			if err := s.conn.UpdateMarginMode(ctx, connector.MarginModeQuery{
				ProductID: inst.ProductID,
				Isolated:  s.cfg.Isolated,
			}); err != nil {
				return errors.Wrapf(err, "set margin mode for %s", inst.ProductID)
			}
		}
	}

	maker, taker := s.conn.Fees()
	s.logger.Info("session ready",
		zap.String("venue", s.cfg.Venue),
		zap.String("mode", s.cfg.Mode),
		zap.Int("symbols", len(s.products)),
		zap.String("maker_pct", maker.String()),
		zap.String("taker_pct", taker.String()))
	return nil
}

// Products are the resolved session instruments.
func (s *Session) Products() []domain.Instrument {
	return s.products
}

// Connector is the session's trading surface.
func (s *Session) Connector() connector.Connector {
	return s.conn
}

// Run pumps ticks from the attached feeds into the matching engine and
// periodically reports balances, until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	ticks := make(chan domain.Tick, 256)

	for _, f := range s.feeds {
		f := f
		go func() {
			if err := f.Stream(ctx, ticks); err != nil && ctx.Err() == nil {
				s.logger.Error("feed stopped", zap.Error(err))
			}
		}()
	}

	report := time.NewTicker(time.Minute)
	defer report.Stop()

	for {
		select {
		case tick := <-ticks:
			if s.sim != nil {
				s.sim.ProcessTick(tick)
			}
		case <-report.C:
			s.reportBalances(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) reportBalances(ctx context.Context) {
	for _, inst := range s.products {
		bal, err := s.conn.GetBalance(ctx, connector.BalanceQuery{
			ProductID: inst.ProductID,
			Asset:     inst.Asset,
			Currency:  inst.Currency,
		})
		if err != nil {
			s.logger.Warn("balance read failed", zap.String("product", inst.ProductID), zap.Error(err))
			continue
		}
		s.logger.Info("balance",
			zap.String("product", inst.ProductID),
			zap.String("currency", bal.Currency.String()),
			zap.String("currency_hold", bal.CurrencyHold.String()),
			zap.String("asset", bal.Asset.String()),
			zap.String("asset_hold", bal.AssetHold.String()))

		if s.snapshots != nil {
			err := s.snapshots.Save(balancesnapshots.Snapshot{
				ProductID:    inst.ProductID,
				Currency:     bal.Currency.String(),
				CurrencyHold: bal.CurrencyHold.String(),
				Asset:        bal.Asset.String(),
				AssetHold:    bal.AssetHold.String(),
				Time:         time.Now().UnixMilli(),
			})
			if err != nil {
				s.logger.Warn("balance snapshot failed", zap.Error(err))
			}
		}
	}
}
