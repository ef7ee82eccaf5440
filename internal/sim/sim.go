package sim

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/connector"
	"github.com/daniel-lucas-silva/xcoin/internal/domain"
	"github.com/daniel-lucas-silva/xcoin/internal/ledger"
	"github.com/daniel-lucas-silva/xcoin/internal/storage/filljournal"
	"github.com/daniel-lucas-silva/xcoin/internal/storage/simstate"
)

// Config wires a simulator session over a real market-data venue.
type Config struct {
	Market connector.Connector // live venue used for market data in paper mode

	Backtest bool // no live feed: orders auto-fill, quotes come from replayed ticks

	Latency     time.Duration // simulated round-trip per operation
	SettleDelay time.Duration
	SlippagePct decimal.Decimal

	Future   bool
	Leverage int
	Isolated bool

	// Fee overrides, percent; zero means "ask the market venue".
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal

	// Starting balances applied to every registered instrument.
	Currency decimal.Decimal
	Asset    decimal.Decimal

	Journal *filljournal.Journal
	// StateDir persists per-product balances across restarts; empty disables.
	StateDir string
	Logger   *zap.Logger
}

// Sim is the simulator connector: market data is delegated to the wrapped
// venue, trading runs against the local matching engine.
type Sim struct {
	cfg    Config
	market connector.Connector
	engine *Engine
	book   *ledger.Book
	logger *zap.Logger

	mu       sync.RWMutex
	lastTick map[string]domain.Tick
	stores   map[string]*simstate.Store
	leverage int
	isolated bool
	maker    decimal.Decimal
	taker    decimal.Decimal
}

var _ connector.Connector = (*Sim)(nil)

// New builds the simulator. RegisterInstrument must be called for every
// traded product before orders are placed.
func New(cfg Config) *Sim {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Leverage < 1 {
		cfg.Leverage = 1
	}

	book := ledger.NewBook()
	s := &Sim{
		cfg:      cfg,
		market:   cfg.Market,
		book:     book,
		logger:   cfg.Logger,
		lastTick: make(map[string]domain.Tick),
		stores:   make(map[string]*simstate.Store),
		leverage: cfg.Leverage,
		isolated: cfg.Isolated,
	}
	s.engine = NewEngine(EngineConfig{
		SettleDelay: cfg.SettleDelay,
		SlippagePct: cfg.SlippagePct,
		FullFill:    cfg.Backtest,
		Logger:      cfg.Logger,
		OnFill:      s.recordFill,
	}, book)
	return s
}

// RegisterInstrument seeds the balance book and rounding limits for one
// traded product, restoring any persisted state from a previous session.
func (s *Sim) RegisterInstrument(inst domain.Instrument) {
	currency, asset := s.cfg.Currency, s.cfg.Asset

	if s.cfg.StateDir != "" {
		store, err := simstate.NewStore(s.cfg.StateDir, inst.ProductID)
		if err != nil {
			s.logger.Warn("simulate state unavailable", zap.String("product", inst.ProductID), zap.Error(err))
		} else {
			s.mu.Lock()
			s.stores[inst.ProductID] = store
			s.mu.Unlock()
			if state, err := store.Load(); err != nil {
				s.logger.Warn("simulate state load failed", zap.String("product", inst.ProductID), zap.Error(err))
			} else if state != nil {
				if c, a, err := state.Balances(); err == nil {
					currency, asset = c, a
					s.logger.Info("simulate state restored",
						zap.String("product", inst.ProductID),
						zap.String("currency", c.String()),
						zap.String("asset", a.String()))
				}
			}
		}
	}

	s.book.Init(inst.ProductID, currency, asset)
	if s.cfg.Future {
		s.book.SetFutures(inst.ProductID, s.leverage, s.isolated, domain.PositionSideLong)
	}
	s.engine.RegisterInstrument(inst)
}

// ProcessTick feeds one market observation into the matching engine.
func (s *Sim) ProcessTick(tick domain.Tick) {
	s.mu.Lock()
	s.lastTick[tick.ProductID] = tick
	s.mu.Unlock()
	s.engine.ProcessTick(tick)
}

func (s *Sim) RefreshProducts(ctx context.Context, force bool) ([]domain.Instrument, error) {
	return s.market.RefreshProducts(ctx, force)
}

func (s *Sim) GetBalance(ctx context.Context, q connector.BalanceQuery) (*domain.Balance, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	bal := s.engine.Balance(q.ProductID)
	return &bal, nil
}

func (s *Sim) GetTrades(ctx context.Context, q connector.TradesQuery) ([]domain.Trade, error) {
	return s.market.GetTrades(ctx, q)
}

func (s *Sim) GetKLines(ctx context.Context, q connector.KLinesQuery) ([]domain.Candle, error) {
	return s.market.GetKLines(ctx, q)
}

func (s *Sim) GetQuote(ctx context.Context, q connector.QuoteQuery) (*domain.Quote, error) {
	if !s.cfg.Backtest {
		return s.market.GetQuote(ctx, q)
	}
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	tick, ok := s.lastTick[q.ProductID]
	s.mu.RUnlock()
	if !ok {
		return &domain.Quote{}, nil
	}
	return &domain.Quote{Bid: tick.Price, Ask: tick.Price}, nil
}

func (s *Sim) GetTickers(ctx context.Context, q connector.TickersQuery) (map[string]domain.Ticker, error) {
	if !s.cfg.Backtest {
		return s.market.GetTickers(ctx, q)
	}
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]domain.Ticker, len(q.Products))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range q.Products {
		tick, ok := s.lastTick[p.ProductID]
		if !ok {
			continue
		}
		out[p.Normalized] = domain.Ticker{
			ProductID:  p.ProductID,
			Normalized: p.Normalized,
			Bid:        tick.Price,
			Ask:        tick.Price,
			Last:       tick.Price,
			Time:       tick.Time,
		}
	}
	return out, nil
}

func (s *Sim) GetDepth(ctx context.Context, q connector.DepthQuery) (*domain.OrderBook, error) {
	return s.market.GetDepth(ctx, q)
}

func (s *Sim) Buy(ctx context.Context, req connector.OrderRequest) (*domain.Order, error) {
	return s.place(ctx, domain.SideBuy, req)
}

func (s *Sim) Sell(ctx context.Context, req connector.OrderRequest) (*domain.Order, error) {
	return s.place(ctx, domain.SideSell, req)
}

func (s *Sim) place(ctx context.Context, side domain.Side, req connector.OrderRequest) (*domain.Order, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}

	order := s.engine.Submit(side, req.ProductID, req.OrderType, req.Price, req.Size, req.PostOnly, req.PositionSide, s.engine.Now())
	if order.Rejected() {
		return order, nil
	}

	// A local simulation has no counterparties, so the order's own price
	// comes back as a tick once the settle delay has passed.
	synthetic := domain.Tick{
		ProductID: order.ProductID,
		Price:     order.Price,
		Size:      order.OrigSize,
		Time:      order.CreatedAt.Add(s.cfg.SettleDelay + time.Millisecond),
	}
	if s.cfg.Backtest {
		s.engine.ProcessTick(synthetic)
	} else {
		// Detached from the request ctx: once admitted, the resting order
		// settles whether or not the caller is still waiting.
		go func() {
			time.Sleep(s.cfg.Latency + s.cfg.SettleDelay)
			s.engine.ProcessTick(domain.Tick{
				ProductID: synthetic.ProductID,
				Price:     synthetic.Price,
				Size:      synthetic.Size,
				Time:      time.Now(),
			})
		}()
	}
	return order, nil
}

// CancelOrder on a done, cancelled, or unknown order succeeds without
// touching balances.
func (s *Sim) CancelOrder(ctx context.Context, q connector.OrderQuery) error {
	if err := s.sleep(ctx); err != nil {
		return err
	}
	s.engine.Cancel(q.OrderID)
	return nil
}

func (s *Sim) GetOrder(ctx context.Context, q connector.OrderQuery) (*domain.Order, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	order := s.engine.Order(q.OrderID)
	if order == nil {
		return nil, connector.NewBenign("unknown order %s", q.OrderID)
	}
	return order, nil
}

func (s *Sim) GetOrders(ctx context.Context, q connector.OrdersQuery) ([]domain.Order, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}
	return s.engine.Orders(q.ProductID, q.Since, q.Limit), nil
}

func (s *Sim) UpdateLeverage(ctx context.Context, q connector.LeverageQuery) error {
	s.mu.Lock()
	s.leverage = q.Leverage
	s.mu.Unlock()
	s.book.SetFutures(q.ProductID, q.Leverage, s.isolated, domain.PositionSideLong)
	s.applyFees()
	return nil
}

func (s *Sim) UpdateMarginMode(ctx context.Context, q connector.MarginModeQuery) error {
	s.mu.Lock()
	s.isolated = q.Isolated
	leverage := s.leverage
	s.mu.Unlock()
	s.book.SetFutures(q.ProductID, leverage, q.Isolated, domain.PositionSideLong)
	return nil
}

// InitFees resolves fee rates from the wrapped venue (or overrides) and, in
// futures mode, scales them by leverage since fees accrue on the full
// notional.
func (s *Sim) InitFees(ctx context.Context) error {
	maker, taker := s.cfg.MakerFee, s.cfg.TakerFee
	if maker.IsZero() && taker.IsZero() && s.market != nil {
		if err := s.market.InitFees(ctx); err != nil {
			return err
		}
		maker, taker = s.market.Fees()
	}

	s.mu.Lock()
	s.maker, s.taker = maker, taker
	s.mu.Unlock()
	s.applyFees()
	return nil
}

func (s *Sim) Fees() (decimal.Decimal, decimal.Decimal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maker, s.taker
}

func (s *Sim) applyFees() {
	s.mu.RLock()
	maker, taker := s.maker, s.taker
	leverage := s.leverage
	s.mu.RUnlock()

	if s.cfg.Future {
		lev := decimal.NewFromInt(int64(leverage))
		maker = maker.Mul(lev)
		taker = taker.Mul(lev)
	}
	s.engine.SetFees(maker, taker)
}

func (s *Sim) recordFill(fill filljournal.Fill) {
	if s.cfg.Journal != nil {
		if err := s.cfg.Journal.Append(fill); err != nil {
			s.logger.Warn("fill journal append failed", zap.Error(err))
		}
	}

	s.mu.RLock()
	store := s.stores[fill.ProductID]
	s.mu.RUnlock()
	if store != nil {
		bal := s.book.Snapshot(fill.ProductID)
		state := simstate.NewState(fill.ProductID, bal, s.engine.EntryPrice(fill.ProductID))
		if err := store.Save(state); err != nil {
			s.logger.Warn("simulate state save failed", zap.Error(err))
		}
	}
}

// sleep models venue round-trip latency.
func (s *Sim) sleep(ctx context.Context) error {
	if s.cfg.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.cfg.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
