// Package catalog normalizes and persists tradable-instrument metadata per
// venue.
package catalog

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

// Fetcher retrieves the live instrument list from a venue.
type Fetcher interface {
	FetchProducts(ctx context.Context) ([]domain.Instrument, error)
}

// Catalog caches the instrument list of one venue and keeps the persisted
// snapshot in sync. Instruments are immutable between refreshes.
type Catalog struct {
	venue   string
	repo    Repository
	fetcher Fetcher
	logger  *zap.Logger

	mu       sync.RWMutex
	products []domain.Instrument
	loaded   bool
}

// New creates a catalog for venue backed by repo. fetcher may be nil for
// read-only use (the simulator delegates fetching to its market-data venue).
func New(venue string, repo Repository, fetcher Fetcher, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		venue:   venue,
		repo:    repo,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Refresh returns the catalog, fetching from the venue and persisting when
// force is set. Without force the last persisted snapshot is served.
func (c *Catalog) Refresh(ctx context.Context, force bool) ([]domain.Instrument, error) {
	if !force {
		return c.Get(), nil
	}
	if c.fetcher == nil {
		return nil, errors.Errorf("catalog for %s has no fetcher", c.venue)
	}

	fetched, err := c.fetcher.FetchProducts(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch products for %s", c.venue)
	}

	products := make([]domain.Instrument, 0, len(fetched))
	for _, p := range fetched {
		if !p.Active {
			continue
		}
		p.MinSize = NormalizeNumeric(p.MinSize)
		p.PriceIncrement = NormalizeNumeric(p.PriceIncrement)
		p.SizeIncrement = NormalizeNumeric(p.SizeIncrement)
		products = append(products, p)
	}

	if err := c.repo.Save(c.venue, products); err != nil {
		return nil, errors.Wrapf(err, "persist catalog for %s", c.venue)
	}

	c.mu.Lock()
	c.products = products
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("catalog refreshed",
		zap.String("venue", c.venue),
		zap.Int("products", len(products)))

	return append([]domain.Instrument(nil), products...), nil
}

// Get returns the cached catalog, loading the persisted snapshot on first
// use. It never errors; with no snapshot it returns an empty list.
func (c *Catalog) Get() []domain.Instrument {
	c.mu.RLock()
	if c.loaded {
		out := append([]domain.Instrument(nil), c.products...)
		c.mu.RUnlock()
		return out
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		products, err := c.repo.Load(c.venue)
		if err != nil {
			c.logger.Warn("failed to load catalog snapshot",
				zap.String("venue", c.venue), zap.Error(err))
			products = nil
		}
		c.products = products
		c.loaded = true
	}
	return append([]domain.Instrument(nil), c.products...)
}

// Normalize maps a user-facing selector ("BTC-USDT", "venue.BTC-USDT" or a
// normalized key) to a catalog entry. Unknown selectors yield nil.
func (c *Catalog) Normalize(selector string) *domain.Instrument {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil
	}

	for _, p := range c.Get() {
		if strings.EqualFold(p.Normalized, selector) ||
			strings.EqualFold(p.ProductID, selector) ||
			strings.EqualFold(p.ID, selector) {
			cp := p
			return &cp
		}
	}
	return nil
}

// FilterSymbols keeps only selectors present in the catalog, resolved to
// their instruments. Unknown selectors are dropped.
func (c *Catalog) FilterSymbols(selectors []string) []domain.Instrument {
	out := make([]domain.Instrument, 0, len(selectors))
	for _, s := range selectors {
		if p := c.Normalize(s); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// NormalizeNumeric rewrites a numeric string in scientific notation
// ("1e-8") as a plain decimal string ("0.00000001"). Downstream increment
// math assumes decimal-string precision. Non-numeric input passes through.
func NormalizeNumeric(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.String()
}

// IncrementFromPrecision converts a digit-count precision (8 meaning 1e-8)
// into its increment string. Zero digits means whole units.
func IncrementFromPrecision(digits int) string {
	if digits <= 0 {
		return "1"
	}
	return decimal.New(1, int32(-digits)).String()
}
