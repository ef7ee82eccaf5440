// Package filljournal persists every simulated fill in a write-ahead log so
// a paper session's execution history survives restarts and can be audited.
package filljournal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

const (
	// DefaultDir is used when no journal directory is configured.
	DefaultDir = "./wal/fills"

	segmentLimit  = 1000
	maxSegments   = 10
	fillKeyPrefix = "fill_"
)

// Fill is one executed slice of an order.
type Fill struct {
	OrderID   domain.OrderID  `json:"order_id"`
	ProductID string          `json:"product_id"`
	Side      domain.Side     `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Fee       decimal.Decimal `json:"fee"`
	Time      time.Time       `json:"time"`
}

// Journal is a WAL-backed fill log.
type Journal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// New opens (or creates) the journal in dir.
func New(dir string) (*Journal, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "fill_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init fill journal WAL")
	}
	return &Journal{wal: wal}, nil
}

// Append records a fill.
func (j *Journal) Append(fill Fill) error {
	if j == nil || j.wal == nil {
		return errors.New("fill journal is not initialized")
	}
	if fill.ProductID == "" {
		return fmt.Errorf("fill product id is required")
	}

	payload, err := json.Marshal(fill)
	if err != nil {
		return errors.Wrap(err, "marshal fill")
	}

	key := fmt.Sprintf("%s%s", fillKeyPrefix, fill.ProductID)

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// FillsAfter replays fills recorded after the given WAL index.
func (j *Journal) FillsAfter(index uint64) ([]Fill, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("fill journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	current := j.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	fills := make([]Fill, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, fillKeyPrefix) {
			continue
		}
		var fill Fill
		if err := json.Unmarshal(payload, &fill); err != nil {
			continue
		}
		fills = append(fills, fill)
	}
	return fills, nil
}

// CurrentIndex exposes the WAL position for incremental readers.
func (j *Journal) CurrentIndex() uint64 {
	if j == nil || j.wal == nil {
		return 0
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.wal.CurrentIndex()
}

// Close releases the underlying WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return nil
	}
	return j.wal.Close()
}
