// Package marketdata provides period parsing and OHLCV bucketing shared by
// connectors.
package marketdata

import (
	"fmt"
	"sort"
	"time"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

// ParsePeriod converts a period string such as "1m", "5m", "1h" or "1d" into
// a duration.
func ParsePeriod(period string) (time.Duration, error) {
	if len(period) < 2 {
		return 0, fmt.Errorf("invalid period: %q", period)
	}

	unit := period[len(period)-1]
	digits := period[:len(period)-1]

	var n int64
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid period number: %q", period)
		}
		n = n*10 + int64(r-'0')
	}
	if n == 0 {
		return 0, fmt.Errorf("zero period: %q", period)
	}

	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported period unit %q in %q", unit, period)
	}
}

// Bucket truncates t down to the start of its period bucket.
func Bucket(t time.Time, period time.Duration) time.Time {
	return t.UTC().Truncate(period)
}

// Merge re-buckets raw candles into the requested period. Samples landing in
// the same bucket merge as open=first, close=last, high=max, low=min,
// volume=sum. Output is sorted by bucket start.
func Merge(raw []domain.Candle, period string) ([]domain.Candle, error) {
	dur, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	sorted := make([]domain.Candle, len(raw))
	copy(sorted, raw)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	byBucket := make(map[int64]*domain.Candle)
	var order []int64

	for _, c := range sorted {
		start := Bucket(c.OpenTime, dur)
		key := start.UnixNano()

		existing, ok := byBucket[key]
		if !ok {
			merged := c
			merged.OpenTime = start
			merged.CloseTime = start.Add(dur).Add(-time.Millisecond)
			merged.Period = period
			byBucket[key] = &merged
			order = append(order, key)
			continue
		}

		if c.High.GreaterThan(existing.High) {
			existing.High = c.High
		}
		if c.Low.LessThan(existing.Low) {
			existing.Low = c.Low
		}
		existing.Close = c.Close
		existing.Volume = existing.Volume.Add(c.Volume)
	}

	out := make([]domain.Candle, 0, len(order))
	for _, key := range order {
		out = append(out, *byBucket[key])
	}
	return out, nil
}
