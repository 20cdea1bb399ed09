package detector

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceStore keeps a bounded, time-ordered price series per symbol. Series
// are created lazily on first tick and mutated only through Record.
type PriceStore struct {
	mu      sync.Mutex
	horizon time.Duration
	series  map[string][]PriceSample
}

// NewPriceStore sizes the retention horizon to the longest configured
// window plus a grace margin, so the oldest reference sample any rule can
// ask for is still present after eviction.
func NewPriceStore(maxWindow, grace time.Duration) *PriceStore {
	return &PriceStore{
		horizon: maxWindow + grace,
		series:  make(map[string][]PriceSample),
	}
}

// Record appends a sample for symbol. A timestamp older than the last
// recorded sample is rejected (ordering invariant); an equal timestamp
// overwrites the last price. Returns false when the tick was rejected.
func (s *PriceStore) Record(symbol string, ts time.Time, price decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.series[symbol]
	if n := len(samples); n > 0 {
		last := samples[n-1].Time
		if ts.Before(last) {
			return false
		}
		if ts.Equal(last) {
			samples[n-1].Price = price
			return true
		}
	}

	samples = append(samples, PriceSample{Time: ts, Price: price})

	cutoff := ts.Add(-s.horizon)
	drop := 0
	for drop < len(samples)-1 && samples[drop].Time.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		samples = append(samples[:0], samples[drop:]...)
	}

	s.series[symbol] = samples
	return true
}

// Latest returns the newest sample for symbol.
func (s *PriceStore) Latest(symbol string) (PriceSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.series[symbol]
	if len(samples) == 0 {
		return PriceSample{}, false
	}
	return samples[len(samples)-1], true
}

// SampleAtOrBefore returns the latest sample with Time <= target, or
// ok=false when the series holds nothing old enough. Callers must treat
// ok=false as "skip this window", never as a zero return.
func (s *PriceStore) SampleAtOrBefore(symbol string, target time.Time) (PriceSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.series[symbol]
	// First index strictly after target; the sample before it is the answer.
	idx := sort.Search(len(samples), func(i int) bool {
		return samples[i].Time.After(target)
	})
	if idx == 0 {
		return PriceSample{}, false
	}
	return samples[idx-1], true
}

// WindowedReturn computes the fractional return from the reference sample
// at or before now-window to the latest sample. ok=false covers both
// insufficient history and a non-positive reference price.
func (s *PriceStore) WindowedReturn(symbol string, window time.Duration, now time.Time) (Return, bool) {
	from, ok := s.SampleAtOrBefore(symbol, now.Add(-window))
	if !ok {
		return Return{}, false
	}
	to, ok := s.Latest(symbol)
	if !ok {
		return Return{}, false
	}
	if from.Price.Sign() <= 0 {
		return Return{}, false
	}

	value := to.Price.Sub(from.Price).Div(from.Price)
	return Return{From: from, To: to, Value: value}, true
}

// Symbols lists symbols with at least one recorded sample.
func (s *PriceStore) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.series))
	for symbol := range s.series {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
