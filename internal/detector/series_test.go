package detector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestPriceStoreRejectsOutOfOrder(t *testing.T) {
	store := NewPriceStore(10*time.Minute, 30*time.Second)

	require.True(t, store.Record("BTCUSDT", t0, d(100)))
	require.False(t, store.Record("BTCUSDT", t0.Add(-time.Second), d(99)))

	latest, ok := store.Latest("BTCUSDT")
	require.True(t, ok)
	assert.True(t, latest.Price.Equal(d(100)))
}

func TestPriceStoreEqualTimestampOverwrites(t *testing.T) {
	store := NewPriceStore(10*time.Minute, 30*time.Second)

	require.True(t, store.Record("BTCUSDT", t0, d(100)))
	require.True(t, store.Record("BTCUSDT", t0, d(101)))

	latest, ok := store.Latest("BTCUSDT")
	require.True(t, ok)
	assert.True(t, latest.Price.Equal(d(101)))
}

func TestPriceStoreRejectionIsPerSymbol(t *testing.T) {
	store := NewPriceStore(10*time.Minute, 30*time.Second)

	require.True(t, store.Record("BTCUSDT", t0, d(100)))
	require.False(t, store.Record("BTCUSDT", t0.Add(-time.Minute), d(90)))

	// Another symbol's series is unaffected by the rejected tick.
	require.True(t, store.Record("ETHUSDT", t0.Add(-time.Minute), d(2000)))
}

func TestPriceStoreEvictsBeyondHorizon(t *testing.T) {
	store := NewPriceStore(5*time.Minute, 30*time.Second)

	store.Record("BTCUSDT", t0, d(100))
	store.Record("BTCUSDT", t0.Add(10*time.Minute), d(110))

	_, ok := store.SampleAtOrBefore("BTCUSDT", t0.Add(time.Minute))
	assert.False(t, ok, "sample outside horizon should be evicted")

	latest, ok := store.Latest("BTCUSDT")
	require.True(t, ok)
	assert.True(t, latest.Price.Equal(d(110)))
}

func TestSampleAtOrBefore(t *testing.T) {
	store := NewPriceStore(10*time.Minute, 30*time.Second)
	store.Record("BTCUSDT", t0, d(100))
	store.Record("BTCUSDT", t0.Add(time.Minute), d(101))
	store.Record("BTCUSDT", t0.Add(2*time.Minute), d(102))

	sample, ok := store.SampleAtOrBefore("BTCUSDT", t0.Add(90*time.Second))
	require.True(t, ok)
	assert.True(t, sample.Price.Equal(d(101)))

	sample, ok = store.SampleAtOrBefore("BTCUSDT", t0.Add(time.Minute))
	require.True(t, ok)
	assert.True(t, sample.Price.Equal(d(101)), "boundary timestamp is inclusive")

	_, ok = store.SampleAtOrBefore("BTCUSDT", t0.Add(-time.Second))
	assert.False(t, ok, "no sample old enough")
}

func TestWindowedReturn(t *testing.T) {
	store := NewPriceStore(10*time.Minute, 30*time.Second)
	now := t0.Add(310 * time.Second)
	store.Record("BTCUSDT", t0, d(100))
	store.Record("BTCUSDT", now, d(130))

	ret, ok := store.WindowedReturn("BTCUSDT", 300*time.Second, now)
	require.True(t, ok)
	assert.True(t, ret.Value.Equal(d(0.30)), "got %s", ret.Value)
	assert.True(t, ret.From.Price.Equal(d(100)))
	assert.True(t, ret.To.Price.Equal(d(130)))
}

func TestWindowedReturnNoData(t *testing.T) {
	store := NewPriceStore(10*time.Minute, 30*time.Second)
	now := t0.Add(time.Minute)
	store.Record("BTCUSDT", t0, d(100))
	store.Record("BTCUSDT", now, d(130))

	// Oldest sample is newer than now-window: evaluation must be skipped,
	// never treated as a zero return.
	_, ok := store.WindowedReturn("BTCUSDT", 300*time.Second, now)
	assert.False(t, ok)

	_, ok = store.WindowedReturn("UNKNOWN", 300*time.Second, now)
	assert.False(t, ok)
}

func TestWindowedReturnInvalidReference(t *testing.T) {
	store := NewPriceStore(10*time.Minute, 30*time.Second)
	now := t0.Add(310 * time.Second)
	store.Record("BTCUSDT", t0, decimal.Zero)
	store.Record("BTCUSDT", now, d(130))

	_, ok := store.WindowedReturn("BTCUSDT", 300*time.Second, now)
	assert.False(t, ok, "non-positive reference price is invalid")
}

func TestWindowedReturnSignMatchesMove(t *testing.T) {
	store := NewPriceStore(10*time.Minute, 30*time.Second)
	now := t0.Add(310 * time.Second)
	store.Record("ETHUSDT", t0, d(200))
	store.Record("ETHUSDT", now, d(150))

	ret, ok := store.WindowedReturn("ETHUSDT", 300*time.Second, now)
	require.True(t, ok)
	assert.Equal(t, -1, ret.Value.Sign())
}
