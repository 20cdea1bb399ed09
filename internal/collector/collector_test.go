package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pump-dump-alerts/internal/detector"
	"pump-dump-alerts/internal/exchange"
)

type fakeFetcher struct {
	mu          sync.Mutex
	volumeCalls int
	bookCalls   int
	oiCalls     int
	volumes     []exchange.MinuteVolume
	book        detector.OrderBookSnapshot
	oi          decimal.Decimal
}

func (f *fakeFetcher) MinuteVolumes(ctx context.Context, symbol string, bars int) ([]exchange.MinuteVolume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumeCalls++
	return f.volumes, nil
}

func (f *fakeFetcher) OrderBook(ctx context.Context, symbol string, depthLimit int) (detector.OrderBookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookCalls++
	return f.book, nil
}

func (f *fakeFetcher) OpenInterest(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oiCalls++
	return f.oi, nil
}

func (f *fakeFetcher) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumeCalls, f.bookCalls, f.oiCalls
}

func newCollector(f Fetcher, opts Options) (*Collector, *detector.VolumeTracker, *detector.OITracker) {
	volume := detector.NewVolumeTracker(time.Hour)
	oi := detector.NewOITracker(15*time.Minute, time.Minute)
	return New(f, volume, oi, opts, zerolog.Nop()), volume, oi
}

func TestCollectorServesVolumeRequest(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{
		volumes: []exchange.MinuteVolume{
			{Bucket: now.Add(-2 * time.Minute), Volume: decimal.NewFromInt(100)},
			{Bucket: now.Add(-1 * time.Minute), Volume: decimal.NewFromInt(200)},
		},
	}
	c, volume, _ := newCollector(fetcher, Options{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	c.RequestVolume("BTCUSDT")

	require.Eventually(t, func() bool {
		return volume.WindowVolume("BTCUSDT", now, 5*time.Minute).Equal(decimal.NewFromInt(300))
	}, time.Second, 5*time.Millisecond)
}

func TestCollectorBookTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{
		book: detector.OrderBookSnapshot{
			BestBid:   decimal.NewFromInt(100),
			BestAsk:   decimal.NewFromInt(101),
			FetchedAt: now,
		},
	}
	c, _, _ := newCollector(fetcher, Options{Workers: 1, BookTTL: 30 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	_, ok := c.Snapshot("BTCUSDT", now)
	assert.False(t, ok, "nothing cached yet is a miss")

	c.RequestBook("BTCUSDT")
	require.Eventually(t, func() bool {
		_, ok := c.Snapshot("BTCUSDT", now)
		return ok
	}, time.Second, 5*time.Millisecond)

	_, ok = c.Snapshot("BTCUSDT", now.Add(31*time.Second))
	assert.False(t, ok, "stale snapshot is a miss, never a pass")
}

func TestCollectorDeduplicatesPending(t *testing.T) {
	fetcher := &fakeFetcher{}
	// Run is never started: requests stay queued.
	c, _, _ := newCollector(fetcher, Options{Workers: 1, QueueSize: 8})

	for i := 0; i < 5; i++ {
		c.RequestOI("BTCUSDT")
	}

	assert.Len(t, c.queue, 1, "identical pending requests collapse to one")
}

func TestCollectorFullQueueDropsHint(t *testing.T) {
	fetcher := &fakeFetcher{}
	c, _, _ := newCollector(fetcher, Options{Workers: 1, QueueSize: 1})

	c.RequestOI("AAAUSDT")
	// Queue depth is 1: this hint must be dropped without blocking.
	done := make(chan struct{})
	go func() {
		c.RequestOI("BBBUSDT")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("full queue must never block the caller")
	}
}

func TestCollectorRepollOnlyHotSymbols(t *testing.T) {
	fetcher := &fakeFetcher{oi: decimal.NewFromInt(1000)}
	c, _, _ := newCollector(fetcher, Options{Workers: 2, HotWindow: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	c.RequestOI("BTCUSDT")
	require.Eventually(t, func() bool {
		_, _, oiCalls := fetcher.counts()
		return oiCalls == 1
	}, time.Second, 5*time.Millisecond)

	// Within the hot window: repoll refreshes volume and OI.
	require.NoError(t, c.Repoll(ctx, time.Now().UTC()))
	require.Eventually(t, func() bool {
		volumeCalls, _, oiCalls := fetcher.counts()
		return volumeCalls == 1 && oiCalls == 2
	}, time.Second, 5*time.Millisecond)

	// Past the hot window: the symbol is forgotten.
	require.NoError(t, c.Repoll(ctx, time.Now().UTC().Add(2*time.Minute)))
	time.Sleep(50 * time.Millisecond)
	volumeCalls, _, oiCalls := fetcher.counts()
	assert.Equal(t, 1, volumeCalls)
	assert.Equal(t, 2, oiCalls)
}
