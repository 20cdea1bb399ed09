package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pump-dump-alerts/internal/detector"
	"pump-dump-alerts/internal/exchange"
)

// Fetcher is the slice of the exchange client the collector needs.
type Fetcher interface {
	MinuteVolumes(ctx context.Context, symbol string, bars int) ([]exchange.MinuteVolume, error)
	OrderBook(ctx context.Context, symbol string, depthLimit int) (detector.OrderBookSnapshot, error)
	OpenInterest(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Options size the collector's queue, worker pool, and caches.
type Options struct {
	Workers        int
	QueueSize      int
	VolumeBars     int
	DepthLimit     int
	BookTTL        time.Duration
	HotWindow      time.Duration
	RequestTimeout time.Duration
}

type requestKind int

const (
	kindVolume requestKind = iota
	kindBook
	kindOI
)

type request struct {
	kind   requestKind
	symbol string
}

// Collector refreshes volume, order-book, and open-interest data for the
// engine. Hints arrive on a bounded queue and are deduplicated; a full
// queue drops the hint so the ingestion path is never blocked. Symbols
// hinted recently ("hot") are re-polled on a scheduler tick so their
// baselines stay warm between candidates.
type Collector struct {
	fetcher Fetcher
	volume  *detector.VolumeTracker
	oi      *detector.OITracker
	opts    Options
	logger  zerolog.Logger

	queue chan request

	mu      sync.Mutex
	books   map[string]detector.OrderBookSnapshot
	pending map[request]struct{}
	hot     map[string]time.Time
}

// New wires the collector to the trackers it feeds.
func New(fetcher Fetcher, volume *detector.VolumeTracker, oi *detector.OITracker, opts Options, logger zerolog.Logger) *Collector {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.VolumeBars <= 0 {
		opts.VolumeBars = 60
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	return &Collector{
		fetcher: fetcher,
		volume:  volume,
		oi:      oi,
		opts:    opts,
		logger:  logger.With().Str("component", "collector").Logger(),
		queue:   make(chan request, opts.QueueSize),
		books:   make(map[string]detector.OrderBookSnapshot),
		pending: make(map[request]struct{}),
		hot:     make(map[string]time.Time),
	}
}

// Attach binds the trackers the collector feeds. Used when the trackers'
// owner is constructed after the collector; must happen before Run.
func (c *Collector) Attach(volume *detector.VolumeTracker, oi *detector.OITracker) {
	c.volume = volume
	c.oi = oi
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Collector) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.queue:
			c.serve(ctx, req)
			c.mu.Lock()
			delete(c.pending, req)
			c.mu.Unlock()
		}
	}
}

func (c *Collector) serve(ctx context.Context, req request) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	switch req.kind {
	case kindVolume:
		volumes, err := c.fetcher.MinuteVolumes(ctx, req.symbol, c.opts.VolumeBars)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", req.symbol).Msg("volume refresh failed")
			return
		}
		for _, v := range volumes {
			c.volume.Record(req.symbol, v.Bucket, v.Volume)
		}
	case kindBook:
		snap, err := c.fetcher.OrderBook(ctx, req.symbol, c.opts.DepthLimit)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", req.symbol).Msg("order book refresh failed")
			return
		}
		c.mu.Lock()
		c.books[req.symbol] = snap
		c.mu.Unlock()
	case kindOI:
		value, err := c.fetcher.OpenInterest(ctx, req.symbol)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", req.symbol).Msg("open interest refresh failed")
			return
		}
		c.oi.Record(req.symbol, time.Now().UTC(), value)
	}
}

// enqueue drops the request when it is already queued or the queue is
// full; a dropped hint only delays the next refresh.
func (c *Collector) enqueue(req request) {
	c.mu.Lock()
	if _, ok := c.pending[req]; ok {
		c.mu.Unlock()
		return
	}
	c.pending[req] = struct{}{}
	c.mu.Unlock()

	select {
	case c.queue <- req:
	default:
		c.mu.Lock()
		delete(c.pending, req)
		c.mu.Unlock()
		c.logger.Debug().Str("symbol", req.symbol).Msg("refresh queue full, hint dropped")
	}
}

// markHot remembers that the engine cares about this symbol right now,
// so Repoll keeps its data warm until the hot window lapses.
func (c *Collector) markHot(symbol string) {
	c.mu.Lock()
	c.hot[symbol] = time.Now().UTC()
	c.mu.Unlock()
}

// RequestVolume implements detector.DataRequester.
func (c *Collector) RequestVolume(symbol string) {
	c.markHot(symbol)
	c.enqueue(request{kindVolume, symbol})
}

// RequestBook implements detector.DataRequester.
func (c *Collector) RequestBook(symbol string) {
	c.markHot(symbol)
	c.enqueue(request{kindBook, symbol})
}

// RequestOI implements detector.DataRequester.
func (c *Collector) RequestOI(symbol string) {
	c.markHot(symbol)
	c.enqueue(request{kindOI, symbol})
}

// Snapshot implements detector.BookSource. A snapshot older than BookTTL
// is a miss: the filter fails closed rather than trusting a stale book.
func (c *Collector) Snapshot(symbol string, now time.Time) (detector.OrderBookSnapshot, bool) {
	c.mu.Lock()
	snap, ok := c.books[symbol]
	c.mu.Unlock()

	if !ok {
		return detector.OrderBookSnapshot{}, false
	}
	if c.opts.BookTTL > 0 && now.Sub(snap.FetchedAt) > c.opts.BookTTL {
		return detector.OrderBookSnapshot{}, false
	}
	return snap, true
}

// Repoll refreshes volume and open interest for every symbol hinted
// within the hot window, and forgets the rest. Driven by the scheduler.
func (c *Collector) Repoll(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	symbols := make([]string, 0, len(c.hot))
	for symbol, seen := range c.hot {
		if c.opts.HotWindow > 0 && now.Sub(seen) > c.opts.HotWindow {
			delete(c.hot, symbol)
			continue
		}
		symbols = append(symbols, symbol)
	}
	c.mu.Unlock()

	for _, symbol := range symbols {
		c.enqueue(request{kindVolume, symbol})
		c.enqueue(request{kindOI, symbol})
	}
	return nil
}

var (
	_ detector.DataRequester = (*Collector)(nil)
	_ detector.BookSource    = (*Collector)(nil)
)
