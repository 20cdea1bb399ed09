package detector

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// VolumeFilterParams gate alerts on traded volume.
type VolumeFilterParams struct {
	Window          time.Duration
	Lookback        time.Duration
	MinWindowVolume decimal.Decimal
	MinSpikeRatio   decimal.Decimal
}

// EngineOptions wire the engine's rules and filter parameters. All values
// are validated at startup; the engine trusts them.
type EngineOptions struct {
	Rules     []WindowRule
	Volume    VolumeFilterParams
	Liquidity LiquidityParams
	OIWindow  time.Duration
	Cooldown  time.Duration
	Grace     time.Duration
}

// nopRequester is used when no collector is wired (simulations, tests).
type nopRequester struct{}

func (nopRequester) RequestVolume(string) {}
func (nopRequester) RequestBook(string)   {}
func (nopRequester) RequestOI(string)     {}

// Engine owns the per-symbol state and runs the decision algorithm for
// every incoming tick batch.
type Engine struct {
	rules     []WindowRule
	volParams VolumeFilterParams
	liqParams LiquidityParams
	oiWindow  time.Duration

	prices   *PriceStore
	volume   *VolumeTracker
	oi       *OITracker
	cooldown *CooldownRegistry

	books    BookSource
	requests DataRequester
	emitter  Emitter
	logger   zerolog.Logger
}

// NewEngine builds the engine and its owned stores. books and emitter are
// required; requests may be nil when there is no asynchronous collector.
func NewEngine(opts EngineOptions, books BookSource, requests DataRequester, emitter Emitter, logger zerolog.Logger) *Engine {
	if requests == nil {
		requests = nopRequester{}
	}
	return &Engine{
		rules:     opts.Rules,
		volParams: opts.Volume,
		liqParams: opts.Liquidity,
		oiWindow:  opts.OIWindow,
		prices:    NewPriceStore(MaxWindow(opts.Rules), opts.Grace),
		volume:    NewVolumeTracker(opts.Volume.Lookback),
		oi:        NewOITracker(opts.OIWindow, opts.Grace),
		cooldown:  NewCooldownRegistry(opts.Cooldown),
		books:     books,
		requests:  requests,
		emitter:   emitter,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// Volume exposes the volume tracker so the collector can feed it.
func (e *Engine) Volume() *VolumeTracker { return e.volume }

// OI exposes the open-interest tracker so the collector can feed it.
func (e *Engine) OI() *OITracker { return e.oi }

// Prices exposes the price store (read path for diagnostics and tests).
func (e *Engine) Prices() *PriceStore { return e.prices }

// HandleBatch applies the whole tick batch to the price store before any
// evaluation begins, so no decision observes a partially-applied batch.
// Each symbol is then evaluated once at its newest accepted tick time.
func (e *Engine) HandleBatch(ticks []Tick) {
	latest := make(map[string]time.Time, len(ticks))
	for _, tick := range ticks {
		if !e.prices.Record(tick.Symbol, tick.Time, tick.Price) {
			e.logger.Debug().
				Str("symbol", tick.Symbol).
				Time("tick_time", tick.Time).
				Msg("rejected out-of-order tick")
			continue
		}
		if tick.Time.After(latest[tick.Symbol]) {
			latest[tick.Symbol] = tick.Time
		}
	}

	for symbol, now := range latest {
		e.Evaluate(symbol, now)
	}
}

// Evaluate runs every configured rule for symbol at the given time and
// emits an event per qualified candidate. Candidates are independent: a
// single tick may fire for several windows and directions; only the
// cooldown key dedupes across time.
func (e *Engine) Evaluate(symbol string, now time.Time) []AlertEvent {
	var emitted []AlertEvent

	for _, rule := range e.rules {
		ret, ok := e.prices.WindowedReturn(symbol, rule.Window, now)
		if !ok {
			continue
		}
		if !qualifies(ret.Value, rule) {
			continue
		}

		event, ok := e.applyFilters(symbol, rule, ret, now)
		if !ok {
			continue
		}

		e.logger.Info().
			Str("symbol", symbol).
			Str("direction", string(rule.Direction)).
			Dur("window", rule.Window).
			Str("return_pct", event.ReturnPct().StringFixed(2)).
			Msg("alert decided")

		e.emitter.Emit(event)
		emitted = append(emitted, event)
	}
	return emitted
}

func qualifies(value decimal.Decimal, rule WindowRule) bool {
	if rule.Direction == DirectionPump {
		return value.Cmp(rule.Threshold) >= 0
	}
	return value.Cmp(rule.Threshold) <= 0
}

// applyFilters runs the filter chain for one candidate: volume, then
// liquidity, then the cooldown gate. Data misses fail closed and leave a
// refresh hint so a later tick can pass. The cooldown is consulted last
// and records at decision time, before any delivery attempt.
func (e *Engine) applyFilters(symbol string, rule WindowRule, ret Return, now time.Time) (AlertEvent, bool) {
	// Keep caches warm for this candidate regardless of the outcome.
	e.requests.RequestVolume(symbol)
	e.requests.RequestBook(symbol)
	e.requests.RequestOI(symbol)

	windowVolume := e.volume.WindowVolume(symbol, now, e.volParams.Window)
	if windowVolume.Cmp(e.volParams.MinWindowVolume) < 0 {
		return AlertEvent{}, false
	}

	spikeRatio, unbounded, ok := e.volume.SpikeRatio(symbol, now, e.volParams.Lookback, e.volParams.Window)
	if !ok {
		return AlertEvent{}, false
	}
	if !unbounded && spikeRatio.Cmp(e.volParams.MinSpikeRatio) < 0 {
		return AlertEvent{}, false
	}

	snap, ok := e.books.Snapshot(symbol, now)
	if !ok {
		return AlertEvent{}, false
	}
	liq := EvaluateBook(snap, e.liqParams)
	if !liq.Passed {
		return AlertEvent{}, false
	}

	if !e.cooldown.Allow(symbol, rule.Window, rule.Direction, now) {
		return AlertEvent{}, false
	}

	average, _ := e.volume.HistoricalAverage(symbol, now, e.volParams.Lookback, e.volParams.Window)

	event := AlertEvent{
		Symbol:        symbol,
		Direction:     rule.Direction,
		Window:        rule.Window,
		Return:        ret.Value,
		PriceFrom:     ret.From.Price,
		PriceTo:       ret.To.Price,
		WindowVolume:  windowVolume,
		AverageVolume: average,
		SpikeRatio:    spikeRatio,
		SpikeUnbound:  unbounded,
		SpreadPct:     liq.SpreadPct,
		BidNotional:   liq.BidNotional,
		BestBid:       liq.BestBid,
		BestAsk:       liq.BestAsk,
		Time:          now,
	}

	if change, ok := e.oi.ChangePct(symbol, e.oiWindow, now); ok {
		event.OI = &change
	}
	return event, true
}
