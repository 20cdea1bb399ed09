package detector

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBooks struct {
	snap OrderBookSnapshot
	ok   bool
}

func (s stubBooks) Snapshot(string, time.Time) (OrderBookSnapshot, bool) {
	return s.snap, s.ok
}

type captureEmitter struct {
	events []AlertEvent
}

func (c *captureEmitter) Emit(event AlertEvent) {
	c.events = append(c.events, event)
}

type countRequester struct {
	volume, book, oi int
}

func (c *countRequester) RequestVolume(string) { c.volume++ }
func (c *countRequester) RequestBook(string)   { c.book++ }
func (c *countRequester) RequestOI(string)     { c.oi++ }

func healthySnap() OrderBookSnapshot {
	return OrderBookSnapshot{
		BestBid: d(100),
		BestAsk: d(100.03),
		Bids: []BookLevel{
			{Price: d(100), Quantity: d(100)},
			{Price: d(99.9), Quantity: d(50)},
		},
	}
}

func testOptions(rules []WindowRule) EngineOptions {
	return EngineOptions{
		Rules: rules,
		Volume: VolumeFilterParams{
			Window:          5 * time.Minute,
			Lookback:        60 * time.Minute,
			MinWindowVolume: d(20000),
			MinSpikeRatio:   d(2),
		},
		Liquidity: LiquidityParams{
			MaxSpreadPct:   d(0.05),
			DepthLimit:     5,
			MinBidNotional: d(2000),
		},
		OIWindow: 15 * time.Minute,
		Cooldown: 1800 * time.Second,
		Grace:    5 * time.Minute,
	}
}

// seedVolume writes a 60m baseline of baselinePerMin followed by 5 window
// minutes of windowPerMin, ending at the bucket containing now.
func seedVolume(tr *VolumeTracker, symbol string, now time.Time, baselinePerMin, windowPerMin float64) {
	current := now.Truncate(time.Minute)
	for i := 59; i >= 5; i-- {
		tr.Record(symbol, current.Add(-time.Duration(i)*time.Minute), decimal.NewFromFloat(baselinePerMin))
	}
	for i := 4; i >= 0; i-- {
		tr.Record(symbol, current.Add(-time.Duration(i)*time.Minute), decimal.NewFromFloat(windowPerMin))
	}
}

func newTestEngine(t *testing.T, pump, dump map[string]float64) (*Engine, *captureEmitter) {
	t.Helper()
	rules, err := BuildRules(pump, dump)
	require.NoError(t, err)
	emitter := &captureEmitter{}
	engine := NewEngine(testOptions(rules), stubBooks{healthySnap(), true}, nil, emitter, zerolog.Nop())
	return engine, emitter
}

func TestEngineEmitsOnThresholdInclusive(t *testing.T) {
	engine, emitter := newTestEngine(t, map[string]float64{"300": 0.3}, nil)
	now := t0.Add(310 * time.Second)
	seedVolume(engine.Volume(), "BTCUSDT", now, 2000, 10000)

	// The whole batch lands in the store before evaluation starts.
	engine.HandleBatch([]Tick{
		{Symbol: "BTCUSDT", Price: d(100), Time: t0},
		{Symbol: "BTCUSDT", Price: d(130), Time: now},
	})

	require.Len(t, emitter.events, 1)
	event := emitter.events[0]
	assert.Equal(t, "BTCUSDT", event.Symbol)
	assert.Equal(t, DirectionPump, event.Direction)
	assert.Equal(t, 300*time.Second, event.Window)
	assert.True(t, event.Return.Equal(d(0.30)), "got %s", event.Return)
	assert.True(t, event.PriceFrom.Equal(d(100)))
	assert.True(t, event.PriceTo.Equal(d(130)))
	assert.True(t, event.WindowVolume.Equal(d(50000)))
	assert.False(t, event.SpikeUnbound)
	assert.Nil(t, event.OI, "no OI history: context omitted")
}

func TestEngineThresholdJustAbove(t *testing.T) {
	engine, emitter := newTestEngine(t, map[string]float64{"300": 0.31}, nil)
	now := t0.Add(310 * time.Second)
	seedVolume(engine.Volume(), "BTCUSDT", now, 2000, 10000)

	engine.HandleBatch([]Tick{
		{Symbol: "BTCUSDT", Price: d(100), Time: t0},
		{Symbol: "BTCUSDT", Price: d(130), Time: now},
	})

	assert.Empty(t, emitter.events, "0.30 must not pass a 0.31 threshold")
}

func TestEngineDumpDirection(t *testing.T) {
	engine, emitter := newTestEngine(t, nil, map[string]float64{"300": -0.2})
	now := t0.Add(310 * time.Second)
	seedVolume(engine.Volume(), "ETHUSDT", now, 2000, 10000)

	engine.HandleBatch([]Tick{
		{Symbol: "ETHUSDT", Price: d(200), Time: t0},
		{Symbol: "ETHUSDT", Price: d(150), Time: now},
	})

	require.Len(t, emitter.events, 1)
	assert.Equal(t, DirectionDump, emitter.events[0].Direction)
	assert.True(t, emitter.events[0].Return.Equal(d(-0.25)))
}

func TestEngineNoHistoryNeverFires(t *testing.T) {
	engine, emitter := newTestEngine(t, map[string]float64{"300": 0.0001}, nil)
	now := t0
	seedVolume(engine.Volume(), "NEWUSDT", now, 2000, 10000)

	engine.HandleBatch([]Tick{{Symbol: "NEWUSDT", Price: d(1), Time: now}})
	engine.HandleBatch([]Tick{{Symbol: "NEWUSDT", Price: d(5), Time: now.Add(10 * time.Second)}})

	assert.Empty(t, emitter.events, "no sample older than the window: skip, never a zero return")
}

func TestEngineVolumeFloorFailsRegardlessOfSpike(t *testing.T) {
	engine, emitter := newTestEngine(t, map[string]float64{"300": 0.3}, nil)
	now := t0.Add(310 * time.Second)
	// Window volume 18000 under the 20000 floor, spike ratio huge.
	seedVolume(engine.Volume(), "BTCUSDT", now, 100, 3600)

	engine.HandleBatch([]Tick{
		{Symbol: "BTCUSDT", Price: d(100), Time: t0},
		{Symbol: "BTCUSDT", Price: d(130), Time: now},
	})

	assert.Empty(t, emitter.events)
}

func TestEngineUnboundedSpikePassesGate(t *testing.T) {
	engine, emitter := newTestEngine(t, map[string]float64{"300": 0.3}, nil)
	now := t0.Add(310 * time.Second)
	// Zero baseline, live window above the volume floor.
	seedVolume(engine.Volume(), "BTCUSDT", now, 0, 10000)

	engine.HandleBatch([]Tick{
		{Symbol: "BTCUSDT", Price: d(100), Time: t0},
		{Symbol: "BTCUSDT", Price: d(130), Time: now},
	})

	require.Len(t, emitter.events, 1)
	assert.True(t, emitter.events[0].SpikeUnbound)
}

func TestEngineNoVolumeDataFailsClosedAndHints(t *testing.T) {
	rules, err := BuildRules(map[string]float64{"300": 0.3}, nil)
	require.NoError(t, err)
	emitter := &captureEmitter{}
	requests := &countRequester{}
	engine := NewEngine(testOptions(rules), stubBooks{healthySnap(), true}, requests, emitter, zerolog.Nop())

	now := t0.Add(310 * time.Second)
	engine.HandleBatch([]Tick{
		{Symbol: "BTCUSDT", Price: d(100), Time: t0},
		{Symbol: "BTCUSDT", Price: d(130), Time: now},
	})

	assert.Empty(t, emitter.events)
	assert.Equal(t, 1, requests.volume, "candidate must leave a refresh hint")
	assert.Equal(t, 1, requests.book)
	assert.Equal(t, 1, requests.oi)
}

func TestEngineMissingBookFailsClosed(t *testing.T) {
	rules, err := BuildRules(map[string]float64{"300": 0.3}, nil)
	require.NoError(t, err)
	emitter := &captureEmitter{}
	engine := NewEngine(testOptions(rules), stubBooks{ok: false}, nil, emitter, zerolog.Nop())

	now := t0.Add(310 * time.Second)
	seedVolume(engine.Volume(), "BTCUSDT", now, 2000, 10000)
	engine.HandleBatch([]Tick{
		{Symbol: "BTCUSDT", Price: d(100), Time: t0},
		{Symbol: "BTCUSDT", Price: d(130), Time: now},
	})

	assert.Empty(t, emitter.events)
}

func TestEngineCooldownAcrossTicks(t *testing.T) {
	rules, err := BuildRules(map[string]float64{"300": 0.3}, nil)
	require.NoError(t, err)
	opts := testOptions(rules)
	opts.Cooldown = 60 * time.Second
	emitter := &captureEmitter{}
	engine := NewEngine(opts, stubBooks{healthySnap(), true}, nil, emitter, zerolog.Nop())

	base := t0.Add(310 * time.Second)
	seedVolume(engine.Volume(), "BTCUSDT", base.Add(2*time.Minute), 2000, 10000)

	engine.HandleBatch([]Tick{
		{Symbol: "BTCUSDT", Price: d(100), Time: t0},
		{Symbol: "BTCUSDT", Price: d(130), Time: base},
	})
	require.Len(t, emitter.events, 1)

	// Still qualifying 30s later, but inside the cooldown.
	engine.HandleBatch([]Tick{{Symbol: "BTCUSDT", Price: d(131), Time: base.Add(30 * time.Second)}})
	require.Len(t, emitter.events, 1)

	// Cooldown elapsed: fires again.
	engine.HandleBatch([]Tick{{Symbol: "BTCUSDT", Price: d(132), Time: base.Add(70 * time.Second)}})
	require.Len(t, emitter.events, 2)
}

func TestEngineIndependentWindows(t *testing.T) {
	engine, emitter := newTestEngine(t, map[string]float64{"60": 0.05, "300": 0.1}, nil)
	now := t0.Add(310 * time.Second)
	seedVolume(engine.Volume(), "BTCUSDT", now, 2000, 10000)

	engine.HandleBatch([]Tick{
		{Symbol: "BTCUSDT", Price: d(100), Time: t0},
		{Symbol: "BTCUSDT", Price: d(130), Time: now},
	})

	require.Len(t, emitter.events, 2, "windows are independent events")
	assert.Equal(t, 60*time.Second, emitter.events[0].Window)
	assert.Equal(t, 300*time.Second, emitter.events[1].Window)
}

func TestEngineAttachesOIContext(t *testing.T) {
	engine, emitter := newTestEngine(t, map[string]float64{"300": 0.3}, nil)
	now := t0.Add(310 * time.Second)
	seedVolume(engine.Volume(), "BTCUSDT", now, 2000, 10000)
	engine.OI().Record("BTCUSDT", now.Add(-15*time.Minute), d(1000))
	engine.OI().Record("BTCUSDT", now.Add(-time.Minute), d(1200))

	engine.HandleBatch([]Tick{
		{Symbol: "BTCUSDT", Price: d(100), Time: t0},
		{Symbol: "BTCUSDT", Price: d(130), Time: now},
	})

	require.Len(t, emitter.events, 1)
	require.NotNil(t, emitter.events[0].OI)
	assert.True(t, emitter.events[0].OI.Pct.Equal(d(20)), "got %s", emitter.events[0].OI.Pct)
}
