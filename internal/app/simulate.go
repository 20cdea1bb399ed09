package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pump-dump-alerts/internal/detector"
)

// SimulateOptions describe a synthetic price move.
type SimulateOptions struct {
	Symbol  string
	MovePct decimal.Decimal
	Window  time.Duration
}

// SimulateAlert replays a synthetic move through the real engine with a
// healthy order book and a warmed-up volume baseline, delivering whatever
// the engine decides to the configured channels. Useful for verifying
// channel wiring end to end.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifiers := a.newNotifiers()
	if len(notifiers) == 0 {
		return errors.New("no alert channels configured")
	}

	engineOpts, err := a.engineOptions()
	if err != nil {
		return err
	}

	priceFrom := decimal.NewFromInt(100)
	priceTo := priceFrom.Add(priceFrom.Mul(opts.MovePct).Div(decimal.NewFromInt(100)))
	if priceTo.Sign() <= 0 {
		return fmt.Errorf("move of %s%% leaves no positive price", opts.MovePct)
	}

	now := time.Now().UTC()
	capture := &captureEmitter{}
	books := staticBooks{price: priceTo, notional: engineOpts.Liquidity.MinBidNotional}
	engine := detector.NewEngine(engineOpts, books, nil, capture, a.Logger)

	seedSimulatedVolume(engine.Volume(), opts.Symbol, now, engineOpts.Volume)

	engine.HandleBatch([]detector.Tick{
		{Symbol: opts.Symbol, Price: priceFrom, Time: now.Add(-opts.Window)},
		{Symbol: opts.Symbol, Price: priceTo, Time: now},
	})

	if len(capture.events) == 0 {
		return fmt.Errorf("synthetic move of %s%% over %s did not qualify for any configured window",
			opts.MovePct, opts.Window)
	}

	for _, event := range capture.events {
		for _, notifier := range notifiers {
			if err := notifier.Notify(ctx, event); err != nil {
				return err
			}
		}
	}

	a.Logger.Info().Int("alerts", len(capture.events)).Msg("simulation delivered")
	return nil
}

// seedSimulatedVolume fills the lookback with a flat baseline and the hot
// window with enough volume to clear both the floor and the spike gate.
func seedSimulatedVolume(tracker *detector.VolumeTracker, symbol string, now time.Time, params detector.VolumeFilterParams) {
	perMinute := decimal.NewFromInt(10000)

	hot := params.MinWindowVolume.
		Add(perMinute.Mul(params.MinSpikeRatio).Mul(decimal.NewFromInt(int64(params.Window / time.Minute)))).
		Div(decimal.NewFromInt(int64(params.Window / time.Minute)))

	bucket := now.Truncate(time.Minute)
	for t := bucket.Add(-params.Lookback); !t.After(bucket); t = t.Add(time.Minute) {
		if bucket.Sub(t) < params.Window {
			tracker.Record(symbol, t, hot)
		} else {
			tracker.Record(symbol, t, perMinute)
		}
	}
}

type captureEmitter struct {
	events []detector.AlertEvent
}

func (c *captureEmitter) Emit(event detector.AlertEvent) {
	c.events = append(c.events, event)
}

// staticBooks serves a perfectly healthy synthetic order book.
type staticBooks struct {
	price    decimal.Decimal
	notional decimal.Decimal
}

func (b staticBooks) Snapshot(_ string, now time.Time) (detector.OrderBookSnapshot, bool) {
	spread := b.price.Div(decimal.NewFromInt(10000))
	qty := decimal.NewFromInt(1)
	if b.price.Sign() > 0 {
		qty = b.notional.Add(decimal.NewFromInt(1)).Div(b.price)
	}
	return detector.OrderBookSnapshot{
		BestBid:   b.price,
		BestAsk:   b.price.Add(spread),
		Bids:      []detector.BookLevel{{Price: b.price, Quantity: qty}},
		FetchedAt: now,
	}, true
}

var _ detector.BookSource = staticBooks{}
var _ detector.Emitter = (*captureEmitter)(nil)
