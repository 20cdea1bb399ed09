package exchange

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pump-dump-alerts/internal/detector"
)

// BatchHandler receives one fully-parsed tick batch per stream message.
type BatchHandler func(ticks []detector.Tick)

// StreamOptions tune the mark-price stream.
type StreamOptions struct {
	ReconnectDelay time.Duration
}

// MarkPriceStream consumes the all-symbols mark price stream
// (!markPrice@arr) and feeds filtered tick batches to the handler. A
// malformed entry is skipped without affecting the rest of the batch.
type MarkPriceStream struct {
	filter  *SymbolSet
	handler BatchHandler
	delay   time.Duration
	logger  zerolog.Logger
}

// NewMarkPriceStream wires the stream to a symbol filter and handler.
func NewMarkPriceStream(filter *SymbolSet, handler BatchHandler, opts StreamOptions, logger zerolog.Logger) *MarkPriceStream {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	return &MarkPriceStream{
		filter:  filter,
		handler: handler,
		delay:   delay,
		logger:  logger.With().Str("component", "mark_price_stream").Logger(),
	}
}

// Run blocks, maintaining the websocket connection until ctx is
// cancelled. Disconnects are logged and retried after the configured
// delay; they never corrupt engine state.
func (s *MarkPriceStream) Run(ctx context.Context) error {
	for {
		doneC, stopC, err := futures.WsAllMarkPriceServe(s.onBatch, s.onError)
		if err != nil {
			s.logger.Error().Err(err).Dur("retry_in", s.delay).Msg("mark price stream connect failed")
			if err := sleepCtx(ctx, s.delay); err != nil {
				return err
			}
			continue
		}

		s.logger.Info().Msg("connected to mark price stream")

		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return ctx.Err()
		case <-doneC:
			s.logger.Warn().Dur("retry_in", s.delay).Msg("mark price stream closed, reconnecting")
			if err := sleepCtx(ctx, s.delay); err != nil {
				return err
			}
		}
	}
}

func (s *MarkPriceStream) onBatch(events futures.WsAllMarkPriceEvent) {
	ticks := make([]detector.Tick, 0, len(events))
	for _, event := range events {
		if event == nil || !s.filter.Contains(event.Symbol) {
			continue
		}
		price, err := decimal.NewFromString(event.MarkPrice)
		if err != nil {
			s.logger.Debug().Str("symbol", event.Symbol).Str("raw", event.MarkPrice).Msg("unparseable mark price")
			continue
		}
		ticks = append(ticks, detector.Tick{
			Symbol: event.Symbol,
			Price:  price,
			Time:   time.UnixMilli(event.Time),
		})
	}
	if len(ticks) > 0 {
		s.handler(ticks)
	}
}

func (s *MarkPriceStream) onError(err error) {
	s.logger.Error().Err(err).Msg("mark price stream error")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
