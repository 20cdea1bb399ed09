package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pump-dump-alerts/internal/detector"
)

// Recorder persists delivered alerts. Implementations decide durability;
// the dispatcher only reports failures to the log.
type Recorder interface {
	SaveAlert(ctx context.Context, event detector.AlertEvent) error
}

// DispatcherOptions configures alert fan-out.
type DispatcherOptions struct {
	// DeliveryTimeout bounds a single fan-out attempt across all channels.
	DeliveryTimeout time.Duration
}

func (o *DispatcherOptions) setDefaults() {
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = 15 * time.Second
	}
}

// Dispatcher fans decided alerts out to the configured channels without
// blocking the caller. Delivery failures are logged and dropped; the
// detection pipeline never waits on a slow channel.
type Dispatcher struct {
	opts      DispatcherOptions
	notifiers []Notifier
	recorder  Recorder
	logger    zerolog.Logger
}

// NewDispatcher builds the fan-out emitter. recorder may be nil when
// persistence is disabled.
func NewDispatcher(opts DispatcherOptions, notifiers []Notifier, recorder Recorder, logger zerolog.Logger) *Dispatcher {
	opts.setDefaults()

	return &Dispatcher{
		opts:      opts,
		notifiers: notifiers,
		recorder:  recorder,
		logger:    logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Emit hands the event to all channels on a background goroutine and
// returns immediately.
func (d *Dispatcher) Emit(event detector.AlertEvent) {
	go d.deliver(event)
}

func (d *Dispatcher) deliver(event detector.AlertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.DeliveryTimeout)
	defer cancel()

	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			d.logger.Error().Err(err).
				Str("symbol", event.Symbol).
				Str("direction", string(event.Direction)).
				Dur("window", event.Window).
				Msg("alert delivery failed")
		}
	}

	if d.recorder != nil {
		if err := d.recorder.SaveAlert(ctx, event); err != nil {
			d.logger.Error().Err(err).
				Str("symbol", event.Symbol).
				Msg("failed to persist alert")
		}
	}
}

var _ detector.Emitter = (*Dispatcher)(nil)
