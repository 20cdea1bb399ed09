package detector

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction classifies the sign of a detected move.
type Direction string

const (
	DirectionPump Direction = "pump"
	DirectionDump Direction = "dump"
)

// Tick is a single mark-price observation from the exchange stream.
type Tick struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

// PriceSample is a stored (timestamp, price) point.
type PriceSample struct {
	Time  time.Time
	Price decimal.Decimal
}

// Return describes a windowed fractional return between two samples.
type Return struct {
	From  PriceSample
	To    PriceSample
	Value decimal.Decimal
}

// BookLevel is a single price level of an order book side.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBookSnapshot is an ephemeral view of the top of the book. It is
// consumed once per evaluation and never stored by the engine.
type OrderBookSnapshot struct {
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	Bids      []BookLevel
	FetchedAt time.Time
}

// OIChange reports open-interest drift over the configured window.
type OIChange struct {
	From decimal.Decimal
	To   decimal.Decimal
	Pct  decimal.Decimal
}

// AlertEvent is the immutable payload produced for a qualified candidate.
// OI context is best effort and nil when history is insufficient.
type AlertEvent struct {
	Symbol        string
	Direction     Direction
	Window        time.Duration
	Return        decimal.Decimal
	PriceFrom     decimal.Decimal
	PriceTo       decimal.Decimal
	WindowVolume  decimal.Decimal
	AverageVolume decimal.Decimal
	SpikeRatio    decimal.Decimal
	SpikeUnbound  bool
	SpreadPct     decimal.Decimal
	BidNotional   decimal.Decimal
	BestBid       decimal.Decimal
	BestAsk       decimal.Decimal
	OI            *OIChange
	Time          time.Time
}

// ReturnPct is the move expressed in percent.
func (e AlertEvent) ReturnPct() decimal.Decimal {
	return e.Return.Mul(decimal.NewFromInt(100))
}

// BookSource serves cached order-book snapshots. A stale or missing
// snapshot reports ok=false; the engine treats that as a failed check.
type BookSource interface {
	Snapshot(symbol string, now time.Time) (OrderBookSnapshot, bool)
}

// DataRequester receives non-blocking refresh hints for symbols the engine
// is evaluating. Implementations must never block the caller.
type DataRequester interface {
	RequestVolume(symbol string)
	RequestBook(symbol string)
	RequestOI(symbol string)
}

// Emitter receives decided alerts. Delivery is the emitter's problem; the
// engine considers the alert done once Emit returns.
type Emitter interface {
	Emit(event AlertEvent)
}
