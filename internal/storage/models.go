package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord is a persisted alert decision, kept for auditing and the
// show/export commands.
type AlertRecord struct {
	ID           int64
	Symbol       string
	Direction    string
	WindowSec    int64
	ReturnPct    decimal.Decimal
	PriceFrom    decimal.Decimal
	PriceTo      decimal.Decimal
	WindowVolume decimal.Decimal
	SpikeRatio   *decimal.Decimal
	SpreadPct    decimal.Decimal
	BidNotional  decimal.Decimal
	OIChangePct  *decimal.Decimal
	AlertTS      time.Time
	CreatedAt    time.Time
}
