package detector

import (
	"github.com/shopspring/decimal"
)

var dec100 = decimal.NewFromInt(100)

// LiquidityParams gate alerts on book health.
type LiquidityParams struct {
	MaxSpreadPct   decimal.Decimal
	DepthLimit     int
	MinBidNotional decimal.Decimal
}

// LiquidityResult carries the evaluated book metrics alongside the verdict.
type LiquidityResult struct {
	SpreadPct   decimal.Decimal
	BidNotional decimal.Decimal
	BestBid     decimal.Decimal
	BestAsk     decimal.Decimal
	Passed      bool
}

// EvaluateBook checks a single snapshot: spread percentage within bounds
// and enough bid notional across the top depth-limit levels. A missing or
// crossed book fails deterministically.
func EvaluateBook(snap OrderBookSnapshot, params LiquidityParams) LiquidityResult {
	result := LiquidityResult{BestBid: snap.BestBid, BestAsk: snap.BestAsk}

	if snap.BestBid.Sign() <= 0 || snap.BestAsk.Sign() <= 0 {
		return result
	}
	if snap.BestAsk.Cmp(snap.BestBid) <= 0 {
		return result
	}

	result.SpreadPct = snap.BestAsk.Sub(snap.BestBid).Div(snap.BestBid).Mul(dec100)
	result.BidNotional = bidNotional(snap.Bids, params.DepthLimit)

	result.Passed = result.SpreadPct.Cmp(params.MaxSpreadPct) <= 0 &&
		result.BidNotional.Cmp(params.MinBidNotional) >= 0
	return result
}

func bidNotional(levels []BookLevel, limit int) decimal.Decimal {
	if limit > 0 && len(levels) > limit {
		levels = levels[:limit]
	}
	total := decimal.Zero
	for _, level := range levels {
		total = total.Add(level.Price.Mul(level.Quantity))
	}
	return total
}
