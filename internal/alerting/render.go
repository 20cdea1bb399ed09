package alerting

import (
	"fmt"
	"strings"
	"time"

	"pump-dump-alerts/internal/detector"
)

func windowLabel(window time.Duration) string {
	if window >= time.Minute && window%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(window/time.Minute))
	}
	return fmt.Sprintf("%ds", int(window/time.Second))
}

func spikeLabel(event detector.AlertEvent) string {
	if event.SpikeUnbound {
		return "∞"
	}
	return event.SpikeRatio.StringFixed(1)
}

func verb(direction detector.Direction) string {
	if direction == detector.DirectionPump {
		return "pumped"
	}
	return "dumped"
}

func renderTelegram(event detector.AlertEvent) string {
	builder := strings.Builder{}

	if event.Direction == detector.DirectionPump {
		builder.WriteString("🚀 <b>PUMP ALERT</b>\n\n")
	} else {
		builder.WriteString("📉 <b>DUMP ALERT</b>\n\n")
	}

	builder.WriteString(fmt.Sprintf("<b>%s</b> %s <b>%s%%</b> over last %s\n",
		event.Symbol, verb(event.Direction), event.ReturnPct().Abs().StringFixed(1), windowLabel(event.Window)))
	builder.WriteString(fmt.Sprintf("Price: %s → %s\n\n", event.PriceFrom.String(), event.PriceTo.String()))

	builder.WriteString(fmt.Sprintf("📊 Volume (%s): %s USDT (spike x%s)\n",
		windowLabel(event.Window), event.WindowVolume.StringFixed(0), spikeLabel(event)))
	builder.WriteString(fmt.Sprintf("💹 Spread: %s%% | bid depth ≈ %s USDT\n",
		event.SpreadPct.StringFixed(2), event.BidNotional.StringFixed(0)))

	if event.OI != nil {
		builder.WriteString(fmt.Sprintf("📈 OI change: %s%%\n", event.OI.Pct.StringFixed(1)))
	}

	return builder.String()
}

func renderConsole(event detector.AlertEvent) string {
	rule := strings.Repeat("=", 80)
	builder := strings.Builder{}

	builder.WriteString(rule + "\n")
	builder.WriteString(fmt.Sprintf("[ALERT] %s %s %s%% over last %s | %s -> %s\n",
		event.Symbol, verb(event.Direction), event.ReturnPct().Abs().StringFixed(1),
		windowLabel(event.Window), event.PriceFrom.String(), event.PriceTo.String()))
	builder.WriteString(fmt.Sprintf("  Volume: %s USDT | spike x%s (avg %s USDT)\n",
		event.WindowVolume.StringFixed(0), spikeLabel(event), event.AverageVolume.StringFixed(0)))
	builder.WriteString(fmt.Sprintf("  Spread: %s%% | bid %s ask %s | bid notional ≈ %s USDT\n",
		event.SpreadPct.StringFixed(2), event.BestBid.String(), event.BestAsk.String(),
		event.BidNotional.StringFixed(0)))

	if event.OI != nil {
		builder.WriteString(fmt.Sprintf("  OI change: %s%% | past %s, now %s (contracts)\n",
			event.OI.Pct.StringFixed(1), event.OI.From.String(), event.OI.To.String()))
	} else {
		builder.WriteString("  OI change: insufficient history yet.\n")
	}

	builder.WriteString(rule)
	return builder.String()
}
