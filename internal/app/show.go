package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tDir\tWindow\tReturn%\tVolume\tSpike\tSpread%\tOI%")

	for _, alert := range alerts {
		spike := "∞"
		if alert.SpikeRatio != nil {
			spike = alert.SpikeRatio.StringFixed(1)
		}
		oi := "-"
		if alert.OIChangePct != nil {
			oi = alert.OIChangePct.StringFixed(1)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%ds\t%s\t%s\t%s\t%s\t%s\n",
			alert.AlertTS.UTC().Format(time.RFC3339),
			alert.Symbol,
			alert.Direction,
			alert.WindowSec,
			alert.ReturnPct.StringFixed(2),
			alert.WindowVolume.StringFixed(0),
			spike,
			alert.SpreadPct.StringFixed(2),
			oi,
		)
	}

	writer.Flush()
	return nil
}
