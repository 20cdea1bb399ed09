package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pump-dump-alerts/internal/storage"
)

// Export renders historical alerts as CSV and/or a PNG scatter of alert
// returns over time.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	alerts, err := store.ListAlertsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		a.Logger.Info().Msg("no alerts found for export window")
		return nil
	}

	downsampled := downsampleAlerts(alerts, opts.MaxPoints)
	a.Logger.Info().Int("total", len(alerts)).Int("exported", len(downsampled)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAlertsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleAlerts(alerts []storage.AlertRecord, max int) []storage.AlertRecord {
	if max <= 0 || len(alerts) <= max {
		return alerts
	}

	result := make([]storage.AlertRecord, 0, max)
	step := float64(len(alerts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(alerts) {
			idx = len(alerts) - 1
		}
		result = append(result, alerts[idx])
	}
	return result
}

func writeAlertsCSV(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"alert_ts", "symbol", "direction", "window_sec", "return_pct", "price_from", "price_to", "window_volume", "spike_ratio", "spread_pct", "bid_notional", "oi_change_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, alert := range alerts {
		spike := ""
		if alert.SpikeRatio != nil {
			spike = alert.SpikeRatio.String()
		}
		oi := ""
		if alert.OIChangePct != nil {
			oi = alert.OIChangePct.String()
		}
		record := []string{
			alert.AlertTS.Format(time.RFC3339),
			alert.Symbol,
			alert.Direction,
			strconv.FormatInt(alert.WindowSec, 10),
			alert.ReturnPct.String(),
			alert.PriceFrom.String(),
			alert.PriceTo.String(),
			alert.WindowVolume.String(),
			spike,
			alert.SpreadPct.String(),
			alert.BidNotional.String(),
			oi,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeAlertsPNG(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var pumpX, dumpX []time.Time
	var pumpY, dumpY []float64
	for _, alert := range alerts {
		if alert.Direction == "pump" {
			pumpX = append(pumpX, alert.AlertTS)
			pumpY = append(pumpY, alert.ReturnPct.InexactFloat64())
		} else {
			dumpX = append(dumpX, alert.AlertTS)
			dumpY = append(dumpY, alert.ReturnPct.InexactFloat64())
		}
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	var series []chart.Series
	if len(pumpX) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Pump return %",
			XValues: pumpX,
			YValues: pumpY,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    4,
			},
		})
	}
	if len(dumpX) > 0 {
		series = append(series, chart.TimeSeries{
			Name:    "Dump return %",
			XValues: dumpX,
			YValues: dumpY,
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    4,
			},
		})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Return (%)",
			ValueFormatter: pctFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
