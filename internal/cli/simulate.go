package cli

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"pump-dump-alerts/internal/app"
)

var (
	simulateSymbol string
	simulateMove   float64
	simulateWindow time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Replay a synthetic price move through the engine and alert channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateMove == 0 {
			return errors.New("--move-pct must be non-zero (positive for pump, negative for dump)")
		}
		if simulateWindow <= 0 {
			return errors.New("--window must be greater than 0")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Symbol:  simulateSymbol,
			MovePct: decimal.NewFromFloat(simulateMove),
			Window:  simulateWindow,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "TESTUSDT", "Symbol to simulate")
	simulateCmd.Flags().Float64Var(&simulateMove, "move-pct", 0, "Price move over the window, in percent")
	simulateCmd.Flags().DurationVar(&simulateWindow, "window", 5*time.Minute, "Width of the simulated move")
}
