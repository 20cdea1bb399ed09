package detector

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// WindowRule binds one lookback window to a threshold return in one
// direction. Pump thresholds are positive fractions, dump thresholds
// negative; both are compared inclusively.
type WindowRule struct {
	Window    time.Duration
	Threshold decimal.Decimal
	Direction Direction
}

// BuildRules validates and orders the configured window→threshold maps
// (keys are seconds). Invalid entries abort startup; evaluation never
// re-validates. The result is sorted ascending by window, pump before
// dump at equal windows, so candidate order is deterministic.
func BuildRules(pumpWindows, dumpWindows map[string]float64) ([]WindowRule, error) {
	rules := make([]WindowRule, 0, len(pumpWindows)+len(dumpWindows))

	for key, threshold := range pumpWindows {
		window, err := parseWindow(key)
		if err != nil {
			return nil, fmt.Errorf("pump window %q: %w", key, err)
		}
		if threshold <= 0 {
			return nil, fmt.Errorf("pump window %q: threshold must be positive, got %v", key, threshold)
		}
		rules = append(rules, WindowRule{
			Window:    window,
			Threshold: decimal.NewFromFloat(threshold),
			Direction: DirectionPump,
		})
	}

	for key, threshold := range dumpWindows {
		window, err := parseWindow(key)
		if err != nil {
			return nil, fmt.Errorf("dump window %q: %w", key, err)
		}
		if threshold >= 0 {
			return nil, fmt.Errorf("dump window %q: threshold must be negative, got %v", key, threshold)
		}
		rules = append(rules, WindowRule{
			Window:    window,
			Threshold: decimal.NewFromFloat(threshold),
			Direction: DirectionDump,
		})
	}

	if len(rules) == 0 {
		return nil, fmt.Errorf("no detection windows configured")
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Window != rules[j].Window {
			return rules[i].Window < rules[j].Window
		}
		return rules[i].Direction == DirectionPump && rules[j].Direction == DirectionDump
	})
	return rules, nil
}

// MaxWindow is the longest window across the rules; it sizes the price
// store's retention horizon.
func MaxWindow(rules []WindowRule) time.Duration {
	var max time.Duration
	for _, rule := range rules {
		if rule.Window > max {
			max = rule.Window
		}
	}
	return max
}

func parseWindow(key string) (time.Duration, error) {
	seconds, err := strconv.Atoi(key)
	if err != nil {
		return 0, fmt.Errorf("window must be an integer number of seconds: %w", err)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("window must be positive, got %d", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}
