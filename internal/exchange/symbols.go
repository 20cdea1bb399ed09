package exchange

import (
	"context"
	"sort"
	"sync"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/samber/lo"
)

// PerpetualSymbols queries exchangeInfo and returns the tradable
// USDT-margined perpetual symbols, sorted.
func (c *Client) PerpetualSymbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	info, err := c.cli.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}
	return filterPerpetuals(info.Symbols), nil
}

func filterPerpetuals(symbols []futures.Symbol) []string {
	out := lo.FilterMap(symbols, func(s futures.Symbol, _ int) (string, bool) {
		ok := s.ContractType == "PERPETUAL" &&
			s.QuoteAsset == "USDT" &&
			s.Status == "TRADING"
		return s.Symbol, ok
	})
	sort.Strings(out)
	return out
}

// SymbolSet is an atomically swappable membership filter for the stream:
// ticks for symbols outside the set are dropped before they reach the
// engine.
type SymbolSet struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

// NewSymbolSet builds a set from the initial discovery result.
func NewSymbolSet(symbols []string) *SymbolSet {
	set := &SymbolSet{}
	set.Replace(symbols)
	return set
}

// Replace swaps the whole membership in one step.
func (s *SymbolSet) Replace(symbols []string) {
	members := lo.SliceToMap(symbols, func(symbol string) (string, struct{}) {
		return symbol, struct{}{}
	})

	s.mu.Lock()
	s.members = members
	s.mu.Unlock()
}

// Contains reports membership.
func (s *SymbolSet) Contains(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[symbol]
	return ok
}

// Len reports the current membership size.
func (s *SymbolSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}
