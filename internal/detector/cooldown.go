package detector

import (
	"sync"
	"time"
)

type cooldownKey struct {
	symbol    string
	window    time.Duration
	direction Direction
}

// CooldownRegistry suppresses repeat alerts for the same
// (symbol, window, direction) key within the configured interval. The
// check-and-record is a single critical section, so concurrent
// evaluations of the same symbol cannot double-fire.
type CooldownRegistry struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[cooldownKey]time.Time
}

// NewCooldownRegistry builds an empty registry.
func NewCooldownRegistry(cooldown time.Duration) *CooldownRegistry {
	return &CooldownRegistry{
		cooldown: cooldown,
		last:     make(map[cooldownKey]time.Time),
	}
}

// Allow reports whether an alert may fire for the key at now, and records
// now atomically when it may. A denied call leaves the registry untouched.
func (r *CooldownRegistry) Allow(symbol string, window time.Duration, direction Direction, now time.Time) bool {
	key := cooldownKey{symbol: symbol, window: window, direction: direction}

	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.last[key]; ok && now.Sub(last) < r.cooldown {
		return false
	}
	r.last[key] = now
	return true
}
