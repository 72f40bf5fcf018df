// Package risk implements the ordered risk gate chain, the one-way
// hard-stop latch, and the execution-event risk monitor that trips it.
package risk

import (
	"sync"
	"time"
)

// HardStop is the one-way circuit breaker. Trip is idempotent; once set the
// latch is never cleared by software, only by operator intervention via
// Reset.
type HardStop struct {
	mu        sync.RWMutex
	tripped   bool
	reason    string
	trippedAt time.Time

	onTrip func(reason string) // best-effort hook, e.g. a metrics counter
}

// NewHardStop creates an untripped latch. onTrip may be nil.
func NewHardStop(onTrip func(reason string)) *HardStop {
	return &HardStop{onTrip: onTrip}
}

// Trip sets the latch if not already set. Idempotent: a second call with a
// different reason does not overwrite the original trip reason/timestamp.
func (h *HardStop) Trip(reason string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tripped {
		return
	}
	h.tripped = true
	h.reason = reason
	h.trippedAt = now
	if h.onTrip != nil {
		h.onTrip(reason)
	}
}

// IsTripped reports whether the latch is set.
func (h *HardStop) IsTripped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tripped
}

// State returns the tripped flag, reason and trip time; the first result
// mirrors IsTripped.
func (h *HardStop) State() (tripped bool, reason string, trippedAt time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tripped, h.reason, h.trippedAt
}

// Reset clears the latch. Only ever called from an operator-driven path
// (e.g. a CLI command or admin API endpoint), never from inside the trading
// loop itself.
func (h *HardStop) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tripped = false
	h.reason = ""
	h.trippedAt = time.Time{}
}
