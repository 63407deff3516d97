// Package debounce provides the two throttling primitives of the counting
// engine: duplicate-input suppression and write coalescing. Both take an
// injectable clock so tests never need real timers.
package debounce

import (
	"sync"
	"time"

	"recuento/internal/core/clock"
)

// DefaultSuppressionWindow is how long a repeated identical input is rejected.
const DefaultSuppressionWindow = 300 * time.Millisecond

// Suppressor rejects a repeated identical input arriving within a short
// window. It is a UX debouncer against human/hardware double-triggers, not a
// correctness mechanism: distinct inputs are never blocked.
type Suppressor struct {
	mu       sync.Mutex
	window   time.Duration
	clk      clock.Clock
	last     string
	deadline time.Time
}

// NewSuppressor creates a Suppressor with the given window.
func NewSuppressor(window time.Duration, clk clock.Clock) *Suppressor {
	if window <= 0 {
		window = DefaultSuppressionWindow
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Suppressor{window: window, clk: clk}
}

// ShouldAccept reports whether the input should be processed. Every accepted
// input re-arms the slot and the window, including a new, different input:
// this also throttles unrelated rapid repeats of the previous value.
func (s *Suppressor) ShouldAccept(input string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	if input == s.last && now.Before(s.deadline) {
		return false
	}
	s.last = input
	s.deadline = now.Add(s.window)
	return true
}

// Reset clears the armed slot, so the next input is always accepted.
func (s *Suppressor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = ""
	s.deadline = time.Time{}
}
