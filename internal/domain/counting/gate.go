package counting

import (
	"context"
	"sync"

	"recuento/internal/core/apperror"
)

// Decision is the pure outcome of the stock-boundary rule.
type Decision struct {
	FinalValue        int64
	NeedsConfirmation bool
}

// Decide computes the applied value and whether the change must be
// confirmed. Confirmation is required only for count mutations whose result
// crosses upward past a positive reference stock while the original value
// sat at or below it. Decrementing back across the boundary never asks.
func Decide(kind ValueKind, original, requested int64, isSum bool, referenceStock int64) Decision {
	final := requested
	if isSum {
		final = original + requested
	}
	if final < 0 {
		final = 0
	}

	needs := kind == KindCount &&
		referenceStock > 0 &&
		final > referenceStock &&
		original <= referenceStock

	return Decision{FinalValue: final, NeedsConfirmation: needs}
}

// ApplyFunc performs the side effect of a granted mutation: write the final
// value to the remote store (and, for stock, propagate to the catalog).
type ApplyFunc func(ctx context.Context, finalValue int64) error

// GateOutcome reports what the gate did with a request.
type GateOutcome struct {
	// Applied is true when the change was written immediately.
	Applied bool

	// FinalValue is the value that was (or would be) applied.
	FinalValue int64

	// Pending is set when the change awaits confirmation.
	Pending *PendingConfirmation
}

// Gate decides whether a requested change applies immediately or must be
// confirmed first. State machine: Idle -> AwaitingConfirmation -> Idle, with
// accept and cancel as the only transitions out of AwaitingConfirmation.
type Gate struct {
	mu      sync.Mutex
	pending *pendingState
}

type pendingState struct {
	confirmation PendingConfirmation
	apply        ApplyFunc
}

// NewGate creates an idle gate.
func NewGate() *Gate {
	return &Gate{}
}

// Request evaluates the rule and either applies the change through apply or
// parks it as a pending confirmation. A new deferred request replaces any
// previous one still pending (the UI shows a single dialog).
func (g *Gate) Request(ctx context.Context, kind ValueKind, barcode string, original, requested int64, isSum bool, referenceStock int64, apply ApplyFunc) (GateOutcome, error) {
	d := Decide(kind, original, requested, isSum, referenceStock)

	if d.NeedsConfirmation {
		conf := PendingConfirmation{
			Barcode:    barcode,
			Kind:       kind,
			FinalValue: d.FinalValue,
		}
		g.mu.Lock()
		g.pending = &pendingState{confirmation: conf, apply: apply}
		g.mu.Unlock()
		return GateOutcome{FinalValue: d.FinalValue, Pending: &conf}, nil
	}

	if err := apply(ctx, d.FinalValue); err != nil {
		return GateOutcome{}, err
	}
	return GateOutcome{Applied: true, FinalValue: d.FinalValue}, nil
}

// Confirm applies exactly the previously computed final value, not a
// recomputed one, so a line changed between request and confirmation cannot
// shift the outcome. The pending state clears even when apply fails.
func (g *Gate) Confirm(ctx context.Context) (PendingConfirmation, error) {
	g.mu.Lock()
	p := g.pending
	g.pending = nil
	g.mu.Unlock()

	if p == nil {
		return PendingConfirmation{}, apperror.NewNoPendingChange()
	}
	if err := p.apply(ctx, p.confirmation.FinalValue); err != nil {
		return p.confirmation, err
	}
	return p.confirmation, nil
}

// Cancel drops the pending confirmation without writing.
func (g *Gate) Cancel() (PendingConfirmation, error) {
	g.mu.Lock()
	p := g.pending
	g.pending = nil
	g.mu.Unlock()

	if p == nil {
		return PendingConfirmation{}, apperror.NewNoPendingChange()
	}
	return p.confirmation, nil
}

// Pending returns a copy of the confirmation currently awaiting a decision.
func (g *Gate) Pending() *PendingConfirmation {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return nil
	}
	conf := g.pending.confirmation
	return &conf
}
