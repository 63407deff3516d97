package counting

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"recuento/internal/core/apperror"
	"recuento/internal/core/clock"
	"recuento/internal/domain/catalog"
	"recuento/internal/remote"
	"recuento/pkg/debounce"
	"recuento/pkg/logger"
)

var tracer = otel.Tracer("recuento/counting")

// Session is one operator's bound counting context: a (user, warehouse)
// pair with its replicator, mutation gate and duplicate suppressor. All §6
// operations of the engine surface hang off it. Mutations are translated
// into remote writes and become visible only once echoed back through the
// replicator (single-writer rule).
type Session struct {
	userID      string
	warehouseID string

	catalog    *catalog.Service
	remote     remote.Store
	replicator *Replicator
	gate       *Gate
	suppressor *debounce.Suppressor
	clk        clock.Clock
	log        *logger.Logger
}

// Config carries session construction knobs; zero durations mean defaults.
type Config struct {
	SuppressionWindow time.Duration
	FlushDelay        time.Duration

	// OnUpdate is invoked with the replicated list after every change.
	OnUpdate func([]Line)
}

// NewSession creates and binds a session. Binding paints from the local
// snapshot first and then subscribes; an unreachable remote yields a
// degraded but usable session, not an error.
func NewSession(ctx context.Context, userID, warehouseID string, store remote.Store, cat *catalog.Service, snapshots SnapshotStore, clk clock.Clock, log *logger.Logger, cfg Config) (*Session, error) {
	if userID == "" || warehouseID == "" {
		return nil, apperror.NewNoActiveSession()
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Session{
		userID:      userID,
		warehouseID: warehouseID,
		catalog:     cat,
		remote:      store,
		gate:        NewGate(),
		suppressor:  debounce.NewSuppressor(cfg.SuppressionWindow, clk),
		clk:         clk,
		log:         log.WithComponent("counting").With("user_id", userID, "warehouse_id", warehouseID),
	}
	s.replicator = NewReplicator(store, snapshots, clk, cfg.FlushDelay, log, cfg.OnUpdate)

	if err := s.replicator.Bind(ctx, userID, warehouseID); err != nil {
		return nil, err
	}
	return s, nil
}

// Lines returns the replicated counted list.
func (s *Session) Lines() []Line {
	return s.replicator.Lines()
}

// Degraded reports whether the session runs on last-known local state.
func (s *Session) Degraded() bool {
	return s.replicator.Degraded()
}

// Pending returns the confirmation awaiting a decision, if any.
func (s *Session) Pending() *PendingConfirmation {
	return s.gate.Pending()
}

// Warehouse returns the bound warehouse ID.
func (s *Session) Warehouse() string {
	return s.warehouseID
}

// SetValue routes an absolute or summed change for one line's count or
// reference stock through the mutation gate.
func (s *Session) SetValue(ctx context.Context, barcode string, kind ValueKind, value int64, isSum bool) (GateOutcome, error) {
	ctx, span := tracer.Start(ctx, "counting.set_value")
	defer span.End()
	span.SetAttributes(
		attribute.String("barcode", barcode),
		attribute.String("kind", string(kind)),
	)

	if kind != KindCount && kind != KindStock {
		return GateOutcome{}, apperror.NewInvalidInput("type", "unknown value type")
	}
	if !isSum && value < 0 {
		return GateOutcome{}, apperror.NewInvalidInput("value", "value must not be negative")
	}

	line, ok := s.replicator.Find(barcode)
	if !ok {
		return GateOutcome{}, apperror.NewNotFound("counted line", barcode)
	}

	original := line.Count
	apply := s.applyCount(barcode)
	if kind == KindStock {
		original = line.ReferenceStock
		apply = s.applyStock(line)
	}

	return s.gate.Request(ctx, kind, barcode, original, value, isSum, line.ReferenceStock, apply)
}

// IncrementValue adds one to a line's count through the gate.
func (s *Session) IncrementValue(ctx context.Context, barcode string) (GateOutcome, error) {
	return s.SetValue(ctx, barcode, KindCount, 1, true)
}

// DecrementValue subtracts one from a line's count. Never gated: the rule
// only fires on upward boundary crossings, and the floor is zero.
func (s *Session) DecrementValue(ctx context.Context, barcode string) (GateOutcome, error) {
	return s.SetValue(ctx, barcode, KindCount, -1, true)
}

// ConfirmPending applies the parked change. The pending state clears even
// when the write fails, so the dialog can never dangle.
func (s *Session) ConfirmPending(ctx context.Context) (PendingConfirmation, error) {
	return s.gate.Confirm(ctx)
}

// CancelPending drops the parked change without writing.
func (s *Session) CancelPending() (PendingConfirmation, error) {
	return s.gate.Cancel()
}

// DeleteLine removes one counted line from the remote store. The in-memory
// list updates when the deletion echoes back through the replicator.
func (s *Session) DeleteLine(ctx context.Context, barcode string) error {
	if _, ok := s.replicator.Find(barcode); !ok {
		return apperror.NewNotFound("counted line", barcode)
	}
	if err := s.remote.Delete(ctx, s.userID, s.warehouseID, barcode); err != nil {
		return apperror.NewRemoteUnavailable("line delete", err)
	}
	return nil
}

// ClearList deletes every counted line for the bound warehouse.
func (s *Session) ClearList(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "counting.clear_list")
	defer span.End()

	for _, line := range s.replicator.Lines() {
		if err := s.remote.Delete(ctx, s.userID, s.warehouseID, line.Barcode); err != nil {
			return apperror.NewRemoteUnavailable("list clear", err)
		}
	}
	return nil
}

// Close unbinds the replicator and resets the suppressor. Synchronous, so a
// late callback or flush cannot write into a successor session's state.
func (s *Session) Close() {
	s.replicator.Unbind()
	s.suppressor.Reset()
}

// applyCount writes a count change as a merge update of the mutated field
// plus a refreshed timestamp.
func (s *Session) applyCount(barcode string) ApplyFunc {
	return func(ctx context.Context, finalValue int64) error {
		fields := remote.Document{
			"count":      finalValue,
			"updated_at": s.clk.Now().UTC().Format(time.RFC3339),
		}
		if err := s.remote.Write(ctx, s.userID, s.warehouseID, barcode, fields, true); err != nil {
			return apperror.NewRemoteUnavailable("count write", err)
		}
		return nil
	}
}

// applyStock writes a reference-stock change to the counted line and
// propagates it into the catalog's authoritative copy, which triggers a
// resynchronize. Stock is catalog-owned data edited through the counting
// view.
func (s *Session) applyStock(line Line) ApplyFunc {
	return func(ctx context.Context, finalValue int64) error {
		fields := remote.Document{
			"stock":      finalValue,
			"updated_at": s.clk.Now().UTC().Format(time.RFC3339),
		}
		if err := s.remote.Write(ctx, s.userID, s.warehouseID, line.Barcode, fields, true); err != nil {
			return apperror.NewRemoteUnavailable("stock write", err)
		}

		entry, ok := s.catalog.Lookup(line.Barcode)
		if !ok {
			entry = catalog.Entry{
				Barcode:     line.Barcode,
				Description: line.Description,
				Provider:    line.Provider,
			}
		}
		entry.ReferenceStock = finalValue
		return s.catalog.EditEntry(ctx, s.userID, entry)
	}
}
