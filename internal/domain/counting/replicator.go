package counting

import (
	"context"
	"sync"
	"time"

	"recuento/internal/core/clock"
	"recuento/internal/remote"
	"recuento/pkg/debounce"
	"recuento/pkg/logger"
)

// State is the replicator lifecycle for one (user, warehouse) pair.
type State string

const (
	StateUnbound     State = "unbound"
	StateSubscribing State = "subscribing"
	StateLive        State = "live"
	StateDegraded    State = "degraded"
)

// SnapshotStore persists the counted list locally for warm restarts and
// offline fallback. ReadSnapshot returns an empty list for a missing or
// discarded-corrupt entry, never an error for those cases.
type SnapshotStore interface {
	ReadSnapshot(ctx context.Context, key string) ([]Line, error)
	WriteSnapshot(ctx context.Context, key string, lines []Line) error
}

// Replicator mirrors the remote counted list into memory and local storage.
// It is the only writer of the in-memory list: every remote change replaces
// the list wholesale (remote wins, no client-side merge), and it never
// originates a remote write itself.
type Replicator struct {
	remote    remote.Store
	snapshots SnapshotStore
	flusher   *debounce.Flusher[[]Line]
	log       *logger.Logger

	mu          sync.RWMutex
	state       State
	userID      string
	warehouseID string
	lines       []Line
	degraded    bool
	cancel      remote.CancelFunc

	// gen invalidates callbacks from a previous bind: a late-arriving
	// notification must not write into the next warehouse's state.
	gen uint64

	// onUpdate, when set, is invoked with a copy of the list after every
	// applied change (the UI repaint hook).
	onUpdate func([]Line)
}

// NewReplicator creates an unbound replicator. flushDelay controls snapshot
// write coalescing; pass 0 for the default.
func NewReplicator(store remote.Store, snapshots SnapshotStore, clk clock.Clock, flushDelay time.Duration, log *logger.Logger, onUpdate func([]Line)) *Replicator {
	if log == nil {
		log = logger.Default()
	}
	r := &Replicator{
		remote:    store,
		snapshots: snapshots,
		log:       log.WithComponent("replicator"),
		state:     StateUnbound,
		onUpdate:  onUpdate,
	}
	r.flusher = debounce.NewFlusher(flushDelay, clk, func(key string, lines []Line) {
		if err := r.snapshots.WriteSnapshot(context.Background(), key, lines); err != nil {
			r.log.Warnw("snapshot write failed", "key", key, "error", err)
		}
	})
	return r
}

// Bind attaches the replicator to a (user, warehouse) pair: paint from the
// last local snapshot immediately, then open the remote subscription. A
// subscription that cannot be opened leaves the replicator degraded on the
// snapshot state; rebinding is the only recovery path.
func (r *Replicator) Bind(ctx context.Context, userID, warehouseID string) error {
	r.Unbind()

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.userID = userID
	r.warehouseID = warehouseID
	r.state = StateSubscribing
	r.mu.Unlock()

	key := SnapshotKey(userID, warehouseID)
	snap, err := r.snapshots.ReadSnapshot(ctx, key)
	if err != nil {
		r.log.WithContext(ctx).Warnw("snapshot read failed, starting empty",
			"key", key,
			"error", err,
		)
		snap = nil
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return nil
	}
	r.lines = snap
	r.mu.Unlock()
	r.publish(snap)

	cancel, err := r.remote.Subscribe(ctx, userID, warehouseID,
		func(docs []remote.Document) { r.handleChange(gen, warehouseID, docs) },
		func(err error) { r.handleError(gen, err) },
	)
	if err != nil {
		r.mu.Lock()
		if r.gen == gen {
			r.state = StateDegraded
			r.degraded = true
		}
		r.mu.Unlock()
		r.log.WithContext(ctx).Warnw("subscription open failed, running degraded",
			"user_id", userID,
			"warehouse_id", warehouseID,
			"error", err,
		)
		return nil
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		cancel()
		return nil
	}
	r.cancel = cancel
	r.mu.Unlock()
	return nil
}

// Unbind synchronously cancels the subscription and any pending snapshot
// flush. The local snapshot itself is kept as the next instant-paint source.
func (r *Replicator) Unbind() {
	r.mu.Lock()
	r.gen++
	cancel := r.cancel
	r.cancel = nil
	key := ""
	if r.userID != "" {
		key = SnapshotKey(r.userID, r.warehouseID)
	}
	r.userID = ""
	r.warehouseID = ""
	r.lines = nil
	r.degraded = false
	r.state = StateUnbound
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if key != "" {
		r.flusher.Cancel(key)
	}
}

func (r *Replicator) handleChange(gen uint64, warehouseID string, docs []remote.Document) {
	lines := make([]Line, 0, len(docs))
	for _, doc := range docs {
		lines = append(lines, FromDocument(warehouseID, doc))
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.lines = lines
	r.degraded = false
	r.state = StateLive
	key := SnapshotKey(r.userID, r.warehouseID)
	r.mu.Unlock()

	r.flusher.Schedule(key, lines)
	r.publish(lines)
}

func (r *Replicator) handleError(gen uint64, err error) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.degraded = true
	r.state = StateDegraded
	userID, warehouseID := r.userID, r.warehouseID
	r.mu.Unlock()

	r.log.Warnw("subscription failed, keeping last known list",
		"user_id", userID,
		"warehouse_id", warehouseID,
		"error", err,
	)
}

func (r *Replicator) publish(lines []Line) {
	if r.onUpdate == nil {
		return
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	r.onUpdate(out)
}

// Lines returns a copy of the current in-memory list.
func (r *Replicator) Lines() []Line {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}

// Find returns the line for a barcode, if present.
func (r *Replicator) Find(barcode string) (Line, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.lines {
		if l.Barcode == barcode {
			return l, true
		}
	}
	return Line{}, false
}

// Degraded reports whether the replicator is serving last-known state.
func (r *Replicator) Degraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded
}

// State returns the current lifecycle state.
func (r *Replicator) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Bound returns the currently bound pair, empty when unbound.
func (r *Replicator) Bound() (userID, warehouseID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userID, r.warehouseID
}
