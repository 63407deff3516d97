package counting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recuento/internal/core/clock"
	"recuento/internal/remote"
	"recuento/internal/remote/remotetest"
)

type memSnapshots struct {
	mu     sync.Mutex
	data   map[string][]Line
	writes int
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{data: make(map[string][]Line)}
}

func (m *memSnapshots) ReadSnapshot(_ context.Context, key string) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Line(nil), m.data[key]...), nil
}

func (m *memSnapshots) WriteSnapshot(_ context.Context, key string, lines []Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.data[key] = append([]Line(nil), lines...)
	return nil
}

func (m *memSnapshots) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func lineDoc(barcode string, count int64) remote.Document {
	return remote.Document{
		"barcode":     barcode,
		"description": "Producto " + barcode,
		"provider":    "Desconocido",
		"stock":       int64(0),
		"count":       count,
		"updated_at":  "2026-08-30T10:00:00Z",
	}
}

func TestReplicator_PaintsFromSnapshotBeforeSubscribing(t *testing.T) {
	store := remotetest.New()
	store.SubscribeErr = errors.New("offline")
	snaps := newMemSnapshots()
	snaps.data[SnapshotKey("u1", "w1")] = []Line{{Barcode: "A", Count: 2}}

	r := NewReplicator(store, snaps, clock.NewMock(), 0, nil, nil)
	require.NoError(t, r.Bind(context.Background(), "u1", "w1"))

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "A", lines[0].Barcode)
	assert.True(t, r.Degraded())
	assert.Equal(t, StateDegraded, r.State())
}

func TestReplicator_RemoteWinsFullReplace(t *testing.T) {
	store := remotetest.New()
	snaps := newMemSnapshots()
	r := NewReplicator(store, snaps, clock.NewMock(), 0, nil, nil)
	require.NoError(t, r.Bind(context.Background(), "u1", "w1"))

	store.Push("u1", "w1", []remote.Document{lineDoc("A", 1), lineDoc("B", 4)})
	store.Push("u1", "w1", []remote.Document{lineDoc("B", 5)})

	// The list equals exactly the last payload, never a merge.
	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "B", lines[0].Barcode)
	assert.Equal(t, int64(5), lines[0].Count)
	assert.Equal(t, StateLive, r.State())
	assert.False(t, r.Degraded())
}

func TestReplicator_OfflineFallbackKeepsLastKnownList(t *testing.T) {
	store := remotetest.New()
	snaps := newMemSnapshots()
	r := NewReplicator(store, snaps, clock.NewMock(), 0, nil, nil)
	require.NoError(t, r.Bind(context.Background(), "u1", "w1"))

	store.Push("u1", "w1", []remote.Document{lineDoc("A", 2)})
	store.FailSubscriptions("u1", "w1", errors.New("connection reset"))

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "A", lines[0].Barcode)
	assert.Equal(t, int64(2), lines[0].Count)
	assert.True(t, r.Degraded())

	// A change after recovery clears the flag.
	store.Push("u1", "w1", []remote.Document{lineDoc("A", 3)})
	assert.False(t, r.Degraded())
}

func TestReplicator_SnapshotWriteThroughIsCoalesced(t *testing.T) {
	store := remotetest.New()
	snaps := newMemSnapshots()
	mock := clock.NewMock()
	r := NewReplicator(store, snaps, mock, 400*time.Millisecond, nil, nil)
	require.NoError(t, r.Bind(context.Background(), "u1", "w1"))

	store.Push("u1", "w1", []remote.Document{lineDoc("A", 1)})
	store.Push("u1", "w1", []remote.Document{lineDoc("A", 2)})
	store.Push("u1", "w1", []remote.Document{lineDoc("A", 3)})
	assert.Equal(t, 0, snaps.writeCount())

	mock.Advance(400 * time.Millisecond)
	assert.Equal(t, 1, snaps.writeCount(), "burst coalesces into one write")

	saved, err := snaps.ReadSnapshot(context.Background(), SnapshotKey("u1", "w1"))
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, int64(3), saved[0].Count)
}

func TestReplicator_UnbindCancelsSubscriptionAndFlush(t *testing.T) {
	store := remotetest.New()
	snaps := newMemSnapshots()
	mock := clock.NewMock()
	r := NewReplicator(store, snaps, mock, 400*time.Millisecond, nil, nil)
	require.NoError(t, r.Bind(context.Background(), "u1", "w1"))

	store.Push("u1", "w1", []remote.Document{lineDoc("A", 1)})
	r.Unbind()

	assert.Equal(t, 0, store.ActiveSubscriptions("u1", "w1"))
	assert.Equal(t, StateUnbound, r.State())
	assert.Empty(t, r.Lines())

	// The pending flush was cancelled with the bind.
	mock.Advance(time.Second)
	assert.Equal(t, 0, snaps.writeCount())
}

func TestReplicator_RebindSwitchesWarehouse(t *testing.T) {
	store := remotetest.New()
	snaps := newMemSnapshots()
	r := NewReplicator(store, snaps, clock.NewMock(), 0, nil, nil)

	require.NoError(t, r.Bind(context.Background(), "u1", "w1"))
	store.Push("u1", "w1", []remote.Document{lineDoc("A", 1)})

	require.NoError(t, r.Bind(context.Background(), "u1", "w2"))
	store.Push("u1", "w2", []remote.Document{lineDoc("Z", 9)})

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "Z", lines[0].Barcode)

	// A late change on the old pair must not leak into the new state.
	store.Push("u1", "w1", []remote.Document{lineDoc("A", 7)})
	lines = r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "Z", lines[0].Barcode)
}

func TestReplicator_UpdateHookReceivesCopies(t *testing.T) {
	store := remotetest.New()
	snaps := newMemSnapshots()
	var got [][]Line
	r := NewReplicator(store, snaps, clock.NewMock(), 0, nil, func(lines []Line) {
		got = append(got, lines)
	})
	require.NoError(t, r.Bind(context.Background(), "u1", "w1"))

	store.Push("u1", "w1", []remote.Document{lineDoc("A", 1)})
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	require.Len(t, last, 1)

	// Mutating the delivered slice must not affect replicator state.
	last[0].Count = 99
	assert.Equal(t, int64(1), r.Lines()[0].Count)
}
