package counting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recuento/internal/core/clock"
	"recuento/internal/domain/catalog"
	"recuento/internal/remote"
	"recuento/internal/remote/remotetest"
)

type catalogCache struct {
	mu   sync.Mutex
	data map[string][]catalog.Entry
}

func (c *catalogCache) ReplaceAll(_ context.Context, userID string, entries []catalog.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]catalog.Entry)
	}
	c.data[userID] = append([]catalog.Entry(nil), entries...)
	return nil
}

func (c *catalogCache) GetAll(_ context.Context, userID string) ([]catalog.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]catalog.Entry(nil), c.data[userID]...), nil
}

type sessionEnv struct {
	store   *remotetest.Store
	catalog *catalog.Service
	snaps   *memSnapshots
	mock    *clock.Mock
	session *Session
}

func newSessionEnv(t *testing.T, catalogDocs []remote.Document) *sessionEnv {
	t.Helper()
	ctx := context.Background()

	store := remotetest.New()
	store.SetCatalog("u1", catalogDocs)

	cat := catalog.NewService(store, &catalogCache{}, nil)
	_, err := cat.Synchronize(ctx, "u1")
	require.NoError(t, err)

	snaps := newMemSnapshots()
	mock := clock.NewMock()

	session, err := NewSession(ctx, "u1", "w1", store, cat, snaps, mock, nil, Config{})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	return &sessionEnv{store: store, catalog: cat, snaps: snaps, mock: mock, session: session}
}

func catalogDoc(barcode, description string, stock int64) remote.Document {
	return remote.Document{
		"barcode":     barcode,
		"description": description,
		"provider":    "Proveedor SA",
		"stock":       stock,
	}
}

func (e *sessionEnv) findLine(t *testing.T, barcode string) Line {
	t.Helper()
	line, ok := e.session.replicator.Find(barcode)
	require.True(t, ok, "line %s not replicated", barcode)
	return line
}

func TestScan_CreatesLineFromCatalog(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{catalogDoc("100", "Agua mineral", 5)})

	res, err := env.session.Scan(context.Background(), "100\n")
	require.NoError(t, err)
	assert.Equal(t, ScanCreated, res.Status)
	assert.Equal(t, int64(1), res.FinalValue)

	line := env.findLine(t, "100")
	assert.Equal(t, "Agua mineral", line.Description)
	assert.Equal(t, int64(5), line.ReferenceStock)
	assert.Equal(t, int64(1), line.Count)
}

func TestScan_UnknownBarcodeSynthesizesPlaceholder(t *testing.T) {
	env := newSessionEnv(t, nil)

	res, err := env.session.Scan(context.Background(), "999")
	require.NoError(t, err)
	assert.Equal(t, ScanCreatedUnknown, res.Status)
	assert.NotEmpty(t, res.Warning)

	line := env.findLine(t, "999")
	assert.Equal(t, "Producto desconocido 999", line.Description)
	assert.Equal(t, int64(0), line.ReferenceStock)
	assert.Equal(t, int64(1), line.Count)
}

func TestScan_DuplicateSuppressionWindow(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{catalogDoc("123", "Café", 10)})

	res, err := env.session.Scan(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, ScanCreated, res.Status)

	res, err = env.session.Scan(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, ScanSuppressed, res.Status)
	assert.Equal(t, int64(1), env.findLine(t, "123").Count, "exactly one mutation within the window")

	env.mock.Advance(301 * time.Millisecond)
	res, err = env.session.Scan(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, ScanIncremented, res.Status)
	assert.Equal(t, int64(2), env.findLine(t, "123").Count)
}

func TestScan_RepeatedScansIncrementThroughGate(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{catalogDoc("100", "Agua", 3)})

	for i := 0; i < 3; i++ {
		env.mock.Advance(time.Second)
		_, err := env.session.Scan(context.Background(), "100")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), env.findLine(t, "100").Count)

	// The fourth scan would cross above stock 3 and is deferred.
	env.mock.Advance(time.Second)
	res, err := env.session.Scan(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, ScanPending, res.Status)
	require.NotNil(t, res.Pending)
	assert.Equal(t, int64(4), res.Pending.FinalValue)
	assert.Equal(t, int64(3), env.findLine(t, "100").Count, "no write before confirmation")

	conf, err := env.session.ConfirmPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), conf.FinalValue)
	assert.Equal(t, int64(4), env.findLine(t, "100").Count)

	// Once above stock, further scans pass without asking.
	env.mock.Advance(time.Second)
	res, err = env.session.Scan(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, ScanIncremented, res.Status)
	assert.Equal(t, int64(5), env.findLine(t, "100").Count)
}

func TestScan_UniqueLinePerBarcode(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{
		catalogDoc("100", "Agua", 10),
		catalogDoc("200", "Leche", 10),
	})

	scans := []string{"100", "200", "100", "200", "100"}
	for _, code := range scans {
		env.mock.Advance(time.Second)
		_, err := env.session.Scan(context.Background(), code)
		require.NoError(t, err)
	}

	lines := env.session.Lines()
	seen := make(map[string]int)
	for _, l := range lines {
		seen[l.Barcode]++
	}
	assert.Len(t, lines, 2)
	assert.Equal(t, 1, seen["100"])
	assert.Equal(t, 1, seen["200"])
	assert.Equal(t, int64(3), env.findLine(t, "100").Count)
}

func TestScan_EmptyInputRejected(t *testing.T) {
	env := newSessionEnv(t, nil)
	_, err := env.session.Scan(context.Background(), "  \r\n")
	assert.Error(t, err)
	assert.Empty(t, env.session.Lines())
}

func TestSetValue_AbsoluteCount(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{catalogDoc("100", "Agua", 10)})
	_, err := env.session.Scan(context.Background(), "100")
	require.NoError(t, err)

	outcome, err := env.session.SetValue(context.Background(), "100", KindCount, 7, false)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, int64(7), env.findLine(t, "100").Count)
}

func TestSetValue_NegativeAbsoluteRejected(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{catalogDoc("100", "Agua", 10)})
	_, err := env.session.Scan(context.Background(), "100")
	require.NoError(t, err)

	_, err = env.session.SetValue(context.Background(), "100", KindCount, -3, false)
	assert.Error(t, err)
	assert.Equal(t, int64(1), env.findLine(t, "100").Count)
}

func TestDecrement_FloorsAtZero(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{catalogDoc("100", "Agua", 10)})
	_, err := env.session.Scan(context.Background(), "100")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := env.session.DecrementValue(context.Background(), "100")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(0), env.findLine(t, "100").Count)
}

func TestSetValue_StockPropagatesToCatalog(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{catalogDoc("100", "Agua", 5)})
	_, err := env.session.Scan(context.Background(), "100")
	require.NoError(t, err)

	outcome, err := env.session.SetValue(context.Background(), "100", KindStock, 20, false)
	require.NoError(t, err)
	assert.True(t, outcome.Applied, "stock mutations never require confirmation")

	assert.Equal(t, int64(20), env.findLine(t, "100").ReferenceStock)

	entry, ok := env.catalog.Lookup("100")
	require.True(t, ok)
	assert.Equal(t, int64(20), entry.ReferenceStock)
}

func TestDeleteLine(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{catalogDoc("100", "Agua", 5)})
	_, err := env.session.Scan(context.Background(), "100")
	require.NoError(t, err)

	require.NoError(t, env.session.DeleteLine(context.Background(), "100"))
	assert.Empty(t, env.session.Lines())

	err = env.session.DeleteLine(context.Background(), "100")
	assert.Error(t, err, "deleting a missing line is a definite failure")
}

func TestClearList(t *testing.T) {
	env := newSessionEnv(t, []remote.Document{
		catalogDoc("100", "Agua", 5),
		catalogDoc("200", "Leche", 5),
	})
	for _, code := range []string{"100", "200"} {
		env.mock.Advance(time.Second)
		_, err := env.session.Scan(context.Background(), code)
		require.NoError(t, err)
	}
	require.Len(t, env.session.Lines(), 2)

	require.NoError(t, env.session.ClearList(context.Background()))
	assert.Empty(t, env.session.Lines())
}

func TestManager_RebindClosesOldSession(t *testing.T) {
	store := remotetest.New()
	cat := catalog.NewService(store, &catalogCache{}, nil)
	snaps := newMemSnapshots()
	m := NewManager(store, cat, snaps, clock.NewMock(), nil, Config{})

	ctx := context.Background()
	s1, err := m.Bind(ctx, "u1", "w1")
	require.NoError(t, err)

	again, err := m.Bind(ctx, "u1", "w1")
	require.NoError(t, err)
	assert.Same(t, s1, again, "same warehouse reuses the session")

	s2, err := m.Bind(ctx, "u1", "w2")
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, 0, store.ActiveSubscriptions("u1", "w1"), "old pair unsubscribed before rebinding")
	assert.Equal(t, 1, store.ActiveSubscriptions("u1", "w2"))

	m.Release("u1")
	assert.Equal(t, 0, store.ActiveSubscriptions("u1", "w2"))
	_, err = m.Get("u1")
	assert.Error(t, err)
}
