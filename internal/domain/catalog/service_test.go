package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recuento/internal/remote"
	"recuento/internal/remote/remotetest"
)

type memCache struct {
	mu      sync.Mutex
	byUser  map[string][]Entry
	getErr  error
	putErr  error
	replace int
}

func newMemCache() *memCache {
	return &memCache{byUser: make(map[string][]Entry)}
}

func (c *memCache) ReplaceAll(_ context.Context, userID string, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.replace++
	c.byUser[userID] = append([]Entry(nil), entries...)
	return nil
}

func (c *memCache) GetAll(_ context.Context, userID string) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return append([]Entry(nil), c.byUser[userID]...), nil
}

func seedRemote(store *remotetest.Store) {
	store.SetCatalog("u1", []remote.Document{
		{"barcode": "200", "description": "Zumo de naranja", "provider": "Frutas SA", "stock": int64(10)},
		{"barcode": "100", "description": "agua mineral", "provider": "", "stock": int64(5)},
		{"barcode": "300", "description": "", "provider": "Lácteos SL", "stock": int64(0)},
	})
}

func TestSynchronize_FromCloudReplacesCacheAndSorts(t *testing.T) {
	store := remotetest.New()
	seedRemote(store)
	cache := newMemCache()
	cache.byUser["u1"] = []Entry{{Barcode: "999", Description: "stale"}}

	svc := NewService(store, cache, nil)
	res, err := svc.Synchronize(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, SourceCloud, res.Source)
	assert.True(t, res.FirstNotice)
	require.Len(t, res.Entries, 3)

	// Case-insensitive ascending by description.
	assert.Equal(t, "agua mineral", res.Entries[0].Description)
	assert.Equal(t, "Producto 300", res.Entries[1].Description)
	assert.Equal(t, "Zumo de naranja", res.Entries[2].Description)

	// Normalization fallbacks.
	assert.Equal(t, UnknownProvider, res.Entries[0].Provider)

	// Replace semantics: the stale local-only entry is gone.
	cached, err := cache.GetAll(context.Background(), "u1")
	require.NoError(t, err)
	for _, e := range cached {
		assert.NotEqual(t, "999", e.Barcode)
	}
}

func TestSynchronize_Idempotent(t *testing.T) {
	store := remotetest.New()
	seedRemote(store)
	cache := newMemCache()
	svc := NewService(store, cache, nil)

	first, err := svc.Synchronize(context.Background(), "u1")
	require.NoError(t, err)
	firstCache := append([]Entry(nil), cache.byUser["u1"]...)

	second, err := svc.Synchronize(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, firstCache, cache.byUser["u1"])
	assert.False(t, second.FirstNotice, "source notice fires once per session")
}

func TestSynchronize_RemoteFailureFallsBackToCache(t *testing.T) {
	store := remotetest.New()
	cache := newMemCache()
	cache.byUser["u1"] = []Entry{
		{Barcode: "100", Description: "Café molido", Provider: "Cafés SL", ReferenceStock: 4},
	}
	store.CatalogErr = errors.New("network down")

	svc := NewService(store, cache, nil)
	res, err := svc.Synchronize(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, res.Source)
	assert.True(t, res.FirstNotice)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "100", res.Entries[0].Barcode)

	// The cache was not cleared on failure.
	assert.Len(t, cache.byUser["u1"], 1)
}

func TestSynchronize_SourceChangeAnnouncesAgain(t *testing.T) {
	store := remotetest.New()
	seedRemote(store)
	cache := newMemCache()
	svc := NewService(store, cache, nil)

	res, err := svc.Synchronize(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, res.FirstNotice)

	store.CatalogErr = errors.New("offline")
	res, err = svc.Synchronize(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, res.Source)
	assert.True(t, res.FirstNotice, "switching to degraded mode is announced")
}

func TestLookup(t *testing.T) {
	store := remotetest.New()
	seedRemote(store)
	svc := NewService(store, newMemCache(), nil)
	_, err := svc.Synchronize(context.Background(), "u1")
	require.NoError(t, err)

	e, ok := svc.Lookup("100")
	require.True(t, ok)
	assert.Equal(t, int64(5), e.ReferenceStock)

	_, ok = svc.Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestEditEntry_WritesThroughAndResyncs(t *testing.T) {
	store := remotetest.New()
	seedRemote(store)
	cache := newMemCache()
	svc := NewService(store, cache, nil)
	_, err := svc.Synchronize(context.Background(), "u1")
	require.NoError(t, err)

	err = svc.EditEntry(context.Background(), "u1", Entry{
		Barcode:        "100",
		Description:    "Agua mineral 1L",
		Provider:       "Aguas SA",
		ReferenceStock: 12,
	})
	require.NoError(t, err)

	e, ok := svc.Lookup("100")
	require.True(t, ok)
	assert.Equal(t, int64(12), e.ReferenceStock)
	assert.Equal(t, "Agua mineral 1L", e.Description)
}

func TestEditEntry_Validation(t *testing.T) {
	svc := NewService(remotetest.New(), newMemCache(), nil)
	err := svc.EditEntry(context.Background(), "u1", Entry{Barcode: "   "})
	assert.Error(t, err)
}
