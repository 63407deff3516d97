package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recuento/internal/core/clock"
	"recuento/internal/domain/auth"
	"recuento/internal/domain/catalog"
	"recuento/internal/domain/counting"
	"recuento/internal/domain/warehouse"
	"recuento/internal/remote"
	"recuento/internal/remote/remotetest"
	"recuento/internal/storage/sqlite"
	"recuento/pkg/logger"
)

type apiEnv struct {
	srv   *httptest.Server
	store *remotetest.Store
	token string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "recuento.db"))
	require.NoError(t, err)

	store := remotetest.New()
	log := logger.Default()

	catalogService := catalog.NewService(store, sqlite.NewCatalogCache(db), log)
	warehouseService := warehouse.NewService(store, sqlite.NewSettingsStore(db), log)
	snapshots, err := sqlite.NewSnapshotStore(db, log)
	require.NoError(t, err)

	manager := counting.NewManager(store, catalogService, snapshots, clock.New(), log, counting.Config{})

	hash, err := auth.HashPassword("secreta123")
	require.NoError(t, err)
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	authService := auth.NewService([]auth.User{{ID: "u1", Username: "almacen", PasswordHash: hash}}, jwtService, auth.DefaultServiceConfig())

	router := NewRouter(RouterConfig{
		Logger:           log,
		JWTValidator:     jwtService,
		AuthService:      authService,
		Manager:          manager,
		CatalogService:   catalogService,
		WarehouseService: warehouseService,
		DB:               db,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		manager.Shutdown()
		_ = db.Close()
	})

	return &apiEnv{srv: srv, store: store}
}

func (e *apiEnv) request(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *apiEnv) login(t *testing.T) {
	t.Helper()
	var token auth.Token
	resp := e.request(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": "almacen", "password": "secreta123"}, &token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, token.AccessToken)
	e.token = token.AccessToken
}

func TestLoginAndProtectedAccess(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.request(t, http.MethodGet, "/api/v1/warehouses", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	env.login(t)

	var list []warehouse.Warehouse
	resp = env.request(t, http.MethodGet, "/api/v1/warehouses", nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list, 3, "first use seeds the default warehouses")
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newAPIEnv(t)

	var errBody map[string]any
	resp := env.request(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": "almacen", "password": "nope"}, &errBody)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errBody["code"])
}

func TestCountingFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.login(t)

	env.store.SetCatalog("u1", []remote.Document{
		{"barcode": "100", "description": "Agua", "provider": "Aguas SA", "stock": int64(2)},
	})

	var sync map[string]any
	resp := env.request(t, http.MethodPost, "/api/v1/catalog/sync", nil, &sync)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cloud", sync["source"])

	var bound struct {
		WarehouseID string          `json:"warehouseId"`
		Lines       []counting.Line `json:"lines"`
		Degraded    bool            `json:"degraded"`
	}
	resp = env.request(t, http.MethodPost, "/api/v1/counting/bind", nil, &bound)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, bound.WarehouseID)
	assert.False(t, bound.Degraded)
	assert.Empty(t, bound.Lines)

	var scan counting.ScanResult
	resp = env.request(t, http.MethodPost, "/api/v1/counting/scan",
		map[string]string{"barcode": "100"}, &scan)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, counting.ScanCreated, scan.Status)
	assert.Equal(t, int64(1), scan.FinalValue)

	// Same barcode again inside the suppression window.
	resp = env.request(t, http.MethodPost, "/api/v1/counting/scan",
		map[string]string{"barcode": "100"}, &scan)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, counting.ScanSuppressed, scan.Status)

	resp = env.request(t, http.MethodGet, "/api/v1/counting/lines", nil, &bound)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, bound.Lines, 1)
	assert.Equal(t, int64(1), bound.Lines[0].Count)
}

func TestConfirmationFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.login(t)

	env.store.SetCatalog("u1", []remote.Document{
		{"barcode": "100", "description": "Agua", "provider": "Aguas SA", "stock": int64(2)},
	})
	env.request(t, http.MethodPost, "/api/v1/catalog/sync", nil, nil)
	env.request(t, http.MethodPost, "/api/v1/counting/bind", nil, nil)
	env.request(t, http.MethodPost, "/api/v1/counting/scan", map[string]string{"barcode": "100"}, nil)

	// Absolute set past the reference stock defers to the gate.
	var outcome counting.GateOutcome
	resp := env.request(t, http.MethodPut, "/api/v1/counting/lines/100/value",
		map[string]any{"type": "count", "value": 3, "isSum": false}, &outcome)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, outcome.Applied)
	require.NotNil(t, outcome.Pending)
	assert.Equal(t, int64(3), outcome.Pending.FinalValue)

	var pending counting.PendingConfirmation
	resp = env.request(t, http.MethodPost, "/api/v1/counting/confirmation/accept", nil, &pending)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "100", pending.Barcode)

	// Remote store now carries the confirmed value.
	docs := env.store.Lines("u1", currentWarehouse(t, env))
	require.Len(t, docs, 1)
	assert.Equal(t, int64(3), docs[0].Int64("count"))

	// Nothing pending anymore.
	var errBody map[string]any
	resp = env.request(t, http.MethodPost, "/api/v1/counting/confirmation/accept", nil, &errBody)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "NO_PENDING_CHANGE", errBody["code"])
}

func TestLinesWithoutSession(t *testing.T) {
	env := newAPIEnv(t)
	env.login(t)

	var errBody map[string]any
	resp := env.request(t, http.MethodGet, "/api/v1/counting/lines", nil, &errBody)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "NO_ACTIVE_SESSION", errBody["code"])
}

func TestHealthEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.request(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func currentWarehouse(t *testing.T, env *apiEnv) string {
	t.Helper()
	var current struct {
		WarehouseID string `json:"warehouseId"`
	}
	resp := env.request(t, http.MethodGet, "/api/v1/warehouses/current", nil, &current)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, current.WarehouseID)
	return current.WarehouseID
}
