// Package cloud implements the remote store against the hosted counting
// service: JSON over HTTPS for one-shot operations and a websocket feed for
// counted-line changes. The feed pushes the full document set on every
// change, so a consumer never has to patch.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"recuento/internal/core/apperror"
	"recuento/internal/remote"
)

// Config holds the cloud store configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Store is the hosted-service-backed remote store.
type Store struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// New creates a cloud store. BaseURL is required.
func New(cfg Config) (*Store, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, apperror.NewValidation("cloud base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &Store{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}, nil
}

// --- HTTP plumbing ---

func (s *Store) do(ctx context.Context, method, path string, payload any, out any) error {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	reqURL := s.baseURL + path

	for attempt := 0; ; attempt++ {
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if attempt < s.maxRetries {
				if waitErr := sleepContext(ctx, s.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return apperror.NewRemoteUnavailable(method+" "+path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return apperror.NewRemoteUnavailable(method+" "+path, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return apperror.NewRemoteUnavailable(method+" "+path, fmt.Errorf("decode response: %w", err))
				}
			}
			return nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < s.maxRetries {
			if waitErr := sleepContext(ctx, s.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		return apperror.NewRemoteUnavailable(method+" "+path,
			fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
}

func (s *Store) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > s.maxDelay {
			return s.maxDelay
		}
		return retryAfter
	}
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			return s.maxDelay
		}
	}
	if delay > s.maxDelay {
		return s.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func linesPath(userID, warehouseID string) string {
	return fmt.Sprintf("/v1/users/%s/warehouses/%s/lines",
		url.PathEscape(userID), url.PathEscape(warehouseID))
}

// --- Counted lines ---

// Subscribe opens a websocket change feed for one (user, warehouse) pair.
func (s *Store) Subscribe(ctx context.Context, userID, warehouseID string, onChange func([]remote.Document), onError func(error)) (remote.CancelFunc, error) {
	wsURL := s.baseURL + linesPath(userID, warehouseID) + "/feed"
	wsURL = strings.Replace(wsURL, "http", "ws", 1)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: s.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, apperror.NewRemoteUnavailable("subscribe", err)
	}
	// Full document sets can be large.
	conn.SetReadLimit(8 << 20)

	feedCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer conn.Close(websocket.StatusNormalClosure, "")

		for {
			var docs []remote.Document
			if err := wsjson.Read(feedCtx, conn, &docs); err != nil {
				if feedCtx.Err() != nil {
					return
				}
				onError(apperror.NewRemoteUnavailable("change feed", err))
				return
			}
			onChange(docs)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// Write creates or updates one counted-line document. Merge patches the
// provided fields; otherwise the document is replaced wholesale.
func (s *Store) Write(ctx context.Context, userID, warehouseID, barcode string, fields remote.Document, merge bool) error {
	method := http.MethodPut
	if merge {
		method = http.MethodPatch
	}
	return s.do(ctx, method, linesPath(userID, warehouseID)+"/"+url.PathEscape(barcode), fields, nil)
}

// Delete removes one counted-line document.
func (s *Store) Delete(ctx context.Context, userID, warehouseID, barcode string) error {
	return s.do(ctx, http.MethodDelete, linesPath(userID, warehouseID)+"/"+url.PathEscape(barcode), nil, nil)
}

// --- Catalog ---

// Catalog fetches the complete catalog for a user.
func (s *Store) Catalog(ctx context.Context, userID string) ([]remote.Document, error) {
	var docs []remote.Document
	path := fmt.Sprintf("/v1/users/%s/catalog", url.PathEscape(userID))
	if err := s.do(ctx, http.MethodGet, path, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// PutCatalogEntry upserts one catalog entry.
func (s *Store) PutCatalogEntry(ctx context.Context, userID, barcode string, fields remote.Document) error {
	path := fmt.Sprintf("/v1/users/%s/catalog/%s", url.PathEscape(userID), url.PathEscape(barcode))
	return s.do(ctx, http.MethodPut, path, fields, nil)
}

// --- Warehouses ---

// Warehouses fetches the user's warehouse set.
func (s *Store) Warehouses(ctx context.Context, userID string) ([]remote.Document, error) {
	var docs []remote.Document
	path := fmt.Sprintf("/v1/users/%s/warehouses", url.PathEscape(userID))
	if err := s.do(ctx, http.MethodGet, path, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// PutWarehouse upserts one warehouse.
func (s *Store) PutWarehouse(ctx context.Context, userID, warehouseID string, fields remote.Document) error {
	path := fmt.Sprintf("/v1/users/%s/warehouses/%s", url.PathEscape(userID), url.PathEscape(warehouseID))
	return s.do(ctx, http.MethodPut, path, fields, nil)
}

// DeleteWarehouse removes one warehouse.
func (s *Store) DeleteWarehouse(ctx context.Context, userID, warehouseID string) error {
	path := fmt.Sprintf("/v1/users/%s/warehouses/%s", url.PathEscape(userID), url.PathEscape(warehouseID))
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

// compile-time interface check
var _ remote.Store = (*Store)(nil)
