// Package remote defines the contract of the authoritative real-time store.
// The engine consumes it as an opaque subscribe/write API; retries and
// backoff are the implementation's concern, never the caller's.
package remote

import (
	"context"
	"time"
)

// Document is a schemaless field map, the unit of exchange with the store.
type Document map[string]any

// CancelFunc tears down a subscription. Safe to call more than once.
type CancelFunc func()

// Store is the authoritative remote store for counted lines, the catalog
// and the warehouse set. All methods are remote I/O and may fail
// transiently; Subscribe reports later failures through onError.
type Store interface {
	// Subscribe opens a standing change feed for one (user, warehouse)
	// pair. onChange receives the full document set on every change,
	// including the initial state. onError signals a broken feed; no
	// automatic reconnection is attempted.
	Subscribe(ctx context.Context, userID, warehouseID string, onChange func([]Document), onError func(error)) (CancelFunc, error)

	// Write creates or updates one counted-line document. With merge set,
	// only the provided fields are patched; otherwise the document is
	// replaced wholesale.
	Write(ctx context.Context, userID, warehouseID, barcode string, fields Document, merge bool) error

	// Delete removes one counted-line document.
	Delete(ctx context.Context, userID, warehouseID, barcode string) error

	// Catalog fetches the complete catalog for a user.
	Catalog(ctx context.Context, userID string) ([]Document, error)

	// PutCatalogEntry upserts one catalog entry.
	PutCatalogEntry(ctx context.Context, userID, barcode string, fields Document) error

	// Warehouses fetches the user's warehouse set.
	Warehouses(ctx context.Context, userID string) ([]Document, error)

	// PutWarehouse upserts one warehouse.
	PutWarehouse(ctx context.Context, userID, warehouseID string, fields Document) error

	// DeleteWarehouse removes one warehouse.
	DeleteWarehouse(ctx context.Context, userID, warehouseID string) error
}

// --- Field coercion helpers ---
//
// Payloads cross JSON and SQL boundaries, so numeric fields arrive as
// float64, int64 or int depending on the backend.

// String returns the field as a string, or "" when absent.
func (d Document) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Int64 returns the field as an int64, or 0 when absent.
func (d Document) Int64(key string) int64 {
	switch v := d[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Time returns the field as a time, or the zero time when absent.
// Accepts time.Time values and RFC 3339 strings.
func (d Document) Time(key string) time.Time {
	switch v := d[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
