// Package counting implements the inventory-counting engine: the live
// counted list replicated from the remote store, the mutation gate with its
// confirmation state machine, and the barcode ingestion pipeline.
package counting

import (
	"fmt"
	"time"

	"recuento/internal/remote"
)

// Line is one counted item for a (warehouse, barcode) pair. The remote
// store is authoritative; in-memory and snapshot copies are mirrors.
type Line struct {
	WarehouseID    string    `db:"warehouse_id" json:"warehouseId"`
	Barcode        string    `db:"barcode" json:"barcode"`
	Description    string    `db:"description" json:"description"`
	Provider       string    `db:"provider" json:"provider"`
	ReferenceStock int64     `db:"reference_stock" json:"stock"`
	Count          int64     `db:"count" json:"count"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// FromDocument decodes a remote counted-line document.
func FromDocument(warehouseID string, doc remote.Document) Line {
	return Line{
		WarehouseID:    warehouseID,
		Barcode:        doc.String("barcode"),
		Description:    doc.String("description"),
		Provider:       doc.String("provider"),
		ReferenceStock: doc.Int64("stock"),
		Count:          doc.Int64("count"),
		UpdatedAt:      doc.Time("updated_at"),
	}
}

// Fields encodes the line as a remote document.
func (l Line) Fields() remote.Document {
	return remote.Document{
		"barcode":     l.Barcode,
		"description": l.Description,
		"provider":    l.Provider,
		"stock":       l.ReferenceStock,
		"count":       l.Count,
		"updated_at":  l.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// PlaceholderLine synthesizes the line for a barcode absent from the
// catalog: zero reference stock, marked unknown.
func PlaceholderLine(warehouseID, barcode string, now time.Time) Line {
	return Line{
		WarehouseID: warehouseID,
		Barcode:     barcode,
		Description: fmt.Sprintf("Producto desconocido %s", barcode),
		Provider:    "Desconocido",
		Count:       1,
		UpdatedAt:   now,
	}
}

// SnapshotKey is the local-storage key for one (user, warehouse) pair.
func SnapshotKey(userID, warehouseID string) string {
	return userID + "/" + warehouseID
}

// ValueKind distinguishes count mutations (gated) from reference-stock
// mutations (never gated, propagated to the catalog).
type ValueKind string

const (
	KindCount ValueKind = "count"
	KindStock ValueKind = "stock"
)

// PendingConfirmation is the transient state between the gate deferring a
// change and the user accepting or cancelling it. Never persisted.
type PendingConfirmation struct {
	Barcode    string    `json:"barcode"`
	Kind       ValueKind `json:"kind"`
	FinalValue int64     `json:"finalValue"`
}
