// Package dto defines request and response bodies for API v1.
package dto

import (
	"time"

	"recuento/internal/domain/catalog"
	"recuento/internal/domain/counting"
)

// --- Requests ---

// LoginRequest carries operator credentials.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// BindRequest selects the warehouse to count against. An empty warehouse ID
// binds the user's current warehouse.
type BindRequest struct {
	WarehouseID string `json:"warehouseId"`
}

// ScanRequest carries one raw barcode from keyboard or camera.
type ScanRequest struct {
	Barcode string `json:"barcode" binding:"required"`
}

// SetValueRequest changes one line's count or reference stock.
type SetValueRequest struct {
	Type  string `json:"type" binding:"required,oneof=count stock"`
	Value int64  `json:"value"`
	IsSum bool   `json:"isSum"`
}

// CreateWarehouseRequest adds one warehouse.
type CreateWarehouseRequest struct {
	Name string `json:"name" binding:"required"`
}

// SetCurrentWarehouseRequest switches the current warehouse.
type SetCurrentWarehouseRequest struct {
	WarehouseID string `json:"warehouseId" binding:"required"`
}

// EditCatalogEntryRequest upserts one catalog entry.
type EditCatalogEntryRequest struct {
	Description    string     `json:"description"`
	Provider       string     `json:"provider"`
	ReferenceStock int64      `json:"referenceStock"`
	Expiration     *time.Time `json:"expiration"`
}

// --- Responses ---

// IDResponse returns a created entity ID.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse is a generic acknowledgement.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// LinesResponse is the replicated counted list plus session health.
type LinesResponse struct {
	WarehouseID string                        `json:"warehouseId"`
	Lines       []counting.Line               `json:"lines"`
	Degraded    bool                          `json:"degraded"`
	Pending     *counting.PendingConfirmation `json:"pending,omitempty"`
}

// CatalogSyncResponse is the outcome of one catalog synchronization.
type CatalogSyncResponse struct {
	Entries     []catalog.Entry `json:"entries"`
	Source      string          `json:"source"`
	FirstNotice bool            `json:"firstNotice"`
}

// CurrentWarehouseResponse reports the current warehouse ID, empty when unset.
type CurrentWarehouseResponse struct {
	WarehouseID string `json:"warehouseId"`
}
