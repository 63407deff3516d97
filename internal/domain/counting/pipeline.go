package counting

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"recuento/internal/core/apperror"
)

// ScanStatus classifies the outcome of one scan event.
type ScanStatus string

const (
	// ScanIncremented: the barcode already had a line; count went up.
	ScanIncremented ScanStatus = "incremented"

	// ScanCreated: a new line was created from a catalog entry.
	ScanCreated ScanStatus = "created"

	// ScanCreatedUnknown: the barcode is not in the catalog; a
	// placeholder line was created and a warning surfaced.
	ScanCreatedUnknown ScanStatus = "created_unknown"

	// ScanSuppressed: rejected as a duplicate within the debounce window.
	ScanSuppressed ScanStatus = "suppressed"

	// ScanPending: the increment crossed the stock boundary and awaits
	// confirmation; nothing was written.
	ScanPending ScanStatus = "pending_confirmation"
)

// ScanResult is the definite outcome the UI receives for every scan.
type ScanResult struct {
	Status     ScanStatus           `json:"status"`
	Barcode    string               `json:"barcode"`
	FinalValue int64                `json:"finalValue,omitempty"`
	Warning    string               `json:"warning,omitempty"`
	Pending    *PendingConfirmation `json:"pending,omitempty"`
}

// Scan ingests one barcode from keyboard or camera. The pipeline is
// state-free: normalize, suppress duplicates, resolve against the catalog,
// then route to increment-existing or create-new through the remote store.
func (s *Session) Scan(ctx context.Context, raw string) (ScanResult, error) {
	ctx, span := tracer.Start(ctx, "counting.scan")
	defer span.End()

	barcode := normalizeBarcode(raw)
	if barcode == "" {
		return ScanResult{}, apperror.NewInvalidInput("barcode", "barcode must not be empty")
	}
	span.SetAttributes(attribute.String("barcode", barcode))

	if !s.suppressor.ShouldAccept(barcode) {
		s.log.WithContext(ctx).Debugw("scan suppressed as duplicate", "barcode", barcode)
		return ScanResult{Status: ScanSuppressed, Barcode: barcode}, nil
	}

	// Existing line: increment through the gate.
	if line, ok := s.replicator.Find(barcode); ok {
		outcome, err := s.gate.Request(ctx, KindCount, barcode, line.Count, 1, true, line.ReferenceStock, s.applyCount(barcode))
		if err != nil {
			return ScanResult{}, err
		}
		if outcome.Pending != nil {
			return ScanResult{
				Status:     ScanPending,
				Barcode:    barcode,
				FinalValue: outcome.FinalValue,
				Pending:    outcome.Pending,
			}, nil
		}
		return ScanResult{
			Status:     ScanIncremented,
			Barcode:    barcode,
			FinalValue: outcome.FinalValue,
		}, nil
	}

	// New line. Creation has no confirmation path: the original value is
	// zero by definition, so the boundary rule cannot fire on count 1.
	now := s.clk.Now()
	if entry, ok := s.catalog.Lookup(barcode); ok {
		line := Line{
			WarehouseID:    s.warehouseID,
			Barcode:        entry.Barcode,
			Description:    entry.Description,
			Provider:       entry.Provider,
			ReferenceStock: entry.ReferenceStock,
			Count:          1,
			UpdatedAt:      now,
		}
		if err := s.remote.Write(ctx, s.userID, s.warehouseID, barcode, line.Fields(), false); err != nil {
			return ScanResult{}, apperror.NewRemoteUnavailable("line create", err)
		}
		return ScanResult{Status: ScanCreated, Barcode: barcode, FinalValue: 1}, nil
	}

	line := PlaceholderLine(s.warehouseID, barcode, now)
	if err := s.remote.Write(ctx, s.userID, s.warehouseID, barcode, line.Fields(), false); err != nil {
		return ScanResult{}, apperror.NewRemoteUnavailable("line create", err)
	}
	s.log.WithContext(ctx).Warnw("scanned barcode not in catalog", "barcode", barcode)
	return ScanResult{
		Status:     ScanCreatedUnknown,
		Barcode:    barcode,
		FinalValue: 1,
		Warning:    fmt.Sprintf("El producto %s no está en el catálogo", barcode),
	}, nil
}

// normalizeBarcode strips the trailing newline a hardware scanner appends
// and any surrounding whitespace.
func normalizeBarcode(raw string) string {
	raw = strings.TrimRight(raw, "\r\n")
	return strings.TrimSpace(raw)
}
