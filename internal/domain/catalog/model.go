// Package catalog provides the product catalog: the reference list of known
// barcodes with description, provider and reference stock. The authoritative
// copy lives in the remote store; the local cache and the in-memory copy are
// disposable projections rebuilt on every synchronization.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"recuento/internal/remote"
)

// Fallback values applied when the remote catalog carries blank fields.
const (
	UnknownProvider = "Desconocido"
)

// Entry is one catalog record, keyed by barcode.
type Entry struct {
	Barcode        string     `db:"barcode" json:"barcode"`
	Description    string     `db:"description" json:"description"`
	Provider       string     `db:"provider" json:"provider"`
	ReferenceStock int64      `db:"reference_stock" json:"referenceStock"`
	Expiration     *time.Time `db:"expiration" json:"expiration,omitempty"`
}

// Normalize fills blank fields with their explicit fallbacks. A blank
// expiration becomes nil, never an empty string, so "unset" stays
// unambiguous downstream.
func (e *Entry) Normalize() {
	e.Barcode = strings.TrimSpace(e.Barcode)
	if strings.TrimSpace(e.Description) == "" {
		e.Description = fmt.Sprintf("Producto %s", e.Barcode)
	}
	if strings.TrimSpace(e.Provider) == "" {
		e.Provider = UnknownProvider
	}
	if e.ReferenceStock < 0 {
		e.ReferenceStock = 0
	}
	if e.Expiration != nil && e.Expiration.IsZero() {
		e.Expiration = nil
	}
}

// FromDocument decodes a remote catalog document.
func FromDocument(doc remote.Document) Entry {
	e := Entry{
		Barcode:        doc.String("barcode"),
		Description:    doc.String("description"),
		Provider:       doc.String("provider"),
		ReferenceStock: doc.Int64("stock"),
	}
	if t := doc.Time("expiration"); !t.IsZero() {
		e.Expiration = &t
	}
	return e
}

// Fields encodes the entry as a remote document.
func (e Entry) Fields() remote.Document {
	doc := remote.Document{
		"barcode":     e.Barcode,
		"description": e.Description,
		"provider":    e.Provider,
		"stock":       e.ReferenceStock,
	}
	if e.Expiration != nil {
		doc["expiration"] = e.Expiration.UTC().Format(time.RFC3339)
	}
	return doc
}

// Sort orders entries by description, case-insensitive ascending, with the
// barcode as tiebreaker so the order is stable across syncs.
func Sort(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		di := strings.ToLower(entries[i].Description)
		dj := strings.ToLower(entries[j].Description)
		if di != dj {
			return di < dj
		}
		return entries[i].Barcode < entries[j].Barcode
	})
}
