// Package warehouse provides the user-managed warehouse set. Warehouses
// scope which counted list is visible; exactly one is current per user.
package warehouse

import (
	"recuento/internal/remote"
)

// Warehouse is a storage location an operator counts against.
type Warehouse struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// SeedNames is the fixed set created on first use per user.
var SeedNames = []string{"Principal", "Almacén", "Devoluciones"}

// FromDocument decodes a remote warehouse document.
func FromDocument(doc remote.Document) Warehouse {
	return Warehouse{
		ID:   doc.String("id"),
		Name: doc.String("name"),
	}
}

// Fields encodes the warehouse as a remote document.
func (w Warehouse) Fields() remote.Document {
	return remote.Document{
		"id":   w.ID,
		"name": w.Name,
	}
}
