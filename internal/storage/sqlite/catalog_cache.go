package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"

	"recuento/internal/domain/catalog"
)

// CatalogCache is the local replica of the remote catalog, replaced
// wholesale on every successful synchronization.
type CatalogCache struct {
	db *DB
}

// NewCatalogCache creates the catalog cache repository.
func NewCatalogCache(db *DB) *CatalogCache {
	return &CatalogCache{db: db}
}

type catalogRow struct {
	Barcode        string  `db:"barcode"`
	Description    string  `db:"description"`
	Provider       string  `db:"provider"`
	ReferenceStock int64   `db:"reference_stock"`
	Expiration     *string `db:"expiration"`
}

// ReplaceAll deletes the user's cached entries and inserts the given set in
// one transaction. Replace, not merge: stale local-only entries are purged.
func (c *CatalogCache) ReplaceAll(ctx context.Context, userID string, entries []catalog.Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	delSQL, delArgs, err := builder().Delete("catalog_cache").Where("user_id = ?", userID).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, delSQL, delArgs...); err != nil {
		return fmt.Errorf("delete catalog cache: %w", err)
	}

	if len(entries) > 0 {
		q := builder().Insert("catalog_cache").
			Columns("user_id", "barcode", "description", "provider", "reference_stock", "expiration")
		for _, e := range entries {
			var exp *string
			if e.Expiration != nil {
				s := e.Expiration.UTC().Format(time.RFC3339)
				exp = &s
			}
			q = q.Values(userID, e.Barcode, e.Description, e.Provider, e.ReferenceStock, exp)
		}
		insSQL, insArgs, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insSQL, insArgs...); err != nil {
			return fmt.Errorf("insert catalog cache: %w", err)
		}
	}

	return tx.Commit()
}

// GetAll returns the user's cached entries.
func (c *CatalogCache) GetAll(ctx context.Context, userID string) ([]catalog.Entry, error) {
	sqlStr, args, err := builder().
		Select("barcode", "description", "provider", "reference_stock", "expiration").
		From("catalog_cache").
		Where("user_id = ?", userID).
		OrderBy("barcode").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []catalogRow
	if err := sqlscan.Select(ctx, c.db.DB, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("select catalog cache: %w", err)
	}

	entries := make([]catalog.Entry, 0, len(rows))
	for _, r := range rows {
		e := catalog.Entry{
			Barcode:        r.Barcode,
			Description:    r.Description,
			Provider:       r.Provider,
			ReferenceStock: r.ReferenceStock,
		}
		if r.Expiration != nil && *r.Expiration != "" {
			if t, err := time.Parse(time.RFC3339, *r.Expiration); err == nil {
				e.Expiration = &t
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// compile-time interface check
var _ catalog.CacheRepository = (*CatalogCache)(nil)
