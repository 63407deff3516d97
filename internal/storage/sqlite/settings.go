package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"recuento/internal/domain/warehouse"
)

// SettingsStore persists the small per-user settings entry, currently just
// the current warehouse.
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates the settings repository.
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// CurrentWarehouse returns the user's current warehouse ID, empty when unset.
func (s *SettingsStore) CurrentWarehouse(ctx context.Context, userID string) (string, error) {
	sqlStr, args, err := builder().
		Select("current_warehouse_id").
		From("settings").
		Where("user_id = ?", userID).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select: %w", err)
	}

	var id string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("select settings: %w", err)
	}
	return id, nil
}

// SetCurrentWarehouse stores the user's current warehouse ID.
func (s *SettingsStore) SetCurrentWarehouse(ctx context.Context, userID, warehouseID string) error {
	sqlStr, args, err := builder().
		Insert("settings").
		Columns("user_id", "current_warehouse_id").
		Values(userID, warehouseID).
		Suffix("ON CONFLICT(user_id) DO UPDATE SET current_warehouse_id = excluded.current_warehouse_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// compile-time interface check
var _ warehouse.SettingsRepository = (*SettingsStore)(nil)
