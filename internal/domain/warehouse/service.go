package warehouse

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"recuento/internal/core/apperror"
	"recuento/internal/remote"
	"recuento/pkg/logger"
)

// SettingsRepository persists the current warehouse per user locally.
type SettingsRepository interface {
	CurrentWarehouse(ctx context.Context, userID string) (string, error)
	SetCurrentWarehouse(ctx context.Context, userID, warehouseID string) error
}

// Service manages the warehouse set and the current-warehouse setting.
type Service struct {
	remote   remote.Store
	settings SettingsRepository
	log      *logger.Logger
}

// NewService creates a warehouse service.
func NewService(store remote.Store, settings SettingsRepository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		remote:   store,
		settings: settings,
		log:      log.WithComponent("warehouse"),
	}
}

// List returns the user's warehouses, seeding the fixed default set on
// first use. The first seeded warehouse becomes current.
func (s *Service) List(ctx context.Context, userID string) ([]Warehouse, error) {
	docs, err := s.remote.Warehouses(ctx, userID)
	if err != nil {
		return nil, apperror.NewRemoteUnavailable("warehouse list", err)
	}

	if len(docs) == 0 {
		return s.seed(ctx, userID)
	}

	out := make([]Warehouse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, FromDocument(doc))
	}
	return out, nil
}

// Create adds a warehouse with a generated ID.
func (s *Service) Create(ctx context.Context, userID, name string) (Warehouse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Warehouse{}, apperror.NewInvalidInput("name", "warehouse name must not be empty")
	}

	wh := Warehouse{ID: uuid.New().String(), Name: name}
	if err := s.remote.PutWarehouse(ctx, userID, wh.ID, wh.Fields()); err != nil {
		return Warehouse{}, apperror.NewRemoteUnavailable("warehouse create", err)
	}
	return wh, nil
}

// Delete removes a warehouse. The counted-line snapshot for the pair is kept
// in local storage; only the warehouse entry goes away. If the deleted
// warehouse was current, the setting is cleared.
func (s *Service) Delete(ctx context.Context, userID, warehouseID string) error {
	if err := s.remote.DeleteWarehouse(ctx, userID, warehouseID); err != nil {
		return apperror.NewRemoteUnavailable("warehouse delete", err)
	}

	current, err := s.settings.CurrentWarehouse(ctx, userID)
	if err == nil && current == warehouseID {
		if err := s.settings.SetCurrentWarehouse(ctx, userID, ""); err != nil {
			s.log.WithContext(ctx).Warnw("failed to clear current warehouse", "error", err)
		}
	}
	return nil
}

// Current returns the user's current warehouse ID, falling back to the
// first listed warehouse when the setting is unset.
func (s *Service) Current(ctx context.Context, userID string) (string, error) {
	current, err := s.settings.CurrentWarehouse(ctx, userID)
	if err != nil {
		return "", apperror.NewStorage("settings read", err)
	}
	if current != "" {
		return current, nil
	}

	list, err := s.List(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", nil
	}
	if err := s.settings.SetCurrentWarehouse(ctx, userID, list[0].ID); err != nil {
		return "", apperror.NewStorage("settings write", err)
	}
	return list[0].ID, nil
}

// SetCurrent switches the user's current warehouse after verifying it exists.
func (s *Service) SetCurrent(ctx context.Context, userID, warehouseID string) error {
	list, err := s.List(ctx, userID)
	if err != nil {
		return err
	}
	found := false
	for _, wh := range list {
		if wh.ID == warehouseID {
			found = true
			break
		}
	}
	if !found {
		return apperror.NewNotFound("warehouse", warehouseID)
	}
	if err := s.settings.SetCurrentWarehouse(ctx, userID, warehouseID); err != nil {
		return apperror.NewStorage("settings write", err)
	}
	return nil
}

func (s *Service) seed(ctx context.Context, userID string) ([]Warehouse, error) {
	out := make([]Warehouse, 0, len(SeedNames))
	for _, name := range SeedNames {
		wh := Warehouse{ID: uuid.New().String(), Name: name}
		if err := s.remote.PutWarehouse(ctx, userID, wh.ID, wh.Fields()); err != nil {
			return nil, apperror.NewRemoteUnavailable("warehouse seed", err)
		}
		out = append(out, wh)
	}

	if err := s.settings.SetCurrentWarehouse(ctx, userID, out[0].ID); err != nil {
		s.log.WithContext(ctx).Warnw("failed to persist seeded current warehouse", "error", err)
	}
	s.log.WithContext(ctx).Infow("seeded default warehouses", "user_id", userID, "count", len(out))
	return out, nil
}
