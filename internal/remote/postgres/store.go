// Package postgres implements the remote store on PostgreSQL, with change
// feeds built on LISTEN/NOTIFY. Every mutation of a counted line fires a
// NOTIFY carrying the (user, warehouse) pair; subscribers re-read the pair's
// rows and deliver the full set, so callers always see a whole list.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"recuento/internal/core/apperror"
	"recuento/internal/remote"
	"recuento/pkg/logger"
)

const notifyChannel = "counted_lines_changed"

// Store is the PostgreSQL-backed remote store.
type Store struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

type subscription struct {
	ctx      context.Context
	cancel   context.CancelFunc
	key      string
	onChange func([]remote.Document)
	onError  func(error)
	done     chan struct{}
}

// New connects to PostgreSQL and prepares the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperror.NewRemoteUnavailable("ping", err)
	}

	s := &Store{pool: pool, subs: make(map[*subscription]struct{})}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool and tears down open subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	for sub := range s.subs {
		sub.cancel()
	}
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS counted_lines (
			user_id         TEXT NOT NULL,
			warehouse_id    TEXT NOT NULL,
			barcode         TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			provider        TEXT NOT NULL DEFAULT '',
			reference_stock BIGINT NOT NULL DEFAULT 0,
			count           BIGINT NOT NULL DEFAULT 0,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, warehouse_id, barcode)
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_entries (
			user_id     TEXT NOT NULL,
			barcode     TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			provider    TEXT NOT NULL DEFAULT '',
			stock       BIGINT NOT NULL DEFAULT 0,
			expiration  TIMESTAMPTZ,
			PRIMARY KEY (user_id, barcode)
		)`,
		`CREATE TABLE IF NOT EXISTS warehouses (
			user_id TEXT NOT NULL,
			id      TEXT NOT NULL,
			name    TEXT NOT NULL,
			PRIMARY KEY (user_id, id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func pairKey(userID, warehouseID string) string {
	return userID + "/" + warehouseID
}

// --- Counted lines ---

type lineRow struct {
	Barcode        string    `db:"barcode"`
	Description    string    `db:"description"`
	Provider       string    `db:"provider"`
	ReferenceStock int64     `db:"reference_stock"`
	Count          int64     `db:"count"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (s *Store) readLines(ctx context.Context, userID, warehouseID string) ([]remote.Document, error) {
	sqlStr, args, err := builder().
		Select("barcode", "description", "provider", "reference_stock", "count", "updated_at").
		From("counted_lines").
		Where(squirrel.Eq{"user_id": userID, "warehouse_id": warehouseID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []lineRow
	if err := pgxscan.Select(ctx, s.pool, &rows, sqlStr, args...); err != nil {
		return nil, apperror.NewRemoteUnavailable("read lines", err)
	}

	docs := make([]remote.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, remote.Document{
			"barcode":     r.Barcode,
			"description": r.Description,
			"provider":    r.Provider,
			"stock":       r.ReferenceStock,
			"count":       r.Count,
			"updated_at":  r.UpdatedAt,
		})
	}
	return docs, nil
}

// Subscribe opens a LISTEN-backed change feed for one (user, warehouse)
// pair. The initial state is delivered before Subscribe returns.
func (s *Store) Subscribe(ctx context.Context, userID, warehouseID string, onChange func([]remote.Document), onError func(error)) (remote.CancelFunc, error) {
	initial, err := s.readLines(ctx, userID, warehouseID)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		ctx:      subCtx,
		cancel:   cancel,
		key:      pairKey(userID, warehouseID),
		onChange: onChange,
		onError:  onError,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go s.listenLoop(sub, userID, warehouseID)

	onChange(initial)

	return func() {
		cancel()
		<-sub.done
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}, nil
}

// listenLoop holds a dedicated connection on LISTEN and re-reads the pair's
// rows on every matching notification. A broken connection is reported
// through onError; reconnection is the caller's decision.
func (s *Store) listenLoop(sub *subscription, userID, warehouseID string) {
	defer close(sub.done)

	conn, err := s.pool.Acquire(sub.ctx)
	if err != nil {
		if sub.ctx.Err() == nil {
			sub.onError(apperror.NewRemoteUnavailable("acquire listen connection", err))
		}
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(sub.ctx, "LISTEN "+notifyChannel); err != nil {
		if sub.ctx.Err() == nil {
			sub.onError(apperror.NewRemoteUnavailable("listen", err))
		}
		return
	}

	logger.Debug(sub.ctx, "listening for counted line changes", "pair", sub.key)

	for {
		select {
		case <-sub.ctx.Done():
			return
		default:
		}

		// Timeout keeps shutdown responsive while the feed is quiet.
		waitCtx, cancel := context.WithTimeout(sub.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if sub.ctx.Err() != nil {
				return
			}
			if waitCtx.Err() == context.DeadlineExceeded {
				continue
			}
			sub.onError(apperror.NewRemoteUnavailable("wait for notification", err))
			return
		}

		if notification.Payload != sub.key {
			continue
		}

		docs, err := s.readLines(sub.ctx, userID, warehouseID)
		if err != nil {
			if sub.ctx.Err() != nil {
				return
			}
			sub.onError(err)
			return
		}
		sub.onChange(docs)
	}
}

func (s *Store) notify(ctx context.Context, userID, warehouseID string) error {
	_, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", notifyChannel, pairKey(userID, warehouseID))
	if err != nil {
		return apperror.NewRemoteUnavailable("notify", err)
	}
	return nil
}

// Write creates or updates one counted-line document.
func (s *Store) Write(ctx context.Context, userID, warehouseID, barcode string, fields remote.Document, merge bool) error {
	cols := map[string]any{}
	if _, ok := fields["description"]; ok {
		cols["description"] = fields.String("description")
	}
	if _, ok := fields["provider"]; ok {
		cols["provider"] = fields.String("provider")
	}
	if _, ok := fields["stock"]; ok {
		cols["reference_stock"] = fields.Int64("stock")
	}
	if _, ok := fields["count"]; ok {
		cols["count"] = fields.Int64("count")
	}
	if _, ok := fields["updated_at"]; ok {
		cols["updated_at"] = fields.Time("updated_at")
	} else {
		cols["updated_at"] = time.Now().UTC()
	}

	var sqlStr string
	var args []any
	var err error
	if merge {
		sqlStr, args, err = builder().
			Update("counted_lines").
			SetMap(cols).
			Where(squirrel.Eq{"user_id": userID, "warehouse_id": warehouseID, "barcode": barcode}).
			ToSql()
	} else {
		insert := map[string]any{
			"user_id":      userID,
			"warehouse_id": warehouseID,
			"barcode":      barcode,
		}
		for k, v := range cols {
			insert[k] = v
		}
		sqlStr, args, err = builder().
			Insert("counted_lines").
			SetMap(insert).
			Suffix(`ON CONFLICT (user_id, warehouse_id, barcode) DO UPDATE SET
				description = excluded.description,
				provider = excluded.provider,
				reference_stock = excluded.reference_stock,
				count = excluded.count,
				updated_at = excluded.updated_at`).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build write: %w", err)
	}

	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return apperror.NewRemoteUnavailable("write line", err)
	}
	return s.notify(ctx, userID, warehouseID)
}

// Delete removes one counted-line document.
func (s *Store) Delete(ctx context.Context, userID, warehouseID, barcode string) error {
	sqlStr, args, err := builder().
		Delete("counted_lines").
		Where(squirrel.Eq{"user_id": userID, "warehouse_id": warehouseID, "barcode": barcode}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return apperror.NewRemoteUnavailable("delete line", err)
	}
	return s.notify(ctx, userID, warehouseID)
}

// --- Catalog ---

type catalogRow struct {
	Barcode     string     `db:"barcode"`
	Description string     `db:"description"`
	Provider    string     `db:"provider"`
	Stock       int64      `db:"stock"`
	Expiration  *time.Time `db:"expiration"`
}

// Catalog fetches the complete catalog for a user.
func (s *Store) Catalog(ctx context.Context, userID string) ([]remote.Document, error) {
	sqlStr, args, err := builder().
		Select("barcode", "description", "provider", "stock", "expiration").
		From("catalog_entries").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []catalogRow
	if err := pgxscan.Select(ctx, s.pool, &rows, sqlStr, args...); err != nil {
		return nil, apperror.NewRemoteUnavailable("read catalog", err)
	}

	docs := make([]remote.Document, 0, len(rows))
	for _, r := range rows {
		doc := remote.Document{
			"barcode":     r.Barcode,
			"description": r.Description,
			"provider":    r.Provider,
			"stock":       r.Stock,
		}
		if r.Expiration != nil {
			doc["expiration"] = *r.Expiration
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// PutCatalogEntry upserts one catalog entry.
func (s *Store) PutCatalogEntry(ctx context.Context, userID, barcode string, fields remote.Document) error {
	var expiration *time.Time
	if t := fields.Time("expiration"); !t.IsZero() {
		expiration = &t
	}

	sqlStr, args, err := builder().
		Insert("catalog_entries").
		Columns("user_id", "barcode", "description", "provider", "stock", "expiration").
		Values(userID, barcode, fields.String("description"), fields.String("provider"), fields.Int64("stock"), expiration).
		Suffix(`ON CONFLICT (user_id, barcode) DO UPDATE SET
			description = excluded.description,
			provider = excluded.provider,
			stock = excluded.stock,
			expiration = excluded.expiration`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return apperror.NewRemoteUnavailable("put catalog entry", err)
	}
	return nil
}

// --- Warehouses ---

type warehouseRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// Warehouses fetches the user's warehouse set.
func (s *Store) Warehouses(ctx context.Context, userID string) ([]remote.Document, error) {
	sqlStr, args, err := builder().
		Select("id", "name").
		From("warehouses").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []warehouseRow
	if err := pgxscan.Select(ctx, s.pool, &rows, sqlStr, args...); err != nil {
		return nil, apperror.NewRemoteUnavailable("read warehouses", err)
	}

	docs := make([]remote.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, remote.Document{"id": r.ID, "name": r.Name})
	}
	return docs, nil
}

// PutWarehouse upserts one warehouse.
func (s *Store) PutWarehouse(ctx context.Context, userID, warehouseID string, fields remote.Document) error {
	sqlStr, args, err := builder().
		Insert("warehouses").
		Columns("user_id", "id", "name").
		Values(userID, warehouseID, fields.String("name")).
		Suffix("ON CONFLICT (user_id, id) DO UPDATE SET name = excluded.name").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return apperror.NewRemoteUnavailable("put warehouse", err)
	}
	return nil
}

// DeleteWarehouse removes one warehouse.
func (s *Store) DeleteWarehouse(ctx context.Context, userID, warehouseID string) error {
	sqlStr, args, err := builder().
		Delete("warehouses").
		Where(squirrel.Eq{"user_id": userID, "id": warehouseID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return apperror.NewRemoteUnavailable("delete warehouse", err)
	}
	return nil
}

// compile-time interface check
var _ remote.Store = (*Store)(nil)
