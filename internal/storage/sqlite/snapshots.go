package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"recuento/internal/core/apperror"
	"recuento/internal/domain/counting"
	"recuento/pkg/logger"
)

// snapshotVersion guards the payload shape; a mismatch means the entry
// predates the current layout and gets discarded like any corrupt payload.
const snapshotVersion = 1

// SnapshotStore persists one zstd-compressed counted-list snapshot per
// (user, warehouse) key, used for instant paint on bind and as the offline
// fallback. A payload failing the shape check is discarded and replaced by
// an empty list; corruption is logged, never fatal.
type SnapshotStore struct {
	db  *DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	log *logger.Logger
}

type snapshotPayload struct {
	Version int             `json:"version"`
	Lines   []counting.Line `json:"lines"`
}

// NewSnapshotStore creates the snapshot store.
func NewSnapshotStore(db *DB, log *logger.Logger) (*SnapshotStore, error) {
	if log == nil {
		log = logger.Default()
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &SnapshotStore{
		db:  db,
		enc: enc,
		dec: dec,
		log: log.WithComponent("snapshots"),
	}, nil
}

// ReadSnapshot returns the stored list for key, or an empty list when the
// key is missing or its payload is corrupt.
func (s *SnapshotStore) ReadSnapshot(ctx context.Context, key string) ([]counting.Line, error) {
	sqlStr, args, err := builder().
		Select("payload").
		From("snapshots").
		Where("key = ?", key).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var payload []byte
	row := s.db.QueryRowContext(ctx, sqlStr, args...)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.NewStorage("snapshot read", err)
	}

	lines, err := s.decode(payload)
	if err != nil {
		s.log.Warnw("discarding corrupt snapshot",
			"key", key,
			"error", apperror.NewCorruptSnapshot(key, err),
		)
		s.discard(ctx, key)
		return nil, nil
	}
	return lines, nil
}

// WriteSnapshot replaces the stored list for key. Full replace, not a patch.
func (s *SnapshotStore) WriteSnapshot(ctx context.Context, key string, lines []counting.Line) error {
	raw, err := json.Marshal(snapshotPayload{Version: snapshotVersion, Lines: lines})
	if err != nil {
		return apperror.NewStorage("snapshot encode", err)
	}
	payload := s.enc.EncodeAll(raw, nil)

	sqlStr, args, err := builder().
		Insert("snapshots").
		Columns("key", "payload", "updated_at").
		Values(key, payload, time.Now().UTC().Format(time.RFC3339)).
		Suffix("ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return apperror.NewStorage("snapshot write", err)
	}
	return nil
}

func (s *SnapshotStore) decode(payload []byte) ([]counting.Line, error) {
	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	var snap snapshotPayload
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	for _, l := range snap.Lines {
		if l.Barcode == "" {
			return nil, fmt.Errorf("line without barcode")
		}
		if l.Count < 0 {
			return nil, fmt.Errorf("negative count for %s", l.Barcode)
		}
	}
	return snap.Lines, nil
}

func (s *SnapshotStore) discard(ctx context.Context, key string) {
	sqlStr, args, err := builder().Delete("snapshots").Where("key = ?", key).ToSql()
	if err != nil {
		return
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		s.log.Warnw("failed to remove corrupt snapshot", "key", key, "error", err)
	}
}

// compile-time interface check
var _ counting.SnapshotStore = (*SnapshotStore)(nil)
