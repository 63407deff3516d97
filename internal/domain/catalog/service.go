package catalog

import (
	"context"
	"strings"
	"sync"

	"recuento/internal/core/apperror"
	"recuento/internal/remote"
	"recuento/pkg/logger"
)

// Source identifies where a synchronization got its data from.
type Source string

const (
	SourceCloud Source = "cloud"
	SourceLocal Source = "local"
)

// CacheRepository is the local durable cache for catalog entries.
// ReplaceAll has delete-then-insert semantics: stale local-only entries are
// purged, never merged.
type CacheRepository interface {
	ReplaceAll(ctx context.Context, userID string, entries []Entry) error
	GetAll(ctx context.Context, userID string) ([]Entry, error)
}

// Result is the outcome of one synchronization.
type Result struct {
	Entries []Entry
	Source  Source

	// FirstNotice is set the first time this session resolves to the
	// given source, so the UI shows "synced from cloud" or "loaded from
	// local cache (offline)" exactly once.
	FirstNotice bool
}

// Service owns the in-memory catalog and its synchronization against the
// remote store and the local cache.
type Service struct {
	remote remote.Store
	cache  CacheRepository
	log    *logger.Logger

	mu      sync.RWMutex
	entries []Entry

	noticeMu sync.Mutex
	noticed  map[string]Source // userID -> last announced source
}

// NewService creates a catalog service.
func NewService(store remote.Store, cache CacheRepository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		remote:  store,
		cache:   cache,
		log:     log.WithComponent("catalog"),
		noticed: make(map[string]Source),
	}
}

// Synchronize pulls the full catalog from the remote store, replaces the
// local cache wholesale and publishes a sorted in-memory copy. On remote
// failure the existing local cache is published instead, untouched.
// Idempotent: two calls against an unchanged remote yield identical cache
// contents and identical published output.
func (s *Service) Synchronize(ctx context.Context, userID string) (Result, error) {
	docs, err := s.remote.Catalog(ctx, userID)
	if err != nil {
		s.log.WithContext(ctx).Warnw("catalog fetch failed, falling back to local cache",
			"user_id", userID,
			"error", err,
		)
		cached, cerr := s.cache.GetAll(ctx, userID)
		if cerr != nil {
			return Result{}, apperror.NewStorage("catalog cache read", cerr)
		}
		Sort(cached)
		s.publish(cached)
		return Result{
			Entries:     cached,
			Source:      SourceLocal,
			FirstNotice: s.markNoticed(userID, SourceLocal),
		}, nil
	}

	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		e := FromDocument(doc)
		e.Normalize()
		if e.Barcode == "" {
			continue
		}
		entries = append(entries, e)
	}

	if err := s.cache.ReplaceAll(ctx, userID, entries); err != nil {
		// The fetched set is still good; serve it and keep the stale cache.
		s.log.WithContext(ctx).Errorw("catalog cache replace failed",
			"user_id", userID,
			"error", err,
		)
	}

	Sort(entries)
	s.publish(entries)
	s.log.WithContext(ctx).Infow("catalog synchronized",
		"user_id", userID,
		"entries", len(entries),
	)
	return Result{
		Entries:     entries,
		Source:      SourceCloud,
		FirstNotice: s.markNoticed(userID, SourceCloud),
	}, nil
}

// EditEntry validates and writes one catalog entry through to the remote
// store, then resynchronizes so cache and memory pick up the change.
func (s *Service) EditEntry(ctx context.Context, userID string, entry Entry) error {
	entry.Normalize()
	if entry.Barcode == "" {
		return apperror.NewInvalidInput("barcode", "barcode must not be empty")
	}
	if entry.ReferenceStock < 0 {
		return apperror.NewInvalidInput("referenceStock", "reference stock must not be negative")
	}

	if err := s.remote.PutCatalogEntry(ctx, userID, entry.Barcode, entry.Fields()); err != nil {
		return apperror.NewRemoteUnavailable("catalog write", err)
	}

	if _, err := s.Synchronize(ctx, userID); err != nil {
		return err
	}
	return nil
}

// Entries returns a copy of the published in-memory catalog.
func (s *Service) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Lookup resolves a barcode against the in-memory catalog.
func (s *Service) Lookup(barcode string) (Entry, bool) {
	barcode = strings.TrimSpace(barcode)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Barcode == barcode {
			return e, true
		}
	}
	return Entry{}, false
}

// ResetNotices clears the one-per-session source announcements for a user.
// Called on sign-out so the next session announces its source again.
func (s *Service) ResetNotices(userID string) {
	s.noticeMu.Lock()
	defer s.noticeMu.Unlock()
	delete(s.noticed, userID)
}

func (s *Service) publish(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
}

func (s *Service) markNoticed(userID string, src Source) bool {
	s.noticeMu.Lock()
	defer s.noticeMu.Unlock()
	if s.noticed[userID] == src {
		return false
	}
	s.noticed[userID] = src
	return true
}
