// Package remotetest provides an in-memory remote.Store for tests.
// Change notifications fire synchronously inside Write/Delete/Push calls,
// so tests observe replication deterministically without sleeps.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"recuento/internal/remote"
)

// Store is a fake remote.Store. Error fields, when set, make the matching
// operation fail; subscriptions can be failed explicitly to simulate a
// broken feed.
type Store struct {
	mu sync.Mutex

	catalogs   map[string][]remote.Document          // userID -> docs
	lines      map[string]map[string]remote.Document // pair key -> barcode -> doc
	warehouses map[string]map[string]remote.Document // userID -> id -> doc
	subs       map[string][]*subscription

	CatalogErr   error
	WriteErr     error
	DeleteErr    error
	SubscribeErr error
	WarehouseErr error

	CatalogCalls int
	WriteCalls   int
}

type subscription struct {
	onChange func([]remote.Document)
	onError  func(error)
	active   bool
}

// New creates an empty fake store.
func New() *Store {
	return &Store{
		catalogs:   make(map[string][]remote.Document),
		lines:      make(map[string]map[string]remote.Document),
		warehouses: make(map[string]map[string]remote.Document),
		subs:       make(map[string][]*subscription),
	}
}

func pairKey(userID, warehouseID string) string {
	return fmt.Sprintf("%s/%s", userID, warehouseID)
}

// SetCatalog seeds the catalog for a user.
func (s *Store) SetCatalog(userID string, docs []remote.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogs[userID] = docs
}

// Catalog implements remote.Store.
func (s *Store) Catalog(_ context.Context, userID string) ([]remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CatalogCalls++
	if s.CatalogErr != nil {
		return nil, s.CatalogErr
	}
	return append([]remote.Document(nil), s.catalogs[userID]...), nil
}

// PutCatalogEntry implements remote.Store.
func (s *Store) PutCatalogEntry(_ context.Context, userID, barcode string, fields remote.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	docs := s.catalogs[userID]
	for i, d := range docs {
		if d.String("barcode") == barcode {
			docs[i] = fields
			return nil
		}
	}
	s.catalogs[userID] = append(docs, fields)
	return nil
}

// Subscribe implements remote.Store. The current document set is delivered
// synchronously before Subscribe returns.
func (s *Store) Subscribe(_ context.Context, userID, warehouseID string, onChange func([]remote.Document), onError func(error)) (remote.CancelFunc, error) {
	s.mu.Lock()
	if s.SubscribeErr != nil {
		err := s.SubscribeErr
		s.mu.Unlock()
		return nil, err
	}
	key := pairKey(userID, warehouseID)
	sub := &subscription{onChange: onChange, onError: onError, active: true}
	s.subs[key] = append(s.subs[key], sub)
	docs := s.snapshotLocked(key)
	s.mu.Unlock()

	onChange(docs)
	return func() {
		s.mu.Lock()
		sub.active = false
		s.mu.Unlock()
	}, nil
}

// Write implements remote.Store and notifies active subscribers.
func (s *Store) Write(_ context.Context, userID, warehouseID, barcode string, fields remote.Document, merge bool) error {
	s.mu.Lock()
	if s.WriteErr != nil {
		err := s.WriteErr
		s.mu.Unlock()
		return err
	}
	s.WriteCalls++
	key := pairKey(userID, warehouseID)
	if s.lines[key] == nil {
		s.lines[key] = make(map[string]remote.Document)
	}
	if merge {
		existing, ok := s.lines[key][barcode]
		if !ok {
			existing = remote.Document{}
		}
		for k, v := range fields {
			existing[k] = v
		}
		s.lines[key][barcode] = existing
	} else {
		s.lines[key][barcode] = fields
	}
	s.mu.Unlock()

	s.notify(key)
	return nil
}

// Delete implements remote.Store and notifies active subscribers.
func (s *Store) Delete(_ context.Context, userID, warehouseID, barcode string) error {
	s.mu.Lock()
	if s.DeleteErr != nil {
		err := s.DeleteErr
		s.mu.Unlock()
		return err
	}
	key := pairKey(userID, warehouseID)
	delete(s.lines[key], barcode)
	s.mu.Unlock()

	s.notify(key)
	return nil
}

// Warehouses implements remote.Store.
func (s *Store) Warehouses(_ context.Context, userID string) ([]remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WarehouseErr != nil {
		return nil, s.WarehouseErr
	}
	out := make([]remote.Document, 0, len(s.warehouses[userID]))
	for _, d := range s.warehouses[userID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String("name") < out[j].String("name") })
	return out, nil
}

// PutWarehouse implements remote.Store.
func (s *Store) PutWarehouse(_ context.Context, userID, warehouseID string, fields remote.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WarehouseErr != nil {
		return s.WarehouseErr
	}
	if s.warehouses[userID] == nil {
		s.warehouses[userID] = make(map[string]remote.Document)
	}
	s.warehouses[userID][warehouseID] = fields
	return nil
}

// DeleteWarehouse implements remote.Store.
func (s *Store) DeleteWarehouse(_ context.Context, userID, warehouseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WarehouseErr != nil {
		return s.WarehouseErr
	}
	delete(s.warehouses[userID], warehouseID)
	return nil
}

// Push replaces the stored set for a pair and notifies subscribers,
// simulating a change originating elsewhere.
func (s *Store) Push(userID, warehouseID string, docs []remote.Document) {
	key := pairKey(userID, warehouseID)
	s.mu.Lock()
	s.lines[key] = make(map[string]remote.Document, len(docs))
	for _, d := range docs {
		s.lines[key][d.String("barcode")] = d
	}
	s.mu.Unlock()

	s.notify(key)
}

// FailSubscriptions delivers err to every active subscriber of the pair.
func (s *Store) FailSubscriptions(userID, warehouseID string, err error) {
	key := pairKey(userID, warehouseID)
	s.mu.Lock()
	var targets []*subscription
	for _, sub := range s.subs[key] {
		if sub.active {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.onError(err)
	}
}

// Lines returns the stored documents for a pair, sorted by barcode.
func (s *Store) Lines(userID, warehouseID string) []remote.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(pairKey(userID, warehouseID))
}

// ActiveSubscriptions counts live subscribers for a pair.
func (s *Store) ActiveSubscriptions(userID, warehouseID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs[pairKey(userID, warehouseID)] {
		if sub.active {
			n++
		}
	}
	return n
}

func (s *Store) snapshotLocked(key string) []remote.Document {
	docs := make([]remote.Document, 0, len(s.lines[key]))
	for _, d := range s.lines[key] {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].String("barcode") < docs[j].String("barcode") })
	return docs
}

func (s *Store) notify(key string) {
	s.mu.Lock()
	docs := s.snapshotLocked(key)
	var targets []*subscription
	for _, sub := range s.subs[key] {
		if sub.active {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.onChange(docs)
	}
}

// compile-time interface check
var _ remote.Store = (*Store)(nil)
