// Package memory provides an in-memory implementation of the
// store.RecordStore interface, used in tests and for local development
// without a database.
package memory

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/firefroast/billboard/internal/store"
)

// Ensure Store implements store.RecordStore
var _ store.RecordStore = (*Store)(nil)

type subscriber struct {
	collection string
	onSnapshot store.SnapshotFunc
	onError    store.ErrorFunc
	cancelled  bool
}

// Store keeps records in memory and pushes a full snapshot to every
// subscriber after each mutation, preserving insertion order the way an
// external document store preserves its collection order.
type Store struct {
	mu      sync.Mutex
	order   map[string]*list.List               // collection -> record ids in insertion order
	records map[string]map[string]*list.Element // collection -> id -> order element
	fields  map[string]map[string]map[string]any

	subs     map[*subscriber]struct{}
	failNext error

	// deliverMu serializes snapshot deliveries so a handler never races
	// with itself, matching the RecordStore contract. Handlers must not
	// mutate the store from inside a snapshot callback.
	deliverMu sync.Mutex
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		order:   make(map[string]*list.List),
		records: make(map[string]map[string]*list.Element),
		fields:  make(map[string]map[string]map[string]any),
		subs:    make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a snapshot listener. The current snapshot is
// delivered immediately, then again after every mutation. Cancel is
// idempotent and safe to call before any snapshot has been delivered.
func (s *Store) Subscribe(ctx context.Context, collection string, onSnapshot store.SnapshotFunc, onError store.ErrorFunc) (func(), error) {
	s.mu.Lock()
	sub := &subscriber{collection: collection, onSnapshot: onSnapshot, onError: onError}
	s.subs[sub] = struct{}{}
	snap := s.snapshotLocked(collection)
	// Take the delivery lock before releasing the state lock: a mutation
	// racing with Subscribe must not deliver its newer snapshot before
	// the initial one.
	s.deliverMu.Lock()
	s.mu.Unlock()
	onSnapshot(snap)
	s.deliverMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			sub.cancelled = true
			delete(s.subs, sub)
			s.mu.Unlock()
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return cancel, nil
}

// UpdateField sets one field on one record and notifies subscribers.
func (s *Store) UpdateField(ctx context.Context, collection, id, field string, value any) error {
	s.mu.Lock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		s.mu.Unlock()
		return err
	}
	recs, ok := s.fields[collection]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, store.ErrNotFound)
	}
	rec, ok := recs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, store.ErrNotFound)
	}
	rec[field] = value
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// Put inserts or replaces a record and notifies subscribers. An empty id
// gets a generated one; the assigned id is returned.
func (s *Store) Put(collection, id string, fields map[string]any) string {
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	if s.order[collection] == nil {
		s.order[collection] = list.New()
		s.records[collection] = make(map[string]*list.Element)
		s.fields[collection] = make(map[string]map[string]any)
	}
	if _, exists := s.records[collection][id]; !exists {
		s.records[collection][id] = s.order[collection].PushBack(id)
	}
	s.fields[collection][id] = cloneFields(fields)
	s.mu.Unlock()

	s.notify(collection)
	return id
}

// Ingest implements store.Ingestor on top of Put.
func (s *Store) Ingest(ctx context.Context, collection string, fields map[string]any) (string, error) {
	return s.Put(collection, "", fields), nil
}

// Delete removes a record and notifies subscribers. Missing records are
// a no-op.
func (s *Store) Delete(collection, id string) {
	s.mu.Lock()
	if el, ok := s.records[collection][id]; ok {
		s.order[collection].Remove(el)
		delete(s.records[collection], id)
		delete(s.fields[collection], id)
	}
	s.mu.Unlock()

	s.notify(collection)
}

// FailNextUpdate makes the next UpdateField call return err. Used in
// tests to exercise transition failures.
func (s *Store) FailNextUpdate(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// Fail delivers a stream-level fault to every subscriber of the
// collection and drops them, the way a broken watch channel would.
func (s *Store) Fail(collection string, err error) {
	s.mu.Lock()
	var failed []*subscriber
	for sub := range s.subs {
		if sub.collection == collection {
			failed = append(failed, sub)
			delete(s.subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range failed {
		if sub.onError != nil {
			sub.onError(&store.SubscriptionError{Collection: collection, Err: err})
		}
	}
}

func (s *Store) notify(collection string) {
	s.mu.Lock()
	snap := s.snapshotLocked(collection)
	var targets []*subscriber
	for sub := range s.subs {
		if sub.collection == collection && !sub.cancelled {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	s.deliverMu.Lock()
	for _, sub := range targets {
		sub.onSnapshot(snap)
	}
	s.deliverMu.Unlock()
}

// snapshotLocked builds a deep copy of the collection, so a subscriber
// mutating any part of its snapshot cannot corrupt the store.
func (s *Store) snapshotLocked(collection string) store.Snapshot {
	order := s.order[collection]
	if order == nil {
		return store.Snapshot{}
	}
	snap := make(store.Snapshot, 0, order.Len())
	for el := order.Front(); el != nil; el = el.Next() {
		id := el.Value.(string)
		snap = append(snap, store.RawRecord{
			ID:     id,
			Fields: cloneFields(s.fields[collection][id]),
		})
	}
	return snap
}

// cloneFields deep-copies a field map. Records hold JSON-shaped data, so
// only maps and slices need recursion; everything else is a scalar.
func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = cloneValue(el)
		}
		return out
	default:
		return v
	}
}
