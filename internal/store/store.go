// Package store defines the record store contract the bill board observes.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BillsCollection is the collection the live board subscribes to.
const BillsCollection = "bills"

// ErrNotFound is returned by UpdateField when the record does not exist.
var ErrNotFound = errors.New("record not found")

// RawRecord is one loosely-typed record as delivered by the store.
// Fields may be missing, mistyped, or string-encoded; the normalizer is
// responsible for making sense of them. ID is assigned by the store and
// is the record's authoritative identity.
type RawRecord struct {
	ID     string
	Fields map[string]any
}

// Snapshot is the full current contents of a collection, delivered on
// every change in the order the store keeps its records.
type Snapshot []RawRecord

// SnapshotFunc receives each snapshot. Implementations invoke it
// serially; a handler never races with itself.
type SnapshotFunc func(Snapshot)

// ErrorFunc receives stream-level faults. Once invoked, no further
// snapshots are delivered for that subscription.
type ErrorFunc func(error)

// RecordStore is the external collaborator holding bill records.
//
// Subscribe registers a snapshot listener on a collection and returns a
// cancel function. The cancel function stops all future deliveries, is
// safe to call before the first snapshot arrives, and is idempotent.
// Per-record problems are never a subscription fault; only failures of
// the stream itself reach the ErrorFunc.
//
// UpdateField sets a single field on one record. The board uses it only
// to set status="done", but the contract is general.
type RecordStore interface {
	Subscribe(ctx context.Context, collection string, onSnapshot SnapshotFunc, onError ErrorFunc) (cancel func(), err error)
	UpdateField(ctx context.Context, collection, id, field string, value any) error
}

// Ingestor is the optional write side a store may expose for the
// upstream POS feed. The board itself never creates bills; the ingest
// endpoint exists so a deployment without a direct store writer can
// still receive orders.
type Ingestor interface {
	Ingest(ctx context.Context, collection string, fields map[string]any) (string, error)
}

// SubscriptionError is a stream-level fault from the record store. It is
// surfaced to the subscriber and never swallowed; the store has no
// automatic reconnect policy.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription to %q failed: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Timestamped is the "to calendar instant" capability a store-native
// timestamp value may expose. The normalizer prefers it over string
// parsing.
type Timestamped interface {
	AsTime() time.Time
}
