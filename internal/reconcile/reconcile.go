// Package reconcile maintains the derived "current active bills" view
// over the continuously-updating record store.
//
// On every snapshot the reconciler maps each record through the
// normalizer, drops records that fail normalization, filters out retired
// bills, and publishes the resulting ordered list wholesale. Readers
// always see a complete view, never a partially-updated one.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/firefroast/billboard/internal/metrics"
	"github.com/firefroast/billboard/internal/models"
	"github.com/firefroast/billboard/internal/normalize"
	"github.com/firefroast/billboard/internal/store"
)

// Reconciler owns the active-bill view. The view is replaced atomically
// on every publish and is never mutated in place.
type Reconciler struct {
	store      store.RecordStore
	collection string

	view atomic.Pointer[[]models.Bill]

	mu       sync.Mutex
	watchers map[chan []models.Bill]struct{}
}

// New creates a reconciler over the given store. The view is empty until
// Run has received the first snapshot.
func New(st store.RecordStore) *Reconciler {
	r := &Reconciler{
		store:      st,
		collection: store.BillsCollection,
		watchers:   make(map[chan []models.Bill]struct{}),
	}
	empty := []models.Bill{}
	r.view.Store(&empty)
	return r
}

// Run subscribes to the store and blocks until the context is cancelled
// or the subscription itself fails. A stream-level fault is returned to
// the caller as-is; per-record malformations never end up here.
func (r *Reconciler) Run(ctx context.Context) error {
	faults := make(chan error, 1)

	cancel, err := r.store.Subscribe(ctx, r.collection,
		func(snap store.Snapshot) { r.apply(snap) },
		func(err error) {
			select {
			case faults <- err:
			default:
			}
		},
	)
	if err != nil {
		return err
	}
	defer cancel()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-faults:
		return err
	}
}

// ActiveBills returns the current view. The returned slice is a copy;
// callers may hold or mutate it freely.
func (r *Reconciler) ActiveBills() []models.Bill {
	view := *r.view.Load()
	out := make([]models.Bill, len(view))
	copy(out, view)
	return out
}

// Bill looks up one bill in the current view by id.
func (r *Reconciler) Bill(id string) (models.Bill, bool) {
	for _, b := range *r.view.Load() {
		if b.ID == id {
			return b, true
		}
	}
	return models.Bill{}, false
}

// Watch returns a channel that receives the view after every publish.
// Delivery is latest-wins: a slow consumer only ever misses intermediate
// views, never the newest one. The channel is closed when ctx ends.
func (r *Reconciler) Watch(ctx context.Context) <-chan []models.Bill {
	ch := make(chan []models.Bill, 1)

	r.mu.Lock()
	r.watchers[ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Delete and close under the same lock the publisher sends
		// under, so a publish can never hit a closed channel.
		r.mu.Lock()
		delete(r.watchers, ch)
		close(ch)
		r.mu.Unlock()
	}()

	return ch
}

// apply maps one snapshot into a fresh view and publishes it. Mapping is
// applied in snapshot order; malformed records are logged, counted, and
// skipped without disturbing the rest of the batch.
func (r *Reconciler) apply(snap store.Snapshot) {
	next := make([]models.Bill, 0, len(snap))
	for _, rec := range snap {
		bill, err := normalize.Normalize(rec)
		if err != nil {
			slog.Warn("skipping malformed bill record", "record_id", rec.ID, "error", err)
			metrics.MalformedRecords.Inc()
			continue
		}
		if !bill.Active() {
			continue
		}
		next = append(next, bill)
	}

	r.view.Store(&next)
	metrics.SnapshotsApplied.Inc()
	metrics.ActiveBills.Set(float64(len(next)))

	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.watchers {
		view := make([]models.Bill, len(next))
		copy(view, next)
		// Replace a stale pending view rather than blocking on it.
		select {
		case ch <- view:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- view:
			default:
			}
		}
	}
}
