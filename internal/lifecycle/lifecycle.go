// Package lifecycle mediates the two transitions a bill can undergo:
// retiring it once settled, and handing a snapshot to the print
// workflow.
//
// The two are deliberately decoupled: retirement is persisted and
// authoritative, printing is ephemeral and local. A failed print never
// touches persisted status, and a failed retirement never blocks
// printing.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firefroast/billboard/internal/metrics"
	"github.com/firefroast/billboard/internal/models"
	"github.com/firefroast/billboard/internal/printing"
	"github.com/firefroast/billboard/internal/store"
)

// TransitionError reports a retire request the store failed to persist.
// The active view is left untouched; the bill stays visible until a
// future snapshot reflects the true state.
type TransitionError struct {
	BillID string
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("failed to retire bill %q: %v", e.BillID, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Controller exposes the bill lifecycle operations.
type Controller struct {
	store  store.RecordStore
	prints *printing.Manager
}

// New creates a lifecycle controller.
func New(st store.RecordStore, prints *printing.Manager) *Controller {
	return &Controller{store: st, prints: prints}
}

// Retire asks the store to set status=done for the given bill.
//
// The transition is best-effort idempotent: retiring a bill that is
// already done, or an id the store no longer has, is not an error. Real
// persistence failures come back as a *TransitionError and the caller
// should leave the bill visible; the next authoritative snapshot will
// tell the truth either way.
func (c *Controller) Retire(ctx context.Context, billID string) error {
	err := c.store.UpdateField(ctx, store.BillsCollection, billID, "status", string(models.StatusDone))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("Retire on unknown bill", "bill_id", billID)
			metrics.RetireAttempts.WithLabelValues(metrics.OutcomeNotFound).Inc()
			return nil
		}
		metrics.RetireAttempts.WithLabelValues(metrics.OutcomeError).Inc()
		return &TransitionError{BillID: billID, Err: err}
	}

	metrics.RetireAttempts.WithLabelValues(metrics.OutcomeOK).Inc()
	slog.Info("Bill retired", "bill_id", billID)
	return nil
}

// RequestPrint hands a snapshot of the bill to the print workflow. The
// snapshot is a deep copy: whatever happens to the source bill
// afterwards, the print never sees it change mid-flight.
//
// Returns printing.ErrBusy when a workflow is already running.
func (c *Controller) RequestPrint(ctx context.Context, bill models.Bill) (*printing.Job, error) {
	snapshot := bill.Clone()
	return c.prints.Start(ctx, snapshot, func(job *printing.Job) {
		if err := job.Err(); err != nil {
			slog.Warn("Print workflow ended with error", "job_id", job.ID, "bill_id", job.Bill.ID, "error", err)
			return
		}
		slog.Debug("Print workflow done, snapshot released", "job_id", job.ID, "bill_id", job.Bill.ID)
	})
}
