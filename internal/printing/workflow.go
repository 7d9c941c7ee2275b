// Package printing runs the single-bill print workflow: render a bill
// snapshot, give the output a moment to settle, trigger the platform
// print, and wait for the completion signal.
//
// One workflow runs at a time. A second request while one is active is
// rejected with ErrBusy rather than queued, so a double-tap on the print
// button cannot stack print dialogs.
package printing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/firefroast/billboard/internal/metrics"
	"github.com/firefroast/billboard/internal/models"
)

var (
	// ErrBusy is returned when a print workflow is already active.
	ErrBusy = errors.New("a print workflow is already active")

	// ErrCompletionSignal is returned when the platform never reports
	// print completion within the bounded wait.
	ErrCompletionSignal = errors.New("print completion signal did not arrive")
)

const (
	// defaultSettleDelay lets rendering stabilize before the print
	// trigger fires. Tunable; zero skips the delay entirely.
	defaultSettleDelay = 200 * time.Millisecond

	// defaultCompletionTimeout bounds the wait for the platform's
	// completion signal on platforms that never deliver one.
	defaultCompletionTimeout = 30 * time.Second
)

// Job is one run of the print workflow. Err is set once the job reaches
// a terminal stage.
type Job struct {
	ID   uuid.UUID
	Bill models.Bill

	mu    sync.Mutex
	stage Stage
	err   error
}

// Stage returns the job's current stage.
func (j *Job) Stage() Stage {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stage
}

// Err returns the terminal error, if the job failed.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) transition(target Stage) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.stage.CanTransitionTo(target) {
		return fmt.Errorf("print job %s: cannot transition %s -> %s", j.ID, j.stage, target)
	}
	j.stage = target
	return nil
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	j.stage = StageFailed
	j.err = err
	j.mu.Unlock()
}

// Manager runs print workflows, one at a time.
type Manager struct {
	renderer          Renderer
	printer           Printer
	settleDelay       time.Duration
	completionTimeout time.Duration

	mu     sync.Mutex
	active bool
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithSettleDelay overrides the pause between rendering and the print
// trigger. Zero disables it.
func WithSettleDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.settleDelay = d }
}

// WithCompletionTimeout overrides the bounded wait for the platform
// completion signal.
func WithCompletionTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.completionTimeout = d }
}

// NewManager creates a print workflow manager.
func NewManager(renderer Renderer, printer Printer, opts ...ManagerOption) *Manager {
	m := &Manager{
		renderer:          renderer,
		printer:           printer,
		settleDelay:       defaultSettleDelay,
		completionTimeout: defaultCompletionTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a print workflow for the given bill snapshot. The caller
// must pass a snapshot it will not mutate; lifecycle.Controller clones
// before calling here. onDone runs exactly once when the job reaches a
// terminal stage, successful or not, so the caller can dispose of the
// snapshot.
//
// Returns ErrBusy if a workflow is already active.
func (m *Manager) Start(ctx context.Context, bill models.Bill, onDone func(*Job)) (*Job, error) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		metrics.PrintJobs.WithLabelValues(metrics.OutcomeBusy).Inc()
		return nil, ErrBusy
	}
	m.active = true
	m.mu.Unlock()

	job := &Job{ID: uuid.New(), Bill: bill, stage: StageIdle}

	go m.run(ctx, job, onDone)

	return job, nil
}

func (m *Manager) run(ctx context.Context, job *Job, onDone func(*Job)) {
	defer func() {
		m.mu.Lock()
		m.active = false
		m.mu.Unlock()
		if onDone != nil {
			onDone(job)
		}
	}()

	// The workflow goroutine is the job's only stage writer; its forward
	// transitions cannot be rejected.
	_ = job.transition(StageRendering)
	doc, err := m.renderer.Render(ctx, &job.Bill)
	if err != nil {
		slog.Error("Print render failed", "job_id", job.ID, "bill_id", job.Bill.ID, "error", err)
		metrics.PrintJobs.WithLabelValues(metrics.OutcomeError).Inc()
		job.fail(err)
		return
	}

	// Settle delay: let the rendered output stabilize before the
	// platform print trigger fires.
	if m.settleDelay > 0 {
		select {
		case <-time.After(m.settleDelay):
		case <-ctx.Done():
			metrics.PrintJobs.WithLabelValues(metrics.OutcomeError).Inc()
			job.fail(ctx.Err())
			return
		}
	}

	// Register for the completion signal before triggering the print,
	// and always deregister on the way out.
	completions, cancelNotify := m.printer.Notify()
	defer cancelNotify()

	_ = job.transition(StagePrinting)
	if err := m.printer.Submit(ctx, doc); err != nil {
		slog.Error("Print trigger failed", "job_id", job.ID, "bill_id", job.Bill.ID, "error", err)
		metrics.PrintJobs.WithLabelValues(metrics.OutcomeError).Inc()
		job.fail(err)
		return
	}

	select {
	case c := <-completions:
		if c.Err != nil {
			slog.Warn("Print finished with error", "job_id", job.ID, "bill_id", job.Bill.ID, "error", c.Err)
			metrics.PrintJobs.WithLabelValues(metrics.OutcomeError).Inc()
			job.fail(c.Err)
			return
		}
	case <-time.After(m.completionTimeout):
		slog.Warn("Print completion signal missing", "job_id", job.ID, "bill_id", job.Bill.ID, "timeout", m.completionTimeout)
		metrics.PrintJobs.WithLabelValues(metrics.OutcomeTimeout).Inc()
		job.fail(ErrCompletionSignal)
		return
	case <-ctx.Done():
		metrics.PrintJobs.WithLabelValues(metrics.OutcomeError).Inc()
		job.fail(ctx.Err())
		return
	}

	_ = job.transition(StageComplete)
	metrics.PrintJobs.WithLabelValues(metrics.OutcomeOK).Inc()
	slog.Info("Print completed", "job_id", job.ID, "bill_id", job.Bill.ID, "table", job.Bill.TableNumber)
}
