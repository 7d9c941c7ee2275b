package printing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/firefroast/billboard/internal/models"
)

// scriptPrinter records the order of Notify/Submit calls and lets tests
// decide when (and whether) the completion signal fires.
type scriptPrinter struct {
	mu        sync.Mutex
	calls     []string
	waiter    chan Completion
	cancelled bool
	submitErr error
}

func (p *scriptPrinter) Notify() (<-chan Completion, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "notify")
	ch := make(chan Completion, 1)
	p.waiter = ch
	return ch, func() {
		p.mu.Lock()
		p.cancelled = true
		p.mu.Unlock()
	}
}

func (p *scriptPrinter) Submit(ctx context.Context, doc *Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "submit")
	return p.submitErr
}

func (p *scriptPrinter) complete(c Completion) {
	p.mu.Lock()
	ch := p.waiter
	p.mu.Unlock()
	ch <- c
}

func (p *scriptPrinter) callOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *scriptPrinter) wasCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

type stubRenderer struct {
	err error
}

func (r *stubRenderer) Render(ctx context.Context, bill *models.Bill) (*Document, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &Document{BillID: bill.ID, ContentType: "text/plain", Data: []byte("receipt")}, nil
}

func waitForJob(t *testing.T, done <-chan *Job) *Job {
	t.Helper()
	select {
	case job := <-done:
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("print workflow never finished")
		return nil
	}
}

func TestWorkflowCompletes(t *testing.T) {
	printer := &scriptPrinter{}
	m := NewManager(&stubRenderer{}, printer,
		WithSettleDelay(0),
		WithCompletionTimeout(time.Second),
	)

	done := make(chan *Job, 1)
	job, err := m.Start(context.Background(), models.Bill{ID: "b1"}, func(j *Job) { done <- j })
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait until the workflow has submitted, then fire the signal.
	deadline := time.Now().Add(2 * time.Second)
	for {
		order := printer.callOrder()
		if len(order) == 2 {
			if order[0] != "notify" || order[1] != "submit" {
				t.Fatalf("call order = %v, want [notify submit]", order)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("workflow never submitted; calls = %v", order)
		}
		time.Sleep(5 * time.Millisecond)
	}
	printer.complete(Completion{})

	finished := waitForJob(t, done)
	if finished != job {
		t.Error("onDone received a different job")
	}
	if got := finished.Stage(); got != StageComplete {
		t.Errorf("final stage = %s, want %s", got, StageComplete)
	}
	if err := finished.Err(); err != nil {
		t.Errorf("completed job has error: %v", err)
	}
	if !printer.wasCancelled() {
		t.Error("completion listener was not deregistered")
	}

	// The manager must be free for the next print.
	done2 := make(chan *Job, 1)
	if _, err := m.Start(context.Background(), models.Bill{ID: "b2"}, func(j *Job) { done2 <- j }); err != nil {
		t.Fatalf("Start after completion failed: %v", err)
	}
	printerWait(t, printer, 4)
	printer.complete(Completion{})
	waitForJob(t, done2)
}

func printerWait(t *testing.T, p *scriptPrinter, calls int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(p.callOrder()) < calls {
		if time.Now().After(deadline) {
			t.Fatalf("printer calls = %v, want %d entries", p.callOrder(), calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorkflowRejectsConcurrentStart(t *testing.T) {
	printer := &scriptPrinter{}
	m := NewManager(&stubRenderer{}, printer,
		WithSettleDelay(0),
		WithCompletionTimeout(time.Second),
	)

	done := make(chan *Job, 1)
	if _, err := m.Start(context.Background(), models.Bill{ID: "b1"}, func(j *Job) { done <- j }); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	if _, err := m.Start(context.Background(), models.Bill{ID: "b2"}, nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Start returned %v, want ErrBusy", err)
	}

	printerWait(t, printer, 2)
	printer.complete(Completion{})
	waitForJob(t, done)
}

func TestWorkflowRenderFailure(t *testing.T) {
	renderErr := errors.New("template exploded")
	printer := &scriptPrinter{}
	m := NewManager(&stubRenderer{err: renderErr}, printer,
		WithSettleDelay(0),
		WithCompletionTimeout(time.Second),
	)

	done := make(chan *Job, 1)
	if _, err := m.Start(context.Background(), models.Bill{ID: "b1"}, func(j *Job) { done <- j }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := waitForJob(t, done)
	if got := job.Stage(); got != StageFailed {
		t.Errorf("stage = %s, want %s", got, StageFailed)
	}
	if !errors.Is(job.Err(), renderErr) {
		t.Errorf("job error = %v, want the render error", job.Err())
	}
	if len(printer.callOrder()) != 0 {
		t.Errorf("printer was touched after a render failure: %v", printer.callOrder())
	}
}

func TestWorkflowSubmitFailure(t *testing.T) {
	submitErr := errors.New("spooler offline")
	printer := &scriptPrinter{submitErr: submitErr}
	m := NewManager(&stubRenderer{}, printer,
		WithSettleDelay(0),
		WithCompletionTimeout(time.Second),
	)

	done := make(chan *Job, 1)
	if _, err := m.Start(context.Background(), models.Bill{ID: "b1"}, func(j *Job) { done <- j }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := waitForJob(t, done)
	if got := job.Stage(); got != StageFailed {
		t.Errorf("stage = %s, want %s", got, StageFailed)
	}
	if !printer.wasCancelled() {
		t.Error("completion listener leaked after submit failure")
	}
}

// A platform that never reports completion must not wedge the workflow
// forever.
func TestWorkflowCompletionTimeout(t *testing.T) {
	printer := &scriptPrinter{}
	m := NewManager(&stubRenderer{}, printer,
		WithSettleDelay(0),
		WithCompletionTimeout(20*time.Millisecond),
	)

	done := make(chan *Job, 1)
	if _, err := m.Start(context.Background(), models.Bill{ID: "b1"}, func(j *Job) { done <- j }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := waitForJob(t, done)
	if got := job.Stage(); got != StageFailed {
		t.Errorf("stage = %s, want %s", got, StageFailed)
	}
	if !errors.Is(job.Err(), ErrCompletionSignal) {
		t.Errorf("job error = %v, want ErrCompletionSignal", job.Err())
	}
	if !printer.wasCancelled() {
		t.Error("completion listener leaked after timeout")
	}

	// ...and the manager recovers for the next job.
	done2 := make(chan *Job, 1)
	if _, err := m.Start(context.Background(), models.Bill{ID: "b2"}, func(j *Job) { done2 <- j }); err != nil {
		t.Fatalf("Start after timeout failed: %v", err)
	}
	printerWait(t, printer, 4)
	printer.complete(Completion{})
	waitForJob(t, done2)
}

func TestJobTransitionGuardsTerminalStages(t *testing.T) {
	job := &Job{stage: StageComplete}
	if err := job.transition(StageRendering); err == nil {
		t.Error("transition out of a terminal stage was allowed")
	}
	if got := job.Stage(); got != StageComplete {
		t.Errorf("stage = %s, want %s unchanged", got, StageComplete)
	}
}

// The settle delay must pass between rendering and the print trigger.
func TestWorkflowSettleDelay(t *testing.T) {
	printer := &scriptPrinter{}
	delay := 50 * time.Millisecond
	m := NewManager(&stubRenderer{}, printer,
		WithSettleDelay(delay),
		WithCompletionTimeout(time.Second),
	)

	start := time.Now()
	done := make(chan *Job, 1)
	if _, err := m.Start(context.Background(), models.Bill{ID: "b1"}, func(j *Job) { done <- j }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	printerWait(t, printer, 2)
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("print triggered after %v, want at least %v", elapsed, delay)
	}

	printer.complete(Completion{})
	waitForJob(t, done)
}
