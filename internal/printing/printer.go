package printing

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// Completion is the platform's "print finished or cancelled" signal.
// A non-nil Err means the print failed or was cancelled.
type Completion struct {
	Err error
}

// Printer is the platform print service.
//
// The workflow registers for the completion signal before triggering
// the print and always deregisters when done, so a listener never leaks
// across invocations. Notify hands out a single-waiter subscription: the
// next completion goes to it and to nobody else.
type Printer interface {
	// Notify registers for the next completion signal. The returned
	// cancel deregisters the listener; it must be called on every exit
	// path and is idempotent.
	Notify() (<-chan Completion, func())

	// Submit triggers the platform print for the rendered document.
	Submit(ctx context.Context, doc *Document) error
}

// signal is the shared single-waiter completion plumbing for printer
// backends.
type signal struct {
	mu     sync.Mutex
	waiter chan Completion
}

func (s *signal) notify() (<-chan Completion, func()) {
	ch := make(chan Completion, 1)
	s.mu.Lock()
	s.waiter = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if s.waiter == ch {
			s.waiter = nil
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// deliver hands the completion to the registered waiter, if any. A
// completion with nobody listening is dropped; the workflow's bounded
// wait covers that case.
func (s *signal) deliver(c Completion) {
	s.mu.Lock()
	ch := s.waiter
	s.waiter = nil
	s.mu.Unlock()

	if ch != nil {
		ch <- c
	}
}

// CommandPrinter pipes the rendered document into a print spooler
// command such as lp or lpr. The command exiting is the completion
// signal.
type CommandPrinter struct {
	command string
	args    []string
	signal  signal
}

// NewCommandPrinter creates a printer backed by the given spooler
// command.
func NewCommandPrinter(command string, args ...string) *CommandPrinter {
	return &CommandPrinter{command: command, args: args}
}

func (p *CommandPrinter) Notify() (<-chan Completion, func()) {
	return p.signal.notify()
}

// Submit starts the spooler and returns immediately; completion is
// delivered when the process exits.
func (p *CommandPrinter) Submit(ctx context.Context, doc *Document) error {
	cmd := exec.CommandContext(ctx, p.command, p.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open spooler stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start spooler %q: %w", p.command, err)
	}

	go func() {
		_, writeErr := stdin.Write(doc.Data)
		stdin.Close()
		waitErr := cmd.Wait()
		if waitErr == nil {
			waitErr = writeErr
		}
		p.signal.deliver(Completion{Err: waitErr})
	}()

	return nil
}

// FilePrinter writes rendered documents into a spool directory. Useful
// for development and for deployments where a separate agent picks up
// the spool. Completion is signalled as soon as the file is durably
// written.
type FilePrinter struct {
	dir    string
	signal signal
}

// NewFilePrinter creates a printer spooling into dir.
func NewFilePrinter(dir string) (*FilePrinter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &FilePrinter{dir: dir}, nil
}

func (p *FilePrinter) Notify() (<-chan Completion, func()) {
	return p.signal.notify()
}

func (p *FilePrinter) Submit(ctx context.Context, doc *Document) error {
	name := fmt.Sprintf("%s-%d%s", doc.BillID, time.Now().UnixMilli(), extFor(doc.ContentType))
	path := filepath.Join(p.dir, name)
	err := os.WriteFile(path, doc.Data, 0644)

	go p.signal.deliver(Completion{Err: err})

	if err != nil {
		return fmt.Errorf("failed to spool document: %w", err)
	}
	return nil
}

func extFor(contentType string) string {
	switch {
	case contentType == "application/pdf":
		return ".pdf"
	default:
		return ".txt"
	}
}
