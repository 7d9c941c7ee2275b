// Package sqlite provides a SQLite-backed implementation of the
// store.RecordStore interface.
//
// Bill documents are stored as raw JSON payloads, exactly as the
// upstream POS wrote them, with the lifecycle status mirrored into its
// own column. Subscribers get a full snapshot after every mutation made
// through this store; a poll ticker picks up writes from external
// processes sharing the database file.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/firefroast/billboard/internal/store"
)

// Ensure Store implements the store contracts
var (
	_ store.RecordStore = (*Store)(nil)
	_ store.Ingestor    = (*Store)(nil)
)

const defaultPollInterval = 2 * time.Second

type subscriber struct {
	onSnapshot store.SnapshotFunc
	onError    store.ErrorFunc
}

// Store implements store.RecordStore on a SQLite database. Only the
// bills collection exists in the schema; subscribing to or updating any
// other collection is an error.
type Store struct {
	db           *sql.DB
	pollInterval time.Duration

	mu    sync.Mutex
	subs  map[*subscriber]struct{}
	joins map[*subscriber]chan struct{}
	last  fingerprint

	kick   chan struct{}
	closed chan struct{}
	wg     sync.WaitGroup
}

// Option configures the store.
type Option func(*Store)

// WithPollInterval sets how often the store checks for writes made by
// external processes. Zero disables polling; local mutations still push
// snapshots immediately.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.pollInterval = d }
}

// New creates a Store with the given database path. It creates the
// parent directories and runs migrations automatically.
func New(dbPath string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{
		db:           db,
		pollInterval: defaultPollInterval,
		subs:         make(map[*subscriber]struct{}),
		joins:        make(map[*subscriber]chan struct{}),
		kick:         make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.dispatch()

	return s, nil
}

// Close stops snapshot delivery and closes the database.
func (s *Store) Close() error {
	close(s.closed)
	s.wg.Wait()
	return s.db.Close()
}

// Subscribe registers a snapshot listener on the bills collection. The
// current snapshot is delivered before Subscribe returns, on the same
// dispatch goroutine that delivers every later one, so callbacks stay
// serialized and a concurrent mutation cannot overtake the initial
// snapshot. A failing initial read arrives through onError.
func (s *Store) Subscribe(ctx context.Context, collection string, onSnapshot store.SnapshotFunc, onError store.ErrorFunc) (func(), error) {
	if collection != store.BillsCollection {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}

	sub := &subscriber{onSnapshot: onSnapshot, onError: onError}
	ready := make(chan struct{})
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.joins[sub] = ready
	s.mu.Unlock()

	s.notify()

	select {
	case <-ready:
	case <-s.closed:
		s.mu.Lock()
		delete(s.subs, sub)
		delete(s.joins, sub)
		s.mu.Unlock()
		return nil, fmt.Errorf("store is closed")
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-s.closed:
			}
		}()
	}

	return cancel, nil
}

// UpdateField patches one field of a record's JSON payload. The status
// field is additionally mirrored into its column so done bills can be
// filtered without decoding payloads.
func (s *Store) UpdateField(ctx context.Context, collection, id, field string, value any) error {
	if collection != store.BillsCollection {
		return fmt.Errorf("unknown collection %q", collection)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRowContext(ctx, "SELECT payload FROM bills WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return fmt.Errorf("update bills/%s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}

	fields, err := decodePayload(payload)
	if err != nil {
		// A payload we cannot decode is still a record we can patch:
		// start over with just the updated field.
		fields = make(map[string]any)
	}
	fields[field] = value

	updated, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	if field == "status" {
		_, err = tx.ExecContext(ctx,
			"UPDATE bills SET payload = ?, status = ?, updated_at = ? WHERE id = ?",
			string(updated), fmt.Sprint(value), time.Now().UnixNano(), id,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE bills SET payload = ?, updated_at = ? WHERE id = ?",
			string(updated), time.Now().UnixNano(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.notify()
	return nil
}

// Ingest stores a new bill document verbatim and returns the assigned
// id. Payload content is not validated here; the normalizer downstream
// copes with whatever shape arrives.
func (s *Store) Ingest(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if collection != store.BillsCollection {
		return "", fmt.Errorf("unknown collection %q", collection)
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	id := uuid.New().String()
	status := "active"
	if v, ok := fields["status"].(string); ok && v != "" {
		status = v
	}

	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO bills (id, payload, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, string(payload), status, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert bill: %w", err)
	}

	s.notify()
	return id, nil
}

// notify schedules an immediate snapshot delivery.
func (s *Store) notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// dispatch is the single delivery goroutine: it serializes snapshot
// callbacks and watches the change fingerprint so external writers are
// picked up within one poll interval.
func (s *Store) dispatch() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-s.closed:
			return
		case <-s.kick:
		case <-ticker.C:
		}

		snap, fp, err := s.snapshot(ctx)
		if err != nil {
			s.fail(&store.SubscriptionError{Collection: store.BillsCollection, Err: err})
			continue
		}

		s.mu.Lock()
		changed := fp != s.last
		s.last = fp
		joined := s.joins
		s.joins = make(map[*subscriber]chan struct{})
		var targets []*subscriber
		for sub := range s.subs {
			_, isNew := joined[sub]
			if changed || isNew {
				targets = append(targets, sub)
			}
		}
		s.mu.Unlock()

		for _, sub := range targets {
			sub.onSnapshot(snap)
		}
		// Unblock Subscribe only after its initial delivery.
		for _, ready := range joined {
			close(ready)
		}
	}
}

func (s *Store) tickInterval() time.Duration {
	if s.pollInterval <= 0 {
		// Polling disabled: keep the ticker alive but effectively idle;
		// local mutations kick the loop directly.
		return time.Hour
	}
	return s.pollInterval
}

// fail delivers a stream fault to every subscriber and drops them.
func (s *Store) fail(err *store.SubscriptionError) {
	s.mu.Lock()
	var failed []*subscriber
	for sub := range s.subs {
		failed = append(failed, sub)
		delete(s.subs, sub)
	}
	joined := s.joins
	s.joins = make(map[*subscriber]chan struct{})
	s.mu.Unlock()

	slog.Error("bill store snapshot failed", "error", err)
	for _, sub := range failed {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
	for _, ready := range joined {
		close(ready)
	}
}

type fingerprint struct {
	count   int64
	maxSeen int64
}

// snapshot reads the full collection in insertion order. The status
// column is authoritative and overrides whatever the payload carries.
func (s *Store) snapshot(ctx context.Context) (store.Snapshot, fingerprint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload, status, updated_at FROM bills ORDER BY created_at, id")
	if err != nil {
		return nil, fingerprint{}, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	snap := store.Snapshot{}
	var fp fingerprint
	for rows.Next() {
		var (
			id, payload, status string
			updatedAt           int64
		)
		if err := rows.Scan(&id, &payload, &status, &updatedAt); err != nil {
			return nil, fingerprint{}, fmt.Errorf("failed to scan bill row: %w", err)
		}

		fields, err := decodePayload(payload)
		if err != nil {
			// Deliver the record anyway; the normalizer will reject it
			// as malformed without breaking the stream.
			fields = nil
		}
		if fields != nil {
			fields["status"] = status
		}

		snap = append(snap, store.RawRecord{ID: id, Fields: fields})
		fp.count++
		if updatedAt > fp.maxSeen {
			fp.maxSeen = updatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fingerprint{}, fmt.Errorf("failed to read bill rows: %w", err)
	}
	return snap, fp, nil
}

// decodePayload parses a JSON document keeping numbers as json.Number,
// so money values round-trip without float drift.
func decodePayload(payload string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
