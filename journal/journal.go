// Package journal records fiber lifecycle events in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/loom/vm"
	"github.com/chazu/loom/vm/wire"
)

var log = commonlog.GetLogger("loom.journal")

// Kind is a lifecycle transition.
type Kind string

const (
	Started   Kind = "started"
	Suspended Kind = "suspended"
	Resumed   Kind = "resumed"
	Completed Kind = "completed"
	Faulted   Kind = "faulted"
	Abandoned Kind = "abandoned"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Event is one recorded transition. Payload holds the CBOR snapshot of a
// suspension or the CBOR fault of a failure.
type Event struct {
	Seq     int64
	Fiber   string
	Kind    Kind
	Method  string
	IP      int
	Payload []byte
	Detail  string
	At      time.Time
}

// Snapshot decodes the payload of a Suspended event.
func (e Event) Snapshot() (vm.Snapshot, error) {
	if e.Kind != Suspended {
		return vm.Snapshot{}, fmt.Errorf("%s event has no snapshot", e.Kind)
	}
	return wire.UnmarshalSnapshot(e.Payload)
}

// Fault decodes the payload of a Faulted event.
func (e Event) Fault() (*vm.Fault, error) {
	if e.Kind != Faulted {
		return nil, fmt.Errorf("%s event has no fault", e.Kind)
	}
	return wire.UnmarshalFault(e.Payload)
}

// SuspendedEvent builds a Suspended event from a Fiber's snapshot. Method
// and IP name the innermost resume point.
func SuspendedEvent(s vm.Snapshot) (Event, error) {
	payload, err := wire.MarshalSnapshot(s)
	if err != nil {
		return Event{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	e := Event{Fiber: s.FiberID, Kind: Suspended, Payload: payload}
	if len(s.Points) > 0 {
		e.Method = s.Points[0].Method
		e.IP = s.Points[0].IP
	}
	return e, nil
}

// FaultedEvent builds a Faulted event from an execution error.
func FaultedEvent(fiber string, err error) (Event, error) {
	payload, encErr := wire.MarshalFault(err)
	if encErr != nil {
		return Event{}, fmt.Errorf("encoding fault: %w", encErr)
	}
	e := Event{Fiber: fiber, Kind: Faulted, Payload: payload, Detail: err.Error(), IP: -1}
	var fault *vm.Fault
	if errors.As(err, &fault) {
		e.Method = fault.Method
		e.IP = fault.IP
	}
	return e, nil
}

// Journal is an append-only SQLite event log, safe for concurrent use.
type Journal struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// Open opens (creating if needed) the journal at path. ":memory:" keeps
// the journal in memory for the lifetime of the Journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database is per connection, and writes
	// are serialized anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS events (
		seq     INTEGER PRIMARY KEY AUTOINCREMENT,
		fiber   TEXT NOT NULL,
		kind    TEXT NOT NULL,
		method  TEXT NOT NULL DEFAULT '',
		ip      INTEGER NOT NULL DEFAULT -1,
		payload BLOB,
		detail  TEXT NOT NULL DEFAULT '',
		at      INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS events_fiber ON events (fiber, seq)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}

	log.Debugf("opened journal %s", path)
	return &Journal{db: db, path: path}, nil
}

// Path returns the database path the journal was opened with.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// Record appends an event. A zero At is set to the current time.
func (j *Journal) Record(ctx context.Context, e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO events (fiber, kind, method, ip, payload, detail, at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.Fiber, string(e.Kind), e.Method, e.IP, e.Payload, e.Detail, e.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording %s event for %s: %w", e.Kind, e.Fiber, err)
	}
	return nil
}

// Events returns a fiber's events in the order they were recorded.
func (j *Journal) Events(ctx context.Context, fiber string) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT seq, fiber, kind, method, ip, payload, detail, at FROM events WHERE fiber = ? ORDER BY seq",
		fiber,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e    Event
			kind string
			at   int64
		)
		if err := rows.Scan(&e.Seq, &e.Fiber, &kind, &e.Method, &e.IP, &e.Payload, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Kind = Kind(kind)
		e.At = time.Unix(0, at)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	return events, nil
}

// Counts returns how many events of each kind have been recorded.
func (j *Journal) Counts(ctx context.Context) (map[Kind]int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}

	rows, err := j.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM events GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[Kind(kind)] = n
	}
	return counts, rows.Err()
}
