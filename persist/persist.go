// Package persist keeps store entries and evaluation traces in a SQL
// database. SQLite is the default backend; DuckDB can be selected for
// analytical work over large trace sets.
package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/lurk/eval"
	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/store"
	"github.com/chazu/lurk/trace"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("lurk.persist")

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverDuckDB = "duckdb"
)

var (
	// ErrRunNotFound indicates the requested run doesn't exist.
	ErrRunNotFound = errors.New("persist: run not found")
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("persist: unknown driver")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		tag INTEGER NOT NULL,
		digest BLOB NOT NULL,
		body BLOB NOT NULL,
		PRIMARY KEY (tag, digest)
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created TEXT NOT NULL,
		frames INTEGER NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS frames (
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		body BLOB NOT NULL,
		PRIMARY KEY (run_id, idx)
	)`,
}

// DB is a persistent home for store entries and traces. All entries in one
// database belong to a single field and hash parameterization.
type DB struct {
	db     *sql.DB
	driver string
	mu     sync.Mutex
}

// Open opens (creating if needed) the database at path using driver.
func Open(driver, path string) (*DB, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverDuckDB {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	log.Debugf("opened %s database %s", driver, path)
	return &DB{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Driver returns the name of the driver in use.
func (d *DB) Driver() string { return d.driver }

// ---------------------------------------------------------------------------
// Field binding
// ---------------------------------------------------------------------------

type fieldRecord struct {
	Name   string           `cbor:"1,keyasint"`
	Params field.HashParams `cbor:"2,keyasint"`
}

// bindField records f as the database's field on first use and rejects any
// other field afterwards.
func (d *DB) bindField(tx *sql.Tx, f field.Field) error {
	want := fieldRecord{Name: f.Name(), Params: f.HashParams()}
	var raw []byte
	err := tx.QueryRow("SELECT value FROM meta WHERE key = 'field'").Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		data, err := cbor.Marshal(want)
		if err != nil {
			return err
		}
		_, err = tx.Exec("INSERT INTO meta (key, value) VALUES ('field', ?)", data)
		return err
	case err != nil:
		return fmt.Errorf("reading field: %w", err)
	}
	var got fieldRecord
	if err := cbor.Unmarshal(raw, &got); err != nil {
		return fmt.Errorf("decoding field: %w", err)
	}
	if got != want {
		return fmt.Errorf("%w: database uses %s %+v", store.ErrFieldMismatch, got.Name, got.Params)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Store entries
// ---------------------------------------------------------------------------

// SaveStore persists the closure of roots, or every entry of s when no
// roots are given. It returns the number of entries written, including
// ones already present.
func (d *DB) SaveStore(s *store.Store, roots ...store.Ptr) (int, error) {
	ptrs := s.Pointers()
	if len(roots) > 0 {
		var err error
		if ptrs, err = s.Closure(roots...); err != nil {
			return 0, err
		}
	}
	entries, err := s.Entries(ptrs)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := d.bindField(tx, s.Field()); err != nil {
		return 0, err
	}
	if err := insertEntries(tx, entries); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("saving store: %w", err)
	}
	log.Debugf("saved %d entries", len(entries))
	return len(entries), nil
}

func insertEntries(tx *sql.Tx, entries []store.Entry) error {
	stmt, err := tx.Prepare("INSERT OR IGNORE INTO entries (tag, digest, body) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		body, err := cbor.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(int64(e.Ptr.Tag), e.Ptr.Digest[:], body); err != nil {
			return fmt.Errorf("saving entry %s: %w", e.Ptr, err)
		}
	}
	return nil
}

// LoadStore imports every persisted entry into s, re-checking each digest.
// It returns the number of entries loaded.
func (d *DB) LoadStore(s *store.Store) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := d.bindField(tx, s.Field()); err != nil {
		return 0, err
	}
	rows, err := tx.Query("SELECT body FROM entries")
	if err != nil {
		return 0, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return 0, err
		}
		var e store.Entry
		if err := cbor.Unmarshal(body, &e); err != nil {
			return 0, fmt.Errorf("decoding entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if err := s.Import(entries); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ---------------------------------------------------------------------------
// Traces
// ---------------------------------------------------------------------------

// Run describes a persisted trace.
type Run struct {
	ID      uuid.UUID
	Created time.Time
	Frames  int
	Status  string
}

// SaveTrace persists t together with every store entry its frames
// reference, and returns the new run's id.
func (d *DB) SaveTrace(s *store.Store, t *eval.Trace) (uuid.UUID, error) {
	var roots []store.Ptr
	for _, f := range t.Frames {
		roots = append(roots, f.Input.Expr, f.Input.Env, f.Input.Cont)
	}
	roots = append(roots, t.Final.Expr, t.Final.Env, t.Final.Cont)
	ptrs, err := s.Closure(roots...)
	if err != nil {
		return uuid.Nil, err
	}
	entries, err := s.Entries(ptrs)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	d.mu.Lock()
	defer d.mu.Unlock()
	tx, err := d.db.Begin()
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	if err := d.bindField(tx, s.Field()); err != nil {
		return uuid.Nil, err
	}
	if err := insertEntries(tx, entries); err != nil {
		return uuid.Nil, err
	}
	_, err = tx.Exec("INSERT INTO runs (id, created, frames, status) VALUES (?, ?, ?, ?)",
		id.String(), time.Now().UTC().Format(time.RFC3339Nano), len(t.Frames), t.Outcome().Status.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("saving run: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO frames (run_id, idx, body) VALUES (?, ?, ?)")
	if err != nil {
		return uuid.Nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for _, f := range t.Frames {
		body, err := trace.MarshalFrame(f)
		if err != nil {
			return uuid.Nil, err
		}
		if _, err := stmt.Exec(id.String(), f.Index, body); err != nil {
			return uuid.Nil, fmt.Errorf("saving frame %d: %w", f.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("saving trace: %w", err)
	}
	log.Infof("saved run %s (%d frames)", id, len(t.Frames))
	return id, nil
}

// LoadTrace returns the frames of run id, in index order, as a bundle over
// the database's field.
func (d *DB) LoadTrace(id uuid.UUID) (*trace.Bundle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var n int
	err := d.db.QueryRow("SELECT frames FROM runs WHERE id = ?", id.String()).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}

	var raw []byte
	if err := d.db.QueryRow("SELECT value FROM meta WHERE key = 'field'").Scan(&raw); err != nil {
		return nil, fmt.Errorf("reading field: %w", err)
	}
	var fr fieldRecord
	if err := cbor.Unmarshal(raw, &fr); err != nil {
		return nil, fmt.Errorf("decoding field: %w", err)
	}

	rows, err := d.db.Query("SELECT body FROM frames WHERE run_id = ? ORDER BY idx", id.String())
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()
	b := &trace.Bundle{Version: trace.WireVersion, Field: fr.Name, Params: fr.Params}
	b.Frames = make([]eval.Frame, 0, n)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		f, err := trace.UnmarshalFrame(body)
		if err != nil {
			return nil, err
		}
		b.Frames = append(b.Frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// Runs lists persisted runs, oldest first.
func (d *DB) Runs() ([]Run, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.db.Query("SELECT id, created, frames, status FROM runs ORDER BY created, id")
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var id, created string
		var r Run
		if err := rows.Scan(&id, &created, &r.Frames, &r.Status); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing run id %q: %w", id, err)
		}
		if r.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parsing run time %q: %w", created, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its frames. Store entries are kept.
func (d *DB) DeleteRun(id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.Exec("DELETE FROM runs WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if _, err := tx.Exec("DELETE FROM frames WHERE run_id = ?", id.String()); err != nil {
		return fmt.Errorf("deleting frames: %w", err)
	}
	return tx.Commit()
}
