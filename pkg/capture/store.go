// Package capture persists records received from the acquisition stage into
// a SQLite database, one session per capture run.
package capture

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/itohio/neurowall/pkg/wire"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertSessionSQL = `INSERT INTO sessions (port, config) VALUES (?, ?)`
	selectSessionSQL = `SELECT id, started_at, port, config FROM sessions WHERE id = ?`
	insertRecordSQL  = `INSERT INTO records (session_id, seq, kind, timestamp_ms, value) VALUES (?, ?, ?, ?, ?)`
	selectRecordsSQL = `SELECT kind, timestamp_ms, value FROM records WHERE session_id = ? ORDER BY seq`
	countRecordsSQL  = `SELECT kind, COUNT(*) FROM records WHERE session_id = ? GROUP BY kind`
	maxSeqSQL        = `SELECT COALESCE(MAX(seq), 0) FROM records WHERE session_id = ?`
)

// ErrNoSession is returned when a session id does not exist.
var ErrNoSession = errors.New("session not found")

// Session describes one capture run.
type Session struct {
	ID        int64
	StartedAt time.Time
	Port      string
	Config    *string
}

// Counts summarises a session's records by kind.
type Counts struct {
	Samples   int64
	Anomalies int64
}

// Store handles database operations.
type Store struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a store for the database at dbPath. The database is opened
// and the schema initialized on first use.
func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func (s *Store) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening connection: %w", err)
			return
		}
		// A single connection keeps in-memory databases shared across calls.
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.db = db
	})

	return s.db, s.dbErr
}

// CreateSession starts a new capture session for port. config, if not
// empty, is stored verbatim.
func (s *Store) CreateSession(ctx context.Context, port string, config string) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, fmt.Errorf("getting connection: %w", err)
	}

	var cfg sql.NullString
	if config != "" {
		cfg = sql.NullString{String: config, Valid: true}
	}

	result, err := db.ExecContext(ctx, insertSessionSQL, port, cfg)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting session ID: %w", err)
	}
	return id, nil
}

// Session returns the session with the given id.
func (s *Store) Session(ctx context.Context, id int64) (*Session, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	var sess Session
	var cfg sql.NullString
	err = db.QueryRowContext(ctx, selectSessionSQL, id).Scan(&sess.ID, &sess.StartedAt, &sess.Port, &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNoSession, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	if cfg.Valid {
		sess.Config = &cfg.String
	}

	return &sess, nil
}

// Writer appends records to a session in arrival order.
type Writer struct {
	store     *Store
	sessionID int64
	seq       int64
}

// Writer returns an appender for an existing session. Appends continue
// after any records already stored.
func (s *Store) Writer(ctx context.Context, sessionID int64) (*Writer, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}

	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	var seq int64
	if err := db.QueryRowContext(ctx, maxSeqSQL, sessionID).Scan(&seq); err != nil {
		return nil, fmt.Errorf("reading sequence: %w", err)
	}

	return &Writer{store: s, sessionID: sessionID, seq: seq}, nil
}

// Append stores a batch of records in a single transaction.
func (w *Writer) Append(ctx context.Context, recs ...wire.Record) (err error) {
	if len(recs) == 0 {
		return nil
	}

	db, err := w.store.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	seq := w.seq
	for _, r := range recs {
		seq++
		if _, err = stmt.ExecContext(ctx, w.sessionID, seq, int(r.Kind), r.Timestamp.Milliseconds(), r.Value); err != nil {
			return fmt.Errorf("inserting record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing records: %w", err)
	}
	w.seq = seq

	return nil
}

// Records returns all records of a session in arrival order.
func (s *Store) Records(ctx context.Context, sessionID int64) (recs []wire.Record, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectRecordsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var kind int
		var ms int64
		var value float64
		if err = rows.Scan(&kind, &ms, &value); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		recs = append(recs, wire.Record{
			Kind:      wire.Kind(kind),
			Timestamp: time.Duration(ms) * time.Millisecond,
			Value:     value,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return recs, nil
}

// Counts returns how many samples and anomalies a session holds.
func (s *Store) Counts(ctx context.Context, sessionID int64) (c Counts, err error) {
	db, err := s.getDB()
	if err != nil {
		return c, fmt.Errorf("getting connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, countRecordsSQL, sessionID)
	if err != nil {
		return c, fmt.Errorf("counting records: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var kind int
		var n int64
		if err = rows.Scan(&kind, &n); err != nil {
			return c, fmt.Errorf("scanning count: %w", err)
		}
		switch wire.Kind(kind) {
		case wire.KindSample:
			c.Samples = n
		case wire.KindAnomaly:
			c.Anomalies = n
		}
	}

	return c, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
