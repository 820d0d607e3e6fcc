package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/wippyai/vmwire/errors"
)

//go:embed schema.sql
var schemaSQL string

// SQLite persists events to a database file, one row per event keyed by
// session and sequence number.
type SQLite struct {
	db      *sql.DB
	insert  *sql.Stmt
	err     error
	session string
	mu      sync.Mutex
}

// OpenSQLite opens or creates the database at path and applies the schema.
// Events recorded through the returned recorder are tagged with session.
func OpenSQLite(ctx context.Context, path, session string) (*SQLite, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	insert, err := db.PrepareContext(ctx, `INSERT INTO events
		(session, seq, depth, kind, src, src_port, dst, dst_port, value, vector, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(errors.PhaseTrace, errors.KindIO, err, "prepare insert")
	}
	return &SQLite{db: db, insert: insert, session: session}, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTrace, errors.KindIO, err, "open "+path)
	}
	// single writer
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		schemaSQL,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.PhaseTrace, errors.KindIO, err, "init "+path)
		}
	}
	return db, nil
}

// Record inserts ev. The first insert error is kept and returned by Err and
// Close; later events are dropped.
func (s *SQLite) Record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	_, err := s.insert.Exec(s.session, int64(ev.Seq), ev.Depth, string(ev.Kind),
		ev.Src, int(ev.SrcPort), ev.Dst, int(ev.DstPort), int(ev.Value), int(ev.Vector), ev.Detail)
	if err != nil {
		s.err = errors.Wrap(errors.PhaseTrace, errors.KindIO, err, "insert event")
	}
}

// Err returns the first recording error.
func (s *SQLite) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the database and reports any recording error.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert.Close()
	if err := s.db.Close(); err != nil && s.err == nil {
		s.err = errors.Wrap(errors.PhaseTrace, errors.KindIO, err, "close")
	}
	return s.err
}

// Sessions lists the sessions stored at path, oldest first.
func Sessions(ctx context.Context, path string) ([]string, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT session FROM events GROUP BY session ORDER BY MIN(rowid)`)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTrace, errors.KindIO, err, "list sessions")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(errors.PhaseTrace, errors.KindIO, err, "scan session")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Load reads every event of session from path in sequence order.
func Load(ctx context.Context, path, session string) ([]Event, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT seq, depth, kind, src, src_port, dst, dst_port, value, vector, detail
		FROM events WHERE session = ? ORDER BY seq`, session)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTrace, errors.KindIO, err, "query events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev                            Event
			seq                           int64
			kind                          string
			srcPort, dstPort, val, vector int
		)
		if err := rows.Scan(&seq, &ev.Depth, &kind, &ev.Src, &srcPort, &ev.Dst, &dstPort, &val, &vector, &ev.Detail); err != nil {
			return nil, errors.Wrap(errors.PhaseTrace, errors.KindIO, err, "scan event")
		}
		ev.Seq = uint64(seq)
		ev.Kind = Kind(kind)
		ev.SrcPort = uint8(srcPort)
		ev.DstPort = uint8(dstPort)
		ev.Value = uint8(val)
		ev.Vector = uint16(vector)
		out = append(out, ev)
	}
	return out, rows.Err()
}
