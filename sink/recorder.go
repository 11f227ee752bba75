package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pfcm/oscroute/packet"
	"github.com/pfcm/oscroute/router"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	received_ns INTEGER NOT NULL,
	address     TEXT    NOT NULL,
	types       TEXT    NOT NULL,
	args        TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_address ON messages (address);
`

// Recorder is a receiver that writes every message it is handed to an
// sqlite database, for looking at a session afterwards.
type Recorder struct {
	db      *sql.DB
	insert  *sql.Stmt
	pattern string
	now     func() time.Time
}

// OpenRecorder opens, creating if need be, the database at path and returns
// a recorder for messages matching pattern.
func OpenRecorder(path, pattern string) (*Recorder, error) {
	if err := router.ValidatePattern(pattern); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting up %s: %w", path, err)
		}
	}
	insert, err := db.Prepare(`INSERT INTO messages (received_ns, address, types, args) VALUES (?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Recorder{db: db, insert: insert, pattern: pattern, now: time.Now}, nil
}

func (r *Recorder) Pattern() string { return r.pattern }

// Handle records m.
func (r *Recorder) Handle(m *packet.Message) error {
	e := NewEvent(m, r.now())
	args, err := json.Marshal(e.Args)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", m.Address, err)
	}
	if _, err := r.insert.Exec(e.Time.UnixNano(), e.Address, e.Types, string(args)); err != nil {
		return fmt.Errorf("recording %s: %w", m.Address, err)
	}
	return nil
}

// Count returns the number of messages recorded. If pattern is non-empty
// only addresses matching it, as Match understands patterns, are counted.
func (r *Recorder) Count(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		var n int
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
		return n, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT address, COUNT(*) FROM messages GROUP BY address`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	total := 0
	for rows.Next() {
		var (
			addr string
			n    int
		)
		if err := rows.Scan(&addr, &n); err != nil {
			return 0, err
		}
		if router.Match(pattern, addr) {
			total += n
		}
	}
	return total, rows.Err()
}

// Recent returns up to n of the most recently recorded messages, newest
// first. Arguments come back as JSON decodes them: numbers are float64 and
// blobs base64 strings.
func (r *Recorder) Recent(ctx context.Context, n int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT received_ns, address, types, args FROM messages ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			ns   int64
			e    Event
			args string
		)
		if err := rows.Scan(&ns, &e.Address, &e.Types, &args); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(args), &e.Args); err != nil {
			return nil, fmt.Errorf("decoding arguments of %s: %w", e.Address, err)
		}
		e.Time = time.Unix(0, ns)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Recorder) Close() error {
	r.insert.Close()
	return r.db.Close()
}
