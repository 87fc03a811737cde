// Package ledger keeps an append-only record of guard and editor decisions so
// operators can see why a promotion was skipped or a caption fell back.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"
)

// Kind identifies which guarded path produced an entry.
type Kind string

const (
	KindGate     Kind = "gate"
	KindAnalysis Kind = "analysis"
)

// Entry is one recorded decision.
type Entry struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recorder accepts decisions. Callers log and swallow its errors.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLLedger stores entries in SQLite or Postgres.
type SQLLedger struct {
	db      *sql.DB
	dialect dialect
}

// Open parses dsn and opens the matching database.
//
//	sqlite:/var/lib/promoguard/ledger.db
//	postgres://user@host:5432/db?sslmode=disable
func Open(dsn string) (*SQLLedger, error) {
	var driver, source string
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		driver, source = "sqlite", strings.TrimPrefix(dsn, "sqlite:")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, source = "postgres", dsn
	default:
		return nil, fmt.Errorf("ledger: unsupported dsn %q", dsn)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// modernc serializes through one connection; avoids SQLITE_BUSY on writes
		db.SetMaxOpenConns(1)
	}
	l, err := New(db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an open database and runs migrations. driver is "sqlite" or
// "postgres".
func New(db *sql.DB, driver string) (*SQLLedger, error) {
	l := &SQLLedger{db: db, dialect: dialectSQLite}
	if driver == "postgres" {
		l.dialect = dialectPostgres
	}
	if err := l.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	return l, nil
}

func (l *SQLLedger) migrate(ctx context.Context) error {
	query := `
    CREATE TABLE IF NOT EXISTS ledger_entries (
        entry_id TEXT PRIMARY KEY,
        kind TEXT NOT NULL,
        outcome TEXT NOT NULL,
        reason TEXT NOT NULL DEFAULT '',
        fingerprint TEXT NOT NULL DEFAULT '',
        detail TEXT NOT NULL DEFAULT '',
        created_at TEXT NOT NULL
    );`
	_, err := l.db.ExecContext(ctx, query)
	return err
}

// rebind rewrites ? placeholders for Postgres.
func (l *SQLLedger) rebind(query string) string {
	if l.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Record appends e, assigning an ID and timestamp when unset.
func (l *SQLLedger) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	query := l.rebind(`INSERT INTO ledger_entries (
		entry_id, kind, outcome, reason, fingerprint, detail, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := l.db.ExecContext(ctx, query,
		e.ID, string(e.Kind), e.Outcome, e.Reason, e.Fingerprint, e.Detail,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (l *SQLLedger) List(ctx context.Context, limit int) ([]Entry, error) {
	query := l.rebind(`
        SELECT entry_id, kind, outcome, reason, fingerprint, detail, created_at
        FROM ledger_entries
        ORDER BY created_at DESC
        LIMIT ?
    `)
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			created string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Outcome, &e.Reason, &e.Fingerprint, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		if t, err := time.Parse(timeLayout, created); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the underlying database.
func (l *SQLLedger) Close() error {
	return l.db.Close()
}
