package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/biobank/internal/model"
)

// tsFormat keeps fixed-width fractions so timestamps sort lexically.
const tsFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is a ledger stored in a single SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens or creates a SQLite ledger at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLite{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_receipts (
		tx_hash    TEXT PRIMARY KEY,
		key        TEXT NOT NULL,
		from_addr  TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_receipts_key ON ledger_receipts(key, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) IsAvailable(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

func (s *SQLite) GetData(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ledger_entries WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// Signer returns a write handle bound to the identity from.
func (s *SQLite) Signer(from string) Writer {
	return &sqliteWriter{s: s, from: from}
}

// History returns the receipts written for key, newest first.
func (s *SQLite) History(ctx context.Context, key string) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_hash, key, from_addr, created_at FROM ledger_receipts
		 WHERE key = ? ORDER BY created_at DESC`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var r Receipt
		var at string
		if err := rows.Scan(&r.TxHash, &r.Key, &r.From, &at); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(tsFormat, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteWriter struct {
	s    *SQLite
	from string
}

func (w *sqliteWriter) SetData(ctx context.Context, key string, value []byte) (*Receipt, error) {
	if w.from == "" {
		return nil, model.ErrNotAuthenticated
	}
	now := time.Now().UTC()
	r := newReceipt(w.from, key, value, now)

	tx, err := w.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now.Format(tsFormat))
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", key, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_receipts (tx_hash, key, from_addr, created_at) VALUES (?, ?, ?, ?)`,
		r.TxHash, key, w.from, now.Format(tsFormat))
	if err != nil {
		return nil, fmt.Errorf("record receipt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}
