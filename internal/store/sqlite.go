package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS entries (
	k BLOB PRIMARY KEY,
	v BLOB
) WITHOUT ROWID`

type sqliteStore struct {
	db *sqlx.DB
}

func openSQLite(cfg Config) (*sqliteStore, error) {
	path := filepath.Join(cfg.Dir, "qool.db")
	if cfg.InMemory {
		path = ":memory:"
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: the queue is the only writer and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)

	synchronous := "NORMAL"
	if cfg.NoSync {
		synchronous = "OFF"
	}
	pragmas := []string{
		"PRAGMA synchronous=" + synchronous,
		"PRAGMA busy_timeout=5000",
	}
	if !cfg.InMemory {
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Scan(ctx context.Context, prefix, after []byte, fn func(key, value []byte) bool) error {
	query := "SELECT k, v FROM entries WHERE k >= ? ORDER BY k"
	args := []any{scanStart(prefix, after)}
	if upper := prefixUpperBound(prefix); upper != nil {
		query = "SELECT k, v FROM entries WHERE k >= ? AND k < ? ORDER BY k"
		args = append(args, upper)
	}
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return wrap("scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return wrap("scan", err)
		}
		if !fn(k, v) {
			break
		}
	}
	return wrap("scan", rows.Err())
}

func (s *sqliteStore) Last(ctx context.Context, prefix []byte) ([]byte, bool, error) {
	query := "SELECT k FROM entries WHERE k >= ? ORDER BY k DESC LIMIT 1"
	args := []any{prefix}
	if upper := prefixUpperBound(prefix); upper != nil {
		query = "SELECT k FROM entries WHERE k >= ? AND k < ? ORDER BY k DESC LIMIT 1"
		args = append(args, upper)
	}
	var k []byte
	err := s.db.QueryRowxContext(ctx, query, args...).Scan(&k)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("last", err)
	}
	return k, true, nil
}

func (s *sqliteStore) Put(ctx context.Context, key, value []byte) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO entries (k, v) VALUES (?, ?)", key, value)
	return wrap("put", err)
}

func (s *sqliteStore) Delete(ctx context.Context, key []byte) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE k = ?", key)
	return wrap("delete", err)
}

func (s *sqliteStore) Write(ctx context.Context, muts []Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("write", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	for _, m := range muts {
		switch m.Kind {
		case MutationPut:
			_, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO entries (k, v) VALUES (?, ?)", m.Key, m.Value)
		case MutationDelete:
			_, err = tx.ExecContext(ctx, "DELETE FROM entries WHERE k = ?", m.Key)
		default:
			err = errUnknownMutation(m.Kind)
		}
		if err != nil {
			return wrap("write", err)
		}
	}
	return wrap("write", tx.Commit())
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
