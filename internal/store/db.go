package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/lazypower/paramem/internal/facts"
)

// SQLite keeps every document as a row in a single SQLite database. It is
// the backend for deployments that prefer one file over a PARA tree.
type SQLite struct {
	*sql.DB
	Path string
}

// DefaultDBPath returns the default database path: ~/.paramem/paramem.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "get home dir")
	}
	return filepath.Join(home, ".paramem", "paramem.db"), nil
}

// OpenSQLite opens (or creates) the database at path, configures pragmas,
// and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create db dir")
	}

	// busy_timeout goes in the DSN so every pooled connection waits on
	// another process's write lock instead of failing with SQLITE_BUSY.
	sqlDB, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	sqlDB.SetMaxOpenConns(1)
	return initSQLite(sqlDB, path)
}

// OpenSQLiteMemory opens an in-memory database for testing. The pool is
// pinned to one connection so every query sees the same database.
func OpenSQLiteMemory() (*SQLite, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite memory")
	}
	sqlDB.SetMaxOpenConns(1)
	return initSQLite(sqlDB, ":memory:")
}

func initSQLite(sqlDB *sql.DB, path string) (*SQLite, error) {
	db := &SQLite{DB: sqlDB, Path: path}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}

func (db *SQLite) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return errors.Wrapf(err, "pragma %q", p)
		}
	}
	return nil
}

func (db *SQLite) Get(ctx context.Context, key Key) ([]byte, error) {
	var body string
	err := db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE space = ? AND path = ?`,
		string(key.Space), key.Path).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(facts.ErrNotFound, "%s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	return []byte(body), nil
}

// Update runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection, which takes SQLite's write lock up front.
func (db *SQLite) Update(ctx context.Context, key Key, fn UpdateFunc) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return errors.Wrapf(err, "begin update %s", key)
	}
	defer func() {
		if err != nil {
			conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var body string
	exists := true
	scanErr := conn.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE space = ? AND path = ?`,
		string(key.Space), key.Path).Scan(&body)
	if scanErr == sql.ErrNoRows {
		exists = false
	} else if scanErr != nil {
		return errors.Wrapf(scanErr, "read %s", key)
	}

	var cur []byte
	if exists {
		cur = []byte(body)
	}
	out, err := fn(cur, exists)
	if err != nil {
		return err
	}
	if out != nil {
		if err := upsert(ctx, conn, key, out); err != nil {
			return err
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return errors.Wrapf(err, "commit update %s", key)
	}
	return nil
}

func (db *SQLite) Put(ctx context.Context, key Key, data []byte) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer conn.Close()
	return upsert(ctx, conn, key, data)
}

// listFactsQuery repeats the LIKE term of idx_documents_facts verbatim so
// the planner can use the partial index.
const listFactsQuery = `SELECT path FROM documents WHERE space = ? AND path LIKE '%/facts.json'`

func (db *SQLite) List(ctx context.Context) ([]facts.EntityRef, error) {
	rows, err := db.QueryContext(ctx, listFactsQuery, string(SpaceEntities))
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
	}
	defer rows.Close()

	seen := make(map[facts.EntityRef]bool)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, errors.Wrap(err, "scan document path")
		}
		if ref, ok := RefFromFactsPath(path); ok {
			seen[ref] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sortRefs(seen), nil
}

func upsert(ctx context.Context, conn *sql.Conn, key Key, data []byte) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO documents (space, path, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(space, path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, string(key.Space), key.Path, string(data), time.Now().UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	return nil
}
