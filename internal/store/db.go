// Package store is the daemon's local SQLite cache: the mirrored inbox and
// message logs, the pending-send outbox and sync checkpoints.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoCache is returned by OpenReadOnly when the account has never been
// synced on this machine.
var ErrNoCache = errors.New("no local cache")

// DB wraps the per-account cache.db connection.
type DB struct {
	*sql.DB
	readOnly bool
}

// Options tune the connection. The zero value is what the daemon uses.
type Options struct {
	ReadOnly    bool
	BusyTimeout time.Duration
}

// Open opens (creating if needed) the cache for read and write.
func Open(path string) (*DB, error) {
	return OpenWith(path, Options{})
}

// OpenReadOnly opens an existing cache without taking write locks, for
// readers that run beside (or instead of) the daemon.
func OpenReadOnly(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNoCache, path)
		}
		return nil, err
	}
	return OpenWith(path, Options{ReadOnly: true})
}

// OpenWith opens the cache with explicit options.
func OpenWith(path string, opts Options) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, readOnly: opts.ReadOnly}, nil
}

// ReadOnly reports whether the connection was opened without write access.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

func dsn(path string, opts Options) string {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	if opts.ReadOnly {
		q.Set("mode", "ro")
	} else {
		q.Set("_journal_mode", "WAL")
	}
	return "file:" + path + "?" + q.Encode()
}
