package node

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/nodekeeper/internal/model"

	_ "modernc.org/sqlite"
)

const memoryRepo = ":memory:"

const createRepoTables = `
CREATE TABLE IF NOT EXISTS repo_config (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS blocks (
    key        TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS pins (
    key        TEXT PRIMARY KEY REFERENCES blocks(key),
    created_at DATETIME NOT NULL
)`

const peerIDKey = "peer_id"

// ErrBlockNotFound is returned when no block is stored under a key.
var ErrBlockNotFound = errors.New("block not found")

// Repo is the node's block and pin storage.
type Repo struct {
	db     *sql.DB
	peerID string
}

// OpenRepo opens (or initialises) the repo at path. An empty path or
// ":memory:" gives a throwaway in-memory repo.
func OpenRepo(path string) (*Repo, error) {
	if path == "" {
		path = memoryRepo
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if path == memoryRepo {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(createRepoTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("create repo tables: %w", err)
	}

	r := &Repo{db: db}
	if err := r.loadPeerID(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// loadPeerID reads the repo identity, generating one on first open.
func (r *Repo) loadPeerID() error {
	err := r.db.QueryRow("SELECT value FROM repo_config WHERE key = ?", peerIDKey).Scan(&r.peerID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read peer id: %w", err)
	}

	r.peerID = model.NewID()
	if _, err := r.db.Exec("INSERT INTO repo_config (key, value) VALUES (?, ?)", peerIDKey, r.peerID); err != nil {
		return fmt.Errorf("store peer id: %w", err)
	}
	return nil
}

// PeerID returns the repo identity.
func (r *Repo) PeerID() string {
	return r.peerID
}

// Close closes the underlying database.
func (r *Repo) Close() error {
	return r.db.Close()
}

// BlockKey returns the content key of data.
func BlockKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256-" + hex.EncodeToString(sum[:])
}

// PutBlock stores data and returns its key. Storing the same data twice is a
// no-op.
func (r *Repo) PutBlock(ctx context.Context, data []byte) (string, error) {
	key := BlockKey(data)
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO blocks (key, data, created_at) VALUES (?, ?, ?)",
		key, data, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert block: %w", err)
	}
	return key, nil
}

// GetBlock returns the block stored under key.
func (r *Repo) GetBlock(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, "SELECT data FROM blocks WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	return data, nil
}

// Pin marks the block under key as pinned. The block must exist.
func (r *Repo) Pin(ctx context.Context, key string) error {
	var exists int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM blocks WHERE key = ?", key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBlockNotFound
	}
	if err != nil {
		return fmt.Errorf("check block: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO pins (key, created_at) VALUES (?, ?)",
		key, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert pin: %w", err)
	}
	return nil
}

// Pins returns all pinned keys, oldest first.
func (r *Repo) Pins(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key FROM pins ORDER BY created_at, key")
	if err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan pin: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pins: %w", err)
	}
	return keys, nil
}
