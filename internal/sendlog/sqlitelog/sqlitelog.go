// Package sqlitelog implements a durable sendlog.Log backed by SQLite,
// grounded on the teacher's PersistentStore: a sql.DB opened against
// modernc.org/sqlite, a versioned schema created on open, and
// mutex-guarded methods around ordinary exec/query calls.
package sqlitelog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/sendlog"
)

type Log struct {
	db   *sql.DB
	path string
	mu   sync.Mutex

	gcGeneration string
}

func New(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlitelog: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	l := &Log{db: db, path: dbPath}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS committed_addresses (
			gc_generation TEXT NOT NULL,
			address BLOB NOT NULL,
			PRIMARY KEY (gc_generation, address)
		);

		CREATE TABLE IF NOT EXISTS pending_addresses (
			gc_generation TEXT NOT NULL,
			address BLOB NOT NULL,
			PRIMARY KEY (gc_generation, address)
		);

		CREATE TABLE IF NOT EXISTS stat_cache (
			dir_hash BLOB PRIMARY KEY,
			size INTEGER NOT NULL,
			packed_addresses BLOB NOT NULL,
			serialized_index BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS commits (
			item_id TEXT PRIMARY KEY,
			gc_generation TEXT NOT NULL,
			committed_at TIMESTAMP NOT NULL
		);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlitelog: init schema: %w", err)
	}

	var version int
	err := l.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := l.db.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("sqlitelog: set schema version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("sqlitelog: query schema version: %w", err)
	}
	return nil
}

func (l *Log) Open(gcGeneration string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var prev string
	err := l.db.QueryRow("SELECT value FROM meta WHERE key = 'gc_generation'").Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("sqlitelog: read prior gc_generation: %w", err)
	}

	if _, err := l.db.Exec(
		"INSERT INTO meta (key, value) VALUES ('gc_generation', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		gcGeneration,
	); err != nil {
		return "", fmt.Errorf("sqlitelog: set gc_generation: %w", err)
	}
	if _, err := l.db.Exec("DELETE FROM pending_addresses WHERE gc_generation = ?", gcGeneration); err != nil {
		return "", fmt.Errorf("sqlitelog: clear pending addresses: %w", err)
	}

	l.gcGeneration = gcGeneration
	return prev, nil
}

func (l *Log) CachedAddress(addr address.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var count int
	err := l.db.QueryRow(
		"SELECT COUNT(*) FROM committed_addresses WHERE gc_generation = ? AND address = ?",
		l.gcGeneration, addr[:],
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlitelog: query cached address: %w", err)
	}
	return count > 0, nil
}

func (l *Log) AddAddress(addr address.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(
		"INSERT OR IGNORE INTO pending_addresses (gc_generation, address) VALUES (?, ?)",
		l.gcGeneration, addr[:],
	)
	if err != nil {
		return fmt.Errorf("sqlitelog: add address: %w", err)
	}
	return nil
}

func (l *Log) Checkpoint() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkpointLocked()
}

func (l *Log) checkpointLocked() error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitelog: begin checkpoint: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO committed_addresses (gc_generation, address)
		 SELECT gc_generation, address FROM pending_addresses WHERE gc_generation = ?`,
		l.gcGeneration,
	); err != nil {
		return fmt.Errorf("sqlitelog: promote pending addresses: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM pending_addresses WHERE gc_generation = ?", l.gcGeneration); err != nil {
		return fmt.Errorf("sqlitelog: clear pending addresses: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitelog: commit checkpoint: %w", err)
	}
	return nil
}

func (l *Log) Commit(itemID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if itemID == "" {
		return fmt.Errorf("sqlitelog: commit requires a non-empty item id")
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitelog: begin commit: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO committed_addresses (gc_generation, address)
		 SELECT gc_generation, address FROM pending_addresses WHERE gc_generation = ?`,
		l.gcGeneration,
	); err != nil {
		return fmt.Errorf("sqlitelog: promote pending addresses: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM pending_addresses WHERE gc_generation = ?", l.gcGeneration); err != nil {
		return fmt.Errorf("sqlitelog: clear pending addresses: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO commits (item_id, gc_generation, committed_at) VALUES (?, ?, ?)",
		itemID, l.gcGeneration, time.Now(),
	); err != nil {
		return fmt.Errorf("sqlitelog: record commit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitelog: commit transaction: %w", err)
	}
	return nil
}

func (l *Log) StatCacheLookup(dirHash [32]byte) (sendlog.StatCacheEntry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var size uint64
	var packed, idx []byte
	err := l.db.QueryRow(
		"SELECT size, packed_addresses, serialized_index FROM stat_cache WHERE dir_hash = ?",
		dirHash[:],
	).Scan(&size, &packed, &idx)
	if err == sql.ErrNoRows {
		return sendlog.StatCacheEntry{}, false, nil
	}
	if err != nil {
		return sendlog.StatCacheEntry{}, false, fmt.Errorf("sqlitelog: stat cache lookup: %w", err)
	}

	addrs, err := unpackAddresses(packed)
	if err != nil {
		return sendlog.StatCacheEntry{}, false, err
	}
	return sendlog.StatCacheEntry{Size: size, PackedAddresses: addrs, SerializedIndex: idx}, true, nil
}

func (l *Log) AddStatCacheData(dirHash [32]byte, entry sendlog.StatCacheEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	packed := packAddresses(entry.PackedAddresses)
	_, err := l.db.Exec(
		"INSERT OR REPLACE INTO stat_cache (dir_hash, size, packed_addresses, serialized_index) VALUES (?, ?, ?, ?)",
		dirHash[:], entry.Size, packed, entry.SerializedIndex,
	)
	if err != nil {
		return fmt.Errorf("sqlitelog: add stat cache data: %w", err)
	}
	return nil
}

// PerformCacheInvalidations drops the entire committed-address and stat
// cache unless hasDeltaID is set, in which case every entry is retained:
// a fresh gc_generation with no delta id gives the client no continuity
// guarantee for what the server already holds, so nothing cached can be
// trusted (spec §4.7 invariant).
func (l *Log) PerformCacheInvalidations(hasDeltaID bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hasDeltaID {
		return nil
	}
	if _, err := l.db.Exec("DELETE FROM committed_addresses"); err != nil {
		return fmt.Errorf("sqlitelog: invalidate committed addresses: %w", err)
	}
	if _, err := l.db.Exec("DELETE FROM stat_cache"); err != nil {
		return fmt.Errorf("sqlitelog: invalidate stat cache: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func packAddresses(addrs []address.Address) []byte {
	out := make([]byte, 0, len(addrs)*address.Size)
	for _, a := range addrs {
		out = append(out, a[:]...)
	}
	return out
}

func unpackAddresses(data []byte) ([]address.Address, error) {
	if len(data)%address.Size != 0 {
		return nil, fmt.Errorf("sqlitelog: packed address blob not a multiple of address size")
	}
	n := len(data) / address.Size
	out := make([]address.Address, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], data[i*address.Size:(i+1)*address.Size])
	}
	return out, nil
}
