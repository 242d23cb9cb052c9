// Package sqlitestore implements a cas.Store backed by SQLite,
// grounded on the teacher's PersistentStore: a sql.DB opened against
// modernc.org/sqlite with a schema created on open.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cas"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			address BLOB PRIMARY KEY,
			data BLOB NOT NULL,
			stored_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_stored_at ON chunks(stored_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlitestore: init schema: %w", err)
	}
	return nil
}

func (s *Store) Has(addr address.Address) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE address = ?", addr[:]).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: has: %w", err)
	}
	return count > 0, nil
}

func (s *Store) Put(addr address.Address, data []byte) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO chunks (address, data, stored_at) VALUES (?, ?, ?)",
		addr[:], data, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: put: %w", err)
	}
	return nil
}

func (s *Store) Get(addr address.Address) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM chunks WHERE address = ?", addr[:]).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, cas.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get: %w", err)
	}
	return data, nil
}

func (s *Store) Delete(addr address.Address) error {
	_, err := s.db.Exec("DELETE FROM chunks WHERE address = ?", addr[:])
	if err != nil {
		return fmt.Errorf("sqlitestore: delete: %w", err)
	}
	return nil
}

func (s *Store) Walk(fn func(addr address.Address, storedAt time.Time) error) error {
	rows, err := s.db.Query("SELECT address, stored_at FROM chunks")
	if err != nil {
		return fmt.Errorf("sqlitestore: walk: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key []byte
		var storedAt time.Time
		if err := rows.Scan(&key, &storedAt); err != nil {
			return fmt.Errorf("sqlitestore: scan: %w", err)
		}
		var addr address.Address
		copy(addr[:], key)
		if err := fn(addr, storedAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
