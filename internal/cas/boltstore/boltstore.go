// Package boltstore implements a cas.Store backed by BoltDB, adapted
// from the teacher's BoltCAS: a single bucket keyed by address, with
// chunk bytes and an 8-byte big-endian stored-at timestamp packed into
// the value so GC sweeps can walk by age without a second index.
package boltstore

import (
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"

	"github.com/quantarax/vaultbridge/internal/address"
	"github.com/quantarax/vaultbridge/internal/cas"
)

var bucketChunks = []byte("chunks")

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(filepath.Clean(path), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketChunks)
		return e
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Has(addr address.Address) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketChunks)
		ok = bk.Get(addr[:]) != nil
		return nil
	})
	return ok, err
}

func (s *Store) Put(addr address.Address, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketChunks)
		if bk.Get(addr[:]) != nil {
			return nil
		}
		v := make([]byte, 8+len(data))
		binary.BigEndian.PutUint64(v[:8], uint64(time.Now().Unix()))
		copy(v[8:], data)
		return bk.Put(addr[:], v)
	})
}

func (s *Store) Get(addr address.Address) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketChunks)
		v := bk.Get(addr[:])
		if v == nil {
			return cas.ErrNotFound
		}
		out = append([]byte(nil), v[8:]...)
		return nil
	})
	return out, err
}

func (s *Store) Delete(addr address.Address) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChunks).Delete(addr[:])
	})
}

func (s *Store) Walk(fn func(addr address.Address, storedAt time.Time) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChunks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var addr address.Address
			copy(addr[:], k)
			ts := time.Unix(int64(binary.BigEndian.Uint64(v[:8])), 0)
			if err := fn(addr, ts); err != nil {
				return err
			}
		}
		return nil
	})
}
