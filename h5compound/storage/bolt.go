package storage

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("h5compound")

// BoltOptions configures a bbolt backend.
type BoltOptions struct {
	Options
	// Timeout is how long to wait for the file lock; 0 waits forever.
	Timeout time.Duration
	// NoSync skips fsync after each commit.  Only for tests and scratch files.
	NoSync bool
}

type boltStore struct {
	bdb *bbolt.DB
}

// OpenBolt opens or creates a bbolt file backend at path.
func OpenBolt(path string, opts BoltOptions) (*Backend, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = opts.Timeout
	if opts.NoSync {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	}
	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	return newBackend(&boltStore{bdb: bdb}, "bolt", opts.Options), nil
}

func (s *boltStore) get(key []byte) ([]byte, error) {
	var v []byte
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		// values are only valid for the life of the transaction
		if raw := tx.Bucket(boltBucket).Get(key); raw != nil {
			v = bytes.Clone(raw)
			if v == nil {
				v = []byte{}
			}
		}
		return nil
	})
	return v, err
}

func (s *boltStore) put(key, value []byte) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

func (s *boltStore) close() error {
	return s.bdb.Close()
}
