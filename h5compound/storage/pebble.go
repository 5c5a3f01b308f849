package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebbleOptions configures a pebble backend.
type PebbleOptions struct {
	Options
	// FS is the file system holding the store; the OS file system if nil.
	// vfs.NewMem() gives a store that lives in memory.
	FS vfs.FS
	// Sync syncs the write-ahead log on each write.
	Sync bool
}

type pebbleStore struct {
	db    *pebble.DB
	write *pebble.WriteOptions
}

// OpenPebble opens or creates a pebble backend in the directory dir.
func OpenPebble(dir string, opts PebbleOptions) (*Backend, error) {
	db, err := pebble.Open(dir, &pebble.Options{FS: opts.FS})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	s := &pebbleStore{db: db, write: pebble.NoSync}
	if opts.Sync {
		s.write = pebble.Sync
	}
	return newBackend(s, "pebble", opts.Options), nil
}

func (s *pebbleStore) get(key []byte) ([]byte, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	v := bytes.Clone(data)
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (s *pebbleStore) put(key, value []byte) error {
	return s.db.Set(key, value, s.write)
}

func (s *pebbleStore) close() error {
	return s.db.Close()
}
