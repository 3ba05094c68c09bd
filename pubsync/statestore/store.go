// Package statestore persists the latest known states of the clients of a sync group,
// so that a restarted node doesn't have to fetch them again and doesn't reuse its own
// message numbers.
package statestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/spacemeshos/go-chronosync/pubsync"
)

var clientPrefix = []byte("c/")

// Store is a leveldb backed record of the latest message of every client.
type Store struct {
	logger *zap.Logger
	path   string

	// mu serializes the read-modify-write of Save.
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens the store in dir, creating it if needed. A corrupted store is recovered.
func Open(logger *zap.Logger, dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{
		Filter: filter.NewBloomFilter(10),
	})
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		logger.Warn("state store is corrupted, recovering", zap.String("path", dir), zap.Error(err))
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open state store %s: %w", dir, err)
	}
	return &Store{logger: logger, path: dir, db: db}, nil
}

// Path returns the path to the store directory.
func (s *Store) Path() string {
	return s.path
}

func clientKey(client uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, clientPrefix...), client)
}

// Load returns all the stored states, ordered by client.
func (s *Store) Load() ([]pubsync.ClientState, error) {
	it := s.db.NewIterator(util.BytesPrefix(clientPrefix), nil)
	defer it.Release()
	var states []pubsync.ClientState
	for it.Next() {
		key, value := it.Key(), it.Value()
		if len(key) != len(clientPrefix)+8 || len(value) != 8 {
			return nil, fmt.Errorf("corrupted state record %x", key)
		}
		states = append(states, pubsync.ClientState{
			Client:  binary.BigEndian.Uint64(key[len(clientPrefix):]),
			Message: binary.BigEndian.Uint64(value),
		})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return states, nil
}

// Get returns the stored message of the client. ok is false if the client is unknown.
func (s *Store) Get(client uint64) (message uint64, ok bool, err error) {
	value, err := s.db.Get(clientKey(client), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("get state of %016x: %w", client, err)
	case len(value) != 8:
		return 0, false, fmt.Errorf("corrupted state of %016x", client)
	}
	return binary.BigEndian.Uint64(value), true, nil
}

// Save stores the states in a single batch. A state only overwrites an older message
// of the same client. It returns the number of states written.
func (s *Store) Save(states []pubsync.ClientState) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[uint64]uint64, len(states))
	for _, st := range states {
		latest[st.Client] = max(latest[st.Client], st.Message)
	}
	var batch leveldb.Batch
	for client, message := range latest {
		stored, ok, err := s.Get(client)
		if err != nil {
			return 0, err
		}
		if ok && stored >= message {
			continue
		}
		batch.Put(clientKey(client), binary.BigEndian.AppendUint64(nil, message))
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := s.db.Write(&batch, &opt.WriteOptions{Sync: true}); err != nil {
		return 0, fmt.Errorf("write states: %w", err)
	}
	s.logger.Debug("saved states", zap.Int("count", batch.Len()))
	return batch.Len(), nil
}

// Close closes the store.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close state store: %w", err)
	}
	return nil
}
