// Package state keeps small pieces of CLI state that must survive restarts,
// such as the per-identity transaction nonce, in a bbolt file.
package state

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/mirokugang/mukon/internal/identity"
	bolt "go.etcd.io/bbolt"
)

var (
	noncesBucket = []byte("nonces")
	prefsBucket  = []byte("prefs")
)

var ErrNotFound = errors.New("state: key not found")

type BoltStore struct {
	db *bolt.DB
}

// Open opens or creates the state file at path.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{noncesBucket, prefsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// NextNonce returns a nonce strictly greater than every nonce previously
// returned for id. It never goes below the current unix time in
// nanoseconds, so a lost state file does not reuse old nonces.
func (s *BoltStore) NextNonce(id identity.Identity) (uint64, error) {
	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(noncesBucket)
		var last uint64
		if v := b.Get(id[:]); len(v) == 8 {
			last = binary.BigEndian.Uint64(v)
		}
		next = last + 1
		if now := uint64(time.Now().UnixNano()); now > next {
			next = now
		}
		return b.Put(id[:], binary.BigEndian.AppendUint64(nil, next))
	})
	return next, err
}

func (s *BoltStore) SetPref(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(prefsBucket).Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) Pref(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(prefsBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		value = string(v)
		return nil
	})
	return value, err
}
