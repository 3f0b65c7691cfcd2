package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrStateNotFound is returned for unknown, expired or already used states.
var ErrStateNotFound = errors.New("auth: oauth state not found")

const stateKeyPrefix = "oauth_state:"

// StateStore keeps OAuth state parameters until the provider redirects back.
// Entries expire after ttl and can be consumed once.
type StateStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewStateStore opens an in-memory Badger store.
func NewStateStore(ttl time.Duration) (*StateStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &StateStore{db: db, ttl: ttl}, nil
}

// New generates and stores a random state value.
func (s *StateStore) New() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(stateKeyPrefix+state), []byte{1}).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	return state, nil
}

// Consume removes state and reports ErrStateNotFound when it was not issued,
// has expired or was already consumed.
func (s *StateStore) Consume(state string) error {
	if state == "" {
		return ErrStateNotFound
	}
	key := []byte(stateKeyPrefix + state)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrStateNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStateNotFound), errors.Is(err, badger.ErrConflict):
		return ErrStateNotFound
	default:
		return fmt.Errorf("consume state: %w", err)
	}
}

// Close releases the store.
func (s *StateStore) Close() error {
	return s.db.Close()
}
