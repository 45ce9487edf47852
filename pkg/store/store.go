// Package store persists visitor locations in an embedded badger database:
// the visitor's own coordinate and the rolling buffer of recent visitors the
// relay replays to newly connected sessions.
package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

var (
	keySelf        = []byte("visitor/self")
	keyRecent      = []byte("visitor/recent")
	keyShowMarkers = []byte("prefs/show-markers")
)

// MaxRecent caps the persisted recent-visitor buffer. Older entries fall off
// the front.
const MaxRecent = 30

// Store is a badger-backed location store. It implements globe.LocationStore.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open location store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store with no backing files. Used in tests and when
// persistence is disabled.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LoadLocation returns the visitor's own stored coordinate. ok is false when
// nothing has been saved yet.
func (s *Store) LoadLocation() (rec globe.StoredLocation, ok bool, err error) {
	raw, err := s.get(keySelf)
	if err != nil || raw == nil {
		return globe.StoredLocation{}, false, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return globe.StoredLocation{}, false, fmt.Errorf("decode stored location: %w", err)
	}
	return rec, true, nil
}

// SaveLocation overwrites the visitor's own stored coordinate.
func (s *Store) SaveLocation(rec globe.StoredLocation) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode stored location: %w", err)
	}
	return s.set(keySelf, raw)
}

// LoadRecent returns the persisted recent-visitor buffer, oldest first.
// Expired records are dropped on read.
func (s *Store) LoadRecent() ([]globe.StoredLocation, error) {
	raw, err := s.get(keyRecent)
	if err != nil || raw == nil {
		return nil, err
	}
	var recs []globe.StoredLocation
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("decode recent visitors: %w", err)
	}
	return recs, nil
}

// SaveRecent overwrites the recent-visitor buffer, keeping only the newest
// MaxRecent entries.
func (s *Store) SaveRecent(recs []globe.StoredLocation) error {
	if n := len(recs) - MaxRecent; n > 0 {
		recs = recs[n:]
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode recent visitors: %w", err)
	}
	return s.set(keyRecent, raw)
}

// LoadShowMarkers returns the persisted marker-visibility preference. ok is
// false when the visitor has never toggled it.
func (s *Store) LoadShowMarkers() (show bool, ok bool, err error) {
	raw, err := s.get(keyShowMarkers)
	if err != nil || raw == nil {
		return false, false, err
	}
	if err := json.Unmarshal(raw, &show); err != nil {
		return false, false, fmt.Errorf("decode marker preference: %w", err)
	}
	return show, true, nil
}

// SaveShowMarkers persists the marker-visibility preference.
func (s *Store) SaveShowMarkers(show bool) error {
	raw, err := json.Marshal(show)
	if err != nil {
		return fmt.Errorf("encode marker preference: %w", err)
	}
	return s.set(keyShowMarkers, raw)
}

// AppendRecent loads the buffer, appends one record and saves it back.
func (s *Store) AppendRecent(rec globe.StoredLocation) error {
	recs, err := s.LoadRecent()
	if err != nil {
		return err
	}
	return s.SaveRecent(append(recs, rec))
}

func (s *Store) get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	return val, err
}

func (s *Store) set(key, val []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}
