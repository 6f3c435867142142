// Package emulator is a local stand-in for the bookkeeping service's REST
// API, for development and testing against realistic pagination, sessions,
// and error behavior without touching the real service.
package emulator

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// Bucket names.
const (
	BucketMutations = "mutations"
	BucketRelations = "relations"
	BucketSessions  = "sessions"
)

// Store represents the bbolt database wrapper.
type Store struct {
	db *bolt.DB
}

// NewStore creates a new Store instance and initializes buckets.
func NewStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := []string{BucketMutations, BucketRelations, BucketSessions}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutMutation stores a mutation keyed by its id.
func (s *Store) PutMutation(m Mutation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketMutations))
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal mutation: %w", err)
		}
		return b.Put(itob(m.ID), data)
	})
}

// GetMutation retrieves a mutation by id.
func (s *Store) GetMutation(id int64) (*Mutation, error) {
	var m Mutation
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BucketMutations)).Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMutations returns mutations ordered by id, honoring limit and offset.
// The second return value is the total count before slicing.
func (s *Store) ListMutations(limit, offset int) ([]Mutation, int, error) {
	var all []Mutation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketMutations)).ForEach(func(k, v []byte) error {
			var m Mutation
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			all = append(all, m)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	// bbolt iterates big-endian keys in order, but seeded ids may have been
	// written out of order.
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := len(all)
	if offset >= total {
		return []Mutation{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// RecentMutations returns the last n mutations by id, emulating the legacy
// interface's bounded window.
func (s *Store) RecentMutations(n int) ([]Mutation, error) {
	all, _, err := s.ListMutations(0, 0)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// PutRelation stores a relation keyed by its id.
func (s *Store) PutRelation(r Relation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketRelations))
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal relation: %w", err)
		}
		return b.Put([]byte(r.ID), data)
	})
}

// GetRelation retrieves a relation by id.
func (s *Store) GetRelation(id string) (*Relation, error) {
	var r Relation
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BucketRelations)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// PutSession stores a session token.
func (s *Store) PutSession(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketSessions)).Put([]byte(token), []byte("1"))
	})
}

// HasSession reports whether a session token exists.
func (s *Store) HasSession(token string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(BucketSessions)).Get([]byte(token)) != nil
		return nil
	})
	return found, err
}

// itob converts an int64 to a byte slice for use as a bbolt key.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}
