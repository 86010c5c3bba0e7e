// Package store persists graph snapshots, journeys, and user profiles in an
// embedded Badger database. Snapshots are written behind a checksum envelope
// so corruption is detected at load time, and the latest-version pointer is
// advanced with compare-and-swap semantics so concurrent writers cannot
// silently overwrite each other.
package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/pathweave/pathweave/pkg/graph"
	"github.com/pathweave/pathweave/pkg/types"
)

// ErrStoreClosed is returned for operations on a closed store.
var ErrStoreClosed = errors.New("store is closed")

const (
	snapshotPrefix = "snapshot/"
	latestPrefix   = "latest/"
	journeyPrefix  = "journey/"
	profilePrefix  = "profile/"
)

// Store is an embedded persistence layer. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the database at path. An empty path opens an
// in-memory store, used in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *Store) withView(fn func(txn *badger.Txn) error) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) withUpdate(fn func(txn *badger.Txn) error) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

// envelope wraps a persisted value with a content checksum.
type envelope struct {
	Checksum string          `json:"checksum"`
	Body     json.RawMessage `json:"body"`
}

func seal(body []byte) ([]byte, error) {
	sum := sha256.Sum256(body)
	return json.Marshal(envelope{
		Checksum: hex.EncodeToString(sum[:]),
		Body:     body,
	})
}

func unseal(data []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSnapshotCorrupt, err)
	}
	sum := sha256.Sum256(env.Body)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", types.ErrSnapshotCorrupt)
	}
	return env.Body, nil
}

func snapshotKey(materialSet string, version uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%016x", snapshotPrefix, materialSet, version))
}

// SaveSnapshot persists one graph version. expectedPrev is the version the
// caller believes is current; types.ErrVersionConflict is returned when
// another writer advanced the material set in the meantime.
func (s *Store) SaveSnapshot(g *graph.Graph, expectedPrev uint64) error {
	body, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	sealed, err := seal(body)
	if err != nil {
		return fmt.Errorf("failed to seal snapshot: %w", err)
	}

	latestKey := []byte(latestPrefix + g.MaterialSet)
	err = s.withUpdate(func(txn *badger.Txn) error {
		current := uint64(0)
		item, err := txn.Get(latestKey)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("%w: bad version pointer", types.ErrSnapshotCorrupt)
				}
				current = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}

		if current != expectedPrev {
			return fmt.Errorf("material set %s at version %d, expected %d: %w",
				g.MaterialSet, current, expectedPrev, types.ErrVersionConflict)
		}

		if err := txn.Set(snapshotKey(g.MaterialSet, g.Version), sealed); err != nil {
			return err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], g.Version)
		return txn.Set(latestKey, buf[:])
	})
	if err != nil {
		return err
	}

	s.logger.Debug("snapshot saved",
		"material_set", g.MaterialSet, "version", g.Version, "bytes", len(sealed))
	return nil
}

// LoadSnapshot reads one graph version, verifying its checksum.
func (s *Store) LoadSnapshot(materialSet string, version uint64) (*graph.Graph, error) {
	var g graph.Graph
	err := s.withView(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(materialSet, version))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("snapshot %s@%d: %w", materialSet, version, badger.ErrKeyNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			body, err := unseal(val)
			if err != nil {
				return fmt.Errorf("snapshot %s@%d: %w", materialSet, version, err)
			}
			return json.Unmarshal(body, &g)
		})
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// LatestVersion returns the current version pointer for a material set, zero
// when none has been saved.
func (s *Store) LatestVersion(materialSet string) (uint64, error) {
	var version uint64
	err := s.withView(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestPrefix + materialSet))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("%w: bad version pointer", types.ErrSnapshotCorrupt)
			}
			version = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return version, err
}

// LoadLatest reads the newest snapshot of a material set, or nil when the
// material set has never been saved.
func (s *Store) LoadLatest(materialSet string) (*graph.Graph, error) {
	version, err := s.LatestVersion(materialSet)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, nil
	}
	return s.LoadSnapshot(materialSet, version)
}

// SaveJourney persists a journey under its id. Saved journeys are immutable
// snapshots; overwriting the same id with the same content is a no-op.
func (s *Store) SaveJourney(j *types.Journey) error {
	body, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to encode journey: %w", err)
	}
	sealed, err := seal(body)
	if err != nil {
		return fmt.Errorf("failed to seal journey: %w", err)
	}
	return s.withUpdate(func(txn *badger.Txn) error {
		return txn.Set([]byte(journeyPrefix+j.ID), sealed)
	})
}

// LoadJourney reads a saved journey; a missing id yields badger.ErrKeyNotFound.
func (s *Store) LoadJourney(id string) (*types.Journey, error) {
	var j types.Journey
	err := s.withView(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(journeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			body, err := unseal(val)
			if err != nil {
				return fmt.Errorf("journey %s: %w", id, err)
			}
			return json.Unmarshal(body, &j)
		})
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// SaveProfile persists a user profile keyed by user id.
func (s *Store) SaveProfile(p *types.UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return s.withUpdate(func(txn *badger.Txn) error {
		return txn.Set([]byte(profilePrefix+p.UserID), body)
	})
}

// LoadProfile reads a user profile, or nil when the user has none yet.
func (s *Store) LoadProfile(userID string) (*types.UserProfile, error) {
	var p *types.UserProfile
	err := s.withView(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profilePrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p = &types.UserProfile{}
			return json.Unmarshal(val, p)
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
