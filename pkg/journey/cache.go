package journey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pathweave/pathweave/pkg/types"
)

// DefaultDivergence is the profile drift above which a cached journey is
// considered stale for a user even though the quantized signature matched
// when it was stored.
const DefaultDivergence = 0.25

// CacheKey identifies one cacheable planning request.
func CacheKey(focalID string, graphVersion uint64, profileSignature string, jt types.JourneyType) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s:%s", focalID, graphVersion, profileSignature, jt)))
	return hex.EncodeToString(sum[:16])
}

type cacheEntry struct {
	journey  *types.Journey
	profile  *types.UserProfile
	storedAt time.Time
}

// Cache memoizes planned journeys keyed on focal, graph version, profile
// signature, and journey type. Concurrent requests for the same key collapse
// into a single planning run.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	group      singleflight.Group
	maxEntries int
	divergence float64
	logger     *slog.Logger

	hits   uint64
	misses uint64
}

// NewCache creates a cache holding at most maxEntries journeys.
func NewCache(maxEntries int, divergence float64, logger *slog.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if divergence <= 0 {
		divergence = DefaultDivergence
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		divergence: divergence,
		logger:     logger,
	}
}

// GetOrPlan returns the cached journey for the key, or runs plan exactly once
// for all concurrent callers of the same key and caches the result. The bool
// reports a cache hit.
func (c *Cache) GetOrPlan(ctx context.Context, key string, profile *types.UserProfile, plan func(ctx context.Context) (*types.Journey, error)) (*types.Journey, bool, error) {
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		if entry.profile.SignatureDistance(profile) <= c.divergence {
			c.hits++
			c.mu.Unlock()
			return entry.journey, true, nil
		}
		// The user's profile drifted past the entry; evict and replan.
		delete(c.entries, key)
		c.logger.Debug("evicting diverged journey", "key", key)
	}
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		journey, err := plan(ctx)
		if err != nil {
			return nil, err
		}
		c.put(key, journey, profile)
		return journey, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*types.Journey), false, nil
}

func (c *Cache) put(key string, journey *types.Journey, profile *types.UserProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{
		journey:  journey,
		profile:  profile.Clone(),
		storedAt: time.Now(),
	}
}

// evictOldestLocked drops the oldest entry; ties break on key for
// determinism.
func (c *Cache) evictOldestLocked() {
	oldest := ""
	for key, entry := range c.entries {
		if oldest == "" {
			oldest = key
			continue
		}
		o := c.entries[oldest]
		if entry.storedAt.Before(o.storedAt) ||
			(entry.storedAt.Equal(o.storedAt) && key < oldest) {
			oldest = key
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
	}
}

// InvalidateBefore drops every entry planned against a graph version older
// than the given one. Called after a new graph version is published.
func (c *Cache) InvalidateBefore(version uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []string
	for key, entry := range c.entries {
		if entry.journey.GraphVersion < version {
			stale = append(stale, key)
		}
	}
	sort.Strings(stale)
	for _, key := range stale {
		delete(c.entries, key)
	}
	if len(stale) > 0 {
		c.logger.Debug("invalidated stale journeys", "version", version, "evicted", len(stale))
	}
	return len(stale)
}

// Stats returns hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached journeys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
