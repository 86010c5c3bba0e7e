package journey

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pathweave/pathweave/pkg/types"
)

func plannedJourney(version uint64) *types.Journey {
	return &types.Journey{
		ID:           "j-test",
		FocalID:      "f",
		Type:         types.AssociativeJourney,
		GraphVersion: version,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestCacheKeyStable(t *testing.T) {
	t.Parallel()
	a := CacheKey("f", 3, "sig", types.AssociativeJourney)
	b := CacheKey("f", 3, "sig", types.AssociativeJourney)
	if a != b {
		t.Error("identical requests must share a cache key")
	}
	if CacheKey("f", 4, "sig", types.AssociativeJourney) == a {
		t.Error("graph version must be part of the key")
	}
	if CacheKey("f", 3, "sig", types.SpiralJourney) == a {
		t.Error("journey type must be part of the key")
	}
}

func TestCacheHit(t *testing.T) {
	t.Parallel()
	cache := NewCache(4, 0, nil)
	profile := types.NewUserProfile("u1")

	var calls atomic.Int32
	plan := func(ctx context.Context) (*types.Journey, error) {
		calls.Add(1)
		return plannedJourney(1), nil
	}

	first, hit, err := cache.GetOrPlan(context.Background(), "k1", profile, plan)
	if err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	second, hit, err := cache.GetOrPlan(context.Background(), "k1", profile, plan)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if first != second {
		t.Error("hit must return the cached journey")
	}
	if calls.Load() != 1 {
		t.Errorf("plan ran %d times", calls.Load())
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestCacheCollapsesConcurrentPlans(t *testing.T) {
	t.Parallel()
	cache := NewCache(4, 0, nil)
	profile := types.NewUserProfile("u1")

	var calls atomic.Int32
	plan := func(ctx context.Context) (*types.Journey, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return plannedJourney(1), nil
	}

	const workers = 8
	results := make([]*types.Journey, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j, _, err := cache.GetOrPlan(context.Background(), "k1", profile, plan)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = j
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("concurrent requests ran plan %d times, want 1", calls.Load())
	}
	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Errorf("worker %d got a different journey", i)
		}
	}
}

func TestCachePlanErrorNotCached(t *testing.T) {
	t.Parallel()
	cache := NewCache(4, 0, nil)
	profile := types.NewUserProfile("u1")

	boom := errors.New("boom")
	_, _, err := cache.GetOrPlan(context.Background(), "k1", profile, func(ctx context.Context) (*types.Journey, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected planning error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Error("failed plans must not be cached")
	}

	// The next caller replans rather than seeing the failure.
	j, hit, err := cache.GetOrPlan(context.Background(), "k1", profile, func(ctx context.Context) (*types.Journey, error) {
		return plannedJourney(1), nil
	})
	if err != nil || hit || j == nil {
		t.Errorf("retry after failure: journey=%v hit=%v err=%v", j, hit, err)
	}
}

func TestCacheEvictsDivergedProfile(t *testing.T) {
	t.Parallel()
	cache := NewCache(4, 0.1, nil)
	stored := types.NewUserProfile("u1")

	var calls atomic.Int32
	plan := func(ctx context.Context) (*types.Journey, error) {
		calls.Add(1)
		return plannedJourney(1), nil
	}

	if _, _, err := cache.GetOrPlan(context.Background(), "k1", stored, plan); err != nil {
		t.Fatal(err)
	}

	// Same quantized key, but the live profile drifted past the divergence
	// bound; the entry must be evicted and the journey replanned.
	drifted := stored.Clone()
	drifted.ComplexityTolerance = 0
	drifted.RelationWeights[types.PrerequisiteRelation] = 2.0
	_, hit, err := cache.GetOrPlan(context.Background(), "k1", drifted, plan)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("diverged profile must not hit")
	}
	if calls.Load() != 2 {
		t.Errorf("plan ran %d times, want 2", calls.Load())
	}
}

func TestCacheInvalidateBefore(t *testing.T) {
	t.Parallel()
	cache := NewCache(4, 0, nil)
	profile := types.NewUserProfile("u1")

	for key, version := range map[string]uint64{"old": 1, "new": 2} {
		v := version
		if _, _, err := cache.GetOrPlan(context.Background(), key, profile, func(ctx context.Context) (*types.Journey, error) {
			return plannedJourney(v), nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	if evicted := cache.InvalidateBefore(2); evicted != 1 {
		t.Errorf("evicted %d entries, want 1", evicted)
	}
	if cache.Len() != 1 {
		t.Errorf("cache holds %d entries after invalidation", cache.Len())
	}

	_, hit, err := cache.GetOrPlan(context.Background(), "new", profile, func(ctx context.Context) (*types.Journey, error) {
		t.Error("current-version entry was invalidated")
		return plannedJourney(2), nil
	})
	if err != nil || !hit {
		t.Errorf("current-version entry should still hit: hit=%v err=%v", hit, err)
	}
}

func TestCacheBoundedSize(t *testing.T) {
	t.Parallel()
	cache := NewCache(2, 0, nil)
	profile := types.NewUserProfile("u1")

	for _, key := range []string{"k1", "k2", "k3"} {
		if _, _, err := cache.GetOrPlan(context.Background(), key, profile, func(ctx context.Context) (*types.Journey, error) {
			return plannedJourney(1), nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	if cache.Len() != 2 {
		t.Errorf("cache holds %d entries, want max 2", cache.Len())
	}
}
