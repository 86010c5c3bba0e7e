package pathweave

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pathweave/pathweave/pkg/cluster"
	"github.com/pathweave/pathweave/pkg/content"
	"github.com/pathweave/pathweave/pkg/export"
	"github.com/pathweave/pathweave/pkg/extract"
	"github.com/pathweave/pathweave/pkg/graph"
	"github.com/pathweave/pathweave/pkg/journey"
	"github.com/pathweave/pathweave/pkg/store"
	"github.com/pathweave/pathweave/pkg/types"
)

// PathWeave is the main interface for building concept graphs and planning
// personalized learning journeys over them.
type PathWeave interface {
	// Ingest merges extracted documents into the graph, re-annotates, and
	// re-clusters, publishing a new immutable graph version.
	Ingest(ctx context.Context, docs []types.Document) (*graph.Graph, error)

	// IngestPayloads decodes raw extraction payloads and ingests them.
	IngestPayloads(ctx context.Context, format extract.Format, payloads [][]byte) (*graph.Graph, error)

	// GenerateJourney plans a journey of the given type around the focal
	// concept, personalized to the user's profile. A newer request for the
	// same user and focal concept supersedes an in-flight one.
	GenerateJourney(ctx context.Context, userID, focalID string, jt types.JourneyType) (*types.Journey, error)

	// ApplyFeedback folds interaction feedback into the user's profile and
	// persists the update.
	ApplyFeedback(ctx context.Context, userID string, interactions []types.Interaction) (*types.UserProfile, error)

	// Recluster recomputes the community partition on the current graph and
	// publishes it as a new version.
	Recluster(ctx context.Context) (*graph.Graph, error)

	// Snapshot returns the current published graph.
	Snapshot() *graph.Graph

	// Concept retrieves a single concept from the current graph.
	Concept(ctx context.Context, id string) (*types.Concept, error)

	// SaveJourney persists a journey as an immutable snapshot.
	SaveJourney(ctx context.Context, j *types.Journey) error

	// GetJourney retrieves a saved journey by id.
	GetJourney(ctx context.Context, id string) (*types.Journey, error)

	// Profile returns the user's profile, creating a neutral one on first use.
	Profile(ctx context.Context, userID string) (*types.UserProfile, error)

	// ExportMetrics writes the current graph's metric tables to Parquet.
	ExportMetrics(ctx context.Context) error

	// Close releases persistence resources.
	Close(ctx context.Context) error
}

// Config holds configuration for the PathWeave client.
type Config struct {
	// MaterialSet isolates graphs built from different corpora.
	MaterialSet string
	// MergeThreshold is the label-similarity bound for concept dedup.
	MergeThreshold float64
	// ClusterKMin and ClusterKMax bound the community count.
	ClusterKMin int
	ClusterKMax int
	// Planner tunes journey generation.
	Planner journey.Config
	// ProfileAlpha is the feedback smoothing factor.
	ProfileAlpha float64
	// CacheMaxEntries and CacheDivergence tune the journey cache.
	CacheMaxEntries int
	CacheDivergence float64
	// ExportDir, when set, enables Parquet metric export.
	ExportDir string
}

// Client is the main implementation of the PathWeave interface.
type Client struct {
	graphs    *graph.Store
	persist   *store.Store
	builder   *graph.Builder
	annotator *graph.Annotator
	clusters  *cluster.Engine
	planner   *journey.Planner
	updater   *journey.Updater
	cache     *journey.Cache
	exporter  *export.ParquetWriter
	config    *Config
	logger    *slog.Logger

	// inflight tracks the newest journey request per (user, focal) pair so a
	// newer request supersedes an older one.
	inflightMu sync.Mutex
	inflight   map[string]*inflightEntry

	profileMu sync.Mutex
}

// NewClient creates a PathWeave client. persist may be nil for a purely
// in-memory engine; binder may be nil to bind placeholders everywhere.
func NewClient(persist *store.Store, binder content.Binder, config *Config, logger *slog.Logger) (*Client, error) {
	if config == nil {
		config = &Config{}
	}
	if config.MaterialSet == "" {
		config.MaterialSet = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}

	initial := graph.New(config.MaterialSet)
	if persist != nil {
		loaded, err := persist.LoadLatest(config.MaterialSet)
		if err != nil {
			return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
		}
		if loaded != nil {
			initial = loaded
			logger.Info("restored graph from store",
				"material_set", config.MaterialSet, "version", loaded.Version,
				"nodes", len(loaded.Nodes), "edges", len(loaded.Edges))
		}
	}

	var exporter *export.ParquetWriter
	if config.ExportDir != "" {
		var err error
		exporter, err = export.NewParquetWriter(config.ExportDir)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		graphs:    graph.NewStore(initial),
		persist:   persist,
		builder:   graph.NewBuilder(config.MergeThreshold, logger),
		annotator: graph.NewAnnotator(logger),
		clusters:  cluster.NewEngine(config.ClusterKMin, config.ClusterKMax, logger),
		planner:   journey.NewPlanner(config.Planner, binder, logger),
		updater:   journey.NewUpdater(config.ProfileAlpha),
		cache:     journey.NewCache(config.CacheMaxEntries, config.CacheDivergence, logger),
		exporter:  exporter,
		config:    config,
		logger:    logger,
		inflight:  make(map[string]*inflightEntry),
	}, nil
}

// Ingest implements PathWeave.
func (c *Client) Ingest(ctx context.Context, docs []types.Document) (*graph.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return c.graphs.Snapshot(), nil
	}

	prev := c.graphs.Snapshot().Version
	started := time.Now()

	next, err := c.graphs.Update(func(g *graph.Graph) error {
		if err := c.builder.Merge(g, docs); err != nil {
			return err
		}
		if err := c.annotator.Annotate(g); err != nil {
			return err
		}
		g.Clusters = c.clusters.Partition(g, g.Clusters)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest failed: %w", err)
	}

	if c.persist != nil {
		if err := c.persist.SaveSnapshot(next, prev); err != nil {
			return nil, fmt.Errorf("ingest published version %d but persistence failed: %w", next.Version, err)
		}
	}
	c.cache.InvalidateBefore(next.Version)

	c.logger.Info("documents ingested",
		"documents", len(docs), "version", next.Version,
		"nodes", len(next.Nodes), "edges", len(next.Edges),
		"clusters", len(next.Clusters), "took", time.Since(started))
	return next, nil
}

// IngestPayloads implements PathWeave. Payloads decode concurrently; any
// malformed payload fails the whole batch before the graph is touched.
func (c *Client) IngestPayloads(ctx context.Context, format extract.Format, payloads [][]byte) (*graph.Graph, error) {
	docs := make([]types.Document, len(payloads))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(8)
	for i, data := range payloads {
		i, data := i, data
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := extract.Decode(format, data)
			if err != nil {
				return fmt.Errorf("payload %d: %w", i, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return c.Ingest(ctx, docs)
}

// GenerateJourney implements PathWeave. Planning pins the current snapshot;
// a version published mid-plan does not affect the running plan.
func (c *Client) GenerateJourney(ctx context.Context, userID, focalID string, jt types.JourneyType) (*types.Journey, error) {
	profile, err := c.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.supersede(ctx, userID, focalID)
	defer cancel()

	snapshot := c.graphs.Snapshot()
	key := journey.CacheKey(focalID, snapshot.Version, profile.Signature(), jt)

	j, hit, err := c.cache.GetOrPlan(ctx, key, profile, func(ctx context.Context) (*types.Journey, error) {
		return c.planner.Plan(ctx, snapshot, focalID, profile, jt)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		c.logger.Debug("journey served from cache", "journey", j.ID, "user", userID)
	}
	return j, nil
}

type inflightEntry struct {
	cancel context.CancelFunc
}

// supersede cancels any in-flight journey request for the same user and
// focal concept and registers this one.
func (c *Client) supersede(ctx context.Context, userID, focalID string) (context.Context, context.CancelFunc) {
	key := userID + "/" + focalID

	ctx, cancel := context.WithCancel(ctx)
	entry := &inflightEntry{cancel: cancel}

	c.inflightMu.Lock()
	if prev, ok := c.inflight[key]; ok {
		prev.cancel()
	}
	c.inflight[key] = entry
	c.inflightMu.Unlock()

	return ctx, func() {
		c.inflightMu.Lock()
		if c.inflight[key] == entry {
			delete(c.inflight, key)
		}
		c.inflightMu.Unlock()
		cancel()
	}
}

// ApplyFeedback implements PathWeave.
func (c *Client) ApplyFeedback(ctx context.Context, userID string, interactions []types.Interaction) (*types.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.profileMu.Lock()
	defer c.profileMu.Unlock()

	profile, err := c.loadProfile(userID)
	if err != nil {
		return nil, err
	}
	updated := c.updater.Apply(profile, interactions)

	if c.persist != nil {
		if err := c.persist.SaveProfile(updated); err != nil {
			return nil, fmt.Errorf("failed to persist profile: %w", err)
		}
	}
	c.logger.Debug("profile updated",
		"user", userID, "interactions", len(interactions), "signature", updated.Signature())
	return updated, nil
}

// Profile implements PathWeave.
func (c *Client) Profile(ctx context.Context, userID string) (*types.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.profileMu.Lock()
	defer c.profileMu.Unlock()
	return c.loadProfile(userID)
}

func (c *Client) loadProfile(userID string) (*types.UserProfile, error) {
	if userID == "" {
		return nil, types.ErrEmptyUserID
	}
	if c.persist != nil {
		profile, err := c.persist.LoadProfile(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		if profile != nil {
			return profile, nil
		}
	}
	return types.NewUserProfile(userID), nil
}

// Recluster implements PathWeave.
func (c *Client) Recluster(ctx context.Context) (*graph.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prev := c.graphs.Snapshot().Version
	next, err := c.graphs.Update(func(g *graph.Graph) error {
		g.Clusters = c.clusters.Partition(g, g.Clusters)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.persist != nil {
		if err := c.persist.SaveSnapshot(next, prev); err != nil {
			return nil, fmt.Errorf("recluster published version %d but persistence failed: %w", next.Version, err)
		}
	}
	c.cache.InvalidateBefore(next.Version)

	c.logger.Info("graph reclustered", "version", next.Version, "clusters", len(next.Clusters))
	return next, nil
}

// Snapshot implements PathWeave.
func (c *Client) Snapshot() *graph.Graph {
	return c.graphs.Snapshot()
}

// Concept implements PathWeave.
func (c *Client) Concept(ctx context.Context, id string) (*types.Concept, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.graphs.Snapshot().Node(id)
}

// SaveJourney implements PathWeave.
func (c *Client) SaveJourney(ctx context.Context, j *types.Journey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.persist == nil {
		return fmt.Errorf("no store configured")
	}
	return c.persist.SaveJourney(j)
}

// GetJourney implements PathWeave.
func (c *Client) GetJourney(ctx context.Context, id string) (*types.Journey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.persist == nil {
		return nil, fmt.Errorf("no store configured")
	}
	return c.persist.LoadJourney(id)
}

// ExportMetrics implements PathWeave.
func (c *Client) ExportMetrics(ctx context.Context) error {
	if c.exporter == nil {
		return fmt.Errorf("export directory not configured")
	}
	return c.exporter.WriteGraph(ctx, c.graphs.Snapshot())
}

// Close implements PathWeave.
func (c *Client) Close(ctx context.Context) error {
	if c.persist != nil {
		return c.persist.Close()
	}
	return nil
}
