package pathweave

import (
	"context"
	"testing"
	"time"

	"github.com/pathweave/pathweave/pkg/extract"
	"github.com/pathweave/pathweave/pkg/graph"
	"github.com/pathweave/pathweave/pkg/store"
	"github.com/pathweave/pathweave/pkg/types"
)

var testEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func corpusDocs() []types.Document {
	return []types.Document{
		{
			ID:         "doc-1",
			IngestedAt: testEpoch,
			Concepts: []types.ConceptCandidate{
				{Label: "Linear Algebra", Domain: "math", Confidence: 0.95},
				{Label: "Vectors", Domain: "math", Confidence: 0.9},
				{Label: "Matrices", Domain: "math", Confidence: 0.9},
			},
			Relations: []types.RelationCandidate{
				{Source: "Vectors", Target: "Linear Algebra", Type: types.HierarchicalRelation, Confidence: 0.8},
				{Source: "Vectors", Target: "Matrices", Type: types.PrerequisiteRelation, Confidence: 0.85},
			},
		},
		{
			ID:         "doc-2",
			IngestedAt: testEpoch.Add(time.Hour),
			Concepts: []types.ConceptCandidate{
				{Label: "Matrices", Domain: "math", Confidence: 0.9},
				{Label: "Eigenvalues", Domain: "math", Confidence: 0.85},
				{Label: "Principal Component Analysis", Domain: "ml", Confidence: 0.8},
			},
			Relations: []types.RelationCandidate{
				{Source: "Matrices", Target: "Eigenvalues", Type: types.PrerequisiteRelation, Confidence: 0.9},
				{Source: "Eigenvalues", Target: "Principal Component Analysis", Type: types.PrerequisiteRelation, Confidence: 0.85},
				{Source: "Principal Component Analysis", Target: "Matrices", Type: types.AssociativeRelation, Confidence: 0.5},
			},
		},
	}
}

func newTestClient(t *testing.T, config *Config) *Client {
	t.Helper()
	persist, err := store.Open("", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { persist.Close() })

	client, err := NewClient(persist, nil, config, nil)
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func findConcept(t *testing.T, g *graph.Graph, label string) string {
	t.Helper()
	for id, n := range g.Nodes {
		if n.Label == label {
			return id
		}
	}
	t.Fatalf("concept %q not found", label)
	return ""
}

func TestClientIngest(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, nil)
	ctx := context.Background()

	g, err := client.Ingest(ctx, corpusDocs())
	if err != nil {
		t.Fatal(err)
	}
	if g.Version != 1 {
		t.Errorf("version = %d, want 1", g.Version)
	}
	if len(g.Nodes) != 5 {
		t.Errorf("got %d concepts, want 5", len(g.Nodes))
	}

	// The shared Matrices mention must merge, not duplicate.
	matrices := findConcept(t, g, "Matrices")
	if len(g.Nodes[matrices].SourceRefs) == 0 && g.Nodes[matrices].Confidence < 0.9 {
		t.Error("merged concept lost its observations")
	}

	// Annotation ran: prerequisite chain gives Eigenvalues a positive depth.
	eigen := findConcept(t, g, "Eigenvalues")
	if g.Nodes[eigen].Depth == 0 {
		t.Error("expected a positive complexity depth for Eigenvalues")
	}
	if g.Nodes[eigen].Importance <= 0 {
		t.Error("expected annotated importance")
	}

	// Clustering ran and partitions the node set exactly.
	seen := make(map[string]bool)
	for _, cl := range g.Clusters {
		for _, m := range cl.Members {
			if seen[m] {
				t.Errorf("node %s in two clusters", m)
			}
			seen[m] = true
		}
	}
	if len(seen) != len(g.Nodes) {
		t.Errorf("clusters cover %d of %d nodes", len(seen), len(g.Nodes))
	}
}

func TestClientIngestDeterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	first := newTestClient(t, nil)
	if _, err := first.Ingest(ctx, corpusDocs()); err != nil {
		t.Fatal(err)
	}

	// Same corpus, reversed arrival order.
	docs := corpusDocs()
	docs[0], docs[1] = docs[1], docs[0]
	second := newTestClient(t, nil)
	if _, err := second.Ingest(ctx, docs); err != nil {
		t.Fatal(err)
	}

	if first.Snapshot().Checksum() != second.Snapshot().Checksum() {
		t.Error("arrival order changed the built graph")
	}
}

func TestClientIngestPayloads(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, nil)

	payloads := [][]byte{
		[]byte(`{"document_id":"p1","ingested_at":"2026-03-01T00:00:00Z","concepts":[{"label":"Probability","confidence":0.9}]}`),
		[]byte(`{"document_id":"p2","ingested_at":"2026-03-01T01:00:00Z","concepts":[{"label":"Bayes Theorem","confidence":0.85}],"relations":[{"source":"Probability","target":"Bayes Theorem","type":"prerequisite","confidence":0.9}]}`),
	}
	g, err := client.IngestPayloads(context.Background(), extract.FormatJSON, payloads)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 2 {
		t.Errorf("got %d concepts, want 2", len(g.Nodes))
	}

	// One malformed payload fails the batch without touching the graph.
	version := g.Version
	_, err = client.IngestPayloads(context.Background(), extract.FormatJSON, [][]byte{
		[]byte(`{"concepts":[{"label":"","confidence":0.9}]}`),
	})
	if err == nil {
		t.Fatal("expected batch failure")
	}
	if client.Snapshot().Version != version {
		t.Error("failed batch published a new version")
	}
}

func TestClientGenerateJourney(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, nil)
	ctx := context.Background()

	if _, err := client.Ingest(ctx, corpusDocs()); err != nil {
		t.Fatal(err)
	}
	focal := findConcept(t, client.Snapshot(), "Matrices")

	j, err := client.GenerateJourney(ctx, "u1", focal, types.AssociativeJourney)
	if err != nil {
		t.Fatal(err)
	}
	if len(j.Steps) == 0 {
		t.Fatal("empty journey")
	}
	if j.Steps[0].NodeID != focal {
		t.Errorf("journey opens on %s, want %s", j.Steps[0].NodeID, focal)
	}
	if j.GraphVersion != client.Snapshot().Version {
		t.Error("journey not pinned to the current graph version")
	}
	for _, s := range j.Steps {
		// No binder is configured, so every step degrades to a placeholder.
		if s.Status != types.StepContentPending || len(s.Payload) == 0 {
			t.Errorf("step %s: status=%s payload=%d bytes", s.NodeID, s.Status, len(s.Payload))
		}
	}

	// An identical request is served from the cache.
	again, err := client.GenerateJourney(ctx, "u1", focal, types.AssociativeJourney)
	if err != nil {
		t.Fatal(err)
	}
	if again != j {
		t.Error("identical request should return the cached journey")
	}

	// Ingesting more material publishes a new version and invalidates the
	// cached journey.
	extra := []types.Document{{
		ID:         "doc-3",
		IngestedAt: testEpoch.Add(2 * time.Hour),
		Concepts:   []types.ConceptCandidate{{Label: "Determinants", Confidence: 0.9}},
		Relations: []types.RelationCandidate{
			{Source: "Matrices", Target: "Determinants", Type: types.PrerequisiteRelation, Confidence: 0.8},
		},
	}}
	if _, err := client.Ingest(ctx, extra); err != nil {
		t.Fatal(err)
	}
	fresh, err := client.GenerateJourney(ctx, "u1", focal, types.AssociativeJourney)
	if err != nil {
		t.Fatal(err)
	}
	if fresh == j {
		t.Error("journey against the new version should be replanned")
	}
	if fresh.GraphVersion != client.Snapshot().Version {
		t.Error("replanned journey not pinned to the new version")
	}
}

func TestClientGenerateJourneyUnknownFocal(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, nil)
	if _, err := client.Ingest(context.Background(), corpusDocs()); err != nil {
		t.Fatal(err)
	}
	if _, err := client.GenerateJourney(context.Background(), "u1", "c-missing", types.AssociativeJourney); err == nil {
		t.Fatal("expected error for unknown focal concept")
	}
}

func TestClientApplyFeedback(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, nil)
	ctx := context.Background()

	before, err := client.Profile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := client.ApplyFeedback(ctx, "u1", []types.Interaction{
		{NodeID: "c-1", RelationType: types.PrerequisiteRelation, Rating: 1, StepDepth: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Signature() == before.Signature() {
		t.Error("feedback did not move the profile")
	}

	// The update is persisted and survives a reload.
	loaded, err := client.Profile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Signature() != updated.Signature() {
		t.Error("persisted profile does not match the update")
	}
}

func TestClientJourneyPersistence(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, nil)
	ctx := context.Background()

	if _, err := client.Ingest(ctx, corpusDocs()); err != nil {
		t.Fatal(err)
	}
	focal := findConcept(t, client.Snapshot(), "Vectors")
	j, err := client.GenerateJourney(ctx, "u1", focal, types.SpiralJourney)
	if err != nil {
		t.Fatal(err)
	}

	if err := client.SaveJourney(ctx, j); err != nil {
		t.Fatal(err)
	}
	loaded, err := client.GetJourney(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ID != j.ID || len(loaded.Steps) != len(j.Steps) {
		t.Error("saved journey does not round-trip")
	}
}

func TestClientRecluster(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, nil)
	ctx := context.Background()

	if _, err := client.Ingest(ctx, corpusDocs()); err != nil {
		t.Fatal(err)
	}
	before := client.Snapshot().Version

	g, err := client.Recluster(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g.Version != before+1 {
		t.Errorf("recluster published version %d, want %d", g.Version, before+1)
	}
	if len(g.Clusters) == 0 {
		t.Error("recluster dropped the partition")
	}
}

func TestClientRestoresFromStore(t *testing.T) {
	t.Parallel()
	persist, err := store.Open("", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { persist.Close() })

	first, err := NewClient(persist, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Ingest(context.Background(), corpusDocs()); err != nil {
		t.Fatal(err)
	}
	want := first.Snapshot().Checksum()

	second, err := NewClient(persist, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := second.Snapshot().Checksum(); got != want {
		t.Error("restored graph differs from the persisted one")
	}
	if second.Snapshot().Version != first.Snapshot().Version {
		t.Error("restored version differs")
	}
}

func TestClientExportMetrics(t *testing.T) {
	t.Parallel()
	persist, err := store.Open("", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { persist.Close() })

	client, err := NewClient(persist, nil, &Config{ExportDir: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Ingest(context.Background(), corpusDocs()); err != nil {
		t.Fatal(err)
	}
	if err := client.ExportMetrics(context.Background()); err != nil {
		t.Fatal(err)
	}
}
