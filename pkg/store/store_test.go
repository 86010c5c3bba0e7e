package store

import (
	"errors"
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/pathweave/pathweave/pkg/graph"
	"github.com/pathweave/pathweave/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSnapshot(version uint64) *graph.Graph {
	g := graph.New("calculus")
	g.Version = version
	g.Nodes["c-1"] = &types.Concept{ID: "c-1", Label: "limits", Confidence: 0.9, Importance: 0.7, Depth: 1}
	g.Nodes["c-2"] = &types.Concept{ID: "c-2", Label: "derivatives", Confidence: 0.8, Depth: 2}
	g.Edges["r-1"] = &types.Relation{
		ID: "r-1", SourceID: "c-1", TargetID: "c-2",
		Type: types.PrerequisiteRelation, Confidence: 0.9, Strength: 0.6, Directed: true,
	}
	g.Clusters = []types.Cluster{{ID: "cl-c-1", Label: "limits", Members: []string{"c-1", "c-2"}}}
	return g
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	g := testSnapshot(1)

	if err := s.SaveSnapshot(g, 0); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.LoadSnapshot("calculus", 1)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Checksum() != g.Checksum() {
		t.Error("loaded snapshot differs from saved graph")
	}
}

func TestSaveSnapshotCAS(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if err := s.SaveSnapshot(testSnapshot(1), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot(testSnapshot(2), 1); err != nil {
		t.Fatal(err)
	}

	// A writer that still believes version 1 is current must be rejected.
	err := s.SaveSnapshot(testSnapshot(3), 1)
	if !errors.Is(err, types.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	version, err := s.LatestVersion("calculus")
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Errorf("latest version = %d, want 2", version)
	}
}

func TestLoadLatest(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	g, err := s.LoadLatest("never-saved")
	if err != nil {
		t.Fatal(err)
	}
	if g != nil {
		t.Error("unsaved material set must load as nil")
	}

	if err := s.SaveSnapshot(testSnapshot(1), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot(testSnapshot(2), 1); err != nil {
		t.Fatal(err)
	}
	g, err = s.LoadLatest("calculus")
	if err != nil {
		t.Fatal(err)
	}
	if g.Version != 2 {
		t.Errorf("loaded version %d, want 2", g.Version)
	}
}

func TestLoadSnapshotCorruption(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	g := testSnapshot(1)
	if err := s.SaveSnapshot(g, 0); err != nil {
		t.Fatal(err)
	}

	// Flip bytes under the envelope's checksum.
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey("calculus", 1), []byte(`{"checksum":"deadbeef","body":{}}`))
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.LoadSnapshot("calculus", 1)
	if !errors.Is(err, types.ErrSnapshotCorrupt) {
		t.Fatalf("expected corruption error, got %v", err)
	}
}

func TestJourneyRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	j := &types.Journey{
		ID:           "j-abc",
		FocalID:      "c-1",
		Type:         types.SpiralJourney,
		GraphVersion: 3,
		Steps: []types.JourneyStep{
			{NodeID: "c-1", Position: 1, Status: types.StepContentReady},
			{NodeID: "c-2", Position: 2, Status: types.StepContentPending},
		},
	}
	if err := s.SaveJourney(j); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadJourney("j-abc")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Type != types.SpiralJourney || len(loaded.Steps) != 2 {
		t.Errorf("loaded journey = %+v", loaded)
	}
	if loaded.Steps[1].Status != types.StepContentPending {
		t.Error("step status lost in round trip")
	}

	if _, err := s.LoadJourney("missing"); !errors.Is(err, badger.ErrKeyNotFound) {
		t.Errorf("expected key-not-found, got %v", err)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	p, err := s.LoadProfile("u1")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Error("unknown user must load as nil profile")
	}

	profile := types.NewUserProfile("u1")
	profile.RelationWeights[types.CausalRelation] = 1.3
	profile.Visited = []string{"c-1"}
	if err := s.SaveProfile(profile); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadProfile("u1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Signature() != profile.Signature() {
		t.Error("profile signature changed in round trip")
	}
	if len(loaded.Visited) != 1 || loaded.Visited[0] != "c-1" {
		t.Errorf("visited = %v", loaded.Visited)
	}
}

func TestSaveProfileValidates(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if err := s.SaveProfile(&types.UserProfile{}); err == nil {
		t.Error("profile without user id must be rejected")
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	s, err := Open("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("double close: %v", err)
	}

	if err := s.SaveSnapshot(testSnapshot(1), 0); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.LoadProfile("u1"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
