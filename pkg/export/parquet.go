// Package export writes graph metric tables to Parquet for offline analysis
// of concept importance, edge strength, and cluster composition.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/pathweave/pathweave/pkg/graph"
)

// ParquetWriter writes node, edge, and cluster tables, one file per graph
// version.
type ParquetWriter struct {
	baseDir string
}

// NewParquetWriter creates a writer rooted at baseDir.
func NewParquetWriter(baseDir string) (*ParquetWriter, error) {
	dirs := []string{"concepts", "relations", "clusters"}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(baseDir, d), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return &ParquetWriter{baseDir: baseDir}, nil
}

// ParquetConcept is the node-table schema.
type ParquetConcept struct {
	ID           string     `parquet:"id"`
	Label        string     `parquet:"label"`
	Domain       string     `parquet:"domain"`
	Confidence   float64    `parquet:"confidence"`
	Importance   float64    `parquet:"importance"`
	Depth        int32      `parquet:"depth"`
	Aliases      string     `parquet:"aliases"` // comma-joined
	SourceCount  int32      `parquet:"source_count"`
	CreatedAt    *time.Time `parquet:"created_at"`
	UpdatedAt    *time.Time `parquet:"updated_at"`
	GraphVersion int64      `parquet:"graph_version"`
	MaterialSet  string     `parquet:"material_set"`
}

// ParquetRelation is the edge-table schema.
type ParquetRelation struct {
	ID           string     `parquet:"id"`
	SourceID     string     `parquet:"source_id"`
	TargetID     string     `parquet:"target_id"`
	Type         string     `parquet:"type"`
	Confidence   float64    `parquet:"confidence"`
	Strength     float64    `parquet:"strength"`
	Cooccurrence int32      `parquet:"cooccurrence"`
	Directed     bool       `parquet:"directed"`
	Demoted      bool       `parquet:"demoted"`
	CreatedAt    *time.Time `parquet:"created_at"`
	GraphVersion int64      `parquet:"graph_version"`
	MaterialSet  string     `parquet:"material_set"`
}

// ParquetCluster is the cluster-table schema, one row per cluster.
type ParquetCluster struct {
	ID           string `parquet:"id"`
	Label        string `parquet:"label"`
	Members      string `parquet:"members"` // comma-joined
	MemberCount  int32  `parquet:"member_count"`
	GraphVersion int64  `parquet:"graph_version"`
	MaterialSet  string `parquet:"material_set"`
}

// WriteGraph exports all three tables for one graph snapshot. Rows are
// sorted by id so re-exporting the same version yields identical files.
func (w *ParquetWriter) WriteGraph(ctx context.Context, g *graph.Graph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.writeConcepts(g); err != nil {
		return err
	}
	if err := w.writeRelations(g); err != nil {
		return err
	}
	return w.writeClusters(g)
}

func (w *ParquetWriter) writeConcepts(g *graph.Graph) error {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]ParquetConcept, 0, len(ids))
	for _, id := range ids {
		n := g.Nodes[id]
		row := ParquetConcept{
			ID:           n.ID,
			Label:        n.Label,
			Domain:       n.Domain,
			Confidence:   n.Confidence,
			Importance:   n.Importance,
			Depth:        int32(n.Depth),
			Aliases:      strings.Join(n.Aliases, ","),
			SourceCount:  int32(len(n.SourceRefs)),
			GraphVersion: int64(g.Version),
			MaterialSet:  g.MaterialSet,
		}
		if !n.CreatedAt.IsZero() {
			row.CreatedAt = &n.CreatedAt
		}
		if !n.UpdatedAt.IsZero() {
			row.UpdatedAt = &n.UpdatedAt
		}
		rows = append(rows, row)
	}

	path := filepath.Join(w.baseDir, "concepts", w.filename("concepts", g))
	return parquet.WriteFile(path, rows)
}

func (w *ParquetWriter) writeRelations(g *graph.Graph) error {
	ids := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]ParquetRelation, 0, len(ids))
	for _, id := range ids {
		e := g.Edges[id]
		row := ParquetRelation{
			ID:           e.ID,
			SourceID:     e.SourceID,
			TargetID:     e.TargetID,
			Type:         string(e.Type),
			Confidence:   e.Confidence,
			Strength:     e.Strength,
			Cooccurrence: int32(e.Cooccurrence),
			Directed:     e.Directed,
			Demoted:      e.Demoted,
			GraphVersion: int64(g.Version),
			MaterialSet:  g.MaterialSet,
		}
		if !e.CreatedAt.IsZero() {
			row.CreatedAt = &e.CreatedAt
		}
		rows = append(rows, row)
	}

	path := filepath.Join(w.baseDir, "relations", w.filename("relations", g))
	return parquet.WriteFile(path, rows)
}

func (w *ParquetWriter) writeClusters(g *graph.Graph) error {
	rows := make([]ParquetCluster, 0, len(g.Clusters))
	for _, cl := range g.Clusters {
		rows = append(rows, ParquetCluster{
			ID:           cl.ID,
			Label:        cl.Label,
			Members:      strings.Join(cl.Members, ","),
			MemberCount:  int32(len(cl.Members)),
			GraphVersion: int64(g.Version),
			MaterialSet:  g.MaterialSet,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	path := filepath.Join(w.baseDir, "clusters", w.filename("clusters", g))
	return parquet.WriteFile(path, rows)
}

func (w *ParquetWriter) filename(table string, g *graph.Graph) string {
	return fmt.Sprintf("%s_%s_v%d.parquet", table, g.MaterialSet, g.Version)
}

// Close implements a closer interface, currently no-op as we write
// file-per-call.
func (w *ParquetWriter) Close() error {
	return nil
}
