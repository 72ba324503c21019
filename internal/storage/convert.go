package storage

import (
	"github.com/scrypster/multihop/pkg/types"
)

// EntityFromNode materialises a traversal node as an Entity snapshot.
func EntityFromNode(n NodeRecord) types.Entity {
	return types.Entity{
		ID:         n.ID,
		Name:       n.Name,
		Type:       types.EntityTypeFromLabels(n.Labels, n.Properties),
		Properties: n.Properties,
	}
}

// RelationFromEdge converts a traversal edge into a Relation. Source and
// Target are the edge's own endpoints; they are left empty when the store
// did not report them.
func RelationFromEdge(e EdgeRecord) types.Relation {
	return types.Relation{
		Source:       e.StartID,
		Target:       e.EndID,
		RelationType: e.Type,
		Properties:   e.Properties,
	}
}

// PathFromRecord converts a raw traversal path into a scored QueryPath.
// The hop count reported by the store is used when present.
func PathFromRecord(rec PathRecord) types.QueryPath {
	entities := make([]types.Entity, 0, len(rec.Nodes))
	for _, n := range rec.Nodes {
		entities = append(entities, EntityFromNode(n))
	}

	relations := make([]types.Relation, 0, len(rec.Relationships))
	for _, e := range rec.Relationships {
		relations = append(relations, RelationFromEdge(e))
	}

	hops := rec.HopCount
	if hops < 1 {
		hops = len(rec.Relationships)
	}
	return types.NewQueryPath(entities, relations, hops)
}

// PathsFromRecords converts and orders a set of raw paths, capped at
// MaxPathResults.
func PathsFromRecords(recs []PathRecord) []types.QueryPath {
	paths := make([]types.QueryPath, 0, len(recs))
	for _, rec := range recs {
		paths = append(paths, PathFromRecord(rec))
	}
	types.SortPaths(paths)
	if len(paths) > MaxPathResults {
		paths = paths[:MaxPathResults]
	}
	return paths
}

// ControllingCandidate reports whether an edge qualifies as a controlling
// holding and returns its percentage (0 when absent).
func ControllingCandidate(e EdgeRecord) (float64, bool) {
	rel := RelationFromEdge(e)
	pct, hasPct := rel.Percentage()
	if !hasPct {
		pct = 0
	}
	return pct, (hasPct && pct > 50) || rel.IsControlling()
}
