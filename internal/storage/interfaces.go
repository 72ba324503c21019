// Package storage provides the graph store interfaces used by the reasoning
// pipeline.
//
// The read side (GraphStore) is what the coordinator consumes. Its traversal
// operations never return errors: implementations catch store failures at
// the boundary, log them and return empty results. The write side
// (GraphWriter) is used for fixtures and imports and does return errors.
package storage

import (
	"context"

	"github.com/scrypster/multihop/pkg/types"
)

// GraphStore runs bounded traversals against a property graph.
// Implementations must be safe for concurrent use.
type GraphStore interface {
	// FindShareholders follows inbound shareholding edges from the named
	// company up to maxHops hops and returns at most MaxPathResults paths,
	// shortest first. Confidence is computed by types.ScorePath.
	FindShareholders(ctx context.Context, companyName string, maxHops int) []types.QueryPath

	// FindControllingShareholder returns the single inbound holding with a
	// percentage above 50 or a "controlling" control type, largest
	// percentage first. It returns nil when no holding qualifies.
	FindControllingShareholder(ctx context.Context, companyName string) *types.QueryPath

	// FindMultiHopRelationships follows relationType edges in either
	// direction from startEntity up to maxHops hops and returns at most
	// MaxPathResults paths ordered by ascending hop count.
	FindMultiHopRelationships(ctx context.Context, startEntity, relationType string, maxHops int) []PathRecord

	// GetEntityNeighbors returns up to MaxNeighborResults distinct nodes
	// within maxDepth hops, ordered by (distance, name).
	GetEntityNeighbors(ctx context.Context, entityName string, maxDepth int) []NeighborRecord

	// EnsureIndexes creates the lookup indexes if they do not exist.
	// Calling it repeatedly is safe.
	EnsureIndexes(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// GraphWriter creates or updates graph content.
type GraphWriter interface {
	// UpsertEntity creates the entity or updates its name, labels and
	// properties. The label for entity.Type is always applied; extra labels
	// such as "Shareholder" are added to it.
	UpsertEntity(ctx context.Context, entity types.Entity, labels ...string) error

	// UpsertRelation creates or updates the relation between two existing
	// entities, identified by Source and Target ids.
	UpsertRelation(ctx context.Context, relation types.Relation) error
}

// Graph is a store that supports both traversal and writes.
type Graph interface {
	GraphStore
	GraphWriter
}
