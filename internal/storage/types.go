package storage

import (
	"errors"
	"regexp"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRelationType indicates a relation label that cannot be used in a query.
	ErrInvalidRelationType = errors.New("invalid relation type")
)

// Result bounds shared by every backend.
const (
	// MaxPathResults caps the number of paths returned by path queries.
	MaxPathResults = 10

	// MaxNeighborResults caps the number of neighbours returned.
	MaxNeighborResults = 20

	// MaxTraversalHops is the hard ceiling applied to any hop bound.
	MaxTraversalHops = 10
)

// relationTypePattern matches labels that are safe to splice into a query.
var relationTypePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidRelationType reports whether relType is a plain relation label.
func ValidRelationType(relType string) bool {
	return relationTypePattern.MatchString(relType)
}

// ClampHops bounds a hop count to [1, MaxTraversalHops].
func ClampHops(hops int) int {
	if hops < 1 {
		return 1
	}
	if hops > MaxTraversalHops {
		return MaxTraversalHops
	}
	return hops
}

// NodeRecord is a node as returned by a traversal.
type NodeRecord struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Labels     []string               `json:"labels"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// EdgeRecord is a relationship as returned by a traversal. StartID and EndID
// are the ids of the edge's endpoints in the graph's own direction.
type EdgeRecord struct {
	Type       string                 `json:"type"`
	StartID    string                 `json:"start_id"`
	EndID      string                 `json:"end_id"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// PathRecord is a raw traversal path: Nodes[i] and Nodes[i+1] are joined by
// Relationships[i].
type PathRecord struct {
	Nodes         []NodeRecord `json:"nodes"`
	Relationships []EdgeRecord `json:"relationships"`
	HopCount      int          `json:"hop_count"`
}

// NeighborRecord is a node reachable from an entity within a bounded depth.
// RelationshipType is the type of the first edge on the shortest path.
type NeighborRecord struct {
	Name             string   `json:"name"`
	Labels           []string `json:"labels"`
	RelationshipType string   `json:"relationship_type"`
	Distance         int      `json:"distance"`
}
