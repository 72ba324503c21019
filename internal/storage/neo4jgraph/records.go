package neo4jgraph

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/scrypster/multihop/internal/storage"
)

// recordValue reads a typed value from a record.
func recordValue[T any](rec *neo4j.Record, key string) (T, bool) {
	var zero T
	if rec == nil {
		return zero, false
	}
	raw, ok := rec.Get(key)
	if !ok || raw == nil {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// pathRecords converts records holding a path and its length.
func pathRecords(records []*neo4j.Record, pathKey, hopsKey string) ([]storage.PathRecord, error) {
	out := make([]storage.PathRecord, 0, len(records))
	for _, rec := range records {
		p, ok := recordValue[neo4j.Path](rec, pathKey)
		if !ok {
			return nil, fmt.Errorf("record has no path under %q", pathKey)
		}
		hops, _ := recordValue[int64](rec, hopsKey)
		out = append(out, pathRecord(p, int(hops)))
	}
	return out, nil
}

// pathRecord converts a driver path. Edge endpoints are mapped from element
// ids to the nodes' own "id" property.
func pathRecord(p neo4j.Path, hops int) storage.PathRecord {
	ids := make(map[string]string, len(p.Nodes))
	nodes := make([]storage.NodeRecord, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		ids[n.ElementId] = nodeID(n)
		nodes = append(nodes, nodeRecord(n))
	}

	edges := make([]storage.EdgeRecord, 0, len(p.Relationships))
	for _, r := range p.Relationships {
		edges = append(edges, edgeRecord(r, ids))
	}

	if hops < 1 {
		hops = len(edges)
	}
	return storage.PathRecord{Nodes: nodes, Relationships: edges, HopCount: hops}
}

// nodeID is the node's "id" property, or its element id when it has none.
func nodeID(n neo4j.Node) string {
	if id, ok := n.Props["id"].(string); ok && id != "" {
		return id
	}
	return n.ElementId
}

func nodeRecord(n neo4j.Node) storage.NodeRecord {
	name, _ := n.Props["name"].(string)
	return storage.NodeRecord{
		ID:         nodeID(n),
		Name:       name,
		Labels:     n.Labels,
		Properties: n.Props,
	}
}

func edgeRecord(r neo4j.Relationship, ids map[string]string) storage.EdgeRecord {
	return storage.EdgeRecord{
		Type:       r.Type,
		StartID:    ids[r.StartElementId],
		EndID:      ids[r.EndElementId],
		Properties: r.Props,
	}
}

func toStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// propertyMap keeps only values Neo4j can store as properties.
func propertyMap(props map[string]interface{}) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64, []string, []int64, []float64:
			out[k] = v
		case nil:
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
