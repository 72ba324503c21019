package sqlgraph

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/scrypster/multihop/internal/storage"
	"github.com/scrypster/multihop/pkg/types"
)

// direction selects which edges a traversal follows from a node.
type direction int

const (
	inbound direction = iota // edges whose target is the node
	both                     // edges in either direction
)

// step is one edge taken during a traversal: the edge and the node reached.
type step struct {
	edge storage.EdgeRecord
	next string
}

// walker runs one traversal. It caches nodes and adjacency lists so every
// node is read at most once per traversal.
type walker struct {
	s         *Store
	ctx       context.Context
	dir       direction
	relTypes  []string // empty means any type
	nodes     map[string]storage.NodeRecord
	adjacency map[string][]step
}

func (s *Store) newWalker(ctx context.Context, dir direction, relTypes ...string) *walker {
	return &walker{
		s:         s,
		ctx:       ctx,
		dir:       dir,
		relTypes:  relTypes,
		nodes:     make(map[string]storage.NodeRecord),
		adjacency: make(map[string][]step),
	}
}

// FindShareholders returns holder chains leading into the named company,
// shortest first. Entities run from the company outwards; each relation
// keeps its stored direction (holder -> held).
func (s *Store) FindShareholders(ctx context.Context, companyName string, maxHops int) []types.QueryPath {
	w := s.newWalker(ctx, inbound, types.ShareholdingRelationTypes...)
	starts, err := w.findByName(companyName, types.LabelCompany)
	if err != nil {
		s.logFailure("find_shareholders", companyName, err)
		return []types.QueryPath{}
	}

	recs, err := w.paths(starts, storage.ClampHops(maxHops))
	if err != nil {
		s.logFailure("find_shareholders", companyName, err)
		return []types.QueryPath{}
	}
	return storage.PathsFromRecords(recs)
}

// FindControllingShareholder returns the largest qualifying direct holding
// of the named company, or nil.
func (s *Store) FindControllingShareholder(ctx context.Context, companyName string) *types.QueryPath {
	w := s.newWalker(ctx, inbound, types.ShareholdingRelationTypes...)
	starts, err := w.findByName(companyName, types.LabelCompany)
	if err != nil {
		s.logFailure("find_controlling_shareholder", companyName, err)
		return nil
	}

	var (
		best    *storage.PathRecord
		bestPct float64
	)
	for _, start := range starts {
		steps, err := w.neighbours(start.ID)
		if err != nil {
			s.logFailure("find_controlling_shareholder", companyName, err)
			return nil
		}
		for _, st := range steps {
			pct, ok := storage.ControllingCandidate(st.edge)
			if !ok || (best != nil && pct <= bestPct) {
				continue
			}
			holder, err := w.node(st.next)
			if err != nil {
				s.logFailure("find_controlling_shareholder", companyName, err)
				return nil
			}
			best = &storage.PathRecord{
				Nodes:         []storage.NodeRecord{start, holder},
				Relationships: []storage.EdgeRecord{st.edge},
				HopCount:      1,
			}
			bestPct = pct
		}
	}

	if best == nil {
		return nil
	}
	path := storage.PathFromRecord(*best)
	return &path
}

// FindMultiHopRelationships returns paths of relationType edges, taken in
// either direction, starting at the named entity.
func (s *Store) FindMultiHopRelationships(ctx context.Context, startEntity, relationType string, maxHops int) []storage.PathRecord {
	if !storage.ValidRelationType(relationType) {
		s.logFailure("find_multi_hop_relationships", startEntity,
			fmt.Errorf("%w: %q", storage.ErrInvalidRelationType, relationType))
		return []storage.PathRecord{}
	}

	w := s.newWalker(ctx, both, relationType)
	starts, err := w.findByName(startEntity, "")
	if err != nil {
		s.logFailure("find_multi_hop_relationships", startEntity, err)
		return []storage.PathRecord{}
	}

	recs, err := w.paths(starts, storage.ClampHops(maxHops))
	if err != nil {
		s.logFailure("find_multi_hop_relationships", startEntity, err)
		return []storage.PathRecord{}
	}

	sortRecords(recs)
	if len(recs) > storage.MaxPathResults {
		recs = recs[:storage.MaxPathResults]
	}
	return recs
}

// GetEntityNeighbors returns the distinct nodes within maxDepth hops of the
// named entity, nearest first.
func (s *Store) GetEntityNeighbors(ctx context.Context, entityName string, maxDepth int) []storage.NeighborRecord {
	w := s.newWalker(ctx, both)
	starts, err := w.findByName(entityName, "")
	if err != nil {
		s.logFailure("get_entity_neighbors", entityName, err)
		return []storage.NeighborRecord{}
	}

	maxDepth = storage.ClampHops(maxDepth)

	type reached struct {
		distance int
		relType  string
	}
	visited := make(map[string]reached)
	frontier := make([]string, 0, len(starts))
	for _, n := range starts {
		visited[n.ID] = reached{}
		frontier = append(frontier, n.ID)
	}
	startIDs := make(map[string]bool, len(starts))
	for _, n := range starts {
		startIDs[n.ID] = true
	}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			steps, err := w.neighbours(id)
			if err != nil {
				s.logFailure("get_entity_neighbors", entityName, err)
				return []storage.NeighborRecord{}
			}
			for _, st := range steps {
				if _, seen := visited[st.next]; seen {
					continue
				}
				relType := st.edge.Type
				if depth > 1 {
					relType = visited[id].relType
				}
				visited[st.next] = reached{distance: depth, relType: relType}
				next = append(next, st.next)
			}
		}
		frontier = next
	}

	out := make([]storage.NeighborRecord, 0, len(visited))
	for id, r := range visited {
		if startIDs[id] {
			continue
		}
		n, err := w.node(id)
		if err != nil {
			s.logFailure("get_entity_neighbors", entityName, err)
			return []storage.NeighborRecord{}
		}
		out = append(out, storage.NeighborRecord{
			Name:             n.Name,
			Labels:           n.Labels,
			RelationshipType: r.relType,
			Distance:         r.distance,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > storage.MaxNeighborResults {
		out = out[:storage.MaxNeighborResults]
	}
	return out
}

// paths enumerates simple paths (no repeated node) of 1..maxHops edges from
// each start node, level by level.
func (w *walker) paths(starts []storage.NodeRecord, maxHops int) ([]storage.PathRecord, error) {
	type partial struct {
		nodes []string
		edges []storage.EdgeRecord
	}

	var (
		found    []partial
		frontier []partial
	)
	for _, n := range starts {
		frontier = append(frontier, partial{nodes: []string{n.ID}})
	}

	capped := false
	for hop := 1; hop <= maxHops && len(frontier) > 0 && !capped; hop++ {
		var next []partial
		for _, p := range frontier {
			if err := w.ctx.Err(); err != nil {
				return nil, err
			}
			tail := p.nodes[len(p.nodes)-1]
			steps, err := w.neighbours(tail)
			if err != nil {
				return nil, err
			}
			for _, st := range steps {
				if slices.Contains(p.nodes, st.next) {
					continue
				}
				ext := partial{
					nodes: append(slices.Clone(p.nodes), st.next),
					edges: append(slices.Clone(p.edges), st.edge),
				}
				found = append(found, ext)
				next = append(next, ext)
				if len(found) >= w.s.maxExpansions {
					capped = true
					break
				}
			}
			if capped {
				break
			}
		}
		frontier = next
	}
	if capped {
		w.s.logger.Warn("graph traversal expansion cap reached", "cap", w.s.maxExpansions)
	}

	recs := make([]storage.PathRecord, 0, len(found))
	for _, p := range found {
		nodes := make([]storage.NodeRecord, 0, len(p.nodes))
		for _, id := range p.nodes {
			n, err := w.node(id)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		recs = append(recs, storage.PathRecord{
			Nodes:         nodes,
			Relationships: p.edges,
			HopCount:      len(p.edges),
		})
	}
	return recs, nil
}

// findByName loads every node with the given name, optionally restricted to
// nodes carrying label.
func (w *walker) findByName(name, label string) ([]storage.NodeRecord, error) {
	rows, err := w.s.db.QueryContext(w.ctx, w.s.rebind(
		`SELECT id, name, labels, properties FROM graph_entities WHERE name = ? ORDER BY id`), name)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", name, err)
	}
	defer rows.Close()

	var out []storage.NodeRecord
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		w.nodes[n.ID] = n
		if label == "" || slices.Contains(n.Labels, label) {
			out = append(out, n)
		}
	}
	return out, rows.Err()
}

// node returns a node by id, reading it on first use.
func (w *walker) node(id string) (storage.NodeRecord, error) {
	if n, ok := w.nodes[id]; ok {
		return n, nil
	}

	row := w.s.db.QueryRowContext(w.ctx, w.s.rebind(
		`SELECT id, name, labels, properties FROM graph_entities WHERE id = ?`), id)
	n, err := scanNode(row)
	if err != nil {
		if isNoRows(err) {
			return storage.NodeRecord{}, fmt.Errorf("node %s: %w", id, storage.ErrNotFound)
		}
		return storage.NodeRecord{}, err
	}
	w.nodes[id] = n
	return n, nil
}

// neighbours returns the edges the walker may follow from id.
func (w *walker) neighbours(id string) ([]step, error) {
	if steps, ok := w.adjacency[id]; ok {
		return steps, nil
	}

	var (
		query string
		args  []interface{}
	)
	switch w.dir {
	case inbound:
		query = `SELECT source_id, target_id, type, properties FROM graph_relations WHERE target_id = ?`
		args = []interface{}{id}
	default:
		query = `SELECT source_id, target_id, type, properties FROM graph_relations WHERE (source_id = ? OR target_id = ?)`
		args = []interface{}{id, id}
	}
	if len(w.relTypes) > 0 {
		query += ` AND type IN (` + placeholders(len(w.relTypes)) + `)`
		for _, t := range w.relTypes {
			args = append(args, t)
		}
	}
	query += ` ORDER BY source_id, target_id, type`

	rows, err := w.s.db.QueryContext(w.ctx, w.s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", id, err)
	}
	defer rows.Close()

	var steps []step
	for rows.Next() {
		var (
			e     storage.EdgeRecord
			props string
		)
		if err := rows.Scan(&e.StartID, &e.EndID, &e.Type, &props); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		if e.Properties, err = decodeProperties(props); err != nil {
			return nil, err
		}

		next := e.StartID
		if e.StartID == id {
			next = e.EndID
		}
		if next == id {
			continue // self loop
		}
		steps = append(steps, step{edge: e, next: next})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	w.adjacency[id] = steps
	return steps, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (storage.NodeRecord, error) {
	var (
		n             storage.NodeRecord
		labels, props string
	)
	if err := row.Scan(&n.ID, &n.Name, &labels, &props); err != nil {
		return n, err
	}
	var err error
	if n.Labels, err = decodeLabels(labels); err != nil {
		return n, err
	}
	if n.Properties, err = decodeProperties(props); err != nil {
		return n, err
	}
	return n, nil
}

// sortRecords orders raw paths by hop count, then by the names along the
// path so results are deterministic.
func sortRecords(recs []storage.PathRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].HopCount != recs[j].HopCount {
			return recs[i].HopCount < recs[j].HopCount
		}
		return pathKey(recs[i]) < pathKey(recs[j])
	})
}

func pathKey(rec storage.PathRecord) string {
	key := ""
	for _, n := range rec.Nodes {
		key += n.Name + "\x00"
	}
	return key
}

func (s *Store) logFailure(op, entity string, err error) {
	s.logger.Error("graph query failed",
		"op", op,
		"entity", entity,
		"backend", s.dialect.String(),
		"error", err)
}
