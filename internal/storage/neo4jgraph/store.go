// Package neo4jgraph implements the graph store on Neo4j using Cypher.
//
// Every call runs through neo4j.ExecuteQuery, which opens and closes its own
// session, so a Store is safe for concurrent use. Traversals are routed to
// readers; index and write statements to writers.
package neo4jgraph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/scrypster/multihop/internal/storage"
	"github.com/scrypster/multihop/pkg/types"
)

// Config holds the connection settings for a Neo4j server.
type Config struct {
	URI      string
	Username string
	Password string
	Database string // empty selects the server default
}

// queryRunner executes one Cypher statement and returns its records.
type queryRunner interface {
	run(ctx context.Context, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error)
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) run(ctx context.Context, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithReadersRouting()}
	if write {
		opts = []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithWritersRouting()}
	}
	if r.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(r.database))
	}

	result, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// Store implements storage.Graph over a Neo4j driver.
type Store struct {
	runner queryRunner
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

var _ storage.Graph = (*Store)(nil)

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j: %w: uri is required", storage.ErrInvalidInput)
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: failed to connect to %s: %w", cfg.URI, err)
	}

	s := newStore(&driverRunner{driver: driver, database: cfg.Database}, logger)
	s.driver = driver
	return s, nil
}

func newStore(runner queryRunner, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{runner: runner, logger: logger}
}

// Close closes the driver.
func (s *Store) Close() error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

const shareholdersQuery = `
MATCH path = (c:Company {name: $company_name})<-[:SHAREHOLDER|HOLDS*1..%d]-(s)
WHERE s.name IS NOT NULL
RETURN path, length(path) AS hops
ORDER BY hops ASC
LIMIT $limit`

// FindShareholders follows inbound holding edges from the named company.
func (s *Store) FindShareholders(ctx context.Context, companyName string, maxHops int) []types.QueryPath {
	cypher := fmt.Sprintf(shareholdersQuery, storage.ClampHops(maxHops))
	records, err := s.runner.run(ctx, cypher, map[string]any{
		"company_name": companyName,
		"limit":        storage.MaxPathResults,
	}, false)
	if err != nil {
		s.logFailure("find_shareholders", companyName, err)
		return []types.QueryPath{}
	}

	recs, err := pathRecords(records, "path", "hops")
	if err != nil {
		s.logFailure("find_shareholders", companyName, err)
		return []types.QueryPath{}
	}
	return storage.PathsFromRecords(recs)
}

const controllingQuery = `
MATCH (c:Company {name: $company_name})<-[r:SHAREHOLDER|HOLDS]-(s)
WHERE r.percentage > 50 OR r.control_type = 'controlling' OR r.controlType = 'controlling'
RETURN c, r, s
ORDER BY coalesce(r.percentage, 0) DESC
LIMIT 1`

// FindControllingShareholder returns the largest qualifying direct holding, or nil.
func (s *Store) FindControllingShareholder(ctx context.Context, companyName string) *types.QueryPath {
	records, err := s.runner.run(ctx, controllingQuery, map[string]any{
		"company_name": companyName,
	}, false)
	if err != nil {
		s.logFailure("find_controlling_shareholder", companyName, err)
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	rec := records[0]
	c, okC := recordValue[neo4j.Node](rec, "c")
	r, okR := recordValue[neo4j.Relationship](rec, "r")
	holder, okS := recordValue[neo4j.Node](rec, "s")
	if !okC || !okR || !okS {
		s.logFailure("find_controlling_shareholder", companyName,
			fmt.Errorf("unexpected record shape: %v", rec.Keys))
		return nil
	}

	ids := map[string]string{c.ElementId: nodeID(c), holder.ElementId: nodeID(holder)}
	path := storage.PathFromRecord(storage.PathRecord{
		Nodes:         []storage.NodeRecord{nodeRecord(c), nodeRecord(holder)},
		Relationships: []storage.EdgeRecord{edgeRecord(r, ids)},
		HopCount:      1,
	})
	return &path
}

const multiHopQuery = `
MATCH path = (start {name: $start_entity})-[:%s*1..%d]-(end)
RETURN path, length(path) AS hop_count
ORDER BY hop_count ASC
LIMIT $limit`

// FindMultiHopRelationships follows relationType edges in either direction.
func (s *Store) FindMultiHopRelationships(ctx context.Context, startEntity, relationType string, maxHops int) []storage.PathRecord {
	if !storage.ValidRelationType(relationType) {
		s.logFailure("find_multi_hop_relationships", startEntity,
			fmt.Errorf("%w: %q", storage.ErrInvalidRelationType, relationType))
		return []storage.PathRecord{}
	}

	cypher := fmt.Sprintf(multiHopQuery, relationType, storage.ClampHops(maxHops))
	records, err := s.runner.run(ctx, cypher, map[string]any{
		"start_entity": startEntity,
		"limit":        storage.MaxPathResults,
	}, false)
	if err != nil {
		s.logFailure("find_multi_hop_relationships", startEntity, err)
		return []storage.PathRecord{}
	}

	recs, err := pathRecords(records, "path", "hop_count")
	if err != nil {
		s.logFailure("find_multi_hop_relationships", startEntity, err)
		return []storage.PathRecord{}
	}
	return recs
}

const neighborsQuery = `
MATCH p = (start {name: $entity_name})-[rels*1..%d]-(neighbor)
WHERE neighbor <> start
WITH neighbor, length(p) AS distance, type(rels[0]) AS relationship_type
ORDER BY distance ASC, relationship_type ASC
WITH neighbor, collect({distance: distance, type: relationship_type})[0] AS nearest
RETURN neighbor.name AS name, labels(neighbor) AS labels,
       nearest.type AS relationship_type, nearest.distance AS distance
ORDER BY distance ASC, name ASC
LIMIT $limit`

// GetEntityNeighbors returns the distinct nodes within maxDepth hops.
func (s *Store) GetEntityNeighbors(ctx context.Context, entityName string, maxDepth int) []storage.NeighborRecord {
	cypher := fmt.Sprintf(neighborsQuery, storage.ClampHops(maxDepth))
	records, err := s.runner.run(ctx, cypher, map[string]any{
		"entity_name": entityName,
		"limit":       storage.MaxNeighborResults,
	}, false)
	if err != nil {
		s.logFailure("get_entity_neighbors", entityName, err)
		return []storage.NeighborRecord{}
	}

	out := make([]storage.NeighborRecord, 0, len(records))
	for _, rec := range records {
		name, _ := recordValue[string](rec, "name")
		relType, _ := recordValue[string](rec, "relationship_type")
		distance, _ := recordValue[int64](rec, "distance")
		labels, _ := recordValue[[]any](rec, "labels")
		out = append(out, storage.NeighborRecord{
			Name:             name,
			Labels:           toStrings(labels),
			RelationshipType: relType,
			Distance:         int(distance),
		})
	}
	return out
}

// IndexStatements are the index DDL statements run by EnsureIndexes.
var IndexStatements = []string{
	"CREATE INDEX entity_name IF NOT EXISTS FOR (n:Entity) ON (n.name)",
	"CREATE INDEX entity_id IF NOT EXISTS FOR (n:Entity) ON (n.id)",
	"CREATE INDEX company_name IF NOT EXISTS FOR (n:Company) ON (n.name)",
	"CREATE INDEX company_id IF NOT EXISTS FOR (n:Company) ON (n.id)",
	"CREATE INDEX person_name IF NOT EXISTS FOR (n:Person) ON (n.name)",
	"CREATE INDEX person_id IF NOT EXISTS FOR (n:Person) ON (n.id)",
	"CREATE INDEX shareholder_name IF NOT EXISTS FOR (n:Shareholder) ON (n.name)",
	"CREATE INDEX shareholder_id IF NOT EXISTS FOR (n:Shareholder) ON (n.id)",
}

// EnsureIndexes creates the lookup indexes if they are missing.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, stmt := range IndexStatements {
		if _, err := s.runner.run(ctx, stmt, nil, true); err != nil {
			return fmt.Errorf("neo4j: ensure indexes: %w", err)
		}
	}
	s.logger.Info("graph indexes ensured", "backend", "neo4j", "count", len(IndexStatements))
	return nil
}

// UpsertEntity merges a node on its id and applies its labels.
func (s *Store) UpsertEntity(ctx context.Context, entity types.Entity, labels ...string) error {
	if entity.ID == "" || entity.Name == "" {
		return fmt.Errorf("neo4j: upsert entity: %w: id and name are required", storage.ErrInvalidInput)
	}

	all := storage.EntityLabels(entity, labels...)
	for _, l := range all {
		if !storage.ValidRelationType(l) {
			return fmt.Errorf("neo4j: upsert entity: %w: label %q", storage.ErrInvalidInput, l)
		}
	}

	cypher := fmt.Sprintf(`
MERGE (e:%s {id: $id})
SET e += $props, e.name = $name
SET e:%s`, types.LabelEntity, strings.Join(all, ":"))

	_, err := s.runner.run(ctx, cypher, map[string]any{
		"id":    entity.ID,
		"name":  entity.Name,
		"props": propertyMap(entity.Properties),
	}, true)
	if err != nil {
		return fmt.Errorf("neo4j: upsert entity %s: %w", entity.ID, err)
	}
	return nil
}

// UpsertRelation merges an edge between two existing entities.
func (s *Store) UpsertRelation(ctx context.Context, relation types.Relation) error {
	if !storage.ValidRelationType(relation.RelationType) {
		return fmt.Errorf("neo4j: %w: %q", storage.ErrInvalidRelationType, relation.RelationType)
	}

	cypher := fmt.Sprintf(`
MATCH (a:%[1]s {id: $source}), (b:%[1]s {id: $target})
MERGE (a)-[r:%[2]s]->(b)
SET r += $props
RETURN count(r) AS n`, types.LabelEntity, relation.RelationType)

	records, err := s.runner.run(ctx, cypher, map[string]any{
		"source": relation.Source,
		"target": relation.Target,
		"props":  propertyMap(relation.Properties),
	}, true)
	if err != nil {
		return fmt.Errorf("neo4j: upsert relation: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("neo4j: relation %s -> %s: %w", relation.Source, relation.Target, storage.ErrNotFound)
	}
	if n, _ := recordValue[int64](records[0], "n"); n == 0 {
		return fmt.Errorf("neo4j: relation %s -> %s: %w", relation.Source, relation.Target, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) logFailure(op, entity string, err error) {
	s.logger.Error("graph query failed",
		"op", op,
		"entity", entity,
		"backend", "neo4j",
		"error", err)
}
