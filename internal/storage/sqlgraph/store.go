// Package sqlgraph stores a labelled property graph in two SQL tables and
// answers the bounded traversal queries of storage.GraphStore in Go.
//
// Nodes live in graph_entities with their labels and properties encoded as
// JSON text; edges live in graph_relations keyed by (source, target, type).
// The same schema and statements run on SQLite and PostgreSQL; only the
// placeholder style differs (see Dialect).
package sqlgraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/scrypster/multihop/internal/storage"
	"github.com/scrypster/multihop/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dialect selects the placeholder style of the underlying database.
type Dialect int

const (
	// DialectSQLite uses "?" placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses "$1, $2, ..." placeholders.
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Schema creates the graph tables. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS graph_entities (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	labels     TEXT NOT NULL DEFAULT '[]',
	properties TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS graph_relations (
	source_id  TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	type       TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (source_id, target_id, type)
);
`

// indexStatements are the lookup indexes created by EnsureIndexes.
var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_graph_entities_name ON graph_entities(name)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_relations_source ON graph_relations(source_id, type)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_relations_target ON graph_relations(target_id, type)`,
	`CREATE INDEX IF NOT EXISTS idx_graph_relations_type ON graph_relations(type)`,
}

// IndexNames lists the indexes EnsureIndexes maintains.
var IndexNames = []string{
	"idx_graph_entities_name",
	"idx_graph_relations_source",
	"idx_graph_relations_target",
	"idx_graph_relations_type",
}

// Store implements storage.Graph over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger

	// maxExpansions bounds the number of partial paths a single traversal
	// may enumerate before it stops widening the frontier.
	maxExpansions int
}

var _ storage.Graph = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for traversal failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxExpansions overrides the traversal expansion cap.
func WithMaxExpansions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxExpansions = n
		}
	}
}

// DefaultMaxExpansions is the default traversal expansion cap.
const DefaultMaxExpansions = 5000

// New wraps an open database. The caller owns connection settings; New
// applies the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlgraph: database connection is required")
	}
	s := &Store{
		db:            db,
		dialect:       dialect,
		logger:        slog.Default(),
		maxExpansions: DefaultMaxExpansions,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("sqlgraph: failed to apply schema: %w", err)
	}
	return s, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's placeholder dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureIndexes creates the lookup indexes if they are missing.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, stmt := range indexStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlgraph: ensure indexes: %w", err)
		}
	}
	s.logger.Info("graph indexes ensured", "backend", s.dialect.String(), "count", len(indexStatements))
	return nil
}

// UpsertEntity creates or updates a node.
func (s *Store) UpsertEntity(ctx context.Context, entity types.Entity, labels ...string) error {
	if entity.ID == "" || entity.Name == "" {
		return fmt.Errorf("sqlgraph: upsert entity: %w: id and name are required", storage.ErrInvalidInput)
	}

	labelJSON, err := json.Marshal(storage.EntityLabels(entity, labels...))
	if err != nil {
		return fmt.Errorf("sqlgraph: encode labels: %w", err)
	}
	propJSON, err := encodeProperties(entity.Properties)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO graph_entities (id, name, labels, properties)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			labels = excluded.labels,
			properties = excluded.properties
	`), entity.ID, entity.Name, string(labelJSON), propJSON)
	if err != nil {
		return fmt.Errorf("sqlgraph: upsert entity %s: %w", entity.ID, err)
	}
	return nil
}

// UpsertRelation creates or updates an edge from relation.Source to
// relation.Target. Both endpoints must already exist.
func (s *Store) UpsertRelation(ctx context.Context, relation types.Relation) error {
	if !storage.ValidRelationType(relation.RelationType) {
		return fmt.Errorf("sqlgraph: %w: %q", storage.ErrInvalidRelationType, relation.RelationType)
	}

	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM graph_entities WHERE id IN (?, ?)`),
		relation.Source, relation.Target).Scan(&n)
	if err != nil {
		return fmt.Errorf("sqlgraph: check endpoints: %w", err)
	}
	want := 2
	if relation.Source == relation.Target {
		want = 1
	}
	if n != want {
		return fmt.Errorf("sqlgraph: relation %s -> %s: %w", relation.Source, relation.Target, storage.ErrNotFound)
	}

	propJSON, err := encodeProperties(relation.Properties)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO graph_relations (source_id, target_id, type, properties)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source_id, target_id, type) DO UPDATE SET
			properties = excluded.properties
	`), relation.Source, relation.Target, relation.RelationType, propJSON)
	if err != nil {
		return fmt.Errorf("sqlgraph: upsert relation: %w", err)
	}
	return nil
}

// rebind rewrites "?" placeholders for the store's dialect.
func (s *Store) rebind(query string) string {
	return Rebind(s.dialect, query)
}

// Rebind rewrites "?" placeholders into the dialect's style. Placeholders
// inside single-quoted literals are left alone.
func Rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func encodeProperties(props map[string]interface{}) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("sqlgraph: encode properties: %w", err)
	}
	return string(data), nil
}

func decodeProperties(raw string) (map[string]interface{}, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var props map[string]interface{}
	if err := json.UnmarshalFromString(raw, &props); err != nil {
		return nil, fmt.Errorf("sqlgraph: decode properties: %w", err)
	}
	return props, nil
}

func decodeLabels(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var labels []string
	if err := json.UnmarshalFromString(raw, &labels); err != nil {
		return nil, fmt.Errorf("sqlgraph: decode labels: %w", err)
	}
	return labels, nil
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
