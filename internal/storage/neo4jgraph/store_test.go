package neo4jgraph

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/multihop/internal/storage"
	"github.com/scrypster/multihop/pkg/types"
)

type call struct {
	cypher string
	params map[string]any
	write  bool
}

// fakeRunner returns canned records and captures every statement.
type fakeRunner struct {
	records []*neo4j.Record
	err     error
	calls   []call
}

func (f *fakeRunner) run(_ context.Context, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error) {
	f.calls = append(f.calls, call{cypher: cypher, params: params, write: write})
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func node(elementID, id, name string, labels ...string) neo4j.Node {
	return neo4j.Node{
		ElementId: elementID,
		Labels:    labels,
		Props:     map[string]any{"id": id, "name": name},
	}
}

func rel(relType string, start, end neo4j.Node, props map[string]any) neo4j.Relationship {
	return neo4j.Relationship{
		Type:           relType,
		StartElementId: start.ElementId,
		EndElementId:   end.ElementId,
		Props:          props,
	}
}

func record(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

var (
	bytedance = node("4:x:1", "comp_003", "字节跳动", "Entity", "Company")
	zhang     = node("4:x:2", "sh_003", "张一鸣", "Entity", "Person", "Shareholder")
	sequoia   = node("4:x:3", "sh_006", "红杉资本", "Entity", "Organization", "Shareholder")
)

func TestFindShareholders(t *testing.T) {
	runner := &fakeRunner{records: []*neo4j.Record{
		record([]string{"path", "hops"}, neo4j.Path{
			Nodes:         []neo4j.Node{bytedance, sequoia},
			Relationships: []neo4j.Relationship{rel("SHAREHOLDER", sequoia, bytedance, map[string]any{"percentage": 8.0})},
		}, int64(1)),
		record([]string{"path", "hops"}, neo4j.Path{
			Nodes:         []neo4j.Node{bytedance, zhang},
			Relationships: []neo4j.Relationship{rel("SHAREHOLDER", zhang, bytedance, map[string]any{"percentage": 20.2, "is_largest_shareholder": true})},
		}, int64(1)),
	}}
	store := newStore(runner, nil)

	paths := store.FindShareholders(context.Background(), "字节跳动", 3)

	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0].cypher, "<-[:SHAREHOLDER|HOLDS*1..3]-(s)")
	assert.Equal(t, "字节跳动", runner.calls[0].params["company_name"])
	assert.Equal(t, storage.MaxPathResults, runner.calls[0].params["limit"])
	assert.False(t, runner.calls[0].write)

	require.Len(t, paths, 2)
	assert.Equal(t, "字节跳动 -> SHAREHOLDER (20.2%) -> 张一鸣", paths[0].Reasoning)
	assert.Equal(t, "sh_003", paths[0].Relations[0].Source)
	assert.Equal(t, "comp_003", paths[0].Relations[0].Target)
	assert.Equal(t, types.EntityTypePerson, paths[0].Entities[1].Type)
	assert.Equal(t, "红杉资本", paths[1].Entities[1].Name)
	assert.InDelta(t, 1.0, paths[1].Confidence, 1e-9)
}

func TestFindShareholders_ClampsHops(t *testing.T) {
	runner := &fakeRunner{}
	store := newStore(runner, nil)

	store.FindShareholders(context.Background(), "X", 50)
	store.FindShareholders(context.Background(), "X", 0)

	assert.Contains(t, runner.calls[0].cypher, "*1..10]")
	assert.Contains(t, runner.calls[1].cypher, "*1..1]")
}

func TestFindShareholders_StoreError(t *testing.T) {
	store := newStore(&fakeRunner{err: errors.New("connection refused")}, nil)

	paths := store.FindShareholders(context.Background(), "字节跳动", 3)
	assert.NotNil(t, paths)
	assert.Empty(t, paths)
}

func TestFindShareholders_BadRecordShape(t *testing.T) {
	store := newStore(&fakeRunner{records: []*neo4j.Record{
		record([]string{"path", "hops"}, "not a path", int64(1)),
	}}, nil)

	assert.Empty(t, store.FindShareholders(context.Background(), "字节跳动", 3))
}

func TestFindControllingShareholder(t *testing.T) {
	holder := node("4:x:9", "sh_100", "控股集团", "Entity", "Organization")
	runner := &fakeRunner{records: []*neo4j.Record{
		record([]string{"c", "r", "s"}, bytedance,
			rel("SHAREHOLDER", holder, bytedance, map[string]any{"percentage": 62.5}), holder),
	}}
	store := newStore(runner, nil)

	path := store.FindControllingShareholder(context.Background(), "字节跳动")

	require.NotNil(t, path)
	assert.Contains(t, runner.calls[0].cypher, "r.percentage > 50")
	assert.Equal(t, []string{"字节跳动", "控股集团"}, path.EntityNames())
	assert.Equal(t, "sh_100", path.Relations[0].Source)
	assert.Equal(t, 1, path.HopCount)
}

func TestFindControllingShareholder_Absent(t *testing.T) {
	assert.Nil(t, newStore(&fakeRunner{}, nil).FindControllingShareholder(context.Background(), "X"))
	assert.Nil(t, newStore(&fakeRunner{err: errors.New("down")}, nil).FindControllingShareholder(context.Background(), "X"))
}

func TestFindMultiHopRelationships(t *testing.T) {
	runner := &fakeRunner{records: []*neo4j.Record{
		record([]string{"path", "hop_count"}, neo4j.Path{
			Nodes:         []neo4j.Node{zhang, bytedance},
			Relationships: []neo4j.Relationship{rel("HOLDS", zhang, bytedance, nil)},
		}, int64(1)),
	}}
	store := newStore(runner, nil)

	recs := store.FindMultiHopRelationships(context.Background(), "张一鸣", "HOLDS", 2)

	require.Len(t, recs, 1)
	assert.Contains(t, runner.calls[0].cypher, "-[:HOLDS*1..2]-(end)")
	assert.Equal(t, "张一鸣", runner.calls[0].params["start_entity"])
	assert.Equal(t, 1, recs[0].HopCount)
	assert.Equal(t, "sh_003", recs[0].Relationships[0].StartID)
	assert.Equal(t, "comp_003", recs[0].Relationships[0].EndID)
}

func TestFindMultiHopRelationships_RejectsUnsafeType(t *testing.T) {
	runner := &fakeRunner{}
	store := newStore(runner, nil)

	recs := store.FindMultiHopRelationships(context.Background(), "A", "HOLDS]->(x) DETACH DELETE x //", 2)

	assert.NotNil(t, recs)
	assert.Empty(t, recs)
	assert.Empty(t, runner.calls, "no statement may reach the server")
}

func TestGetEntityNeighbors(t *testing.T) {
	runner := &fakeRunner{records: []*neo4j.Record{
		record([]string{"name", "labels", "relationship_type", "distance"},
			"张一鸣", []any{"Entity", "Person"}, "HOLDS", int64(1)),
		record([]string{"name", "labels", "relationship_type", "distance"},
			"红杉资本", []any{"Entity", "Organization"}, "HOLDS", int64(1)),
	}}
	store := newStore(runner, nil)

	neighbors := store.GetEntityNeighbors(context.Background(), "字节跳动", 2)

	require.Len(t, neighbors, 2)
	assert.Contains(t, runner.calls[0].cypher, "-[rels*1..2]-(neighbor)")
	assert.Equal(t, storage.MaxNeighborResults, runner.calls[0].params["limit"])
	assert.Equal(t, storage.NeighborRecord{
		Name: "张一鸣", Labels: []string{"Entity", "Person"}, RelationshipType: "HOLDS", Distance: 1,
	}, neighbors[0])
}

func TestEnsureIndexes(t *testing.T) {
	runner := &fakeRunner{}
	store := newStore(runner, nil)

	require.NoError(t, store.EnsureIndexes(context.Background()))
	require.NoError(t, store.EnsureIndexes(context.Background()))

	require.Len(t, runner.calls, 2*len(IndexStatements))
	for _, c := range runner.calls {
		assert.Contains(t, c.cypher, "IF NOT EXISTS")
		assert.True(t, c.write)
	}
	var names []string
	for _, stmt := range IndexStatements {
		names = append(names, strings.Fields(stmt)[2])
	}
	assert.ElementsMatch(t, []string{
		"entity_name", "entity_id", "company_name", "company_id",
		"person_name", "person_id", "shareholder_name", "shareholder_id",
	}, names)
}

func TestEnsureIndexes_Error(t *testing.T) {
	store := newStore(&fakeRunner{err: errors.New("forbidden")}, nil)
	assert.Error(t, store.EnsureIndexes(context.Background()))
}

func TestUpsertEntity(t *testing.T) {
	runner := &fakeRunner{}
	store := newStore(runner, nil)

	err := store.UpsertEntity(context.Background(), types.Entity{
		ID:         "sh_003",
		Name:       "张一鸣",
		Type:       types.EntityTypePerson,
		Properties: map[string]interface{}{"type": "个人", "nested": map[string]interface{}{"a": 1}},
	}, types.LabelShareholder)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	c := runner.calls[0]
	assert.True(t, c.write)
	assert.Contains(t, c.cypher, "MERGE (e:Entity {id: $id})")
	assert.Contains(t, c.cypher, "SET e:Person:Shareholder")
	props := c.params["props"].(map[string]any)
	assert.Equal(t, "个人", props["type"])
	assert.IsType(t, "", props["nested"])

	err = store.UpsertEntity(context.Background(), types.Entity{ID: "x", Name: "X"}, "Bad Label")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestUpsertRelation(t *testing.T) {
	runner := &fakeRunner{records: []*neo4j.Record{record([]string{"n"}, int64(1))}}
	store := newStore(runner, nil)

	err := store.UpsertRelation(context.Background(), types.Relation{
		Source: "sh_003", Target: "comp_003", RelationType: "HOLDS",
		Properties: map[string]interface{}{"percentage": 20.2},
	})
	require.NoError(t, err)
	assert.Contains(t, runner.calls[0].cypher, "MERGE (a)-[r:HOLDS]->(b)")

	runner.records = []*neo4j.Record{record([]string{"n"}, int64(0))}
	err = store.UpsertRelation(context.Background(), types.Relation{Source: "a", Target: "b", RelationType: "HOLDS"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.UpsertRelation(context.Background(), types.Relation{Source: "a", Target: "b", RelationType: "X Y"})
	assert.ErrorIs(t, err, storage.ErrInvalidRelationType)
}

// TestIntegration_SampleGraph runs against a live server. It is skipped
// unless NEO4J_TEST_URI is set.
func TestIntegration_SampleGraph(t *testing.T) {
	uri := os.Getenv("NEO4J_TEST_URI")
	if uri == "" {
		t.Skip("NEO4J_TEST_URI not set")
	}
	ctx := context.Background()

	store, err := New(ctx, Config{
		URI:      uri,
		Username: os.Getenv("NEO4J_TEST_USERNAME"),
		Password: os.Getenv("NEO4J_TEST_PASSWORD"),
	}, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.EnsureIndexes(ctx))
	require.NoError(t, store.EnsureIndexes(ctx))

	_, err = storage.LoadFixture(ctx, store, bytes.NewReader(storage.SampleFixture()))
	require.NoError(t, err)

	paths := store.FindShareholders(ctx, "字节跳动", 3)
	require.NotEmpty(t, paths)
	assert.Equal(t, "张一鸣", paths[0].Entities[1].Name)
	assert.Nil(t, store.FindControllingShareholder(ctx, "字节跳动"))
}
