package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/multihop/pkg/types"
)

func holding(pct interface{}) types.Relation {
	return types.Relation{
		RelationType: types.RelationShareholder,
		Properties:   map[string]interface{}{types.PropPercentage: pct},
	}
}

// TestScorePath_BaseDecay verifies the base confidence for hop counts with no
// bonus relations, and that it never increases with hop count.
func TestScorePath_BaseDecay(t *testing.T) {
	tests := []struct {
		hops int
		want float64
	}{
		{1, 1.0},
		{2, 0.8},
		{3, 0.6},
		{4, 0.4},
		{5, 0.2},
		{6, 0.1},
		{7, 0.1},
		{20, 0.1},
	}

	for _, tt := range tests {
		got := types.ScorePath(tt.hops, nil)
		assert.InDelta(t, tt.want, got, 1e-9, "hops=%d", tt.hops)
	}

	prev := types.ScorePath(1, nil)
	for h := 2; h <= 30; h++ {
		cur := types.ScorePath(h, nil)
		assert.LessOrEqual(t, cur, prev, "confidence increased at hops=%d", h)
		prev = cur
	}
}

func TestScorePath_Bonuses(t *testing.T) {
	controlling := types.Relation{
		RelationType: types.RelationShareholder,
		Properties:   map[string]interface{}{types.PropControlType: "controlling"},
	}
	camelControlling := types.Relation{
		RelationType: types.RelationShareholder,
		Properties:   map[string]interface{}{types.PropControlTypeAlt: "controlling"},
	}

	tests := []struct {
		name      string
		hops      int
		relations []types.Relation
		want      float64
	}{
		{"minority holding gets no bonus", 3, []types.Relation{holding(20.2)}, 0.6},
		{"exactly fifty gets no bonus", 3, []types.Relation{holding(50.0)}, 0.6},
		{"majority holding", 3, []types.Relation{holding(51.0)}, 0.7},
		{"majority as int64", 3, []types.Relation{holding(int64(60))}, 0.7},
		{"majority as string", 3, []types.Relation{holding("75%")}, 0.7},
		{"controlling flag", 3, []types.Relation{controlling}, 0.75},
		{"camelCase controlling flag", 3, []types.Relation{camelControlling}, 0.75},
		{"two majority relations", 4, []types.Relation{holding(60.0), holding(70.0)}, 0.6},
		{"majority and controlling on one relation", 5, []types.Relation{{
			RelationType: types.RelationShareholder,
			Properties: map[string]interface{}{
				types.PropPercentage:  80.0,
				types.PropControlType: "controlling",
			},
		}}, 0.45},
		{"clamped at one", 1, []types.Relation{holding(90.0), controlling}, 1.0},
		{"floor plus bonus", 8, []types.Relation{holding(55.0)}, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, types.ScorePath(tt.hops, tt.relations), 1e-9)
		})
	}
}

// TestScorePath_Clamped checks the [0.1, 1.0] bound over a grid of inputs.
func TestScorePath_Clamped(t *testing.T) {
	strong := []types.Relation{holding(99.0), holding(88.0), {
		Properties: map[string]interface{}{types.PropControlType: "controlling"},
	}}
	for h := -2; h <= 12; h++ {
		for n := 0; n <= len(strong); n++ {
			got := types.ScorePath(h, strong[:n])
			assert.GreaterOrEqual(t, got, 0.1)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestScorePath_Deterministic(t *testing.T) {
	rels := []types.Relation{holding(51.0), holding(12.5)}
	first := types.ScorePath(2, rels)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, types.ScorePath(2, rels))
	}
}

func TestGenerateReasoning(t *testing.T) {
	entities := []types.Entity{
		{ID: "comp_003", Name: "字节跳动"},
		{ID: "sh_003", Name: "张一鸣"},
	}
	relations := []types.Relation{holding(20.2)}

	assert.Equal(t, "字节跳动 -> SHAREHOLDER (20.2%) -> 张一鸣", types.GenerateReasoning(entities, relations))
}

func TestGenerateReasoning_MultiHop(t *testing.T) {
	entities := []types.Entity{{Name: "A"}, {Name: "B"}, {Name: "C"}}
	relations := []types.Relation{
		holding(60.0),
		{RelationType: types.RelationHolds},
	}

	assert.Equal(t, "A -> SHAREHOLDER (60%) -> B -> HOLDS -> C", types.GenerateReasoning(entities, relations))
}

func TestGenerateReasoning_Sentinel(t *testing.T) {
	entities := []types.Entity{{Name: "A"}, {Name: "B"}}
	relations := []types.Relation{holding(10.0)}

	assert.Equal(t, types.NoReasoningPath, types.GenerateReasoning(nil, relations))
	assert.Equal(t, types.NoReasoningPath, types.GenerateReasoning(entities, nil))
	assert.Equal(t, types.NoReasoningPath, types.GenerateReasoning(nil, nil))
	assert.NotEmpty(t, types.NoReasoningPath)
}

func TestGenerateReasoning_MoreRelationsThanEntities(t *testing.T) {
	entities := []types.Entity{{Name: "A"}, {Name: "B"}}
	relations := []types.Relation{{RelationType: "HOLDS"}, {RelationType: "HOLDS"}}

	assert.Equal(t, "A -> HOLDS -> B", types.GenerateReasoning(entities, relations))
}

func TestNewQueryPath_ScoresFromHops(t *testing.T) {
	entities := []types.Entity{{Name: "A"}, {Name: "B"}, {Name: "C"}}
	relations := []types.Relation{holding(10.0), holding(20.0)}

	p := types.NewQueryPath(entities, relations, 2)
	assert.Equal(t, 2, p.HopCount)
	assert.InDelta(t, 0.8, p.Confidence, 1e-9)
	assert.Equal(t, "A -> SHAREHOLDER (10%) -> B -> SHAREHOLDER (20%) -> C", p.Reasoning)

	// A missing hop count falls back to the number of relations.
	p = types.NewQueryPath(entities, relations, 0)
	assert.Equal(t, 2, p.HopCount)
}

func TestSortPaths(t *testing.T) {
	company := types.Entity{Name: "字节跳动"}
	zhang := types.NewQueryPath([]types.Entity{company, {Name: "张一鸣"}}, []types.Relation{holding(20.2)}, 1)
	sequoia := types.NewQueryPath([]types.Entity{company, {Name: "红杉资本"}}, []types.Relation{holding(8.0)}, 1)
	deep := types.NewQueryPath(
		[]types.Entity{company, {Name: "X"}, {Name: "Y"}},
		[]types.Relation{holding(90.0), holding(90.0)},
		2,
	)

	paths := []types.QueryPath{deep, sequoia, zhang}
	types.SortPaths(paths)

	require.Len(t, paths, 3)
	assert.Equal(t, "张一鸣", paths[0].Entities[1].Name)
	assert.Equal(t, "红杉资本", paths[1].Entities[1].Name)
	assert.Equal(t, 2, paths[2].HopCount)
}
