package types_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/multihop/pkg/types"
)

func TestNewQueryRequest_Defaults(t *testing.T) {
	req := types.NewQueryRequest("字节跳动的最大股东是谁？", types.QueryTypeShareholder, "字节跳动")

	assert.Equal(t, 3, req.MaxHops)
	assert.InDelta(t, 0.7, req.SimilarityThreshold, 1e-9)
	require.NoError(t, req.Validate())
}

// TestValidate_MaxHopsBounds covers the hop bound contract: zero and
// negative values are rejected rather than defaulted.
func TestValidate_MaxHopsBounds(t *testing.T) {
	tests := []struct {
		name    string
		maxHops int
		wantErr bool
	}{
		{"zero rejected", 0, true},
		{"negative rejected", -1, true},
		{"one accepted", 1, false},
		{"limit accepted", types.MaxHopsLimit, false},
		{"above limit rejected", types.MaxHopsLimit + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := types.NewQueryRequest("q", types.QueryTypeShareholder, "X")
			req.MaxHops = tt.maxHops

			err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrInvalidRequest))
				assert.Contains(t, err.Error(), "MaxHops")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	req := types.NewQueryRequest("", types.QueryTypeEntityInfo, "")

	err := req.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "Query is required")
	assert.Contains(t, err.Error(), "Entity is required")
}

func TestValidate_SimilarityThreshold(t *testing.T) {
	req := types.NewQueryRequest("q", types.QueryTypeRelationship, "X")
	req.SimilarityThreshold = 1.5
	assert.ErrorIs(t, req.Validate(), types.ErrInvalidRequest)

	req.SimilarityThreshold = 0
	assert.NoError(t, req.Validate())
}

func TestValidate_UnknownQueryType(t *testing.T) {
	req := types.NewQueryRequest("q", types.QueryType("subsidiary"), "X")

	err := req.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownQueryType)
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestParseQueryType(t *testing.T) {
	for _, qt := range types.AllQueryTypes() {
		got, err := types.ParseQueryType(" " + string(qt) + " ")
		require.NoError(t, err)
		assert.Equal(t, qt, got)
		assert.True(t, got.Valid())
	}

	got, err := types.ParseQueryType("CONTROL_CHAIN")
	require.NoError(t, err)
	assert.Equal(t, types.QueryTypeControlChain, got)

	_, err = types.ParseQueryType("subsidiary")
	assert.ErrorIs(t, err, types.ErrUnknownQueryType)
}

func TestEntityTypeFromLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		props  map[string]interface{}
		want   types.EntityType
	}{
		{"company", []string{"Company"}, nil, types.EntityTypeCompany},
		{"person", []string{"Entity", "Person"}, nil, types.EntityTypePerson},
		{"organization", []string{"Organization"}, nil, types.EntityTypeOrganization},
		{"individual shareholder", []string{"Shareholder"}, map[string]interface{}{"type": "个人"}, types.EntityTypePerson},
		{"institutional shareholder", []string{"Shareholder"}, map[string]interface{}{"type": "机构"}, types.EntityTypeOrganization},
		{"shareholder without kind", []string{"Shareholder"}, nil, types.EntityTypeUnknown},
		{"no labels", nil, nil, types.EntityTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, types.EntityTypeFromLabels(tt.labels, tt.props))
		})
	}
}

func TestLabelForEntityType(t *testing.T) {
	assert.Equal(t, "Company", types.LabelForEntityType(types.EntityTypeCompany))
	assert.Equal(t, "Person", types.LabelForEntityType(types.EntityTypePerson))
	assert.Equal(t, "Organization", types.LabelForEntityType(types.EntityTypeOrganization))
	assert.Equal(t, "Entity", types.LabelForEntityType(types.EntityTypeUnknown))
}
