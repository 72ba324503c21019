package types

import (
	"strconv"
	"strings"
)

// Property keys commonly carried by shareholding relations.
const (
	PropPercentage      = "percentage"
	PropControlType     = "control_type"
	PropControlTypeAlt  = "controlType"
	PropIsLargestHolder = "is_largest_shareholder"

	// ControlTypeControlling marks a relation as conferring control.
	ControlTypeControlling = "controlling"
)

// Relation represents an edge between two entities.
// Source and Target are the edge endpoints reported by the store. Either may
// be empty when the traversal result does not carry the endpoint.
type Relation struct {
	Source       string                 `json:"source" yaml:"source"`
	Target       string                 `json:"target" yaml:"target"`
	RelationType string                 `json:"relation_type" yaml:"type"`
	Properties   map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Percentage returns the numeric holding percentage of the relation.
// The second return value is false when the property is missing or not numeric.
func (r Relation) Percentage() (float64, bool) {
	return toFloat(r.Properties[PropPercentage])
}

// ControlType returns the relation's control flag, accepting both the
// snake_case and camelCase property keys.
func (r Relation) ControlType() string {
	for _, key := range []string{PropControlType, PropControlTypeAlt} {
		if v, ok := r.Properties[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// IsControlling reports whether the relation is explicitly flagged as controlling.
func (r Relation) IsControlling() bool {
	return strings.EqualFold(r.ControlType(), ControlTypeControlling)
}

// toFloat converts the numeric shapes produced by JSON decoding, SQL drivers
// and the Neo4j driver into a float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
