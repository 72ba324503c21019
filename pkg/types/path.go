package types

import (
	"sort"
	"strconv"
	"strings"
)

// NoReasoningPath is returned by GenerateReasoning when there is nothing to render.
const NoReasoningPath = "no reasoning path available"

// Scoring constants for path confidence.
const (
	hopDecay          = 0.2
	minPathConfidence = 0.1
	maxPathConfidence = 1.0

	// majorityBonus is added for each relation holding more than 50%.
	majorityBonus = 0.1

	// controllingBonus is added for each relation flagged as controlling.
	controllingBonus = 0.15

	majorityThreshold = 50.0
)

// QueryPath is one candidate answer unit: an ordered chain of entities joined
// by relations. Relations has len(Entities)-1 elements when well formed.
//
// Confidence is always derived from the hop count and relation strength via
// ScorePath; use NewQueryPath rather than setting it directly.
type QueryPath struct {
	Entities   []Entity   `json:"entities"`
	Relations  []Relation `json:"relations"`
	HopCount   int        `json:"hop_count"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
}

// NewQueryPath builds a scored path. hops is the hop count reported by the
// traversal; when it is not positive the number of relations is used instead.
func NewQueryPath(entities []Entity, relations []Relation, hops int) QueryPath {
	if hops < 1 {
		hops = len(relations)
	}
	if hops < 1 {
		hops = 1
	}
	return QueryPath{
		Entities:   entities,
		Relations:  relations,
		HopCount:   hops,
		Confidence: ScorePath(hops, relations),
		Reasoning:  GenerateReasoning(entities, relations),
	}
}

// ScorePath computes a path confidence from its hop count and relation strength.
//
// The base confidence decays linearly with hop count and is floored at 0.1:
// a 1-hop path starts at 1.0, a 3-hop path at 0.6. Each relation holding more
// than 50% adds 0.1 and each relation flagged as controlling adds 0.15. The
// result is clamped to [0.1, 1.0].
func ScorePath(hopCount int, relations []Relation) float64 {
	if hopCount < 1 {
		hopCount = 1
	}
	base := max(minPathConfidence, 1.0-float64(hopCount-1)*hopDecay)

	bonus := 0.0
	for _, rel := range relations {
		if pct, ok := rel.Percentage(); ok && pct > majorityThreshold {
			bonus += majorityBonus
		}
		if rel.IsControlling() {
			bonus += controllingBonus
		}
	}

	return min(maxPathConfidence, base+bonus)
}

// GenerateReasoning renders a path as "E0 -> TYPE (pct%) -> E1 -> ...",
// pairing each relation with the entity that follows it. It returns
// NoReasoningPath when either list is empty.
func GenerateReasoning(entities []Entity, relations []Relation) string {
	if len(entities) == 0 || len(relations) == 0 {
		return NoReasoningPath
	}

	var b strings.Builder
	b.WriteString(entities[0].Name)
	for i, rel := range relations {
		if i+1 >= len(entities) {
			break
		}
		b.WriteString(" -> ")
		b.WriteString(rel.RelationType)
		if pct, ok := rel.Percentage(); ok {
			b.WriteString(" (")
			b.WriteString(strconv.FormatFloat(pct, 'f', -1, 64))
			b.WriteString("%)")
		}
		b.WriteString(" -> ")
		b.WriteString(entities[i+1].Name)
	}
	return b.String()
}

// EntityNames returns the names of the path's entities in order.
func (p QueryPath) EntityNames() []string {
	names := make([]string, 0, len(p.Entities))
	for _, e := range p.Entities {
		names = append(names, e.Name)
	}
	return names
}

// leadingPercentage is the holding percentage of the first relation, or -1.
func (p QueryPath) leadingPercentage() float64 {
	if len(p.Relations) == 0 {
		return -1
	}
	if pct, ok := p.Relations[0].Percentage(); ok {
		return pct
	}
	return -1
}

// SortPaths orders paths shortest first. Ties are broken by the leading
// relation's percentage (largest holding first), then confidence, then
// reasoning text so the order is deterministic.
func SortPaths(paths []QueryPath) {
	sort.SliceStable(paths, func(i, j int) bool {
		a, b := paths[i], paths[j]
		if a.HopCount != b.HopCount {
			return a.HopCount < b.HopCount
		}
		if pa, pb := a.leadingPercentage(), b.leadingPercentage(); pa != pb {
			return pa > pb
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Reasoning < b.Reasoning
	})
}
