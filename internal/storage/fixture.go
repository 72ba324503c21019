package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/multihop/pkg/types"
)

//go:embed fixtures/shareholding.yaml
var sampleFixture []byte

// FixtureEntity is an entity entry in a graph fixture file.
type FixtureEntity struct {
	types.Entity `yaml:",inline"`
	Labels       []string `yaml:"labels,omitempty"`
}

// Fixture is a small graph described in YAML:
//
//	entities:
//	  - id: comp_003
//	    name: 字节跳动
//	    type: company
//	relations:
//	  - source: sh_003
//	    target: comp_003
//	    type: HOLDS
//	    properties: {percentage: 20.2}
type Fixture struct {
	Entities  []FixtureEntity  `yaml:"entities"`
	Relations []types.Relation `yaml:"relations"`
}

// ParseFixture decodes and checks a YAML fixture. Every relation must refer
// to entities declared in the same file.
func ParseFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("fixture: decode: %w", err)
	}

	ids := make(map[string]bool, len(f.Entities))
	for i, e := range f.Entities {
		if e.ID == "" || e.Name == "" {
			return nil, fmt.Errorf("%w: fixture entity %d needs id and name", ErrInvalidInput, i)
		}
		if e.Type == "" {
			f.Entities[i].Type = types.EntityTypeUnknown
		}
		ids[e.ID] = true
	}
	for i, r := range f.Relations {
		if !ValidRelationType(r.RelationType) {
			return nil, fmt.Errorf("%w: fixture relation %d: %q", ErrInvalidRelationType, i, r.RelationType)
		}
		if !ids[r.Source] || !ids[r.Target] {
			return nil, fmt.Errorf("%w: fixture relation %d references unknown entity (%s -> %s)",
				ErrNotFound, i, r.Source, r.Target)
		}
	}
	return &f, nil
}

// Apply writes the fixture through w, entities first.
func (f *Fixture) Apply(ctx context.Context, w GraphWriter) error {
	for _, e := range f.Entities {
		if err := w.UpsertEntity(ctx, e.Entity, e.Labels...); err != nil {
			return fmt.Errorf("fixture: entity %s: %w", e.ID, err)
		}
	}
	for _, r := range f.Relations {
		if err := w.UpsertRelation(ctx, r); err != nil {
			return fmt.Errorf("fixture: relation %s-[%s]->%s: %w", r.Source, r.RelationType, r.Target, err)
		}
	}
	return nil
}

// LoadFixture parses a YAML fixture from r and writes it through w.
func LoadFixture(ctx context.Context, w GraphWriter, r io.Reader) (*Fixture, error) {
	f, err := ParseFixture(r)
	if err != nil {
		return nil, err
	}
	if err := f.Apply(ctx, w); err != nil {
		return nil, err
	}
	return f, nil
}

// SampleFixture returns the bundled shareholding sample graph.
func SampleFixture() []byte {
	out := make([]byte, len(sampleFixture))
	copy(out, sampleFixture)
	return out
}

// EntityLabels returns the labels written for an entity: its type label
// followed by any extra labels, without duplicates.
func EntityLabels(entity types.Entity, extra ...string) []string {
	labels := []string{types.LabelForEntityType(entity.Type)}
	seen := map[string]bool{labels[0]: true}
	for _, l := range extra {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		labels = append(labels, l)
	}
	return labels
}
