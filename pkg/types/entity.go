package types

// Entity is a read-only snapshot of a graph node materialised from a
// traversal result. It carries no back-reference to the store.
type Entity struct {
	ID         string                 `json:"id" yaml:"id"`                                     // Stable identifier
	Name       string                 `json:"name" yaml:"name"`                                 // Display label, not guaranteed unique
	Type       EntityType             `json:"type" yaml:"type"`                                 // company, person, organization, unknown
	Properties map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"` // Opaque property bag
}
