// Package types defines the core data structures for multi-hop graph reasoning.
// These types represent graph entities, relations, candidate paths, query
// requests and the results produced by the reasoning pipeline.
package types

import "strings"

// EntityType classifies a graph node. The set is open: stores may surface
// labels that do not map onto a known type, which become EntityTypeUnknown.
type EntityType string

// Entity type constants
const (
	// EntityTypeCompany is a registered company or listed entity
	EntityTypeCompany EntityType = "company"

	// EntityTypePerson is a natural person (individual shareholder, executive)
	EntityTypePerson EntityType = "person"

	// EntityTypeOrganization is an institution such as a fund or investment firm
	EntityTypeOrganization EntityType = "organization"

	// EntityTypeUnknown is used when labels do not disambiguate the node
	EntityTypeUnknown EntityType = "unknown"
)

// Graph labels used by the shareholding graph.
const (
	LabelEntity       = "Entity"
	LabelCompany      = "Company"
	LabelPerson       = "Person"
	LabelOrganization = "Organization"
	LabelShareholder  = "Shareholder"
)

// Relationship types that model a shareholding edge. Edges point from the
// holder to the company that is held.
const (
	RelationShareholder = "SHAREHOLDER"
	RelationHolds       = "HOLDS"
)

// ShareholdingRelationTypes lists every relation label treated as a holding.
var ShareholdingRelationTypes = []string{RelationShareholder, RelationHolds}

// shareholderKinds maps the free-form "type" property carried by
// Shareholder nodes onto an entity type.
var shareholderKinds = map[string]EntityType{
	"person":       EntityTypePerson,
	"individual":   EntityTypePerson,
	"个人":           EntityTypePerson,
	"organization": EntityTypeOrganization,
	"institution":  EntityTypeOrganization,
	"机构":           EntityTypeOrganization,
	"company":      EntityTypeCompany,
	"公司":           EntityTypeCompany,
}

// EntityTypeFromLabels derives an EntityType from a node's labels. Shareholder
// nodes are resolved through their "type" property because the label alone
// does not tell a person from an institution.
func EntityTypeFromLabels(labels []string, props map[string]interface{}) EntityType {
	for _, label := range labels {
		switch strings.ToLower(label) {
		case "company":
			return EntityTypeCompany
		case "person":
			return EntityTypePerson
		case "organization", "organisation", "institution":
			return EntityTypeOrganization
		}
	}

	for _, label := range labels {
		if label != LabelShareholder {
			continue
		}
		if kind, ok := props["type"].(string); ok {
			if t, found := shareholderKinds[strings.ToLower(strings.TrimSpace(kind))]; found {
				return t
			}
		}
	}

	return EntityTypeUnknown
}

// LabelForEntityType returns the primary graph label written for an entity type.
func LabelForEntityType(t EntityType) string {
	switch t {
	case EntityTypeCompany:
		return LabelCompany
	case EntityTypePerson:
		return LabelPerson
	case EntityTypeOrganization:
		return LabelOrganization
	default:
		return LabelEntity
	}
}
