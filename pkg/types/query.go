package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidRequest indicates a QueryRequest that violates its contract
	// (missing fields, hop bound out of range). It is never a runtime degradation.
	ErrInvalidRequest = errors.New("invalid query request")

	// ErrUnknownQueryType indicates a QueryType outside the closed set.
	ErrUnknownQueryType = errors.New("unknown query type")
)

// QueryType selects the traversal strategy used for a request.
// The set is closed: adding a variant requires a matching traversal branch.
type QueryType string

// Query type constants
const (
	// QueryTypeShareholder finds the shareholders of a company, up to MaxHops away
	QueryTypeShareholder QueryType = "shareholder"

	// QueryTypeControlChain finds the controlling shareholder of a company
	QueryTypeControlChain QueryType = "control_chain"

	// QueryTypeRelationship follows a relation label in both directions
	QueryTypeRelationship QueryType = "relationship"

	// QueryTypeEntityInfo describes an entity through its neighbourhood
	QueryTypeEntityInfo QueryType = "entity_info"
)

// Request bounds and defaults.
const (
	DefaultMaxHops             = 3
	MaxHopsLimit               = 10
	DefaultSimilarityThreshold = 0.7
)

// AllQueryTypes returns every supported query type in declaration order.
func AllQueryTypes() []QueryType {
	return []QueryType{
		QueryTypeShareholder,
		QueryTypeControlChain,
		QueryTypeRelationship,
		QueryTypeEntityInfo,
	}
}

// Valid reports whether t is one of the supported query types.
func (t QueryType) Valid() bool {
	switch t {
	case QueryTypeShareholder, QueryTypeControlChain, QueryTypeRelationship, QueryTypeEntityInfo:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (t QueryType) String() string {
	return string(t)
}

// ParseQueryType converts a string into a QueryType.
func ParseQueryType(s string) (QueryType, error) {
	t := QueryType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownQueryType, s)
	}
	return t, nil
}

// QueryRequest is the input to the reasoning pipeline.
type QueryRequest struct {
	// Query is the free-text question.
	Query string `json:"query" yaml:"query" validate:"required"`

	// QueryType is the resolved query type.
	QueryType QueryType `json:"query_type" yaml:"query_type" validate:"querytype"`

	// Entity is the name of the target entity.
	Entity string `json:"entity" yaml:"entity" validate:"required"`

	// MaxHops bounds the traversal depth (1..MaxHopsLimit).
	MaxHops int `json:"max_hops" yaml:"max_hops" validate:"gte=1,lte=10"`

	// SimilarityThreshold is accepted and recorded but not enforced by the pipeline.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" validate:"gte=0,lte=1"`

	// Context carries optional caller-supplied context.
	Context map[string]interface{} `json:"context,omitempty" yaml:"context,omitempty"`
}

// NewQueryRequest returns a request populated with the default hop bound and
// similarity threshold.
func NewQueryRequest(query string, queryType QueryType, entity string) QueryRequest {
	return QueryRequest{
		Query:               query,
		QueryType:           queryType,
		Entity:              entity,
		MaxHops:             DefaultMaxHops,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// requestValidate is the validator instance for request types.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("querytype", func(fl validator.FieldLevel) bool {
		return QueryType(fl.Field().String()).Valid()
	})
}

// Validate checks the request contract. Unknown query types wrap
// ErrUnknownQueryType; every other violation wraps ErrInvalidRequest.
func (r QueryRequest) Validate() error {
	if !r.QueryType.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, ErrUnknownQueryType, string(r.QueryType))
	}

	err := requestValidate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}
