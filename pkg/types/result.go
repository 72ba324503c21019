package types

import "time"

// DataSource identifies which collaborator a reasoning step drew on.
type DataSource string

// Data source constants
const (
	DataSourceLLM         DataSource = "llm"
	DataSourceGraph       DataSource = "graph"
	DataSourceIntegration DataSource = "integration"
)

// StepPayload is the stage-specific result attached to a ReasoningStep.
// It is implemented only by the payload types in this package.
type StepPayload interface {
	stepPayload()
}

// IntentPayload is the result of intent identification. It is empty when
// the completion response could not be decoded.
type IntentPayload struct {
	QueryType string `json:"query_type,omitempty"`
	Entity    string `json:"entity,omitempty"`
	Goal      string `json:"goal,omitempty"`
}

// GraphPayload carries the paths produced by the traversal stage.
type GraphPayload struct {
	Paths []QueryPath `json:"paths"`
}

// IntegrationPayload carries the aggregated view of the traversal paths.
// Summary is nil when there were no paths to integrate.
type IntegrationPayload struct {
	Summary *IntegratedSummary `json:"summary,omitempty"`
	Note    string             `json:"note,omitempty"`
}

// SynthesisPayload carries the final answer produced by the completion stage.
type SynthesisPayload struct {
	Answer      string  `json:"answer"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation,omitempty"`
	Error       string  `json:"error,omitempty"`
}

func (IntentPayload) stepPayload()      {}
func (GraphPayload) stepPayload()       {}
func (IntegrationPayload) stepPayload() {}
func (SynthesisPayload) stepPayload()   {}

// ReasoningStep is the audit record of one pipeline stage.
type ReasoningStep struct {
	StepID      int         `json:"step_id"`
	Description string      `json:"description"`
	DataSource  DataSource  `json:"data_source"`
	Result      StepPayload `json:"result"`
	Confidence  float64     `json:"confidence"`
}

// IntegratedSummary aggregates a set of paths. The name and type slices are
// sorted and de-duplicated.
type IntegratedSummary struct {
	TotalPaths          int         `json:"total_paths"`
	HighConfidencePaths []QueryPath `json:"high_confidence_paths"`
	EntitiesInvolved    []string    `json:"entities_involved"`
	RelationshipTypes   []string    `json:"relationship_types"`
}

// Metadata keys attached to every QueryResult.
const (
	MetaRequestID           = "request_id"
	MetaEntity              = "entity"
	MetaMaxHops             = "max_hops"
	MetaStepsCount          = "steps_count"
	MetaGraphResultsCount   = "graph_results_count"
	MetaSimilarityThreshold = "similarity_threshold"
	MetaError               = "error"
)

// QueryResult is the output of the reasoning pipeline. It is built once at
// the end of processing and not modified afterwards.
type QueryResult struct {
	Query          string                 `json:"query"`
	QueryType      QueryType              `json:"query_type"`
	Paths          []QueryPath            `json:"paths"`
	Answer         string                 `json:"answer"`
	Explanation    string                 `json:"explanation,omitempty"`
	Confidence     float64                `json:"confidence"`
	ReasoningSteps []string               `json:"reasoning_steps"`
	Steps          []ReasoningStep        `json:"steps,omitempty"`
	ExecutionTime  time.Duration          `json:"execution_time"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// TypeStats summarises results for a single query type.
type TypeStats struct {
	Count       int     `json:"count"`
	SuccessRate float64 `json:"success_rate"`
}

// StatsSummary summarises a batch of results.
type StatsSummary struct {
	TotalQueries         int                     `json:"total_queries"`
	SuccessfulQueries    int                     `json:"successful_queries"`
	SuccessRate          float64                 `json:"success_rate"`
	AverageConfidence    float64                 `json:"average_confidence"`
	AverageExecutionTime time.Duration           `json:"average_execution_time"`
	QueryTypeStatistics  map[QueryType]TypeStats `json:"query_type_statistics"`
}
