// Package engine runs the multi-hop reasoning pipeline.
//
// A Coordinator takes a QueryRequest through four strictly sequential
// stages: intent identification, graph traversal, integration and answer
// synthesis. Every stage records exactly one ReasoningStep. Failures in the
// graph store or the completion service degrade the result instead of
// aborting the pipeline; only contract violations are returned as errors.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/multihop/internal/llm"
	"github.com/scrypster/multihop/internal/storage"
	"github.com/scrypster/multihop/pkg/types"
)

// HighConfidenceThreshold is the path confidence above which a path counts
// as high confidence during integration.
const HighConfidenceThreshold = 0.7

// ErrQueryPanic marks a batch result whose request panicked mid-pipeline.
var ErrQueryPanic = errors.New("query panicked")

// Failure messages embedded in degraded results.
const (
	answerFailedPrefix = "answer generation failed"
	queryFailedPrefix  = "query processing failed"
)

// Completer produces completion text for a prompt. Implementations never
// fail: errors are reported through a fallback payload that the llm decode
// functions recognise. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string) string
}

// Config tunes the coordinator.
type Config struct {
	// GraphTimeout bounds each graph store call. Default: 10s.
	GraphTimeout time.Duration

	// CompletionTimeout bounds each completion call. Default: 60s.
	CompletionTimeout time.Duration

	// NeighborDepth is the traversal depth for entity_info queries. Default: 2.
	NeighborDepth int

	// MaxNeighbors caps the neighbours included in an entity_info path. Default: 5.
	MaxNeighbors int

	// PromptPaths caps the paths shown to the model during synthesis. Default: 3.
	PromptPaths int

	// RelationshipType is the edge label followed by relationship queries.
	// Default: HOLDS.
	RelationshipType string

	// TracerProvider supplies the pipeline tracer. Default: the global
	// provider.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns the default coordinator settings.
func DefaultConfig() Config {
	return Config{
		GraphTimeout:      10 * time.Second,
		CompletionTimeout: 60 * time.Second,
		NeighborDepth:     2,
		MaxNeighbors:      5,
		PromptPaths:       3,
		RelationshipType:  types.RelationHolds,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.GraphTimeout <= 0 {
		c.GraphTimeout = def.GraphTimeout
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = def.CompletionTimeout
	}
	if c.NeighborDepth <= 0 {
		c.NeighborDepth = def.NeighborDepth
	}
	if c.MaxNeighbors <= 0 {
		c.MaxNeighbors = def.MaxNeighbors
	}
	if c.PromptPaths <= 0 {
		c.PromptPaths = def.PromptPaths
	}
	if c.RelationshipType == "" {
		c.RelationshipType = def.RelationshipType
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
	return c
}

// Coordinator drives the reasoning pipeline. It holds no per-request state
// and is safe for concurrent use when its collaborators are.
type Coordinator struct {
	store     storage.GraphStore
	completer Completer
	cfg       Config
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator over the given graph store and
// completer. Zero config fields take their defaults.
func NewCoordinator(store storage.GraphStore, completer Completer, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Coordinator{
		store:     store,
		completer: completer,
		cfg:       cfg,
		tracer:    cfg.TracerProvider.Tracer(tracerName),
		logger:    logger,
	}
}

// run holds the state of one ProcessQuery call.
type run struct {
	req   types.QueryRequest
	steps []types.ReasoningStep
	paths []types.QueryPath
}

func (r *run) add(step types.ReasoningStep) {
	step.StepID = len(r.steps) + 1
	r.steps = append(r.steps, step)
}

// ProcessQuery runs the four pipeline stages for req. The returned error is
// non-nil only when req violates its contract (types.ErrInvalidRequest,
// types.ErrUnknownQueryType); the check happens before any stage runs.
// Every other failure is reported through a zero-confidence result.
func (c *Coordinator) ProcessQuery(ctx context.Context, req types.QueryRequest) (*types.QueryResult, error) {
	start := time.Now()

	ctx, span := c.startQuerySpan(ctx, req)
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		queriesTotal.WithLabelValues(string(req.QueryType), outcomeRejected).Inc()
		c.logger.Warn("query rejected", "entity", req.Entity, "query_type", req.QueryType, "error", err)
		return nil, err
	}

	requestID := uuid.NewString()
	log := c.logger.With("request_id", requestID, "query_type", string(req.QueryType), "entity", req.Entity)
	log.Info("processing query", "query", req.Query, "max_hops", req.MaxHops)

	r := &run{req: req}

	r.add(c.identifyIntent(ctx, req))

	step, err := c.executeTraversal(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "traversal dispatch failed")
		return nil, err
	}
	r.paths = step.Result.(types.GraphPayload).Paths
	r.add(step)

	r.add(c.integrate(ctx, r.paths))

	answer, synth := c.synthesize(ctx, r)
	r.add(synth)

	result := &types.QueryResult{
		Query:          req.Query,
		QueryType:      req.QueryType,
		Paths:          r.paths,
		Answer:         answer.Answer,
		Explanation:    answer.Explanation,
		Confidence:     answer.Confidence,
		ReasoningSteps: descriptions(r.steps),
		Steps:          r.steps,
		ExecutionTime:  time.Since(start),
		Metadata: map[string]interface{}{
			types.MetaRequestID:           requestID,
			types.MetaEntity:              req.Entity,
			types.MetaMaxHops:             req.MaxHops,
			types.MetaStepsCount:          len(r.steps),
			types.MetaGraphResultsCount:   len(r.paths),
			types.MetaSimilarityThreshold: req.SimilarityThreshold,
		},
	}

	outcome := outcomeAnswered
	if synth.Result.(types.SynthesisPayload).Error != "" {
		outcome = outcomeDegraded
		result.Metadata[types.MetaError] = synth.Result.(types.SynthesisPayload).Error
	}
	recordQuery(result, outcome)
	span.SetAttributes(
		attribute.Int("query.paths", len(result.Paths)),
		attribute.Float64("query.confidence", result.Confidence),
		attribute.String("query.outcome", outcome),
	)

	log.Info("query processed",
		"paths", len(result.Paths),
		"confidence", result.Confidence,
		"outcome", outcome,
		"duration", result.ExecutionTime)
	return result, nil
}

// identifyIntent asks the model to classify the query. The result is
// advisory: the caller's query type and entity drive the traversal.
func (c *Coordinator) identifyIntent(ctx context.Context, req types.QueryRequest) types.ReasoningStep {
	defer observeStage(stageIntent, time.Now())
	ctx, span := c.startStageSpan(ctx, stageIntent)
	defer span.End()

	raw := c.complete(ctx, llm.BuildIntentPrompt(req.Query))
	intent, err := llm.DecodeIntent(raw)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("intent identification failed", "entity", req.Entity, "error", err)
		return types.ReasoningStep{
			Description: "Intent identification failed: " + err.Error(),
			DataSource:  types.DataSourceLLM,
			Result:      types.IntentPayload{},
			Confidence:  0.0,
		}
	}

	label := intent.QueryType
	if label == "" {
		label = "unknown"
	}
	return types.ReasoningStep{
		Description: "Intent identified: " + label,
		DataSource:  types.DataSourceLLM,
		Result: types.IntentPayload{
			QueryType: intent.QueryType,
			Entity:    intent.Entity,
			Goal:      intent.Goal,
		},
		Confidence: 0.8,
	}
}

// executeTraversal dispatches on the query type. The switch is exhaustive
// over types.AllQueryTypes; an unlisted type is a contract violation.
func (c *Coordinator) executeTraversal(ctx context.Context, req types.QueryRequest) (types.ReasoningStep, error) {
	defer observeStage(stageTraversal, time.Now())
	ctx, span := c.startStageSpan(ctx, stageTraversal)
	defer span.End()

	gctx, cancel := context.WithTimeout(ctx, c.cfg.GraphTimeout)
	defer cancel()

	var paths []types.QueryPath
	switch req.QueryType {
	case types.QueryTypeShareholder:
		paths = c.store.FindShareholders(gctx, req.Entity, req.MaxHops)

	case types.QueryTypeControlChain:
		if p := c.store.FindControllingShareholder(gctx, req.Entity); p != nil {
			paths = []types.QueryPath{*p}
		}

	case types.QueryTypeRelationship:
		for _, rec := range c.store.FindMultiHopRelationships(gctx, req.Entity, c.cfg.RelationshipType, req.MaxHops) {
			paths = append(paths, storage.PathFromRecord(rec))
		}

	case types.QueryTypeEntityInfo:
		neighbors := c.store.GetEntityNeighbors(gctx, req.Entity, c.cfg.NeighborDepth)
		if p, ok := neighborhoodPath(req.Entity, neighbors, c.cfg.MaxNeighbors); ok {
			paths = []types.QueryPath{p}
		}

	default:
		return types.ReasoningStep{}, fmt.Errorf("%w: no traversal for %q", types.ErrUnknownQueryType, string(req.QueryType))
	}

	if paths == nil {
		paths = []types.QueryPath{}
	}
	span.SetAttributes(attribute.Int("traversal.paths", len(paths)))

	confidence := 0.1
	if len(paths) > 0 {
		confidence = 0.9
	}
	return types.ReasoningStep{
		Description: fmt.Sprintf("Graph query completed, found %d paths", len(paths)),
		DataSource:  types.DataSourceGraph,
		Result:      types.GraphPayload{Paths: paths},
		Confidence:  confidence,
	}, nil
}

// neighborhoodPath describes an entity through its nearest neighbours. The
// path has no relations; its hop count is the distance of the farthest
// included neighbour.
func neighborhoodPath(entity string, neighbors []storage.NeighborRecord, limit int) (types.QueryPath, bool) {
	if len(neighbors) == 0 {
		return types.QueryPath{}, false
	}
	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}

	entities := make([]types.Entity, 0, len(neighbors)+1)
	entities = append(entities, types.Entity{ID: entity, Name: entity, Type: types.EntityTypeUnknown})

	names := make([]string, 0, len(neighbors))
	hops := 1
	for _, n := range neighbors {
		entities = append(entities, types.Entity{
			ID:         n.Name,
			Name:       n.Name,
			Type:       types.EntityTypeFromLabels(n.Labels, nil),
			Properties: map[string]interface{}{"distance": n.Distance, "relationship_type": n.RelationshipType},
		})
		names = append(names, fmt.Sprintf("%s (distance %d)", n.Name, n.Distance))
		hops = max(hops, n.Distance)
	}

	p := types.NewQueryPath(entities, nil, hops)
	p.Reasoning = fmt.Sprintf("Neighbours of %s: %s", entity, strings.Join(names, ", "))
	return p, true
}

// integrate aggregates the traversal paths. It never calls the store.
func (c *Coordinator) integrate(ctx context.Context, paths []types.QueryPath) types.ReasoningStep {
	defer observeStage(stageIntegration, time.Now())
	_, span := c.startStageSpan(ctx, stageIntegration)
	defer span.End()

	if len(paths) == 0 {
		return types.ReasoningStep{
			Description: "No relevant path found, nothing to integrate",
			DataSource:  types.DataSourceIntegration,
			Result:      types.IntegrationPayload{Note: "no relevant information"},
			Confidence:  0.0,
		}
	}

	summary := summarize(paths)

	total := 0.0
	for _, p := range paths {
		total += p.Confidence
	}

	return types.ReasoningStep{
		Description: fmt.Sprintf("Results integrated, %d entities involved", len(summary.EntitiesInvolved)),
		DataSource:  types.DataSourceIntegration,
		Result:      types.IntegrationPayload{Summary: summary},
		Confidence:  total / float64(len(paths)),
	}
}

// summarize collects names and relation types into sets, then freezes them
// as sorted slices.
func summarize(paths []types.QueryPath) *types.IntegratedSummary {
	entities := make(map[string]struct{})
	relTypes := make(map[string]struct{})
	high := make([]types.QueryPath, 0, len(paths))

	for _, p := range paths {
		if p.Confidence > HighConfidenceThreshold {
			high = append(high, p)
		}
		for _, e := range p.Entities {
			entities[e.Name] = struct{}{}
		}
		for _, rel := range p.Relations {
			relTypes[rel.RelationType] = struct{}{}
		}
	}

	return &types.IntegratedSummary{
		TotalPaths:          len(paths),
		HighConfidencePaths: high,
		EntitiesInvolved:    sortedKeys(entities),
		RelationshipTypes:   sortedKeys(relTypes),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// synthesize asks the model for the final answer. Any failure yields an
// explicit failure message with zero confidence.
func (c *Coordinator) synthesize(ctx context.Context, r *run) (llm.Answer, types.ReasoningStep) {
	defer observeStage(stageSynthesis, time.Now())
	ctx, span := c.startStageSpan(ctx, stageSynthesis)
	defer span.End()

	prompt := llm.BuildAnswerPrompt(c.answerContext(r))
	answer, err := llm.DecodeAnswer(c.complete(ctx, prompt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		c.logger.Error("answer synthesis failed", "entity", r.req.Entity, "error", err)

		failed := llm.Answer{Answer: answerFailedPrefix + ": " + err.Error()}
		return failed, types.ReasoningStep{
			Description: "Answer synthesis failed",
			DataSource:  types.DataSourceLLM,
			Result: types.SynthesisPayload{
				Answer: failed.Answer,
				Error:  err.Error(),
			},
			Confidence: 0.0,
		}
	}

	return *answer, types.ReasoningStep{
		Description: "Answer synthesized",
		DataSource:  types.DataSourceLLM,
		Result: types.SynthesisPayload{
			Answer:      answer.Answer,
			Confidence:  answer.Confidence,
			Explanation: answer.Explanation,
		},
		Confidence: answer.Confidence,
	}
}

// answerContext renders the previous steps and the strongest paths.
func (c *Coordinator) answerContext(r *run) llm.AnswerContext {
	ac := llm.AnswerContext{
		Query:     r.req.Query,
		Entity:    r.req.Entity,
		QueryType: string(r.req.QueryType),
		Steps:     make([]string, 0, len(r.steps)),
	}
	for _, s := range r.steps {
		ac.Steps = append(ac.Steps, fmt.Sprintf("Step %d: %s", s.StepID, s.Description))
	}

	shown := r.paths
	if len(shown) > c.cfg.PromptPaths {
		shown = shown[:c.cfg.PromptPaths]
	}
	for _, p := range shown {
		ac.Paths = append(ac.Paths, llm.PathLine{Reasoning: p.Reasoning, Confidence: p.Confidence})
	}
	return ac
}

func (c *Coordinator) complete(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CompletionTimeout)
	defer cancel()
	return c.completer.Complete(ctx, prompt)
}

// BatchProcess runs the requests one at a time in order. A request that
// cannot be processed yields a degraded result; the batch always returns
// one result per request.
func (c *Coordinator) BatchProcess(ctx context.Context, reqs []types.QueryRequest) []*types.QueryResult {
	results := make([]*types.QueryResult, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, c.processIsolated(ctx, req))
	}
	return results
}

// ProcessConcurrent runs up to workers requests in parallel. Each request
// still runs its stages sequentially. Results keep the input order.
func (c *Coordinator) ProcessConcurrent(ctx context.Context, reqs []types.QueryRequest, workers int) []*types.QueryResult {
	if workers <= 1 {
		return c.BatchProcess(ctx, reqs)
	}

	results := make([]*types.QueryResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = c.processIsolated(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// processIsolated runs one batch request. Contract violations and panics
// both become a degraded result so the rest of the batch proceeds.
func (c *Coordinator) processIsolated(ctx context.Context, req types.QueryRequest) (result *types.QueryResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrQueryPanic, r)
			c.logger.Error("batch query panicked", "entity", req.Entity, "panic", r)
			queriesTotal.WithLabelValues(string(req.QueryType), outcomeDegraded).Inc()
			result = failedResult(req, err, time.Since(start))
		}
	}()

	result, err := c.ProcessQuery(ctx, req)
	if err != nil {
		c.logger.Error("batch query failed", "entity", req.Entity, "error", err)
		return failedResult(req, err, time.Since(start))
	}
	return result
}

// failedResult is the degraded result for a request that was rejected or
// did not finish the pipeline.
func failedResult(req types.QueryRequest, err error, elapsed time.Duration) *types.QueryResult {
	return &types.QueryResult{
		Query:          req.Query,
		QueryType:      req.QueryType,
		Paths:          []types.QueryPath{},
		Answer:         queryFailedPrefix + ": " + err.Error(),
		Confidence:     0.0,
		ReasoningSteps: []string{"Error: " + err.Error()},
		ExecutionTime:  elapsed,
		Metadata: map[string]interface{}{
			types.MetaEntity:  req.Entity,
			types.MetaMaxHops: req.MaxHops,
			types.MetaError:   err.Error(),
		},
	}
}

func descriptions(steps []types.ReasoningStep) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Description)
	}
	return out
}

func observeStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
