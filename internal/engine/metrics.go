package engine

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrypster/multihop/pkg/types"
)

const tracerName = "multihop.engine"

var (
	// queriesTotal counts processed queries.
	// Labels: query_type, outcome (answered, degraded, rejected)
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multihop",
		Subsystem: "pipeline",
		Name:      "queries_total",
		Help:      "Total queries processed by the reasoning pipeline",
	}, []string{"query_type", "outcome"})

	// queryDuration measures end-to-end query latency.
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "multihop",
		Subsystem: "pipeline",
		Name:      "query_duration_seconds",
		Help:      "End-to-end query latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"query_type"})

	// stageDuration measures the latency of each pipeline stage.
	// Labels: stage (intent, traversal, integration, synthesis)
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "multihop",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage latency in seconds",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"stage"})

	// pathsFound tracks how many paths the traversal stage produced.
	pathsFound = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "multihop",
		Subsystem: "pipeline",
		Name:      "paths_found",
		Help:      "Number of candidate paths per query",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 20},
	}, []string{"query_type"})

	// answerConfidence tracks the distribution of final answer confidence.
	answerConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "multihop",
		Subsystem: "pipeline",
		Name:      "answer_confidence",
		Help:      "Distribution of final answer confidence",
		Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	}, []string{"query_type"})
)

// Outcome labels for queriesTotal.
const (
	outcomeAnswered = "answered"
	outcomeDegraded = "degraded"
	outcomeRejected = "rejected"
)

// Stage labels for stageDuration and span names.
const (
	stageIntent      = "intent"
	stageTraversal   = "traversal"
	stageIntegration = "integration"
	stageSynthesis   = "synthesis"
)

func (c *Coordinator) startQuerySpan(ctx context.Context, req types.QueryRequest) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "Coordinator.ProcessQuery",
		trace.WithAttributes(
			attribute.String("query.type", string(req.QueryType)),
			attribute.String("query.entity", req.Entity),
			attribute.Int("query.max_hops", req.MaxHops),
		),
	)
}

func (c *Coordinator) startStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "Coordinator."+stage,
		trace.WithAttributes(attribute.String("pipeline.stage", stage)),
	)
}

func recordQuery(result *types.QueryResult, outcome string) {
	qt := string(result.QueryType)
	queriesTotal.WithLabelValues(qt, outcome).Inc()
	queryDuration.WithLabelValues(qt).Observe(result.ExecutionTime.Seconds())
	pathsFound.WithLabelValues(qt).Observe(float64(len(result.Paths)))
	answerConfidence.WithLabelValues(qt).Observe(result.Confidence)
}
