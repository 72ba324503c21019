package engine

import (
	"time"

	"github.com/scrypster/multihop/pkg/types"
)

// SuccessThreshold is the confidence above which a result counts as
// successful.
const SuccessThreshold = 0.5

// GetQueryStatistics summarises a set of results. Nil entries are skipped.
// An empty input yields a zero summary with an empty, non-nil type map.
func GetQueryStatistics(results []*types.QueryResult) types.StatsSummary {
	summary := types.StatsSummary{
		QueryTypeStatistics: make(map[types.QueryType]types.TypeStats),
	}

	var (
		totalConfidence float64
		totalTime       time.Duration
		perTypeSuccess  = make(map[types.QueryType]int)
	)
	for _, r := range results {
		if r == nil {
			continue
		}
		summary.TotalQueries++
		totalConfidence += r.Confidence
		totalTime += r.ExecutionTime

		ts := summary.QueryTypeStatistics[r.QueryType]
		ts.Count++
		summary.QueryTypeStatistics[r.QueryType] = ts

		if r.Confidence > SuccessThreshold {
			summary.SuccessfulQueries++
			perTypeSuccess[r.QueryType]++
		}
	}

	if summary.TotalQueries == 0 {
		return summary
	}

	n := float64(summary.TotalQueries)
	summary.SuccessRate = float64(summary.SuccessfulQueries) / n
	summary.AverageConfidence = totalConfidence / n
	summary.AverageExecutionTime = totalTime / time.Duration(summary.TotalQueries)

	for qt, ts := range summary.QueryTypeStatistics {
		ts.SuccessRate = float64(perTypeSuccess[qt]) / float64(ts.Count)
		summary.QueryTypeStatistics[qt] = ts
	}
	return summary
}
