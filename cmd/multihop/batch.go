package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/multihop/internal/engine"
	"github.com/scrypster/multihop/internal/storage"
	"github.com/scrypster/multihop/pkg/types"
)

// batchFile is the YAML layout accepted by the batch command.
type batchFile struct {
	Requests []batchEntry `yaml:"requests"`
}

// batchEntry leaves max_hops and similarity_threshold nil when absent so
// that an explicit zero is still rejected as a contract violation.
type batchEntry struct {
	Query               string                 `yaml:"query"`
	QueryType           string                 `yaml:"query_type"`
	Entity              string                 `yaml:"entity"`
	MaxHops             *int                   `yaml:"max_hops"`
	SimilarityThreshold *float64               `yaml:"similarity_threshold"`
	Context             map[string]interface{} `yaml:"context"`
}

func (e batchEntry) request(defaultHops int, defaultThreshold float64) types.QueryRequest {
	req := types.QueryRequest{
		Query:               e.Query,
		QueryType:           types.QueryType(strings.ToLower(strings.TrimSpace(e.QueryType))),
		Entity:              e.Entity,
		MaxHops:             defaultHops,
		SimilarityThreshold: defaultThreshold,
		Context:             e.Context,
	}
	if e.MaxHops != nil {
		req.MaxHops = *e.MaxHops
	}
	if e.SimilarityThreshold != nil {
		req.SimilarityThreshold = *e.SimilarityThreshold
	}
	return req
}

func readBatchFile(path string, defaultHops int, defaultThreshold float64) ([]types.QueryRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var bf batchFile
	if err := yaml.NewDecoder(f).Decode(&bf); err != nil {
		return nil, fmt.Errorf("parse batch file %s: %w", path, err)
	}

	reqs := make([]types.QueryRequest, 0, len(bf.Requests))
	for _, e := range bf.Requests {
		reqs = append(reqs, e.request(defaultHops, defaultThreshold))
	}
	return reqs, nil
}

// batchOutput is written by the batch command and read by the stats command.
type batchOutput struct {
	Results    []*types.QueryResult `json:"results"`
	Statistics types.StatsSummary   `json:"statistics"`
}

func newBatchCmd(o *options) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Answer every question in a YAML batch file",
		Long: `Answer every question in a YAML batch file and print the results
together with summary statistics. Requests run one at a time unless
--workers is greater than one. A request that cannot be processed yields a
zero-confidence result instead of aborting the batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := readBatchFile(args[0], o.cfg.Query.MaxHops, o.cfg.Query.SimilarityThreshold)
			if err != nil {
				return err
			}

			return o.withGraph(cmd.Context(), func(store storage.Graph) error {
				coord, err := o.newCoordinator(store)
				if err != nil {
					return err
				}

				start := time.Now()
				results := coord.ProcessConcurrent(cmd.Context(), reqs, workers)
				stats := engine.GetQueryStatistics(results)
				o.logger.Info("batch complete",
					"requests", len(reqs),
					"workers", workers,
					"success_rate", stats.SuccessRate,
					"duration", time.Since(start))

				return writeJSON(cmd.OutOrStdout(), batchOutput{Results: results, Statistics: stats})
			})
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "number of requests processed in parallel")
	return cmd
}

// storedResult is the subset of a QueryResult needed for statistics.
type storedResult struct {
	QueryType     types.QueryType `json:"query_type"`
	Confidence    float64         `json:"confidence"`
	ExecutionTime time.Duration   `json:"execution_time"`
}

func newStatsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats FILE",
		Short: "Summarise the results written by the batch command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var out struct {
				Results []storedResult `json:"results"`
			}
			if err := json.Unmarshal(data, &out); err != nil {
				return fmt.Errorf("parse results file %s: %w", args[0], err)
			}

			results := make([]*types.QueryResult, 0, len(out.Results))
			for _, r := range out.Results {
				results = append(results, &types.QueryResult{
					QueryType:     r.QueryType,
					Confidence:    r.Confidence,
					ExecutionTime: r.ExecutionTime,
				})
			}
			return writeJSON(cmd.OutOrStdout(), engine.GetQueryStatistics(results))
		},
	}
}
