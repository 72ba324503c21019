package main

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/scrypster/multihop/internal/storage"
	"github.com/scrypster/multihop/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newQueryCmd(o *options) *cobra.Command {
	var (
		queryType string
		entity    string
		maxHops   int
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "query QUESTION",
		Short: "Answer a single question",
		Example: `  multihop query "字节跳动的最大股东是谁？" --type shareholder --entity 字节跳动
  multihop query "张一鸣投资了哪些公司？" --type relationship --entity 张一鸣 --max-hops 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qt, err := types.ParseQueryType(queryType)
			if err != nil {
				return err
			}

			req := types.NewQueryRequest(args[0], qt, entity)
			req.MaxHops = o.cfg.Query.MaxHops
			req.SimilarityThreshold = o.cfg.Query.SimilarityThreshold
			if cmd.Flags().Changed("max-hops") {
				req.MaxHops = maxHops
			}
			if cmd.Flags().Changed("threshold") {
				req.SimilarityThreshold = threshold
			}
			if err := req.Validate(); err != nil {
				return err
			}

			return o.withGraph(cmd.Context(), func(store storage.Graph) error {
				coord, err := o.newCoordinator(store)
				if err != nil {
					return err
				}
				result, err := coord.ProcessQuery(cmd.Context(), req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVarP(&queryType, "type", "t", string(types.QueryTypeShareholder), "query type: shareholder, control_chain, relationship, entity_info")
	cmd.Flags().StringVar(&entity, "entity", "", "target entity name")
	cmd.Flags().IntVar(&maxHops, "max-hops", types.DefaultMaxHops, "maximum traversal depth (1-10)")
	cmd.Flags().Float64Var(&threshold, "threshold", types.DefaultSimilarityThreshold, "similarity threshold (recorded, not enforced)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}
