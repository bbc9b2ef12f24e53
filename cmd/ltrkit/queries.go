package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/domain/ltr/query"
)

func newFeatureQueryCmd(a *app) *cobra.Command {
	var p query.FeatureLogParams
	cmd := &cobra.Command{
		Use:   "feature-query",
		Short: "Print a feature-logging query for a set of candidate documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.FeatureSet == "" {
				p.FeatureSet = a.cfg.LTR.FeatureSet
			}
			if p.Store == "" {
				p.Store = a.cfg.LTR.Store
			}
			if !cmd.Flags().Changed("size") {
				p.Size = a.cfg.LTR.LogSize
			}
			if p.TermsField == "" {
				p.TermsField = a.cfg.LTR.TermsField
			}
			if p.Truncates() {
				a.logger.Warn("Feature log size smaller than candidate list",
					zap.Int("size", p.Size),
					zap.Int("doc_ids", len(p.DocIDs)),
				)
			}
			return printJSON(cmd.OutOrStdout(), query.BuildFeatureLog(p))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&p.Query, "query", "q", "", "user query text")
	f.StringSliceVar(&p.DocIDs, "doc-ids", nil, "candidate document ids (comma separated)")
	f.StringVar(&p.ClickPriorQuery, "click-prior", "", "click prior query (reserved)")
	f.StringVar(&p.FeatureSet, "featureset", "", "feature set name (overrides ltr.featureset)")
	f.StringVar(&p.Store, "store", "", "feature store name (overrides ltr.store)")
	f.IntVar(&p.Size, "size", 0, "maximum hits to log (overrides ltr.log_size)")
	f.StringVar(&p.TermsField, "terms-field", "", "field the document ids are matched on (overrides ltr.terms_field)")
	return cmd
}

func newRescoreQueryCmd(a *app) *cobra.Command {
	var (
		input, userQuery, clickPrior, model, store string
		window                                     int
		queryWeight, rescoreWeight                 float64
	)
	cmd := &cobra.Command{
		Use:   "rescore-query",
		Short: "Add an LTR rescore stage to a search request read from a file or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ltr := a.cfg.LTR
			if model == "" {
				model = ltr.Model
			}
			if store == "" {
				store = ltr.Store
			}
			opts := []query.RescoreOption{
				query.WithWindowSize(ltr.RescoreWindow),
				query.WithQueryWeight(ltr.MainWeight()),
				query.WithRescoreQueryWeight(ltr.RescoreWeight()),
			}
			if cmd.Flags().Changed("window") {
				opts = append(opts, query.WithWindowSize(window))
			}
			if cmd.Flags().Changed("query-weight") {
				opts = append(opts, query.WithQueryWeight(queryWeight))
			}
			if cmd.Flags().Changed("rescore-weight") {
				opts = append(opts, query.WithRescoreQueryWeight(rescoreWeight))
			}

			rs, err := query.NewRescore(userQuery, clickPrior, model, store, opts...)
			if err != nil {
				return err
			}

			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			defer in.Close()
			body, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read request: %w", err)
			}

			out, err := query.AddRescore(body, rs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "-", "baseline request JSON file (- for stdin)")
	f.StringVarP(&userQuery, "user-query", "q", "", "user query text")
	f.StringVar(&clickPrior, "click-prior", "", "click prior query")
	f.StringVar(&model, "model", "", "LTR model name (overrides ltr.model)")
	f.StringVar(&store, "store", "", "feature store name (overrides ltr.store)")
	f.IntVar(&window, "window", 0, "rescore window size (overrides ltr.rescore_window)")
	f.Float64Var(&queryWeight, "query-weight", 0, "baseline query weight (overrides ltr.main_query_weight)")
	f.Float64Var(&rescoreWeight, "rescore-weight", 0, "model query weight (overrides ltr.rescore_query_weight)")
	_ = cmd.MarkFlagRequired("user-query")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
