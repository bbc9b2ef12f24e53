package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/domain"
	"github.com/kailas-cloud/ltrkit/internal/domain/ltr/features"
	"github.com/kailas-cloud/ltrkit/internal/metrics"
	"github.com/kailas-cloud/ltrkit/internal/usecase/featurelog"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		input, output, format string
		queryID               int64
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Turn a feature-logging search response into a feature table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			in, err := openInput(cmd, input)
			if err != nil {
				return err
			}
			defer in.Close()
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			hits, err := parseHits(data)
			if err != nil {
				return err
			}
			table, err := features.Extract(hits, queryID, a.cfg.LTR.FeatureNames)
			if err != nil {
				return err
			}
			metrics.FeatureRowsTotal.WithLabelValues("batch").Add(float64(table.Len()))

			out, err := createOutput(cmd, output)
			if err != nil {
				return err
			}
			if err := writeTable(table, format, out); err != nil {
				_ = out.Close()
				return err
			}
			a.logger.Info("Features extracted", zap.Int("rows", table.Len()), zap.Int64("query_id", queryID))
			return out.Close()
		},
	}
	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "-", "search response or hits array JSON (- for stdin)")
	f.StringVarP(&output, "output", "o", "-", "output file (- for stdout)")
	f.StringVar(&format, "format", "csv", "output format: csv or parquet")
	f.Int64Var(&queryID, "query-id", 0, "query id stamped on every row")
	_ = cmd.MarkFlagRequired("query-id")
	return cmd
}

func newLogFeaturesCmd(a *app) *cobra.Command {
	var judgmentsPath, outDir, format string
	cmd := &cobra.Command{
		Use:   "log-features",
		Short: "Log features for a judgment list and write a training set",
		Long: "Runs one feature-logging query per judged query against the configured index,\n" +
			"then writes features.<format> and train.txt (SVMrank) into the output directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			in, err := openInput(cmd, judgmentsPath)
			if err != nil {
				return err
			}
			judgments, err := featurelog.ParseJudgments(in)
			_ = in.Close()
			if err != nil {
				return err
			}

			search, err := a.searchClient()
			if err != nil {
				return err
			}
			svc := featurelog.New(search, featurelog.Config{
				Index:      a.cfg.OpenSearch.Index,
				Store:      a.cfg.LTR.Store,
				FeatureSet: a.cfg.LTR.FeatureSet,
				Names:      a.cfg.LTR.FeatureNames,
				LogSize:    a.cfg.LTR.LogSize,
				TermsField: a.cfg.LTR.TermsField,
			}, a.logger).WithRowsCounter(metrics.FeatureRowsTotal.WithLabelValues("batch"))

			res, err := svc.Log(cmd.Context(), judgments)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			tablePath := filepath.Join(outDir, "features."+format)
			if err := writeFile(tablePath, func(w io.Writer) error { return writeTable(res.Table, format, w) }); err != nil {
				return err
			}
			trainPath := filepath.Join(outDir, "train.txt")
			if err := writeFile(trainPath, res.WriteSVMRank); err != nil {
				return err
			}

			a.logger.Info("Training set written",
				zap.String("features", tablePath),
				zap.String("train", trainPath),
				zap.Int("rows", res.Table.Len()),
			)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&judgmentsPath, "judgments", "j", "", "judgments CSV (query_id,query,doc_id,grade)")
	f.StringVarP(&outDir, "output-dir", "o", ".", "directory for features and train.txt")
	f.StringVar(&format, "format", "csv", "feature table format: csv or parquet")
	_ = cmd.MarkFlagRequired("judgments")
	return cmd
}

// parseHits accepts a full search response or a bare array of hits.
func parseHits(data []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: input is not valid JSON", domain.ErrInvalidArgument)
	}
	doc := gjson.ParseBytes(data)
	list := doc
	if !doc.IsArray() {
		list = doc.Get("hits.hits")
		if !list.IsArray() {
			return nil, fmt.Errorf("%w: no hits.hits array in input", domain.ErrFormat)
		}
	}

	arr := list.Array()
	hits := make([]json.RawMessage, len(arr))
	for i, h := range arr {
		hits[i] = json.RawMessage(h.Raw)
	}
	return hits, nil
}

func checkFormat(format string) error {
	if format != "csv" && format != "parquet" {
		return fmt.Errorf("%w: unknown format %q (csv or parquet)", domain.ErrInvalidArgument, format)
	}
	return nil
}

func writeTable(t *features.Table, format string, w io.Writer) error {
	if format == "parquet" {
		return t.WriteParquet(w)
	}
	return t.WriteCSV(w)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
