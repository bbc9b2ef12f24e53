package main

import (
	"fmt"
	"maps"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/metrics"
	"github.com/kailas-cloud/ltrkit/internal/transport/opensearch"
	"github.com/kailas-cloud/ltrkit/internal/transport/xgboost"
	"github.com/kailas-cloud/ltrkit/internal/usecase/trainer"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		data, modelDir, modelName string
		rounds                    int
		params                    map[string]string
		upload                    bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train an XGBoost ranking model from an SVMrank training file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tc := a.cfg.Training

			if !cmd.Flags().Changed("rounds") {
				rounds = tc.NumRounds
			}
			merged := trainer.Params{}
			maps.Copy(merged, tc.Params)
			maps.Copy(merged, params)

			runner := xgboost.NewRunner(xgboost.Config{
				Bin:     tc.XGBoostBin,
				WorkDir: tc.WorkDir,
				Logger:  a.logger,
			})
			svc := trainer.New(runner, a.logger).WithDurationMetric(metrics.TrainingDuration)
			if modelDir != "" {
				svc.WithModelDir(modelDir)
			}

			model, err := svc.Train(ctx, data, rounds, merged)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model: %s\ntrees: %d\nrecords: %d\nqueries: %d\n",
				model.Path, model.Trees(), model.Data.Records, model.Data.Queries)

			if !upload {
				return nil
			}
			if modelName == "" {
				modelName = a.cfg.LTR.Model
			}
			definition, err := model.Dump(ctx)
			if err != nil {
				return err
			}
			search, err := a.searchClient()
			if err != nil {
				return err
			}
			if err := search.CreateModel(ctx, a.cfg.LTR.Store, a.cfg.LTR.FeatureSet, modelName,
				opensearch.ModelTypeXGBoost, definition); err != nil {
				return fmt.Errorf("upload model: %w", err)
			}
			a.logger.Info("Model uploaded",
				zap.String("store", a.cfg.LTR.Store),
				zap.String("featureset", a.cfg.LTR.FeatureSet),
				zap.String("model", modelName),
			)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&data, "data", "d", "", "SVMrank/libsvm training file")
	f.IntVar(&rounds, "rounds", 0, "boosting rounds (overrides training.num_rounds)")
	f.StringToStringVar(&params, "param", nil, "trainer parameter key=value, repeatable (merged over training.params)")
	f.StringVar(&modelDir, "model-dir", "", "directory for the model file (default: next to the data file)")
	f.BoolVar(&upload, "upload", false, "upload the model to the LTR feature store")
	f.StringVar(&modelName, "model-name", "", "model name in the store (overrides ltr.model)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}
