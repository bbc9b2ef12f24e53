package trainer

import (
	"context"

	"github.com/kailas-cloud/ltrkit/internal/transport/xgboost"
)

// Booster runs the external gradient-boosting trainer.
type Booster interface {
	Train(ctx context.Context, job xgboost.TrainJob) error
	Dump(ctx context.Context, modelPath, dumpPath string) error
}

// Ensemble is a loaded tree ensemble.
type Ensemble interface {
	PredictSingle(fvals []float64, nEstimators int) float64
	NFeatures() int
	NEstimators() int
}

// Loader reads a trained model file.
type Loader func(path string) (Ensemble, error)
