package trainer

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitryikh/leaves"

	"github.com/kailas-cloud/ltrkit/internal/domain"
	"github.com/kailas-cloud/ltrkit/internal/svmlight"
)

// Params are passed to the trainer verbatim.
type Params map[string]string

// Model is a trained ranking model owned by the caller.
type Model struct {
	Path   string
	Rounds int
	Params Params
	Data   svmlight.Stats

	ensemble Ensemble
	booster  Booster
}

// LoadXGBoost reads an XGBoost binary model with raw (untransformed) outputs.
func LoadXGBoost(path string) (Ensemble, error) {
	e, err := leaves.XGEnsembleFromFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("load xgboost model %s: %w", path, err)
	}
	return e, nil
}

// Predict scores one document. values are the features in training order;
// value i is feature index i+1, matching 1-based training files.
func (m *Model) Predict(values []float64) float64 {
	n := m.ensemble.NFeatures()
	if len(values)+1 > n {
		n = len(values) + 1
	}
	fvals := make([]float64, n)
	copy(fvals[1:], values)
	return m.ensemble.PredictSingle(fvals, 0)
}

// Trees returns the number of trees in the ensemble.
func (m *Model) Trees() int { return m.ensemble.NEstimators() }

// Dump returns the model's trees as a JSON array, the definition format the
// LTR plugin expects for xgboost models.
func (m *Model) Dump(ctx context.Context) ([]byte, error) {
	dumpPath := m.Path + ".dump.json"
	if err := m.booster.Dump(ctx, m.Path, dumpPath); err != nil {
		return nil, fmt.Errorf("%w: dump model: %w", domain.ErrTraining, err)
	}
	defer os.Remove(dumpPath)

	data, err := os.ReadFile(dumpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read dump: %w", domain.ErrTraining, err)
	}
	return data, nil
}
