// Package trainer validates ranking training data, runs the external trainer
// and loads the resulting model for local scoring.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/domain"
	"github.com/kailas-cloud/ltrkit/internal/svmlight"
	"github.com/kailas-cloud/ltrkit/internal/transport/xgboost"
)

// DefaultRounds is used when Train is called with rounds <= 0.
const DefaultRounds = 5

// Service trains models.
type Service struct {
	booster  Booster
	load     Loader
	modelDir string
	duration *prometheus.HistogramVec
	logger   *zap.Logger
}

// New creates a Service. Models are written next to the training file unless
// WithModelDir is set.
func New(booster Booster, logger *zap.Logger) *Service {
	return &Service{booster: booster, load: LoadXGBoost, logger: logger}
}

// WithModelDir sets the output directory for model files.
func (s *Service) WithModelDir(dir string) *Service {
	s.modelDir = dir
	return s
}

// WithLoader replaces the model loader.
func (s *Service) WithLoader(l Loader) *Service {
	s.load = l
	return s
}

// WithDurationMetric records trainer run time with a "status" label.
func (s *Service) WithDurationMetric(h *prometheus.HistogramVec) *Service {
	s.duration = h
	return s
}

// Train validates path as SVMlight data, trains for rounds boosting rounds
// with params and returns the loaded model.
func (s *Service) Train(ctx context.Context, path string, rounds int, params Params) (*Model, error) {
	if path == "" {
		return nil, fmt.Errorf("training file is required: %w", domain.ErrInvalidArgument)
	}
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	if err := xgboost.ValidateParams(params); err != nil {
		return nil, err
	}

	stats, err := validateFile(path)
	if err != nil {
		return nil, err
	}

	modelPath := s.modelPath(path)
	s.logger.Info("Training model",
		zap.String("data", path),
		zap.Int("records", stats.Records),
		zap.Int("queries", stats.Queries),
		zap.Int("rounds", rounds),
		zap.String("model", modelPath),
	)

	start := time.Now()
	err = s.booster.Train(ctx, xgboost.TrainJob{
		DataPath: path,
		Rounds:   rounds,
		Params:   params,
		ModelOut: modelPath,
	})
	s.observe(start, err)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrTraining, err)
	}

	ensemble, err := s.load(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTraining, err)
	}

	return &Model{
		Path:     modelPath,
		Rounds:   rounds,
		Params:   params,
		Data:     stats,
		ensemble: ensemble,
		booster:  s.booster,
	}, nil
}

func (s *Service) modelPath(dataPath string) string {
	dir := s.modelDir
	if dir == "" {
		dir = filepath.Dir(dataPath)
	}
	base := strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath))
	return filepath.Join(dir, base+".model")
}

func (s *Service) observe(start time.Time, err error) {
	if s.duration == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func validateFile(path string) (svmlight.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return svmlight.Stats{}, fmt.Errorf("open training file: %w", err)
	}
	defer f.Close()

	stats, err := svmlight.Scan(f, nil)
	if err != nil {
		return svmlight.Stats{}, fmt.Errorf("validate %s: %w", path, err)
	}
	return stats, nil
}
