// Package xgboost drives the xgboost command-line trainer. The CLI exists up
// to the 1.7 series; newer installs need a wrapper that accepts the same
// config file.
package xgboost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxStderr = 4096

// TrainJob describes one training run.
type TrainJob struct {
	DataPath string
	Rounds   int
	Params   map[string]string
	ModelOut string
}

// ExecError is returned when the CLI exits unsuccessfully.
type ExecError struct {
	Task   string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("xgboost %s: %v", e.Task, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// Config holds runner settings.
type Config struct {
	Bin     string // executable name or path; default "xgboost"
	WorkDir string // where config files are written; default os.TempDir()
	Logger  *zap.Logger
}

// Runner executes xgboost tasks.
type Runner struct {
	bin     string
	workDir string
	logger  *zap.Logger
}

// NewRunner creates a runner. The binary is resolved lazily on first use.
func NewRunner(cfg Config) *Runner {
	bin := cfg.Bin
	if bin == "" {
		bin = "xgboost"
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{bin: bin, workDir: workDir, logger: logger}
}

// Train runs a training task and leaves the model at job.ModelOut.
func (r *Runner) Train(ctx context.Context, job TrainJob) error {
	if job.Rounds <= 0 {
		return fmt.Errorf("rounds must be positive, got %d", job.Rounds)
	}
	if err := ValidateParams(job.Params); err != nil {
		return err
	}
	var err error
	if job.DataPath, err = absPath("data", job.DataPath); err != nil {
		return err
	}
	if job.ModelOut, err = absPath("model", job.ModelOut); err != nil {
		return err
	}

	conf, err := r.writeConfig("train", func(f *os.File) error { return writeTrainConfig(f, job) })
	if err != nil {
		return err
	}
	defer os.Remove(conf)

	start := time.Now()
	if err := r.run(ctx, "train", conf); err != nil {
		return err
	}
	if _, err := os.Stat(job.ModelOut); err != nil {
		return &ExecError{Task: "train", Err: fmt.Errorf("model file not produced: %w", err)}
	}

	r.logger.Info("xgboost training finished",
		zap.String("data", job.DataPath),
		zap.String("model", job.ModelOut),
		zap.Int("rounds", job.Rounds),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Dump writes the model's trees as JSON to dumpPath.
func (r *Runner) Dump(ctx context.Context, modelPath, dumpPath string) error {
	var err error
	if modelPath, err = absPath("model", modelPath); err != nil {
		return err
	}
	if dumpPath, err = absPath("dump", dumpPath); err != nil {
		return err
	}
	conf, err := r.writeConfig("dump", func(f *os.File) error { return writeDumpConfig(f, modelPath, dumpPath) })
	if err != nil {
		return err
	}
	defer os.Remove(conf)

	return r.run(ctx, "dump", conf)
}

func (r *Runner) writeConfig(task string, render func(*os.File) error) (string, error) {
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	f, err := os.CreateTemp(r.workDir, "xgboost-"+task+"-*.conf")
	if err != nil {
		return "", fmt.Errorf("create %s config: %w", task, err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write %s config: %w", task, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close %s config: %w", task, err)
	}
	return f.Name(), nil
}

func (r *Runner) run(ctx context.Context, task, conf string) error {
	cmd := exec.CommandContext(ctx, r.bin, filepath.Base(conf))
	cmd.Dir = filepath.Dir(conf)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr

	r.logger.Debug("running xgboost", zap.String("task", task), zap.String("config", conf))

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return &ExecError{Task: task, Stderr: tail(stderr.String()), Err: err}
	}
	return nil
}

// absPath resolves p against the current directory since the CLI runs in the work dir.
func absPath(name, p string) (string, error) {
	if err := checkPath(name, p); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s path: %w", name, err)
	}
	return abs, nil
}

// tail keeps the end of the CLI output, where the error message is.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxStderr {
		return s
	}
	return "..." + s[len(s)-maxStderr:]
}
