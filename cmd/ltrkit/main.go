// Command ltrkit builds LTR queries, logs features, trains ranking models and
// generates synonym lists for an OpenSearch index.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/config"
	dbValkey "github.com/kailas-cloud/ltrkit/internal/db/valkey"
	logpkg "github.com/kailas-cloud/ltrkit/internal/logger"
	"github.com/kailas-cloud/ltrkit/internal/metrics"
	"github.com/kailas-cloud/ltrkit/internal/transport/opensearch"
	"github.com/kailas-cloud/ltrkit/internal/version"
)

// app is the state shared by all subcommands once the root has loaded it.
type app struct {
	env        string
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

func main() {
	a := &app{}
	root := newRootCmd(a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()

	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ltrkit",
		Short:         "Learning-to-rank toolkit for OpenSearch",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.env, "env", config.GetEnv(), "environment (local, dev, prod); selects config/<env>.yaml")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "explicit config file path")

	root.AddCommand(
		newServeCmd(a),
		newFeatureQueryCmd(a),
		newRescoreQueryCmd(a),
		newExtractCmd(a),
		newLogFeaturesCmd(a),
		newTrainCmd(a),
		newSynonymsCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load(a.env)
	}
	if err != nil {
		return err
	}

	a.logger, err = logpkg.NewLogger(a.env, a.cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.logger = a.logger.With(zap.String("command", cmd.Name()))
	cmd.SetContext(logpkg.ContextWithLogger(cmd.Context(), a.logger))

	metrics.RegisterLTRMetrics()
	metrics.RegisterEmbeddingMetrics()
	return nil
}

// searchClient connects to the configured OpenSearch cluster.
func (a *app) searchClient() (*opensearch.Client, error) {
	c, err := opensearch.NewClient(opensearch.Config{
		Addrs:              a.cfg.OpenSearch.Addrs,
		Username:           a.cfg.OpenSearch.Username,
		Password:           a.cfg.OpenSearch.Password,
		InsecureSkipVerify: a.cfg.OpenSearch.InsecureSkipVerify,
		Timeout:            time.Duration(a.cfg.OpenSearch.TimeoutSec) * time.Second,
		Logger:             a.logger,
	})
	if err != nil {
		return nil, err
	}
	return c.WithDurationMetric(metrics.EngineRequestDuration), nil
}

// openStore connects to Valkey, or returns nil when no addresses are configured.
func (a *app) openStore(ctx context.Context) (*dbValkey.Store, error) {
	if len(a.cfg.Database.Addrs) == 0 {
		return nil, nil
	}
	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    a.cfg.Database.Addrs,
		Password: a.cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create database store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(a.cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	a.logger.Info("Connected to database", zap.Strings("addrs", a.cfg.Database.Addrs))
	return store, nil
}

// openInput opens path for reading; "" and "-" mean stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// createOutput opens path for writing; "" and "-" mean stdout.
func createOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
