package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/metrics"
	"github.com/kailas-cloud/ltrkit/internal/repository/synonyms"
	chiTransport "github.com/kailas-cloud/ltrkit/internal/transport/chi"
	"github.com/kailas-cloud/ltrkit/internal/usecase/featurelog"
	healthuc "github.com/kailas-cloud/ltrkit/internal/usecase/health"
	"github.com/kailas-cloud/ltrkit/internal/version"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query builder and feature extraction HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.HTTP.Port = port
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides http.port)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	logger.Info("Starting ltrkit API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("opensearch_addrs", cfg.OpenSearch.Addrs),
	)

	metrics.RegisterHTTPMetrics()

	search, err := a.searchClient()
	if err != nil {
		return err
	}

	health := healthuc.New(search, logger)
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		health.WithDatabase(store)
	}
	if ec := cfg.Embedding; ec.APIKey != "" && ec.Model != "" {
		health.WithEmbedding(a.providerEmbedder())
	}

	featureLog := featurelog.New(search, featurelog.Config{
		Index:      cfg.OpenSearch.Index,
		Store:      cfg.LTR.Store,
		FeatureSet: cfg.LTR.FeatureSet,
		Names:      cfg.LTR.FeatureNames,
		LogSize:    cfg.LTR.LogSize,
		TermsField: cfg.LTR.TermsField,
	}, logger).WithRowsCounter(metrics.FeatureRowsTotal.WithLabelValues("api"))

	server := chiTransport.NewServer(chiTransport.Defaults{
		Store:         cfg.LTR.Store,
		FeatureSet:    cfg.LTR.FeatureSet,
		Model:         cfg.LTR.Model,
		FeatureNames:  cfg.LTR.FeatureNames,
		LogSize:       cfg.LTR.LogSize,
		TermsField:    cfg.LTR.TermsField,
		RescoreWindow: cfg.LTR.RescoreWindow,
		QueryWeight:   cfg.LTR.MainWeight(),
		RescoreWeight: cfg.LTR.RescoreWeight(),
	}, health, logger).WithFeatureLogger(featureLog)
	if store != nil {
		server.WithSynonyms(synonyms.New(store, cfg.Synonyms.Set, logger))
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
