// Package opensearch executes LTR requests against an OpenSearch cluster
// running the LTR plugin.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	opensearchgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

// ModelTypeXGBoost is the LTR plugin model type for xgboost JSON tree dumps.
const ModelTypeXGBoost = "model/xgboost+json"

// Config holds connection settings.
type Config struct {
	Addrs              []string
	Username           string
	Password           string
	InsecureSkipVerify bool
	Timeout            time.Duration
	Logger             *zap.Logger
}

// Client is a thin wrapper over the official client.
type Client struct {
	client   *opensearchgo.Client
	duration *prometheus.HistogramVec
	logger   *zap.Logger
}

// NewClient creates a client. No request is made until first use.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // local clusters use self-signed certs
	}
	if cfg.Timeout > 0 {
		transport.ResponseHeaderTimeout = cfg.Timeout
	}

	client, err := opensearchgo.NewClient(opensearchgo.Config{
		Addresses:    cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: client, logger: logger}, nil
}

// WithDurationMetric records request latency with "op" and "status" labels.
func (c *Client) WithDurationMetric(h *prometheus.HistogramVec) *Client {
	c.duration = h
	return c
}

// Search runs body against index and returns the raw hits in rank order.
func (c *Client) Search(ctx context.Context, index string, body []byte) ([]json.RawMessage, error) {
	req := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}

	start := time.Now()
	resp, err := req.Do(ctx, c.client)
	if err != nil {
		c.observe("search", start, "transport_error")
		return nil, fmt.Errorf("search %s: %w: %w", index, domain.ErrEngine, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("search", start, "transport_error")
		return nil, fmt.Errorf("read search response: %w: %w", domain.ErrEngine, err)
	}
	if resp.IsError() {
		c.observe("search", start, "error")
		return nil, fmt.Errorf("search %s: %w", index, domain.NewEngineError(resp.StatusCode, data))
	}
	c.observe("search", start, "success")

	hits := gjson.GetBytes(data, "hits.hits")
	if !hits.IsArray() {
		return nil, fmt.Errorf("search %s: response has no hits.hits: %w", index, domain.ErrFormat)
	}

	out := make([]json.RawMessage, 0, len(hits.Array()))
	hits.ForEach(func(_, h gjson.Result) bool {
		out = append(out, json.RawMessage(h.Raw))
		return true
	})

	c.logger.Debug("search finished",
		zap.String("index", index),
		zap.Int("hits", len(out)),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}

// CreateModel uploads a trained model definition into the feature store,
// bound to featureSet.
func (c *Client) CreateModel(ctx context.Context, store, featureSet, name, modelType string, definition []byte) error {
	payload := map[string]any{
		"model": map[string]any{
			"name": name,
			"model": map[string]any{
				"type":       modelType,
				"definition": string(definition),
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	path := "/_ltr/" + url.PathEscape(store) + "/_featureset/" + url.PathEscape(featureSet) + "/_createmodel"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build createmodel request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Perform(req)
	if err != nil {
		c.observe("create_model", start, "transport_error")
		return fmt.Errorf("create model %s: %w: %w", name, domain.ErrEngine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		c.observe("create_model", start, "error")
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("create model %s: %w", name, domain.NewEngineError(resp.StatusCode, data))
	}
	c.observe("create_model", start, "success")

	c.logger.Info("model uploaded",
		zap.String("store", store),
		zap.String("featureset", featureSet),
		zap.String("model", name),
	)
	return nil
}

// Ping checks cluster reachability.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := opensearchapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("ping: %w: %w", domain.ErrEngine, err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("ping: %w", domain.NewEngineError(resp.StatusCode, nil))
	}
	return nil
}

func (c *Client) observe(op string, start time.Time, status string) {
	if c.duration != nil {
		c.duration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	}
}
