package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ltrkit configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
	LTR        LTRConfig        `yaml:"ltr"`
	Training   TrainingConfig   `yaml:"training"`
	Synonyms   SynonymsConfig   `yaml:"synonyms"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Database   DatabaseConfig   `yaml:"database"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// OpenSearchConfig holds search engine connection settings.
type OpenSearchConfig struct {
	Addrs              []string `yaml:"addrs"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	Index              string   `yaml:"index"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	TimeoutSec         int      `yaml:"timeout_sec"`
}

// LTRConfig names the LTR plugin objects and the query defaults.
type LTRConfig struct {
	Store        string   `yaml:"store"`
	FeatureSet   string   `yaml:"featureset"`
	Model        string   `yaml:"model"`
	FeatureNames []string `yaml:"feature_names"` // declared order of the feature set; empty = built-in names
	LogSize      int      `yaml:"log_size"`
	TermsField   string   `yaml:"terms_field"`

	RescoreWindow      int      `yaml:"rescore_window"`
	MainQueryWeight    *float64 `yaml:"main_query_weight"`
	RescoreQueryWeight *float64 `yaml:"rescore_query_weight"`
}

// TrainingConfig holds external trainer settings.
type TrainingConfig struct {
	XGBoostBin string            `yaml:"xgboost_bin"`
	WorkDir    string            `yaml:"work_dir"`
	NumRounds  int               `yaml:"num_rounds"`
	Params     map[string]string `yaml:"params"` // passed verbatim to the trainer
}

// SynonymsConfig holds synonym extraction settings.
type SynonymsConfig struct {
	ModelPath      string   `yaml:"model_path"`
	ModelFormat    string   `yaml:"model_format"` // vec (text vectors) or openai
	VocabularyPath string   `yaml:"vocabulary_path"`
	OutputPath     string   `yaml:"output_path"`
	Threshold      *float64 `yaml:"threshold"` // unset means 0.75
	Neighbors      int      `yaml:"neighbors"`
	VectorLimit    int      `yaml:"vector_limit"` // read at most this many vectors; 0 = all
	Publish        bool     `yaml:"publish"`      // also write synonyms to the database
	Set            string   `yaml:"set"`          // synonym set name used when publishing
}

// EmbeddingConfig holds the OpenAI-compatible embedding provider used when
// synonyms.model_format is "openai".
type EmbeddingConfig struct {
	APIKey     string       `yaml:"api_key"`
	BaseURL    string       `yaml:"base_url"`
	Model      string       `yaml:"model"`
	Dimensions int          `yaml:"dimensions"`
	Provider   string       `yaml:"provider"`
	Budget     BudgetConfig `yaml:"budget"`
}

// BudgetConfig caps provider token spend. Zero limits mean unlimited.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
	Action            string `yaml:"action"` // warn or reject (default: warn)
}

// DatabaseConfig holds Valkey connection settings. Empty addrs disables the
// embedding cache and synonym publishing.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if len(c.OpenSearch.Addrs) == 0 {
		c.OpenSearch.Addrs = []string{"http://localhost:9200"}
	}
	if c.OpenSearch.Index == "" {
		c.OpenSearch.Index = "bbuy_products"
	}
	if c.OpenSearch.TimeoutSec <= 0 {
		c.OpenSearch.TimeoutSec = 30
	}
	if c.LTR.Store == "" {
		c.LTR.Store = "week1"
	}
	if c.LTR.FeatureSet == "" {
		c.LTR.FeatureSet = "bbuy_main_featureset"
	}
	if c.LTR.Model == "" {
		c.LTR.Model = "ltr_model"
	}
	if c.LTR.LogSize <= 0 {
		c.LTR.LogSize = 200
	}
	if c.LTR.TermsField == "" {
		c.LTR.TermsField = "_id"
	}
	if c.LTR.RescoreWindow <= 0 {
		c.LTR.RescoreWindow = 500
	}
	if c.LTR.MainQueryWeight == nil {
		c.LTR.MainQueryWeight = ptr(1.0)
	}
	if c.LTR.RescoreQueryWeight == nil {
		c.LTR.RescoreQueryWeight = ptr(2.0)
	}
	if c.Training.XGBoostBin == "" {
		c.Training.XGBoostBin = "xgboost"
	}
	if c.Training.WorkDir == "" {
		c.Training.WorkDir = os.TempDir()
	}
	if c.Training.NumRounds <= 0 {
		c.Training.NumRounds = 5
	}
	if c.Synonyms.ModelFormat == "" {
		c.Synonyms.ModelFormat = "vec"
	}
	if c.Synonyms.Threshold == nil {
		c.Synonyms.Threshold = ptr(0.75)
	}
	if c.Synonyms.Neighbors <= 0 {
		c.Synonyms.Neighbors = 10
	}
	if c.Synonyms.Set == "" {
		c.Synonyms.Set = "default"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Budget.Action == "" {
		c.Embedding.Budget.Action = "warn"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	seen := make(map[string]struct{}, len(c.LTR.FeatureNames))
	for _, name := range c.LTR.FeatureNames {
		if name == "" {
			return fmt.Errorf("ltr.feature_names must not contain empty names")
		}
		switch name {
		case "doc_id", "query_id", "sku":
			return fmt.Errorf("ltr.feature_names must not use the identifier column %q", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("ltr.feature_names contains duplicate %q", name)
		}
		seen[name] = struct{}{}
	}
	for key, w := range map[string]*float64{
		"ltr.main_query_weight":    c.LTR.MainQueryWeight,
		"ltr.rescore_query_weight": c.LTR.RescoreQueryWeight,
	} {
		if w != nil && (math.IsNaN(*w) || math.IsInf(*w, 0) || *w < 0) {
			return fmt.Errorf("%s must be a finite non-negative number, got %v", key, *w)
		}
	}
	if c.Synonyms.VectorLimit < 0 {
		return fmt.Errorf("synonyms.vector_limit must not be negative, got %d", c.Synonyms.VectorLimit)
	}
	if t := c.Synonyms.Threshold; t != nil && (math.IsNaN(*t) || *t < -1 || *t > 1) {
		return fmt.Errorf("synonyms.threshold must be between -1 and 1, got %v", *t)
	}
	switch c.Synonyms.ModelFormat {
	case "vec":
	case "openai":
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required when synonyms.model_format is \"openai\"")
		}
	default:
		return fmt.Errorf(
			"synonyms.model_format must be \"vec\" or \"openai\", got %q", c.Synonyms.ModelFormat,
		)
	}
	if c.Embedding.Budget.DailyTokenLimit < 0 || c.Embedding.Budget.MonthlyTokenLimit < 0 {
		return fmt.Errorf("embedding.budget limits must not be negative")
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action,
		)
	}
	if c.Synonyms.Publish && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required when synonyms.publish is enabled")
	}
	return nil
}

// MainWeight returns the configured baseline weight.
func (c *LTRConfig) MainWeight() float64 { return deref(c.MainQueryWeight, 1) }

// RescoreWeight returns the configured rescore weight.
func (c *LTRConfig) RescoreWeight() float64 { return deref(c.RescoreQueryWeight, 2) }

func ptr(v float64) *float64 { return &v }

func deref(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
