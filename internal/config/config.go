// Package config provides configuration management for the multihop service.
// It loads settings from environment variables with the MULTIHOP_ prefix and
// provides sensible defaults for all configuration options.
//
// LoadConfigFile additionally reads a YAML file. Environment variables take
// precedence over the file, which takes precedence over the defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Supported graph backends.
const (
	BackendNeo4j    = "neo4j"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration settings for the multihop service.
type Config struct {
	Graph GraphConfig `yaml:"graph"`
	LLM   LLMConfig   `yaml:"llm"`
	Query QueryConfig `yaml:"query"`
	Log   LogConfig   `yaml:"log"`
	Trace TraceConfig `yaml:"trace"`
}

// GraphConfig selects and configures the graph store.
type GraphConfig struct {
	Backend     string        `yaml:"backend" validate:"oneof=neo4j sqlite postgres"` // Graph backend (default: neo4j)
	Neo4j       Neo4jConfig   `yaml:"neo4j"`
	SQLitePath  string        `yaml:"sqlite_path"`             // SQLite database path (default: ./data/graph.db)
	PostgresDSN string        `yaml:"postgres_dsn"`            // Postgres connection string
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"` // Per-call graph timeout (default: 10s)
}

// Neo4jConfig contains Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`      // Bolt URI (default: bolt://localhost:7687)
	Username string `yaml:"username"` // (default: neo4j)
	Password string `yaml:"password"`
	Database string `yaml:"database"` // Empty selects the server default
}

// LLMConfig contains completion provider configuration.
type LLMConfig struct {
	Provider          string        `yaml:"provider" validate:"oneof=openai ollama"` // openai or ollama (default: openai)
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`                             // OpenAI-compatible endpoint
	Model             string        `yaml:"model"`                                // Empty selects the provider default
	Temperature       float64       `yaml:"temperature" validate:"gte=0,lte=2"`   // (default: 0.1)
	MaxTokens         int           `yaml:"max_tokens" validate:"gt=0"`           // (default: 1000)
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`              // Per-call completion timeout (default: 60s)
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"` // 0 disables rate limiting
}

// QueryConfig holds request defaults.
type QueryConfig struct {
	MaxHops             int     `yaml:"max_hops" validate:"gte=1,lte=10"`            // (default: 3)
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"` // Advisory (default: 0.7)
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"` // (default: info)
}

// Trace exporters.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
	TraceExporterOTLP   = "otlp"
)

// TraceConfig controls OpenTelemetry span export.
type TraceConfig struct {
	Exporter     string `yaml:"exporter" validate:"oneof=none stdout otlp"` // (default: none)
	OTLPEndpoint string `yaml:"otlp_endpoint"`                              // gRPC collector (default: localhost:4317)
	OTLPInsecure bool   `yaml:"otlp_insecure"`                              // Plaintext gRPC (default: true)
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// All environment variables use the MULTIHOP_ prefix.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg, nil
}

// LoadConfigFile loads the YAML file at path over the defaults, then applies
// environment variables. A missing file is an error.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	applyEnv(cfg)
	return cfg, nil
}

var configValidate = validator.New()

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		}
		return fmt.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
	}

	switch c.Graph.Backend {
	case BackendNeo4j:
		if c.Graph.Neo4j.URI == "" {
			return errors.New("config: MULTIHOP_NEO4J_URI is required for the neo4j backend")
		}
	case BackendSQLite:
		if c.Graph.SQLitePath == "" {
			return errors.New("config: MULTIHOP_SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Graph.PostgresDSN == "" {
			return errors.New("config: MULTIHOP_POSTGRES_DSN is required for the postgres backend")
		}
	}

	if c.Trace.Exporter == TraceExporterOTLP && c.Trace.OTLPEndpoint == "" {
		return errors.New("config: MULTIHOP_OTLP_ENDPOINT is required for the otlp trace exporter")
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			Backend: BackendNeo4j,
			Neo4j: Neo4jConfig{
				URI:      "bolt://localhost:7687",
				Username: "neo4j",
			},
			SQLitePath: "./data/graph.db",
			Timeout:    10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Temperature: 0.1,
			MaxTokens:   1000,
			Timeout:     60 * time.Second,
		},
		Query: QueryConfig{
			MaxHops:             3,
			SimilarityThreshold: 0.7,
		},
		Log: LogConfig{
			Level: "info",
		},
		Trace: TraceConfig{
			Exporter:     TraceExporterNone,
			OTLPEndpoint: "localhost:4317",
			OTLPInsecure: true,
		},
	}
}

// applyEnv overrides cfg with any MULTIHOP_ variables that are set.
func applyEnv(cfg *Config) {
	cfg.Graph.Backend = strings.ToLower(getEnv("MULTIHOP_GRAPH_BACKEND", cfg.Graph.Backend))
	cfg.Graph.Neo4j.URI = getEnv("MULTIHOP_NEO4J_URI", cfg.Graph.Neo4j.URI)
	cfg.Graph.Neo4j.Username = getEnv("MULTIHOP_NEO4J_USERNAME", cfg.Graph.Neo4j.Username)
	cfg.Graph.Neo4j.Password = getEnv("MULTIHOP_NEO4J_PASSWORD", cfg.Graph.Neo4j.Password)
	cfg.Graph.Neo4j.Database = getEnv("MULTIHOP_NEO4J_DATABASE", cfg.Graph.Neo4j.Database)
	cfg.Graph.SQLitePath = getEnv("MULTIHOP_SQLITE_PATH", cfg.Graph.SQLitePath)
	cfg.Graph.PostgresDSN = getEnv("MULTIHOP_POSTGRES_DSN", cfg.Graph.PostgresDSN)
	cfg.Graph.Timeout = getEnvDuration("MULTIHOP_GRAPH_TIMEOUT", cfg.Graph.Timeout)

	cfg.LLM.Provider = strings.ToLower(getEnv("MULTIHOP_LLM_PROVIDER", cfg.LLM.Provider))
	cfg.LLM.APIKey = getEnv("MULTIHOP_OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = getEnv("MULTIHOP_OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("MULTIHOP_LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Temperature = getEnvFloat("MULTIHOP_TEMPERATURE", cfg.LLM.Temperature)
	cfg.LLM.MaxTokens = getEnvInt("MULTIHOP_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.Timeout = getEnvDuration("MULTIHOP_LLM_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.RequestsPerSecond = getEnvFloat("MULTIHOP_LLM_RPS", cfg.LLM.RequestsPerSecond)

	cfg.Query.MaxHops = getEnvInt("MULTIHOP_MAX_HOPS", cfg.Query.MaxHops)
	cfg.Query.SimilarityThreshold = getEnvFloat("MULTIHOP_SIMILARITY_THRESHOLD", cfg.Query.SimilarityThreshold)

	cfg.Log.Level = strings.ToLower(getEnv("MULTIHOP_LOG_LEVEL", cfg.Log.Level))

	cfg.Trace.Exporter = strings.ToLower(getEnv("MULTIHOP_TRACE_EXPORTER", cfg.Trace.Exporter))
	cfg.Trace.OTLPEndpoint = getEnv("MULTIHOP_OTLP_ENDPOINT", cfg.Trace.OTLPEndpoint)
	cfg.Trace.OTLPInsecure = getEnvBool("MULTIHOP_OTLP_INSECURE", cfg.Trace.OTLPInsecure)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool accepts the values strconv.ParseBool does.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
