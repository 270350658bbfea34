package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Corpus     CorpusConfig     `mapstructure:"corpus"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Prompt     PromptConfig     `mapstructure:"prompt"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Heuristics HeuristicsConfig `mapstructure:"heuristics"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host              string   `mapstructure:"host"`
	Port              int      `mapstructure:"port"`
	ReadTimeout       int      `mapstructure:"readTimeout"`
	WriteTimeout      int      `mapstructure:"writeTimeout"`
	BodyLimit         int      `mapstructure:"bodyLimit"`
	RequestsPerMinute int      `mapstructure:"requestsPerMinute"`
	AllowedOrigins    []string `mapstructure:"allowedOrigins"`
	Development       bool     `mapstructure:"development"`
}

// LLMConfig selects the chat model backend. An empty APIKey leaves the
// backend unconfigured and every clause goes through the heuristic path.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"apiKey"`
	BaseURL     string  `mapstructure:"baseURL"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"maxTokens"`
	TimeoutSec  int     `mapstructure:"timeoutSec"`
}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"apiKey"`
	Dimension  int    `mapstructure:"dimension"`
	TimeoutSec int    `mapstructure:"timeoutSec"`
}

type CorpusConfig struct {
	Source string `mapstructure:"source"`
	// Path is the SQLite corpus file for source "sqlite".
	Path string `mapstructure:"path"`
	// DSN is the PostgreSQL connection string for source "postgres".
	DSN              string `mapstructure:"dsn"`
	MilvusEndpoint   string `mapstructure:"milvusEndpoint"`
	MilvusCollection string `mapstructure:"milvusCollection"`
	// SnapshotURI is a local path or s3://bucket/key for source "snapshot".
	SnapshotURI string `mapstructure:"snapshotURI"`
	S3Region    string `mapstructure:"s3Region"`
	// Static S3 credentials; empty falls back to the default AWS chain.
	S3AccessKey string `mapstructure:"s3AccessKey"`
	S3SecretKey string `mapstructure:"s3SecretKey"`
}

type RetrievalConfig struct {
	CivilTopK       int     `mapstructure:"civilTopK"`
	CriminalTopK    int     `mapstructure:"criminalTopK"`
	MinSimilarity   float64 `mapstructure:"minSimilarity"`
	MaxPassageRunes int     `mapstructure:"maxPassageRunes"`
}

type PromptConfig struct {
	Framework       string `mapstructure:"framework"`
	MaxPromptRunes  int    `mapstructure:"maxPromptRunes"`
	MaxOutputTokens int    `mapstructure:"maxOutputTokens"`
}

type AnalysisConfig struct {
	Workers         int `mapstructure:"workers"`
	MinClauseLength int `mapstructure:"minClauseLength"`
}

type HeuristicsConfig struct {
	Families []TriggerFamilyConfig `mapstructure:"families"`
}

type TriggerFamilyConfig struct {
	Name        string   `mapstructure:"name"`
	Severity    string   `mapstructure:"severity"`
	Phrases     []string `mapstructure:"phrases"`
	Summary     string   `mapstructure:"summary"`
	Explanation string   `mapstructure:"explanation"`
	Laws        []string `mapstructure:"laws"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTLHours int    `mapstructure:"ttlHours"`
}

type Neo4jConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/termscon")

	return load(v)
}

// LoadFile reads an explicit config file; used by the CLI tools.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		return Load()
	}
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("TERMSCON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The OpenAI key doubles as the embedding key unless one is set.
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == cfg.LLM.Provider {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Defaults returns a Config populated only from built-in defaults.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Embedding.Provider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Corpus.Source {
	case "sqlite", "postgres", "milvus", "snapshot":
	default:
		return fmt.Errorf("config: unknown corpus source %q", c.Corpus.Source)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Retrieval.CivilTopK < 0 || c.Retrieval.CriminalTopK < 0 {
		return errors.New("config: retrieval top-k must not be negative")
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("config: retrieval.minSimilarity must be within [0,1], got %v", c.Retrieval.MinSimilarity)
	}
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("config: analysis.workers must be positive, got %d", c.Analysis.Workers)
	}
	if n := utf8.RuneCountInString(c.Prompt.Framework); n > 120 {
		return fmt.Errorf("config: prompt.framework must be at most 120 runes, got %d", n)
	}
	if c.Prompt.MaxPromptRunes < 700 {
		return fmt.Errorf("config: prompt.maxPromptRunes too small: %d", c.Prompt.MaxPromptRunes)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 5*1024*1024)
	v.SetDefault("server.requestsPerMinute", 30)
	v.SetDefault("server.development", false)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 400)
	v.SetDefault("llm.timeoutSec", 30)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.timeoutSec", 10)

	v.SetDefault("corpus.source", "sqlite")
	v.SetDefault("corpus.path", "./data/corpus.db")
	v.SetDefault("corpus.milvusEndpoint", "localhost:19530")
	v.SetDefault("corpus.milvusCollection", "legal_passages")
	v.SetDefault("corpus.s3Region", "eu-central-1")

	v.SetDefault("retrieval.civilTopK", 2)
	v.SetDefault("retrieval.criminalTopK", 1)
	v.SetDefault("retrieval.minSimilarity", 0.4)
	v.SetDefault("retrieval.maxPassageRunes", 100)

	v.SetDefault("prompt.framework", "Czech civil and criminal law")
	v.SetDefault("prompt.maxPromptRunes", 2000)
	v.SetDefault("prompt.maxOutputTokens", 400)

	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.minClauseLength", 10)

	v.SetDefault("sqlite.path", "./data/analyses.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlHours", 168)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("metrics.enabled", true)
}
