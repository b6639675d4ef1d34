// Package config provides configuration management for the meetbrief
// pipeline. It supports loading configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultRedisAddr       = "localhost:6379"
	DefaultMetricsAddr     = ":9090"
	DefaultTranscribeURL   = "http://localhost:8801"
	DefaultDiarizeURL      = "http://localhost:8802"
	DefaultLLMURL          = "https://api.deepseek.com"
	DefaultLLMModel        = "deepseek-chat"
	DefaultLLMMaxTokens    = 3000
	DefaultLLMTemperature  = 0.3
	DefaultStageMaxDepth   = 100
	DefaultStageMaxRetries = 3
)

// RedisConfig holds the queue backend connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// PostgresConfig holds job store connection settings. When Host is empty
// the pipeline runs on the in-memory store.
type PostgresConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`
}

// IsConfigured reports whether a Postgres store was configured.
func (c *PostgresConfig) IsConfigured() bool {
	return c != nil && c.Host != "" && c.Database != "" && c.User != ""
}

// ConnectionString returns the pgx connection string, or empty when not
// configured.
func (c *PostgresConfig) ConnectionString() string {
	if !c.IsConfigured() {
		return ""
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}

	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		c.Host, port, c.Database, c.User, sslmode)
	if c.Password != "" {
		connStr += fmt.Sprintf(" password=%s", c.Password)
	}
	return connStr
}

// StageQueueConfig bounds one stage queue.
type StageQueueConfig struct {
	MaxDepth          int           `yaml:"max_depth"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
}

// QueuesConfig holds the per-stage queue bounds.
type QueuesConfig struct {
	Transcribe StageQueueConfig `yaml:"transcribe"`
	Diarize    StageQueueConfig `yaml:"diarize"`
	Analyze    StageQueueConfig `yaml:"analyze"`
}

// DeadlinesConfig bounds each dispatched stage attempt.
type DeadlinesConfig struct {
	Transcribe time.Duration `yaml:"transcribe"`
	Diarize    time.Duration `yaml:"diarize"`
	Analyze    time.Duration `yaml:"analyze"`
}

// EngineConfig holds the connection settings for one engine service.
type EngineConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig holds the analysis service settings.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WorkersConfig holds the per-stage worker counts.
type WorkersConfig struct {
	Transcribe int `yaml:"transcribe"`
	Diarize    int `yaml:"diarize"`
	Analyze    int `yaml:"analyze"`
}

// Config is the root pipeline configuration.
type Config struct {
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  *PostgresConfig `yaml:"postgres,omitempty"`
	Queues    QueuesConfig    `yaml:"queues"`
	Deadlines DeadlinesConfig `yaml:"deadlines"`

	TranscriptionEngine EngineConfig `yaml:"transcription_engine"`
	DiarizationEngine   EngineConfig `yaml:"diarization_engine"`
	LLM                 LLMConfig    `yaml:"llm"`

	Workers WorkersConfig `yaml:"workers"`

	// MetricsAddr is the listen address for the Prometheus endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogJSON selects JSON log output instead of console formatting.
	LogJSON bool `yaml:"log_json"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	stage := StageQueueConfig{
		MaxDepth:          DefaultStageMaxDepth,
		VisibilityTimeout: 30 * time.Minute,
		MaxRetries:        DefaultStageMaxRetries,
	}
	return &Config{
		Redis: RedisConfig{Addr: DefaultRedisAddr},
		Queues: QueuesConfig{
			Transcribe: stage,
			Diarize:    stage,
			Analyze: StageQueueConfig{
				MaxDepth:          DefaultStageMaxDepth,
				VisibilityTimeout: 10 * time.Minute,
				MaxRetries:        DefaultStageMaxRetries,
			},
		},
		Deadlines: DeadlinesConfig{
			Transcribe: 30 * time.Minute,
			Diarize:    30 * time.Minute,
			Analyze:    10 * time.Minute,
		},
		TranscriptionEngine: EngineConfig{BaseURL: DefaultTranscribeURL, Timeout: 30 * time.Minute},
		DiarizationEngine:   EngineConfig{BaseURL: DefaultDiarizeURL, Timeout: 30 * time.Minute},
		LLM: LLMConfig{
			BaseURL:     DefaultLLMURL,
			Model:       DefaultLLMModel,
			MaxTokens:   DefaultLLMMaxTokens,
			Temperature: DefaultLLMTemperature,
			Timeout:     2 * time.Minute,
		},
		Workers:     WorkersConfig{Transcribe: 2, Diarize: 2, Analyze: 4},
		MetricsAddr: DefaultMetricsAddr,
		LogLevel:    "info",
	}
}

// LoadConfig loads configuration in this order (later sources override
// earlier): defaults, the YAML file at path (skipped when path is empty or
// missing), then MEETBRIEF_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFromFile(cfg, path); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. Durations are written
// as strings ("30m", "90s") and parsed here.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	type stageQueueFile struct {
		MaxDepth          int    `yaml:"max_depth"`
		VisibilityTimeout string `yaml:"visibility_timeout"`
		MaxRetries        *int   `yaml:"max_retries"`
	}
	type engineFile struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	}
	type configFile struct {
		Redis    *RedisConfig    `yaml:"redis"`
		Postgres *PostgresConfig `yaml:"postgres"`
		Queues   struct {
			Transcribe *stageQueueFile `yaml:"transcribe"`
			Diarize    *stageQueueFile `yaml:"diarize"`
			Analyze    *stageQueueFile `yaml:"analyze"`
		} `yaml:"queues"`
		Deadlines struct {
			Transcribe string `yaml:"transcribe"`
			Diarize    string `yaml:"diarize"`
			Analyze    string `yaml:"analyze"`
		} `yaml:"deadlines"`
		TranscriptionEngine *engineFile `yaml:"transcription_engine"`
		DiarizationEngine   *engineFile `yaml:"diarization_engine"`
		LLM                 *struct {
			BaseURL     string   `yaml:"base_url"`
			Model       string   `yaml:"model"`
			MaxTokens   int      `yaml:"max_tokens"`
			Temperature *float64 `yaml:"temperature"`
			Timeout     string   `yaml:"timeout"`
		} `yaml:"llm"`
		Workers     *WorkersConfig `yaml:"workers"`
		MetricsAddr string         `yaml:"metrics_addr"`
		LogLevel    string         `yaml:"log_level"`
		LogJSON     bool           `yaml:"log_json"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	parse := func(field, v string, target *time.Duration) error {
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", field, err)
		}
		*target = d
		return nil
	}
	applyStage := func(name string, src *stageQueueFile, dst *StageQueueConfig) error {
		if src == nil {
			return nil
		}
		if src.MaxDepth != 0 {
			dst.MaxDepth = src.MaxDepth
		}
		if src.MaxRetries != nil {
			dst.MaxRetries = *src.MaxRetries
		}
		return parse("queues."+name+".visibility_timeout", src.VisibilityTimeout, &dst.VisibilityTimeout)
	}

	if fileCfg.Redis != nil {
		cfg.Redis = *fileCfg.Redis
	}
	if fileCfg.Postgres != nil {
		cfg.Postgres = fileCfg.Postgres
	}
	if err := applyStage("transcribe", fileCfg.Queues.Transcribe, &cfg.Queues.Transcribe); err != nil {
		return err
	}
	if err := applyStage("diarize", fileCfg.Queues.Diarize, &cfg.Queues.Diarize); err != nil {
		return err
	}
	if err := applyStage("analyze", fileCfg.Queues.Analyze, &cfg.Queues.Analyze); err != nil {
		return err
	}
	if err := parse("deadlines.transcribe", fileCfg.Deadlines.Transcribe, &cfg.Deadlines.Transcribe); err != nil {
		return err
	}
	if err := parse("deadlines.diarize", fileCfg.Deadlines.Diarize, &cfg.Deadlines.Diarize); err != nil {
		return err
	}
	if err := parse("deadlines.analyze", fileCfg.Deadlines.Analyze, &cfg.Deadlines.Analyze); err != nil {
		return err
	}
	if fileCfg.TranscriptionEngine != nil {
		if fileCfg.TranscriptionEngine.BaseURL != "" {
			cfg.TranscriptionEngine.BaseURL = fileCfg.TranscriptionEngine.BaseURL
		}
		if err := parse("transcription_engine.timeout", fileCfg.TranscriptionEngine.Timeout, &cfg.TranscriptionEngine.Timeout); err != nil {
			return err
		}
	}
	if fileCfg.DiarizationEngine != nil {
		if fileCfg.DiarizationEngine.BaseURL != "" {
			cfg.DiarizationEngine.BaseURL = fileCfg.DiarizationEngine.BaseURL
		}
		if err := parse("diarization_engine.timeout", fileCfg.DiarizationEngine.Timeout, &cfg.DiarizationEngine.Timeout); err != nil {
			return err
		}
	}
	if fileCfg.LLM != nil {
		if fileCfg.LLM.BaseURL != "" {
			cfg.LLM.BaseURL = fileCfg.LLM.BaseURL
		}
		if fileCfg.LLM.Model != "" {
			cfg.LLM.Model = fileCfg.LLM.Model
		}
		if fileCfg.LLM.MaxTokens != 0 {
			cfg.LLM.MaxTokens = fileCfg.LLM.MaxTokens
		}
		if fileCfg.LLM.Temperature != nil {
			cfg.LLM.Temperature = *fileCfg.LLM.Temperature
		}
		if err := parse("llm.timeout", fileCfg.LLM.Timeout, &cfg.LLM.Timeout); err != nil {
			return err
		}
	}
	if fileCfg.Workers != nil {
		cfg.Workers = *fileCfg.Workers
	}
	if fileCfg.MetricsAddr != "" {
		cfg.MetricsAddr = fileCfg.MetricsAddr
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogJSON {
		cfg.LogJSON = true
	}

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("MEETBRIEF_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MEETBRIEF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MEETBRIEF_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}

	loadPostgresFromEnv(cfg)

	if v := os.Getenv("MEETBRIEF_TRANSCRIBE_URL"); v != "" {
		cfg.TranscriptionEngine.BaseURL = v
	}
	if v := os.Getenv("MEETBRIEF_DIARIZE_URL"); v != "" {
		cfg.DiarizationEngine.BaseURL = v
	}
	if v := os.Getenv("MEETBRIEF_LLM_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("MEETBRIEF_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("MEETBRIEF_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("MEETBRIEF_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MEETBRIEF_LOG_JSON"); v == "true" || v == "1" {
		cfg.LogJSON = true
	}
}

func loadPostgresFromEnv(cfg *Config) {
	host := os.Getenv("MEETBRIEF_POSTGRES_HOST")
	database := os.Getenv("MEETBRIEF_POSTGRES_DATABASE")
	user := os.Getenv("MEETBRIEF_POSTGRES_USER")

	if host == "" && database == "" && user == "" {
		return
	}
	if cfg.Postgres == nil {
		cfg.Postgres = &PostgresConfig{}
	}
	if host != "" {
		cfg.Postgres.Host = host
	}
	if database != "" {
		cfg.Postgres.Database = database
	}
	if user != "" {
		cfg.Postgres.User = user
	}
	if v := os.Getenv("MEETBRIEF_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MEETBRIEF_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MEETBRIEF_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.TranscriptionEngine.BaseURL == "" {
		return fmt.Errorf("transcription engine base_url is required")
	}
	if c.DiarizationEngine.BaseURL == "" {
		return fmt.Errorf("diarization engine base_url is required")
	}
	if c.LLM.BaseURL == "" || c.LLM.Model == "" {
		return fmt.Errorf("llm base_url and model are required")
	}

	for name, q := range map[string]StageQueueConfig{
		"transcribe": c.Queues.Transcribe,
		"diarize":    c.Queues.Diarize,
		"analyze":    c.Queues.Analyze,
	} {
		if q.MaxDepth <= 0 {
			return fmt.Errorf("queue %s: max_depth must be positive", name)
		}
		if q.MaxRetries < 0 {
			return fmt.Errorf("queue %s: max_retries must not be negative", name)
		}
	}

	for name, d := range map[string]time.Duration{
		"transcribe": c.Deadlines.Transcribe,
		"diarize":    c.Deadlines.Diarize,
		"analyze":    c.Deadlines.Analyze,
	} {
		if d <= 0 {
			return fmt.Errorf("deadline %s must be positive", name)
		}
	}

	if c.Workers.Transcribe <= 0 || c.Workers.Diarize <= 0 || c.Workers.Analyze <= 0 {
		return fmt.Errorf("worker counts must be positive")
	}
	return nil
}
