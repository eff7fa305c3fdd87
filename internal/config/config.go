package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override, e.g. STORYOMATIC_SERVER_PORT.
const EnvPrefix = "STORYOMATIC"

// Supported backends.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageMySQL  = "mysql"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	AI      AIConfig      `yaml:"ai"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

type StorageConfig struct {
	Driver    string      `yaml:"driver"`
	KeyPrefix string      `yaml:"key_prefix" split_words:"true"`
	MySQL     MySQLConfig `yaml:"mysql"`
	Redis     RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" split_words:"true"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" split_words:"true"`
}

type AIConfig struct {
	Provider       string        `yaml:"provider"`
	Timeout        time.Duration `yaml:"timeout"`
	Temperature    float32       `yaml:"temperature"`
	TopP           float32       `yaml:"top_p" split_words:"true"`
	CandidateCount int32         `yaml:"candidate_count" split_words:"true"`
	Gemini         GeminiConfig  `yaml:"gemini"`
	OpenAI         OpenAIConfig  `yaml:"openai"`
}

type GeminiConfig struct {
	// BaseURL overrides the public endpoint, e.g. for a proxy.
	BaseURL string `yaml:"base_url" split_words:"true"`
	APIKey  string `yaml:"api_key" split_words:"true"`
	Model   string `yaml:"model"`
}

type OpenAIConfig struct {
	BaseURL     string        `yaml:"base_url" split_words:"true"`
	APIKey      string        `yaml:"api_key" split_words:"true"`
	Model       string        `yaml:"model"`
	MaxAttempts int           `yaml:"max_attempts" split_words:"true"`
	RetryDelay  time.Duration `yaml:"retry_delay" split_words:"true"`
}

type EngineConfig struct {
	DefaultStrategy string `yaml:"default_strategy" split_words:"true"`
	// MaxDebugEntries caps each story's debug log; 0 keeps everything.
	MaxDebugEntries int `yaml:"max_debug_entries" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file or override sets a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:    StorageMemory,
			KeyPrefix: "story:",
			MySQL: MySQLConfig{
				Host:            "localhost",
				Port:            3306,
				Database:        "storyomatic",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
			},
			Redis: RedisConfig{
				Host:     "localhost",
				Port:     6379,
				PoolSize: 10,
			},
		},
		AI: AIConfig{
			Provider:       ProviderGemini,
			Timeout:        120 * time.Second,
			Temperature:    0.9,
			TopP:           0.95,
			CandidateCount: 1,
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
			OpenAI: OpenAIConfig{
				BaseURL:     "https://api.openai.com/v1",
				Model:       "gpt-4o-mini",
				MaxAttempts: 1,
				RetryDelay:  time.Second,
			},
		},
		Engine: EngineConfig{
			DefaultStrategy: "base",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file on top of Default, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// Provider-standard key variables
	if cfg.AI.Gemini.APIKey == "" {
		cfg.AI.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.AI.OpenAI.APIKey == "" {
		cfg.AI.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backend kinds and impossible values
func (c *Config) Validate() error {
	var errs []error

	switch c.AI.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown ai.provider %q", c.AI.Provider))
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageRedis, StorageMySQL:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server.port %d", c.Server.Port))
	}
	if c.Engine.MaxDebugEntries < 0 {
		errs = append(errs, fmt.Errorf("engine.max_debug_entries must not be negative"))
	}
	if c.AI.CandidateCount < 1 {
		errs = append(errs, fmt.Errorf("ai.candidate_count must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address of the HTTP server
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
