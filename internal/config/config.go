// Package config holds the runtime configuration for the Alex server.
// Settings are environment-driven with optional YAML file overrides;
// every knob has a default so a development instance boots with only
// DATABASE_URL and GEMINI_API_KEY set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment names recognized in AppEnv.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the root configuration for the server and its subsystems.
type Config struct {
	// AppEnv selects CORS policy and log format.
	AppEnv string `yaml:"app_env"`

	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	Database  DatabaseConfig  `yaml:"database"`
	Models    ModelConfig     `yaml:"models"`
	Memory    MemoryConfig    `yaml:"memory"`
	Tools     ToolsConfig     `yaml:"tools"`
	Brokerage BrokerageConfig `yaml:"brokerage"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	// URI is the Postgres connection string.
	URI string `yaml:"uri"`

	// PoolMin and PoolMax bound the pgx pool.
	PoolMin int `yaml:"pool_min"`
	PoolMax int `yaml:"pool_max"`
}

// ModelConfig names the generative models and carries provider credentials.
type ModelConfig struct {
	GeminiAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`

	// FlashModel handles classification, routine chat, and the daily and
	// weekly summary tiers.
	FlashModel string `yaml:"flash_model"`

	// ProModel handles complex turns and the monthly summary tier.
	ProModel string `yaml:"pro_model"`

	// EngineerModel is the Claude model used by the engineering responder.
	EngineerModel string `yaml:"engineer_model"`

	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`

	// ComplexityThreshold is the Pro-routing cutoff.
	ComplexityThreshold float64 `yaml:"complexity_threshold"`
}

// MemoryConfig bounds retrieval and summarization batches.
type MemoryConfig struct {
	SearchTopK     int     `yaml:"search_top_k"`
	SearchMinScore float64 `yaml:"search_min_score"`

	DailyBatch   int `yaml:"daily_batch"`
	WeeklyBatch  int `yaml:"weekly_batch"`
	MonthlyBatch int `yaml:"monthly_batch"`
}

// ToolsConfig configures the filesystem sandbox.
type ToolsConfig struct {
	// ProjectRoot is the directory the filesystem tools are confined to.
	ProjectRoot string `yaml:"project_root"`
}

// BrokerageConfig carries tastytrade credentials and the sandbox toggle.
type BrokerageConfig struct {
	UseSandbox      bool   `yaml:"use_sandbox"`
	Username        string `yaml:"-"`
	Password        string `yaml:"-"`
	SandboxUsername string `yaml:"-"`
	SandboxPassword string `yaml:"-"`
	RememberToken   string `yaml:"-"`
}

// Default returns the configuration used when no overrides are present.
func Default() *Config {
	return &Config{
		AppEnv: EnvDevelopment,
		Port:   8080,
		Database: DatabaseConfig{
			PoolMin: 2,
			PoolMax: 10,
		},
		Models: ModelConfig{
			FlashModel:          "gemini-3-flash-preview",
			ProModel:            "gemini-3-pro-preview",
			EngineerModel:       "claude-sonnet-4-5",
			EmbeddingModel:      "text-embedding-004",
			EmbeddingDimensions: 768,
			ComplexityThreshold: 0.7,
		},
		Memory: MemoryConfig{
			SearchTopK:     5,
			SearchMinScore: 0.7,
			DailyBatch:     7,
			WeeklyBatch:    4,
			MonthlyBatch:   2,
		},
		Tools: ToolsConfig{
			ProjectRoot: ".",
		},
		Brokerage: BrokerageConfig{
			UseSandbox: true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in that order of increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.AppEnv, "APP_ENV")
	setInt(&c.Port, "PORT")

	setStr(&c.Database.URI, "DATABASE_URL", "POSTGRES_URI")
	setInt(&c.Database.PoolMin, "POSTGRES_POOL_MIN")
	setInt(&c.Database.PoolMax, "POSTGRES_POOL_MAX")

	setStr(&c.Models.GeminiAPIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	setStr(&c.Models.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setStr(&c.Models.FlashModel, "FLASH_MODEL")
	setStr(&c.Models.ProModel, "PRO_MODEL")
	setStr(&c.Models.EngineerModel, "ENGINEER_MODEL")
	setStr(&c.Models.EmbeddingModel, "EMBEDDING_MODEL")
	setInt(&c.Models.EmbeddingDimensions, "EMBEDDING_DIMENSIONS")
	setFloat(&c.Models.ComplexityThreshold, "COMPLEXITY_THRESHOLD")

	setStr(&c.Tools.ProjectRoot, "PROJECT_ROOT")

	setBool(&c.Brokerage.UseSandbox, "TASTY_USE_SANDBOX")
	setStr(&c.Brokerage.Username, "TASTY_USERNAME")
	setStr(&c.Brokerage.Password, "TASTY_PASSWORD")
	setStr(&c.Brokerage.SandboxUsername, "TASTY_SANDBOX_USERNAME")
	setStr(&c.Brokerage.SandboxPassword, "TASTY_SANDBOX_PASSWORD")
	setStr(&c.Brokerage.RememberToken, "TASTY_REMEMBER_TOKEN")
}

// Validate reports configuration errors that should prevent startup.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URI == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Models.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.AppEnv {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("invalid APP_ENV %q", c.AppEnv)
	}

	if c.Database.PoolMin < 0 || c.Database.PoolMax < c.Database.PoolMin {
		return fmt.Errorf("invalid pool bounds min=%d max=%d", c.Database.PoolMin, c.Database.PoolMax)
	}
	if c.Models.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Models.EmbeddingDimensions)
	}
	if c.Models.ComplexityThreshold < 0 || c.Models.ComplexityThreshold > 1 {
		return fmt.Errorf("complexity threshold must be in [0,1], got %v", c.Models.ComplexityThreshold)
	}
	return nil
}

// TastyCredentials returns the credential pair matching the sandbox toggle.
func (c *BrokerageConfig) TastyCredentials() (username, password string) {
	if c.UseSandbox {
		return c.SandboxUsername, c.SandboxPassword
	}
	return c.Username, c.Password
}

// Configured reports whether the active credential pair is present.
func (c *BrokerageConfig) Configured() bool {
	u, p := c.TastyCredentials()
	return u != "" && p != ""
}

func setStr(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
