package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	ProjectDir   string `toml:"project_dir" json:"project_dir"`
	DataDir      string `toml:"data_dir" json:"data_dir" validate:"required"`
	ReportsDir   string `toml:"reports_dir" json:"reports_dir" validate:"required"`
	OverviewsDir string `toml:"overviews_dir" json:"overviews_dir" validate:"required"`
	HistoryDir   string `toml:"history_dir" json:"history_dir" validate:"required"`
	// HistoryDB is the SQLite query log; empty disables it.
	HistoryDB string `toml:"history_db" json:"history_db"`

	Debug    bool   `toml:"debug" json:"debug"`
	LogLevel string `toml:"log_level" json:"log_level" validate:"oneof=trace debug info warn error"`

	// Eino Debug configuration
	EinoDebugEnabled bool `toml:"eino_debug_enabled" json:"eino_debug_enabled"`
	EinoDebugPort    int  `toml:"eino_debug_port" json:"eino_debug_port"`

	LLM       LLMConfig       `toml:"llm" json:"llm"`
	Cache     CacheConfig     `toml:"cache" json:"cache"`
	Pool      PoolConfig      `toml:"pool" json:"pool"`
	Server    ServerConfig    `toml:"server" json:"server"`
	Providers ProvidersConfig `toml:"providers" json:"providers"`
}

type LLMConfig struct {
	Provider  string `toml:"provider" json:"provider" validate:"oneof=deepseek openai"`
	Model     string `toml:"model" json:"model" validate:"required"`
	BaseURL   string `toml:"base_url" json:"base_url"`
	APIKey    string `toml:"api_key" json:"-"`
	MaxTokens int    `toml:"max_tokens" json:"max_tokens" validate:"gte=0"`
	Timeout   string `toml:"timeout" json:"timeout" validate:"duration"`
}

type CacheConfig struct {
	// Backend is "file" (one JSON file per ticker and kind) or "badger".
	Backend       string `toml:"backend" json:"backend" validate:"oneof=file badger"`
	Dir           string `toml:"dir" json:"dir" validate:"required"`
	MetricsTTL    string `toml:"metrics_ttl" json:"metrics_ttl" validate:"duration"`
	NewsTTL       string `toml:"news_ttl" json:"news_ttl" validate:"duration"`
	HighlightsTTL string `toml:"highlights_ttl" json:"highlights_ttl" validate:"duration"`
	SingleFlight  bool   `toml:"single_flight" json:"single_flight"`
}

type PoolConfig struct {
	Size             int `toml:"size" json:"size" validate:"min=1"`
	BatchConcurrency int `toml:"batch_concurrency" json:"batch_concurrency" validate:"min=1"`
}

type ServerConfig struct {
	Addr         string   `toml:"addr" json:"addr" validate:"required"`
	AllowOrigins []string `toml:"allow_origins" json:"allow_origins"`
}

type ProvidersConfig struct {
	AlphaVantageAPIKey string  `toml:"alpha_vantage_api_key" json:"-"`
	BraveAPIKey        string  `toml:"brave_api_key" json:"-"`
	HTTPTimeout        string  `toml:"http_timeout" json:"http_timeout" validate:"duration"`
	RequestsPerSecond  float64 `toml:"requests_per_second" json:"requests_per_second" validate:"gt=0"`
	MaxRetries         int     `toml:"max_retries" json:"max_retries" validate:"gte=0"`

	// Longport API Configuration
	LongportAppKey      string `toml:"longport_app_key" json:"-"`
	LongportAppSecret   string `toml:"longport_app_secret" json:"-"`
	LongportAccessToken string `toml:"longport_access_token" json:"-"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	dataDir := filepath.Join(currentDir, "data")

	return &Config{
		ProjectDir:   currentDir,
		DataDir:      dataDir,
		ReportsDir:   filepath.Join(currentDir, "reports"),
		OverviewsDir: filepath.Join(currentDir, "overviews"),
		HistoryDir:   filepath.Join(currentDir, "history"),
		HistoryDB:    filepath.Join(dataDir, "stella.db"),

		LogLevel: "info",

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,

		LLM: LLMConfig{
			Provider:  "deepseek",
			Model:     "deepseek-chat",
			MaxTokens: 1024,
			Timeout:   "60s",
		},
		Cache: CacheConfig{
			Backend:       "file",
			Dir:           dataDir,
			MetricsTTL:    "24h",
			NewsTTL:       "24h",
			HighlightsTTL: "5m",
			SingleFlight:  true,
		},
		Pool: PoolConfig{
			Size:             8,
			BatchConcurrency: 4,
		},
		Server: ServerConfig{
			Addr:         ":8000",
			AllowOrigins: []string{"*"},
		},
		Providers: ProvidersConfig{
			HTTPTimeout:       "30s",
			RequestsPerSecond: 5,
			MaxRetries:        2,
		},
	}
}

// Load builds the configuration from defaults, then each TOML file in order,
// then .env and the process environment. Later sources win.
func Load(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Load environment variables from .env file
	_ = godotenv.Load()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
		c.Cache.Dir = val
	}
	if val := os.Getenv("REPORTS_DIR"); val != "" {
		c.ReportsDir = val
	}
	if val := os.Getenv("OVERVIEWS_DIR"); val != "" {
		c.OverviewsDir = val
	}
	if val := os.Getenv("HISTORY_DIR"); val != "" {
		c.HistoryDir = val
	}
	if val, ok := os.LookupEnv("HISTORY_DB"); ok {
		c.HistoryDB = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = strings.ToLower(val)
	}
	if val := os.Getenv("STELLA_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLM.Provider = val
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLM.Model = val
	}
	if val := os.Getenv("LLM_BASE_URL"); val != "" {
		c.LLM.BaseURL = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" && c.LLM.Provider == "deepseek" {
		c.LLM.APIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = val
	}

	if val := os.Getenv("CACHE_BACKEND"); val != "" {
		c.Cache.Backend = val
	}
	if val := os.Getenv("CACHE_SINGLE_FLIGHT"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Cache.SingleFlight = enabled
		}
	}
	if val := os.Getenv("POOL_SIZE"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.Pool.Size = v
		}
	}
	if val := os.Getenv("SERVER_ADDR"); val != "" {
		c.Server.Addr = val
	}

	if val := os.Getenv("ALPHA_VANTAGE_API_KEY"); val != "" {
		c.Providers.AlphaVantageAPIKey = val
	}
	if val := os.Getenv("BRAVE_API_KEY"); val != "" {
		c.Providers.BraveAPIKey = val
	}
	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.Providers.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.Providers.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.Providers.LongportAccessToken = val
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	return v
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.Cache.Dir, c.ReportsDir, c.OverviewsDir, c.HistoryDir}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) LLMTimeout() time.Duration    { return mustDuration(c.LLM.Timeout) }
func (c *Config) HTTPTimeout() time.Duration   { return mustDuration(c.Providers.HTTPTimeout) }
func (c *Config) MetricsTTL() time.Duration    { return mustDuration(c.Cache.MetricsTTL) }
func (c *Config) NewsTTL() time.Duration       { return mustDuration(c.Cache.NewsTTL) }
func (c *Config) HighlightsTTL() time.Duration { return mustDuration(c.Cache.HighlightsTTL) }
func (c *Config) HasLongportCredentials() bool {
	p := c.Providers
	return p.LongportAppKey != "" && p.LongportAppSecret != "" && p.LongportAccessToken != ""
}

// mustDuration is only called on values that passed Validate.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
