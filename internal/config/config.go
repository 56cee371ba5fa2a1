// Package config loads assistant configuration from config.yaml, a .env file
// and DEMOLAND_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/urbangrammar/demoland-assistant/internal/chat"
	"github.com/urbangrammar/demoland-assistant/internal/layers"
	"github.com/urbangrammar/demoland-assistant/pkg/overpass"
)

// Config holds the full application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Chat      ChatConfig      `yaml:"chat" mapstructure:"chat"`
}

// LayerConfig points at one reference layer file.
type LayerConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Field string `yaml:"field" mapstructure:"field"`
}

// DataConfig locates reference layers and scenario files.
type DataConfig struct {
	Signatures   LayerConfig `yaml:"signatures" mapstructure:"signatures"`
	Regions      LayerConfig `yaml:"regions" mapstructure:"regions"`
	Deprivation  LayerConfig `yaml:"deprivation" mapstructure:"deprivation"`
	Geography    LayerConfig `yaml:"geography" mapstructure:"geography"`
	PenPortraits string      `yaml:"pen_portraits" mapstructure:"pen_portraits"`
	Baseline     string      `yaml:"baseline" mapstructure:"baseline"`
	Scenario     string      `yaml:"scenario" mapstructure:"scenario"`
	Warm         bool        `yaml:"warm" mapstructure:"warm"`
}

// Sources converts the data section into layer cache sources.
func (d DataConfig) Sources() layers.Sources {
	return layers.Sources{
		Signatures:   layers.Source{Path: d.Signatures.Path, Field: d.Signatures.Field},
		Regions:      layers.Source{Path: d.Regions.Path, Field: d.Regions.Field},
		Deprivation:  layers.Source{Path: d.Deprivation.Path, Field: d.Deprivation.Field},
		Geography:    layers.Source{Path: d.Geography.Path, Field: d.Geography.Field},
		PenPortraits: d.PenPortraits,
	}
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MCP            bool     `yaml:"mcp" mapstructure:"mcp"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// AnthropicConfig configures the language model client.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model" validate:"required"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"min=1"`
}

// OverpassConfig configures the points-of-interest client.
type OverpassConfig struct {
	URL           string    `yaml:"url" mapstructure:"url" validate:"url"`
	BBox          []float64 `yaml:"bbox" mapstructure:"bbox" validate:"len=4"`
	TimeoutSecs   int       `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
	RateLimit     float64   `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gt=0"`
	CachePath     string    `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLHours int       `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours" validate:"min=0"`
}

// Area returns the study-area bounding box.
func (o OverpassConfig) Area() overpass.BBox {
	if len(o.BBox) != 4 {
		return overpass.BBox{}
	}
	return overpass.BBox{MinLat: o.BBox[0], MinLon: o.BBox[1], MaxLat: o.BBox[2], MaxLon: o.BBox[3]}
}

// Timeout returns the request timeout.
func (o OverpassConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// CacheTTL returns how long cached responses stay fresh.
func (o OverpassConfig) CacheTTL() time.Duration {
	return time.Duration(o.CacheTTLHours) * time.Hour
}

// ChatConfig configures the agent loop.
type ChatConfig struct {
	MaxIterations int    `yaml:"max_iterations" mapstructure:"max_iterations" validate:"min=1"`
	Greeting      string `yaml:"greeting" mapstructure:"greeting"`
	SystemPrompt  string `yaml:"system_prompt" mapstructure:"system_prompt"`
	// IdleMinutes expires sessions unused for this long. Zero disables expiry.
	IdleMinutes int `yaml:"idle_minutes" mapstructure:"idle_minutes" validate:"min=0"`
}

// IdleTimeout returns the session idle timeout.
func (c ChatConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleMinutes) * time.Minute
}

// AgentConfig combines the model and chat sections.
func (c *Config) AgentConfig() chat.Config {
	return chat.Config{
		Model:         c.Anthropic.Model,
		MaxTokens:     c.Anthropic.MaxTokens,
		MaxIterations: c.Chat.MaxIterations,
		SystemPrompt:  c.Chat.SystemPrompt,
		Greeting:      c.Chat.Greeting,
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// A missing .env is fine; existing environment variables win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEMOLAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.signatures.path", "data/signatures_newcastle.geojson")
	v.SetDefault("data.signatures.field", layers.DefaultSignatureField)
	v.SetDefault("data.regions.path", "data/counties.geojson")
	v.SetDefault("data.regions.field", "ctyua_name")
	v.SetDefault("data.deprivation.path", "")
	v.SetDefault("data.deprivation.field", layers.DefaultDeprivationField)
	v.SetDefault("data.geography.path", "data/geograph.json")
	v.SetDefault("data.geography.field", layers.DefaultGeographyField)
	v.SetDefault("data.pen_portraits", "data/pen_portraits.json")
	v.SetDefault("data.baseline", "data/baseline.json")
	v.SetDefault("data.scenario", "data/scenario1.json")
	v.SetDefault("data.warm", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.mcp", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("overpass.url", overpass.DefaultURL)
	v.SetDefault("overpass.bbox", []float64{54.894617, -1.853227, 55.089348, -1.391386})
	v.SetDefault("overpass.timeout_secs", 30)
	v.SetDefault("overpass.rate_limit", 1.0)
	v.SetDefault("overpass.cache_path", "")
	v.SetDefault("overpass.cache_ttl_hours", 24)
	v.SetDefault("chat.max_iterations", 8)
	v.SetDefault("chat.greeting", chat.DefaultGreeting)
	v.SetDefault("chat.system_prompt", "")
	v.SetDefault("chat.idle_minutes", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks field constraints plus the settings the given command
// mode needs: "serve", "tool", "export" or "layers".
func (c *Config) Validate(mode string) error {
	var errs []string
	if err := validator.New().Struct(c); err != nil {
		errs = append(errs, err.Error())
	}
	if !c.Overpass.Area().Valid() {
		errs = append(errs, "overpass.bbox must be an ordered min_lat,min_lon,max_lat,max_lon box")
	}

	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, key+" is required")
		}
	}
	switch mode {
	case "serve":
		require(c.Anthropic.Key, "anthropic.key")
		require(c.Data.Scenario, "data.scenario")
		fallthrough
	case "tool":
		require(c.Data.Signatures.Path, "data.signatures.path")
		require(c.Data.Regions.Path, "data.regions.path")
		require(c.Data.PenPortraits, "data.pen_portraits")
		require(c.Data.Geography.Path, "data.geography.path")
	case "export":
		require(c.Data.Geography.Path, "data.geography.path")
		require(c.Data.Scenario, "data.scenario")
	case "layers":
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
