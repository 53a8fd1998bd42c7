package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database              DatabaseConfig  `mapstructure:"database"`
	RedisURL              string          `mapstructure:"redis_url"`
	JWTSecret             string          `mapstructure:"jwt_secret"`
	Port                  string          `mapstructure:"port"`
	AIEngine              AIEngineConfig  `mapstructure:"ai_engine"`
	CORSOrigins           []string        `mapstructure:"cors_origins"`
	RequestTimeout        time.Duration   `mapstructure:"request_timeout"`
	RateLimit             RateLimitConfig `mapstructure:"rate_limit"`
	EnforceAgentOwnership bool            `mapstructure:"enforce_agent_ownership"`
	AuditStream           string          `mapstructure:"audit_stream"`
	LogLevel              string          `mapstructure:"log_level"`
	Debug                 bool            `mapstructure:"debug"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // mysql|sqlite
	DSN    string `mapstructure:"dsn"`
}

type AIEngineConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "stratomai:stratomai@tcp(localhost:3306)/stratomai")
	v.SetDefault("redis_url", "")
	v.SetDefault("port", "8080")
	v.SetDefault("ai_engine.url", "http://localhost:8000")
	v.SetDefault("ai_engine.timeout", 30*time.Second)
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("request_timeout", 60*time.Second)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("enforce_agent_ownership", true)
	v.SetDefault("audit_stream", "stratomai.audit")
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)
}

// env names kept from the deployment scripts; the first match wins.
var envBindings = map[string][]string{
	"database.driver":         {"DB_DRIVER"},
	"database.dsn":            {"MYSQL_DSN", "DATABASE_DSN"},
	"redis_url":               {"REDIS_URL"},
	"jwt_secret":              {"JWT_SECRET"},
	"port":                    {"PORT"},
	"ai_engine.url":           {"AI_ENGINE_URL", "NEXT_PUBLIC_AI_ENGINE_URL"},
	"ai_engine.timeout":       {"AI_ENGINE_TIMEOUT"},
	"cors_origins":            {"CORS_ORIGINS"},
	"request_timeout":         {"REQUEST_TIMEOUT"},
	"rate_limit.requests":     {"RATE_LIMIT_REQUESTS"},
	"rate_limit.window":       {"RATE_LIMIT_WINDOW"},
	"enforce_agent_ownership": {"ENFORCE_AGENT_OWNERSHIP"},
	"audit_stream":            {"AUDIT_STREAM"},
	"log_level":               {"LOG_LEVEL"},
	"debug":                   {"DEBUG"},
}

// Load reads defaults, then the optional YAML file at path, then the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	return cfg, nil
}

// CORS_ORIGINS arrives as one comma-separated string from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Settings names read from the settings table.
const (
	SettingAIEngineURL = "ai_engine_url"
	SettingCORSOrigins = "cors_origins"
)

// ApplySettings overlays DB-backed settings; empty values are ignored.
func (c *Config) ApplySettings(get func(name string) string) {
	if u := get(SettingAIEngineURL); u != "" {
		c.AIEngine.URL = u
	}
	if o := get(SettingCORSOrigins); o != "" {
		c.CORSOrigins = splitList([]string{o})
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret (JWT_SECRET) is required"))
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.AIEngine.URL == "" {
		errs = append(errs, errors.New("ai_engine.url is required"))
	}
	if c.AIEngine.Timeout <= 0 || c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.RateLimit.Requests < 0 || (c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit needs a positive window"))
	}
	return errors.Join(errs...)
}
