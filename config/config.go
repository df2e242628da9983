// Package config loads mcpserve settings from a YAML file, a .env file and
// MCP_* environment variables, in that order of increasing precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mnehpets/mcpserve/mcp"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "MCP_"

// Config is the top-level mcpserve.yaml structure.
type Config struct {
	ListenAddr   string        `yaml:"listen_addr" validate:"required"`
	Path         string        `yaml:"path" validate:"required,startswith=/"`
	Server       ServerConfig  `yaml:"server"`
	// MaxBodyBytes rejects larger request bodies with 413. 0 is unlimited.
	MaxBodyBytes int64         `yaml:"max_body_bytes" validate:"gte=0"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
	RateLimit    RateLimit     `yaml:"rate_limit"`
	CORSOrigins  []string      `yaml:"cors_origins,omitempty"`
	Auth         AuthConfig    `yaml:"auth"`
	Log          LogConfig     `yaml:"log"`
	MetricsPath  string        `yaml:"metrics_path" validate:"omitempty,startswith=/"`
	// TraceStdout exports request spans to stderr.
	TraceStdout bool `yaml:"trace_stdout"`
}

// ServerConfig is the identity reported by initialize.
type ServerConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version" validate:"required"`
}

// RateLimit configures the shared request budget. RPS 0 disables limiting.
type RateLimit struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

// AuthConfig enables bearer-token authentication when Issuer is set.
type AuthConfig struct {
	Issuer   string `yaml:"issuer,omitempty" validate:"omitempty,url"`
	Audience string `yaml:"audience,omitempty" validate:"required_with=Issuer"`
	// JWKSFile, when set, is used instead of OIDC discovery.
	JWKSFile string `yaml:"jwks_file,omitempty"`
	Realm    string `yaml:"realm,omitempty"`
}

// Enabled reports whether requests must carry a bearer token.
func (a AuthConfig) Enabled() bool {
	return a.Issuer != ""
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ListenAddr:   ":8080",
		Path:         "/mcp",
		Server:       ServerConfig{Name: mcp.DefaultServerName, Version: mcp.DefaultServerVersion},
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Auth:         AuthConfig{Realm: "mcp"},
		Log:          LogConfig{Level: "info"},
		MetricsPath:  "/metrics",
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when
// path is empty), the given .env files (".env" when none are given; missing
// files are ignored) and MCP_* environment variables. The result is
// validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config")
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "loading %s", f)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rules that span fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.RateLimit.RPS > 0 && cfg.RateLimit.Burst < 1 {
		return errors.New("rate_limit.burst must be at least 1 when rate_limit.rps is set")
	}
	if cfg.Auth.JWKSFile != "" && cfg.Auth.Issuer == "" {
		return errors.New("auth.jwks_file requires auth.issuer")
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides cfg with any MCP_* variables that are set.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errs error
	parse := func(key string, set func(string) error) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "%s%s", EnvPrefix, key))
			}
		}
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("PATH", &cfg.Path)
	str("SERVER_NAME", &cfg.Server.Name)
	str("SERVER_VERSION", &cfg.Server.Version)
	str("AUTH_ISSUER", &cfg.Auth.Issuer)
	str("AUTH_AUDIENCE", &cfg.Auth.Audience)
	str("AUTH_JWKS_FILE", &cfg.Auth.JWKSFile)
	str("AUTH_REALM", &cfg.Auth.Realm)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("METRICS_PATH", &cfg.MetricsPath)

	parse("MAX_BODY_BYTES", func(v string) (err error) {
		cfg.MaxBodyBytes, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	parse("READ_TIMEOUT", func(v string) (err error) {
		cfg.ReadTimeout, err = time.ParseDuration(v)
		return err
	})
	parse("WRITE_TIMEOUT", func(v string) (err error) {
		cfg.WriteTimeout, err = time.ParseDuration(v)
		return err
	})
	parse("RATE_LIMIT_RPS", func(v string) (err error) {
		cfg.RateLimit.RPS, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("RATE_LIMIT_BURST", func(v string) (err error) {
		cfg.RateLimit.Burst, err = strconv.Atoi(v)
		return err
	})
	parse("LOG_DEVELOPMENT", func(v string) (err error) {
		cfg.Log.Development, err = strconv.ParseBool(v)
		return err
	})
	parse("TRACE_STDOUT", func(v string) (err error) {
		cfg.TraceStdout, err = strconv.ParseBool(v)
		return err
	})
	parse("CORS_ORIGINS", func(v string) error {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
		return nil
	})
	return errs
}
