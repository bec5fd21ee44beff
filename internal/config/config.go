// Package config loads settings for the wally-resolve command and server.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	gowally "github.com/albertocavalcante/go-wally"
	"github.com/albertocavalcante/go-wally/index"
	"github.com/albertocavalcante/go-wally/label"
)

const (
	// EnvPrefix prefixes every environment override, e.g. WALLY_REGISTRY.
	EnvPrefix = "WALLY"

	// LocalFile is looked up in the working directory first.
	LocalFile = ".wally-resolve.yaml"

	// AppDir is the directory under ~/.config holding config.yaml.
	AppDir = "wally-resolve"
)

// Output formats.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Config holds every setting of the command line tool.
type Config struct {
	Registry    string        `mapstructure:"registry"`
	Token       string        `mapstructure:"token"`
	GitHubAPI   string        `mapstructure:"github_api"`
	Branch      string        `mapstructure:"branch"`
	Fallback    bool          `mapstructure:"fallback"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	Concurrency int           `mapstructure:"concurrency"`
	Output      string        `mapstructure:"output"`
	Trace       bool          `mapstructure:"trace"`
	Log         LogConfig     `mapstructure:"log"`
	Server      ServerConfig  `mapstructure:"server"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn or error
	Format string `mapstructure:"format"` // text or json
}

// ServerConfig controls the HTTP server started by "serve".
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Registry:    gowally.DefaultRegistry,
		GitHubAPI:   index.DefaultGitHubAPI,
		Branch:      index.DefaultBranch,
		Fallback:    true,
		Timeout:     30 * time.Second,
		Concurrency: gowally.DefaultConcurrency,
		Output:      OutputJSON,
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// SetDefaults registers Defaults with v. Every key must have a default for
// environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("registry", d.Registry)
	v.SetDefault("token", d.Token)
	v.SetDefault("github_api", d.GitHubAPI)
	v.SetDefault("branch", d.Branch)
	v.SetDefault("fallback", d.Fallback)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("output", d.Output)
	v.SetDefault("trace", d.Trace)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.addr", d.Server.Addr)
}

// Load reads configuration into v and returns the merged result.
//
// Lookup order when cfgFile is empty:
//  1. ./.wally-resolve.yaml
//  2. ~/.config/wally-resolve/config.yaml
//
// A missing config file is not an error unless cfgFile names it. WALLY_*
// environment variables override the file, and GITHUB_TOKEN is accepted as
// a fallback for WALLY_TOKEN.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("token", EnvPrefix+"_TOKEN", "GITHUB_TOKEN")

	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case fileExists(LocalFile):
		v.SetConfigFile(LocalFile)
	default:
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", AppDir))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that viper cannot type-check.
func (c Config) Validate() error {
	var errs []error
	if c.Registry != "" {
		if _, err := label.ParseRegistry(c.Registry); err != nil {
			errs = append(errs, fmt.Errorf("registry: %w", err))
		}
	}
	if c.Branch == "" {
		errs = append(errs, errors.New("branch must not be empty"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must not be negative, got %s", c.CacheTTL))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	switch c.Output {
	case OutputJSON, OutputYAML:
	default:
		errs = append(errs, fmt.Errorf("output must be %q or %q, got %q", OutputJSON, OutputYAML, c.Output))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds a logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// Options translates c into resolver options. Observability options are
// added by the caller.
func (c Config) Options() []gowally.Option {
	opts := []gowally.Option{
		gowally.WithGitHubBaseURL(c.GitHubAPI),
		gowally.WithBranch(c.Branch),
		gowally.WithFallback(c.Fallback),
		gowally.WithTimeout(c.Timeout),
		gowally.WithCacheTTL(c.CacheTTL),
		gowally.WithConcurrency(c.Concurrency),
	}
	if c.Token != "" {
		opts = append(opts, gowally.WithAuthToken(c.Token))
	}
	return opts
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
