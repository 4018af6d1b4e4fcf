// Package config provides configuration management for livecanvas using
// Viper for loading from files, environment variables, and command-line flags.
//
// Configuration is read from .livecanvas.yml (or the file named by --config
// or LIVECANVAS_CONFIG_FILE), overridden by LIVECANVAS_ prefixed environment
// variables, and validated before use. It covers the HTTP boundary, the
// editing engine, code generation, the session table, the live preview, the
// source watcher, the component library and logging.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/livecanvas/internal/errors"
	"github.com/conneroisu/livecanvas/internal/generator"
	"github.com/conneroisu/livecanvas/internal/logging"
	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/preview"
	"github.com/conneroisu/livecanvas/internal/session"
	"github.com/conneroisu/livecanvas/internal/watcher"
	"github.com/conneroisu/livecanvas/internal/websocket"
)

// FileName is the default configuration file.
const FileName = ".livecanvas.yml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIVECANVAS"

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Editor     EditorConfig     `mapstructure:"editor" yaml:"editor"`
	Generator  GeneratorConfig  `mapstructure:"generator" yaml:"generator"`
	Sessions   SessionsConfig   `mapstructure:"sessions" yaml:"sessions"`
	Preview    PreviewConfig    `mapstructure:"preview" yaml:"preview"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Components ComponentsConfig `mapstructure:"components" yaml:"components"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Environment    string   `mapstructure:"environment" yaml:"environment"`
	// RateLimit caps mutating API requests per client per minute; 0 disables it.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`
	// MaxConnectionsPerIP caps preview clients per address; 0 disables it.
	MaxConnectionsPerIP int `mapstructure:"max_connections_per_ip" yaml:"max_connections_per_ip"`
}

type EditorConfig struct {
	Dialect       string `mapstructure:"dialect" yaml:"dialect"`
	StrictTargets bool   `mapstructure:"strict_targets" yaml:"strict_targets"`
	MaxDepth      int    `mapstructure:"max_depth" yaml:"max_depth"`
}

type GeneratorConfig struct {
	Indent        string `mapstructure:"indent" yaml:"indent"`
	WrapComponent bool   `mapstructure:"wrap_component" yaml:"wrap_component"`
	ComponentName string `mapstructure:"component_name" yaml:"component_name"`
}

type SessionsConfig struct {
	IdleTimeout      time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	JanitorInterval  time.Duration `mapstructure:"janitor_interval" yaml:"janitor_interval"`
	MaxSessions      int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	RejectDuplicates bool          `mapstructure:"reject_duplicates" yaml:"reject_duplicates"`
}

type PreviewConfig struct {
	Sanitize      bool   `mapstructure:"sanitize" yaml:"sanitize"`
	StylesheetURL string `mapstructure:"stylesheet_url" yaml:"stylesheet_url"`
}

type WatchConfig struct {
	Paths      []string      `mapstructure:"paths" yaml:"paths"`
	Extensions []string      `mapstructure:"extensions" yaml:"extensions"`
	Debounce   time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type ComponentsConfig struct {
	// LibraryFile names a YAML file of extra registry entries.
	LibraryFile string `mapstructure:"library_file" yaml:"library_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// defaults maps every configuration key to its default value.
var defaults = map[string]interface{}{
	"server.host":                   "localhost",
	"server.port":                   8080,
	"server.allowed_origins":        []string{"localhost:*", "127.0.0.1:*"},
	"server.environment":            "development",
	"server.rate_limit":             600,
	"server.max_connections_per_ip": 20,
	"editor.dialect":                string(model.DialectJSX),
	"editor.strict_targets":         true,
	"editor.max_depth":              64,
	"generator.indent":              "  ",
	"generator.wrap_component":      false,
	"generator.component_name":      "App",
	"sessions.idle_timeout":         30 * time.Minute,
	"sessions.janitor_interval":     time.Minute,
	"sessions.max_sessions":         0,
	"sessions.reject_duplicates":    false,
	"preview.sanitize":              true,
	"preview.stylesheet_url":        "",
	"watch.paths":                   []string{},
	"watch.extensions":              []string{".jsx", ".tsx", ".html"},
	"watch.debounce":                100 * time.Millisecond,
	"components.library_file":       "",
	"log.level":                     "info",
	"log.format":                    "text",
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot decode configuration: "+err.Error())
	}

	// Viper hands back nil for an empty slice default.
	if config.Watch.Paths == nil {
		config.Watch.Paths = []string{}
	}

	if result := ValidateConfigWithDetails(&config); result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w",
			errors.NewConfigError(errors.ErrCodeConfigInvalid, result.Summary()))
	}

	return &config, nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	config, err := LoadFrom(viper.New())
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}

	return config
}

// Dialect returns the parsed default dialect.
func (c *Config) Dialect() model.Dialect {
	dialect, err := model.ParseDialect(c.Editor.Dialect)
	if err != nil {
		return model.DialectJSX
	}

	return dialect
}

// GeneratorOptions converts the generator section.
func (c *Config) GeneratorOptions() generator.Options {
	return generator.Options{
		Indent:        c.Generator.Indent,
		WrapComponent: c.Generator.WrapComponent,
		ComponentName: c.Generator.ComponentName,
	}
}

// SessionOptions converts the editor, generator and sessions sections.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Dialect:          c.Dialect(),
		MaxDepth:         c.Editor.MaxDepth,
		StrictTargets:    c.Editor.StrictTargets,
		Generator:        c.GeneratorOptions(),
		MaxSessions:      c.Sessions.MaxSessions,
		RejectDuplicates: c.Sessions.RejectDuplicates,
		IdleTimeout:      c.Sessions.IdleTimeout,
		JanitorInterval:  c.Sessions.JanitorInterval,
	}
}

// LoggerConfig converts the log section.
func (c *Config) LoggerConfig() (*logging.LoggerConfig, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = c.Log.Format

	return lc, nil
}

// HubOptions converts the websocket settings of the server section.
func (c *Config) HubOptions() websocket.Options {
	return websocket.Options{
		OriginPatterns:      c.Server.AllowedOrigins,
		MaxConnectionsPerIP: c.Server.MaxConnectionsPerIP,
	}
}

// PreviewOptions converts the preview section.
func (c *Config) PreviewOptions() preview.Options {
	return preview.Options{
		Sanitize:      c.Preview.Sanitize,
		StylesheetURL: c.Preview.StylesheetURL,
	}
}

// SourceOptions converts the watch section.
func (c *Config) SourceOptions() watcher.SourceOptions {
	return watcher.SourceOptions{
		Paths:      c.Watch.Paths,
		Extensions: c.Watch.Extensions,
		Debounce:   c.Watch.Debounce,
	}
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
