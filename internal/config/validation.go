package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/livecanvas/internal/logging"
	"github.com/conneroisu/livecanvas/internal/model"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// Summary joins the error messages on one line.
func (vr *ValidationResult) Summary() string {
	parts := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		parts = append(parts, err.Field+": "+err.Message)
	}

	return strings.Join(parts, "; ")
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) fail(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     message,
		Suggestions: suggestions,
	})
}

func (vr *ValidationResult) warn(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{
		Field:       field,
		Value:       value,
		Message:     message,
		Suggestions: suggestions,
	})
}

// ValidateConfigWithDetails checks every section and collects errors and
// warnings with suggestions.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfig(&config.Server, result)
	validateEditorConfig(&config.Editor, result)
	validateGeneratorConfig(&config.Generator, result)
	validateSessionsConfig(&config.Sessions, result)
	validatePreviewConfig(&config.Preview, result)
	validateWatchConfig(&config.Watch, result)
	validateComponentsConfig(&config.Components, result)
	validateLogConfig(&config.Log, result)

	return result
}

func validateServerConfig(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.fail("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.warn("server.port", config.Port, "port below 1024 requires elevated privileges")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.fail("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		}
	}

	validEnvs := []string{"development", "production", "testing"}
	if config.Environment != "" && !contains(validEnvs, config.Environment) {
		result.warn("server.environment", config.Environment, "unknown environment type",
			"Use one of: "+strings.Join(validEnvs, ", "))
	}

	if config.RateLimit < 0 {
		result.fail("server.rate_limit", config.RateLimit, "rate limit must not be negative",
			"Use 0 to disable rate limiting")
	}
	if config.MaxConnectionsPerIP < 0 {
		result.fail("server.max_connections_per_ip", config.MaxConnectionsPerIP,
			"connection limit must not be negative", "Use 0 to disable the limit")
	}

	for _, origin := range config.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			result.fail("server.allowed_origins", origin, "empty origin pattern")
		}
		if origin == "*" && config.Environment == "production" {
			result.warn("server.allowed_origins", origin, "wildcard origin accepts websocket connections from any site")
		}
	}
}

func validateEditorConfig(config *EditorConfig, result *ValidationResult) {
	if _, err := model.ParseDialect(config.Dialect); err != nil {
		result.fail("editor.dialect", config.Dialect, err.Error(), "Use 'jsx' or 'html'")
	}

	if config.MaxDepth < 1 || config.MaxDepth > 1024 {
		result.fail("editor.max_depth", config.MaxDepth,
			fmt.Sprintf("max_depth %d is not in valid range 1-1024", config.MaxDepth))
	}
}

var componentNameRegex = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*$`)

func validateGeneratorConfig(config *GeneratorConfig, result *ValidationResult) {
	if strings.Trim(config.Indent, " \t") != "" {
		result.fail("generator.indent", config.Indent, "indent may contain only spaces and tabs")
	}

	if !componentNameRegex.MatchString(config.ComponentName) {
		result.fail("generator.component_name", config.ComponentName,
			"component name must be a capitalized identifier",
			"Use a name such as 'App' or 'Page'")
	}
}

func validateSessionsConfig(config *SessionsConfig, result *ValidationResult) {
	if config.IdleTimeout < 0 {
		result.fail("sessions.idle_timeout", config.IdleTimeout.String(), "idle_timeout cannot be negative",
			"Use 0 to disable idle eviction")
	}
	if config.JanitorInterval < 0 {
		result.fail("sessions.janitor_interval", config.JanitorInterval.String(), "janitor_interval cannot be negative")
	}
	if config.MaxSessions < 0 {
		result.fail("sessions.max_sessions", config.MaxSessions, "max_sessions cannot be negative",
			"Use 0 for an unlimited session table")
	}

	if config.IdleTimeout > 0 && config.JanitorInterval > config.IdleTimeout {
		result.warn("sessions.janitor_interval", config.JanitorInterval.String(),
			"janitor runs less often than the idle timeout; sessions may outlive it")
	}
}

func validatePreviewConfig(config *PreviewConfig, result *ValidationResult) {
	if config.StylesheetURL == "" {
		return
	}

	u, err := url.Parse(config.StylesheetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result.fail("preview.stylesheet_url", config.StylesheetURL, "stylesheet_url must be an absolute http(s) URL")
	}
}

func validateWatchConfig(config *WatchConfig, result *ValidationResult) {
	for _, path := range config.Paths {
		if err := validatePath(path); err != nil {
			result.fail("watch.paths", path, err.Error())
		} else if !pathExists(path) {
			result.warn("watch.paths", path, "path does not exist")
		}
	}

	for _, ext := range config.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			result.fail("watch.extensions", ext, "extension must start with '.'", "Use '.jsx', '.tsx' or '.html'")
		}
	}

	if config.Debounce < 0 {
		result.fail("watch.debounce", config.Debounce.String(), "debounce cannot be negative")
	}
}

func validateComponentsConfig(config *ComponentsConfig, result *ValidationResult) {
	if config.LibraryFile == "" {
		return
	}

	if err := validatePath(config.LibraryFile); err != nil {
		result.fail("components.library_file", config.LibraryFile, err.Error())
		return
	}

	if ext := filepath.Ext(config.LibraryFile); ext != ".yml" && ext != ".yaml" {
		result.warn("components.library_file", config.LibraryFile, "library file is read as YAML")
	}
}

func validateLogConfig(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.fail("log.level", config.Level, err.Error(), "Use one of: debug, info, warn, error")
	}

	if config.Format != "text" && config.Format != "json" {
		result.fail("log.format", config.Format, "unknown log format", "Use 'text' or 'json'")
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
