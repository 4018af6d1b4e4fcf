package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigWizard asks for the common settings of a new project and writes
// them as a configuration file.
type ConfigWizard struct {
	reader *bufio.Reader
	out    io.Writer
	config *Config
}

// NewConfigWizard creates a wizard reading answers from in and writing
// prompts to out. It starts from the defaults.
func NewConfigWizard(in io.Reader, out io.Writer) *ConfigWizard {
	return &ConfigWizard{
		reader: bufio.NewReader(in),
		out:    out,
		config: Default(),
	}
}

// Run executes the interactive configuration wizard
func (w *ConfigWizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "livecanvas configuration")
	fmt.Fprintln(w.out, "Press enter to accept the value in brackets.")
	fmt.Fprintln(w.out)

	w.config.Server.Host = w.askString("Server host", w.config.Server.Host)
	port, err := w.askInt("Server port", w.config.Server.Port, 0, 65535)
	if err != nil {
		return nil, fmt.Errorf("server configuration failed: %w", err)
	}
	w.config.Server.Port = port

	w.config.Editor.Dialect = w.askChoice("Markup dialect", []string{"jsx", "html"}, w.config.Editor.Dialect)
	w.config.Editor.StrictTargets = w.askBool("Reject operations on missing elements", w.config.Editor.StrictTargets)
	w.config.Generator.WrapComponent = w.askBool("Wrap generated jsx in a component module", w.config.Generator.WrapComponent)

	if paths := w.askString("Source paths to watch (comma separated)", strings.Join(w.config.Watch.Paths, ",")); paths != "" {
		w.config.Watch.Paths = splitList(paths)
	}

	w.config.Log.Level = w.askChoice("Log level", []string{"debug", "info", "warn", "error"}, w.config.Log.Level)

	if result := ValidateConfigWithDetails(w.config); result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %s", result.Summary())
	}

	return w.config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (w *ConfigWizard) askString(prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	input, err := w.reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	if err != nil && err != io.EOF {
		return defaultValue
	}

	return input
}

func (w *ConfigWizard) askInt(prompt string, defaultValue, min, max int) (int, error) {
	for {
		fmt.Fprintf(w.out, "%s [%d]: ", prompt, defaultValue)

		input, err := w.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue, nil
		}

		value, convErr := strconv.Atoi(input)
		switch {
		case convErr != nil:
			fmt.Fprintf(w.out, "Invalid number. Please enter a number between %d and %d.\n", min, max)
		case value < min || value > max:
			fmt.Fprintf(w.out, "Number out of range. Please enter a number between %d and %d.\n", min, max)
		default:
			return value, nil
		}

		if err != nil {
			return 0, fmt.Errorf("no valid answer for %q", prompt)
		}
	}
}

func (w *ConfigWizard) askBool(prompt string, defaultValue bool) bool {
	defaultStr := "n"
	if defaultValue {
		defaultStr = "y"
	}

	fmt.Fprintf(w.out, "%s [%s]: ", prompt, defaultStr)

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultValue
	}

	return input == "y" || input == "yes" || input == "true"
}

func (w *ConfigWizard) askChoice(prompt string, choices []string, defaultValue string) string {
	for {
		fmt.Fprintf(w.out, "%s [%s] (options: %s): ", prompt, defaultValue, strings.Join(choices, ", "))

		input, err := w.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue
		}

		for _, choice := range choices {
			if strings.EqualFold(input, choice) {
				return choice
			}
		}

		fmt.Fprintf(w.out, "Invalid choice. Please select from: %s\n", strings.Join(choices, ", "))
		if err != nil {
			return defaultValue
		}
	}
}

// MarshalYAML writes durations in their string form.
func (c SessionsConfig) MarshalYAML() (interface{}, error) {
	return map[string]interface{}{
		"idle_timeout":      c.IdleTimeout.String(),
		"janitor_interval":  c.JanitorInterval.String(),
		"max_sessions":      c.MaxSessions,
		"reject_duplicates": c.RejectDuplicates,
	}, nil
}

// MarshalYAML writes durations in their string form.
func (c WatchConfig) MarshalYAML() (interface{}, error) {
	return map[string]interface{}{
		"paths":      c.Paths,
		"extensions": c.Extensions,
		"debounce":   c.Debounce.String(),
	}, nil
}

// Encode renders config as a commented YAML document.
func Encode(config *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# livecanvas configuration\n\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// WriteConfigFile writes config to filename, refusing to replace an
// existing file unless force is set.
func WriteConfigFile(filename string, config *Config, force bool) error {
	if _, err := os.Stat(filename); err == nil && !force {
		return fmt.Errorf("configuration file %s already exists", filename)
	}

	content, err := Encode(config)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, content, 0o644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}
