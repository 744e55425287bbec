package docmerge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"gopkg.in/yaml.v3"

	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/markup"
)

// Config contains all configuration options for template processing
type Config struct {
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string `yaml:"log_level"`
	// TempDir is where working copies are created. Empty means os.TempDir().
	TempDir string `yaml:"temp_dir"`
	// MainPart is the archive entry holding the document body.
	MainPart string `yaml:"main_part"`
	// NamePattern is the regular expression placeholder names must match.
	NamePattern string `yaml:"name_pattern"`
	// LegacyCharset decodes substitution values that are not valid UTF-8.
	LegacyCharset string `yaml:"legacy_charset"`
	// SkipHeadersFooters limits processing to the main part.
	SkipHeadersFooters bool `yaml:"skip_headers_footers"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      "info",
		MainPart:      "word/document.xml",
		NamePattern:   markup.DefaultNamePattern,
		LegacyCharset: "iso-8859-1",
	}
}

// ConfigFromEnvironment creates a configuration from environment variables
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	// DOCMERGE_LOG_LEVEL
	if val := os.Getenv("DOCMERGE_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	// DOCMERGE_TEMP_DIR
	if val := os.Getenv("DOCMERGE_TEMP_DIR"); val != "" {
		config.TempDir = val
	}

	// DOCMERGE_MAIN_PART
	if val := os.Getenv("DOCMERGE_MAIN_PART"); val != "" {
		config.MainPart = val
	}

	// DOCMERGE_NAME_PATTERN
	if val := os.Getenv("DOCMERGE_NAME_PATTERN"); val != "" {
		config.NamePattern = val
	}

	// DOCMERGE_LEGACY_CHARSET
	if val := os.Getenv("DOCMERGE_LEGACY_CHARSET"); val != "" {
		config.LegacyCharset = val
	}

	// DOCMERGE_SKIP_HEADERS_FOOTERS
	if val := os.Getenv("DOCMERGE_SKIP_HEADERS_FOOTERS"); val != "" {
		config.SkipHeadersFooters = parseBool(val)
	}

	return config
}

// LoadConfigFile reads a YAML configuration file. Keys missing from the file
// keep their default values.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	config := DefaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return config, nil
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	config := *overrides

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}

	if config.MainPart == "" {
		config.MainPart = defaults.MainPart
	}

	if config.NamePattern == "" {
		config.NamePattern = defaults.NamePattern
	}

	if config.LegacyCharset == "" {
		config.LegacyCharset = defaults.LegacyCharset
	}

	return &config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}

	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	if c.MainPart == "" {
		return errors.New("main part cannot be empty")
	}

	if _, err := markup.NewGrammar(c.NamePattern); err != nil {
		return err
	}

	if _, err := c.legacyEncoding(); err != nil {
		return err
	}

	if c.TempDir != "" {
		info, err := os.Stat(c.TempDir)
		if err != nil {
			return fmt.Errorf("temp dir: %w", err)
		}
		if !info.IsDir() {
			return errors.New("temp dir is not a directory: " + c.TempDir)
		}
	}

	return nil
}

func (c *Config) legacyEncoding() (encoding.Encoding, error) {
	enc, err := htmlindex.Get(c.LegacyCharset)
	if err != nil {
		return nil, fmt.Errorf("unknown legacy charset %q: %w", c.LegacyCharset, err)
	}
	return enc, nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
