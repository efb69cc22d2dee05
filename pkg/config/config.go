// Package config layers analyzer settings: defaults, impact-analyzer.toml,
// IMPACT_ANALYZER_* environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FileName is the optional config file read from the working directory
const FileName = "impact-analyzer.toml"

const envPrefix = "IMPACT_ANALYZER_"

// Formats accepted for plan output
var Formats = []string{"text", "json", "yaml"}

// Config holds all configuration for the application
type Config struct {
	Workspace  string   `koanf:"workspace"`
	StateDir   string   `koanf:"state_dir"`
	InMemory   bool     `koanf:"in_memory"`
	MaxRounds  int      `koanf:"max_rounds"`
	Workers    int      `koanf:"workers"`
	Frontend   string   `koanf:"frontend"`
	Extensions []string `koanf:"extensions"`
	Classpath  []string `koanf:"classpath"`
	Format     string   `koanf:"format"`
	Full       bool     `koanf:"full"`
	Watch      bool     `koanf:"watch"`
	WebMode    bool     `koanf:"web"`
	Port       int      `koanf:"port"`
	Verbosity  string   `koanf:"verbosity"`
	VerboseCnt int      `koanf:"verbose"`
}

// Defaults returns the lowest-priority layer
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"workspace":  ".",
		"state_dir":  "",
		"in_memory":  false,
		"max_rounds": 100,
		"workers":    runtime.GOMAXPROCS(0),
		"frontend":   "",
		"extensions": []string{".kt", ".java"},
		"classpath":  []string{},
		"format":     "text",
		"full":       false,
		"watch":      false,
		"web":        false,
		"port":       8080,
		"verbosity":  "",
		"verbose":    0,
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(f, FileName)
}

// LoadFile is Load with an explicit config file path
func LoadFile(f *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// The file is optional, but one that exists must parse
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// IMPACT_ANALYZER_MAX_ROUNDS=10 sets max_rounds. Keys are flat, so
	// underscores are kept rather than turned into a nesting delimiter.
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		switch key {
		case "extensions", "classpath":
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.Workspace, ".impact-analyzer")
	}

	return &cfg, nil
}

// Validate rejects settings the analyzer cannot run with
func (c *Config) Validate() error {
	if c.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be at least 1, got %d", c.MaxRounds)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	known := false
	for _, f := range Formats {
		if c.Format == f {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown format %q (want one of %s)", c.Format, strings.Join(Formats, ", "))
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("extensions must not be empty")
	}
	return nil
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

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
