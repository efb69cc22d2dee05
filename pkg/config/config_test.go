package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile(nil, filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.MaxRounds != 100 {
		t.Errorf("MaxRounds = %d, want 100", cfg.MaxRounds)
	}
	if cfg.Workers < 1 {
		t.Errorf("Workers = %d, want at least 1", cfg.Workers)
	}
	if len(cfg.Extensions) != 2 || cfg.Extensions[0] != ".kt" {
		t.Errorf("Extensions = %v", cfg.Extensions)
	}
	if cfg.StateDir != filepath.Join(".", ".impact-analyzer") {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadPriority(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := `
workspace = "/src/app"
max_rounds = 20
format = "yaml"
classpath = ["lib/a.jar"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("IMPACT_ANALYZER_MAX_ROUNDS", "30")
	t.Setenv("IMPACT_ANALYZER_CLASSPATH", "lib/a.jar, lib/b.jar")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("format", "text", "")
	flags.Int("port", 8080, "")
	if err := flags.Parse([]string{"--format=json"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(flags, path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Workspace != "/src/app" {
		t.Errorf("Workspace = %q, want the file value", cfg.Workspace)
	}
	if cfg.StateDir != "/src/app/.impact-analyzer" {
		t.Errorf("StateDir = %q, want it under the workspace", cfg.StateDir)
	}
	if cfg.MaxRounds != 30 {
		t.Errorf("MaxRounds = %d, want the env value 30", cfg.MaxRounds)
	}
	if len(cfg.Classpath) != 2 || cfg.Classpath[1] != "lib/b.jar" {
		t.Errorf("Classpath = %v, want the env list", cfg.Classpath)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q, want the flag value", cfg.Format)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, an unset flag should not override the default", cfg.Port)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("max_rounds = [oops\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(nil, path); err == nil {
		t.Error("Expected an error for a malformed config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{MaxRounds: 100, Workers: 4, Format: "text", Extensions: []string{".kt"}}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rounds", func(c *Config) { c.MaxRounds = 0 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"unknown format", func(c *Config) { c.Format = "xml" }},
		{"no extensions", func(c *Config) { c.Extensions = nil }},
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
