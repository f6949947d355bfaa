package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poek.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadPokeDefaults(t *testing.T) {
	cfg, err := LoadPoke([]string{"file.txt"})
	if err != nil {
		t.Fatalf("LoadPoke: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if len(cfg.Paths) != 1 || cfg.Paths[0] != "file.txt" {
		t.Errorf("Paths = %v, want [file.txt]", cfg.Paths)
	}
	if got := cfg.Level(); got != "info" {
		t.Errorf("Level() = %q, want info", got)
	}
}

func TestLoadPokeFlags(t *testing.T) {
	cfg, err := LoadPoke([]string{"-p", "9000", "-v", "-w", "/srv/drop", "a", "b"})
	if err != nil {
		t.Fatalf("LoadPoke: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if !cfg.Verbose || cfg.Level() != "debug" {
		t.Errorf("Verbose/Level = %v/%q, want true/debug", cfg.Verbose, cfg.Level())
	}
	if cfg.WatchDir != "/srv/drop" {
		t.Errorf("WatchDir = %q, want /srv/drop", cfg.WatchDir)
	}
	if len(cfg.Paths) != 2 {
		t.Errorf("Paths = %v, want two entries", cfg.Paths)
	}
}

func TestLoadPokePrecedence(t *testing.T) {
	file := writeConfigFile(t, "port: 5000\nlog_file: /var/log/poek.json\n")

	t.Run("file beats default", func(t *testing.T) {
		cfg, err := LoadPoke([]string{"-config", file, "x"})
		if err != nil {
			t.Fatalf("LoadPoke: %v", err)
		}
		if cfg.Port != 5000 {
			t.Errorf("Port = %d, want 5000 from file", cfg.Port)
		}
		if cfg.LogFile != "/var/log/poek.json" {
			t.Errorf("LogFile = %q, want file value", cfg.LogFile)
		}
	})

	t.Run("environment beats file", func(t *testing.T) {
		t.Setenv("POEK_PORT", "4000")
		t.Setenv("POEK_LOG_FILE", "/tmp/env.json")
		cfg, err := LoadPoke([]string{"-config", file, "x"})
		if err != nil {
			t.Fatalf("LoadPoke: %v", err)
		}
		if cfg.Port != 4000 {
			t.Errorf("Port = %d, want 4000 from environment", cfg.Port)
		}
		if cfg.LogFile != "/tmp/env.json" {
			t.Errorf("LogFile = %q, want environment value", cfg.LogFile)
		}
	})

	t.Run("flag beats environment", func(t *testing.T) {
		t.Setenv("POEK_PORT", "4000")
		cfg, err := LoadPoke([]string{"-config", file, "-p", "6000", "x"})
		if err != nil {
			t.Fatalf("LoadPoke: %v", err)
		}
		if cfg.Port != 6000 {
			t.Errorf("Port = %d, want 6000 from flag", cfg.Port)
		}
	})
}

func TestLoadPokeRequiresSomethingToServe(t *testing.T) {
	if _, err := LoadPoke(nil); err == nil {
		t.Error("LoadPoke accepted an empty command line")
	}
	cfg, err := LoadPoke([]string{"-w", "/srv/drop"})
	if err != nil {
		t.Errorf("LoadPoke rejected watch-only invocation: %v", err)
	}
	if len(cfg.Paths) != 0 {
		t.Errorf("Paths = %v, want none", cfg.Paths)
	}
}

func TestLoadPokePortOutOfRange(t *testing.T) {
	for _, args := range [][]string{
		{"-p", "0", "x"},
		{"-p", "70000", "x"},
	} {
		if _, err := LoadPoke(args); err == nil {
			t.Errorf("LoadPoke(%v) accepted an invalid port", args)
		}
	}
}

func TestLoadPeekHost(t *testing.T) {
	cfg, err := LoadPeek([]string{"10.0.0.9"})
	if err != nil {
		t.Fatalf("LoadPeek: %v", err)
	}
	if cfg.Host != "10.0.0.9" {
		t.Errorf("Host = %q, want positional host", cfg.Host)
	}

	if _, err := LoadPeek([]string{"a", "b"}); err == nil {
		t.Error("LoadPeek accepted two hosts")
	}

	cfg, err = LoadPeek(nil)
	if err != nil {
		t.Fatalf("LoadPeek: %v", err)
	}
	if cfg.Host != "" {
		t.Errorf("Host = %q, want empty for broadcast", cfg.Host)
	}
}

func TestLoadPeekEnvHost(t *testing.T) {
	t.Setenv("POEK_HOST", "192.168.0.4")
	cfg, err := LoadPeek(nil)
	if err != nil {
		t.Fatalf("LoadPeek: %v", err)
	}
	if cfg.Host != "192.168.0.4" {
		t.Errorf("Host = %q, want environment host", cfg.Host)
	}

	cfg, err = LoadPeek([]string{"10.1.1.1"})
	if err != nil {
		t.Fatalf("LoadPeek: %v", err)
	}
	if cfg.Host != "10.1.1.1" {
		t.Errorf("Host = %q, positional must beat environment", cfg.Host)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("LoadFile read a missing file")
	}
	bad := writeConfigFile(t, "port: [not a number\n")
	if _, err := LoadFile(bad); err == nil {
		t.Error("LoadFile parsed malformed YAML")
	}
}

func TestLevelMapping(t *testing.T) {
	tests := []struct {
		verbose, quiet bool
		want           string
	}{
		{false, false, "info"},
		{true, false, "debug"},
		{false, true, "warn"},
		{true, true, "debug"},
	}
	for _, tt := range tests {
		if got := level(tt.verbose, tt.quiet); got != tt.want {
			t.Errorf("level(%v, %v) = %q, want %q", tt.verbose, tt.quiet, got, tt.want)
		}
	}
}
