package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rehydra/rehydra/internal/config"
	"go.uber.org/zap"
)

func testConfig(t *testing.T, backend, provider string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.Backend = backend
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "maps.db")
	cfg.Encryption.Provider = provider
	return cfg
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func TestReadText_joinsArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"single word", []string{"hello"}, "hello"},
		{"multiple words", []string{"call", "John", "today"}, "call John today"},
		{"quoted phrase", []string{"call John today"}, "call John today"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readText(tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("readText(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  backend: "memory"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  backend: "sqlite"
  database_path: "/tmp/maps.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestInitializeComponents_memoryEphemeral(t *testing.T) {
	cfg := testConfig(t, "memory", "ephemeral")
	components, err := initializeComponents(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer components.Close()
	if components.Sessions == nil {
		t.Fatal("session manager should be initialized")
	}
}

func TestInitializeComponents_staticRequiresKey(t *testing.T) {
	t.Setenv("REHYDRA_KEY", "")
	cfg := testConfig(t, "memory", "static")
	if _, err := initializeComponents(cfg, testLogger()); err == nil {
		t.Error("expected error when REHYDRA_KEY is unset")
	} else if !strings.Contains(err.Error(), "REHYDRA_KEY") {
		t.Errorf("error should name the env var: %v", err)
	}
}

func TestInitializeComponents_unknownBackend(t *testing.T) {
	cfg := testConfig(t, "redis", "ephemeral")
	if _, err := initializeComponents(cfg, testLogger()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
