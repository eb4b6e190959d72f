package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("VERIPOINT_CONFIG")
	defer os.Setenv("VERIPOINT_CONFIG", originalEnv)

	os.Setenv("VERIPOINT_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingSecrets verifies run fails when JWT secret and operator
// key are not configured.
func TestRun_MissingSecrets(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
service:
  id: test-instance

devices:
  config_path: "` + filepath.Join(tmpDir, "devices.json") + `"

database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"

logging:
  level: error
  format: text
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("VERIPOINT_CONFIG")
	defer os.Setenv("VERIPOINT_CONFIG", originalEnv)
	os.Setenv("VERIPOINT_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without JWT secret and operator key")
	}
}

// TestGetConfigPath_Default verifies the default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("VERIPOINT_CONFIG")
	defer os.Setenv("VERIPOINT_CONFIG", originalEnv)

	os.Unsetenv("VERIPOINT_CONFIG")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("VERIPOINT_CONFIG")
	defer os.Setenv("VERIPOINT_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("VERIPOINT_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}
