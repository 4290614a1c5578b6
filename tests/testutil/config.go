package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/systmms/gcpkit/internal/config"
)

// WriteTestConfig writes yamlContent as gcpkit.yaml in a temporary directory
// and returns its path.
//
// Example:
//
//	path := WriteTestConfig(t, `
//	version: 0
//	project_id: proj1
//	rotation:
//	  serialize: true
//	`)
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.DefaultPath)
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// LoadTestConfig loads and validates the configuration at path, failing the
// test on any error.
func LoadTestConfig(t *testing.T, path string) *config.Definition {
	t.Helper()

	cfg := &config.Config{Path: path}
	if err := cfg.Load(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg.Definition
}
