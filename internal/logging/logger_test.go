package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	config = loggingConfig{}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".lifeboard")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configContent := `logging:
  level: debug
  debug_mode: true
  categories:
    boot: true
    session: true
    stream: true
    tools: true
    store: true
    api: true
`
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetState()
	defer resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot, CategorySession, CategoryStream,
		CategoryTools, CategoryStore, CategoryAPI,
	}
	for _, cat := range categories {
		Get(cat).Info("test message for %s", cat)
	}
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".lifeboard", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	found := make(map[Category]bool)
	for _, e := range entries {
		for _, cat := range categories {
			if strings.HasSuffix(e.Name(), "_"+string(cat)+".log") {
				found[cat] = true
			}
		}
	}
	for _, cat := range categories {
		if !found[cat] {
			t.Errorf("no log file created for category %s", cat)
		}
	}
}

// TestProductionModeNoLogs verifies no logs are written without a config file
func TestProductionModeNoLogs(t *testing.T) {
	tempDir := t.TempDir()

	resetState()
	defer resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled without config")
	}

	Boot("should be a no-op")
	Stream("should be a no-op")

	if _, err := os.Stat(filepath.Join(tempDir, ".lifeboard", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not exist in production mode")
	}
}

// TestCategoryDisabled verifies that disabled categories return no-op loggers
func TestCategoryDisabled(t *testing.T) {
	tempDir := t.TempDir()

	configDir := filepath.Join(tempDir, ".lifeboard")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	configContent := `logging:
  level: debug
  debug_mode: true
  categories:
    stream: false
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	resetState()
	defer resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsCategoryEnabled(CategoryStream) {
		t.Error("stream category should be disabled")
	}
	if !IsCategoryEnabled(CategoryTools) {
		t.Error("tools category should default to enabled")
	}

	l := Get(CategoryStream)
	if l.logger != nil {
		t.Error("disabled category should return a no-op logger")
	}
}
