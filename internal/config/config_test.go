package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"predictra/internal/config"
)

func TestLoadDefaultsExpandPathsAndCreateDirectories(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "predictra")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.Socket != filepath.Join(wantData, "predictra.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.Socket)
	}
	if cfg.Model.PythonBinary != "python3" {
		t.Fatalf("unexpected python binary: %q", cfg.Model.PythonBinary)
	}
	if cfg.Model.DefaultThreshold != 1.0 {
		t.Fatalf("unexpected default threshold: %v", cfg.Model.DefaultThreshold)
	}
	if cfg.Timeouts.Training != 120 || cfg.Timeouts.Prediction != 60 || cfg.Timeouts.StatusSession != 180 {
		t.Fatalf("unexpected timeouts: %+v", cfg.Timeouts)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.ScratchDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadReadsTOMLOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "predictra.toml")
	content := `
[paths]
data_dir = "~/predictra-data"

[model]
python_binary = "python3.12"
default_threshold = 2.5

[timeouts]
training = 300

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "predictra-data") {
		t.Fatalf("expected expanded data dir, got %q", cfg.Paths.DataDir)
	}
	if cfg.Model.PythonBinary != "python3.12" {
		t.Fatalf("unexpected python binary: %q", cfg.Model.PythonBinary)
	}
	if cfg.Model.DefaultThreshold != 2.5 {
		t.Fatalf("unexpected threshold: %v", cfg.Model.DefaultThreshold)
	}
	if cfg.Timeouts.Training != 300 {
		t.Fatalf("unexpected training timeout: %d", cfg.Timeouts.Training)
	}
	if cfg.Timeouts.Prediction != 60 {
		t.Fatalf("expected prediction timeout default, got %d", cfg.Timeouts.Prediction)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bad log format",
			content: "[logging]\nformat = \"xml\"\n",
			want:    "logging.format",
		},
		{
			name:    "bad log level",
			content: "[logging]\nlevel = \"verbose\"\n",
			want:    "logging.level",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(configPath, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(configPath)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestNormalizeRecoversNonPositiveNumbers(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[model]
default_threshold = -3.0

[timeouts]
training = 0
prediction = -5
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Model.DefaultThreshold != 1.0 {
		t.Fatalf("expected threshold fallback, got %v", cfg.Model.DefaultThreshold)
	}
	if cfg.Timeouts.Training != 120 || cfg.Timeouts.Prediction != 60 {
		t.Fatalf("expected timeout defaults, got %+v", cfg.Timeouts)
	}
}

func TestCreateSampleWritesEmbeddedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[model]") {
		t.Fatal("expected sample config to document the [model] section")
	}
}
