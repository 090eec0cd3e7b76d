package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"predictra/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.Socket = filepath.Join(base, "predictra.sock")
	cfgVal.Model.TrainerScript = filepath.Join(base, "models", "simple_trainer.py")
	cfgVal.Model.PredictorScript = filepath.Join(base, "models", "simple_predictor.py")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTimeouts overrides operation timeouts (in seconds) on the test config.
func WithTimeouts(training, prediction int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Timeouts.Training = training
		b.cfg.Timeouts.Prediction = prediction
	}
}

// WithModelScripts writes real trainer and predictor scripts to the config's
// script paths. Each script is a shell program emitting the given protocol
// lines, so tests can exercise the process pipeline end to end without
// Python. The configured python binary is switched to /bin/sh.
func WithModelScripts(trainerLines, predictorLines []string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Model.PythonBinary = "/bin/sh"
		writeScript(b.t, b.cfg.Model.TrainerScript, trainerLines)
		writeScript(b.t, b.cfg.Model.PredictorScript, predictorLines)
	}
}

// WithRawModelScripts installs trainer and predictor scripts from full shell
// bodies for tests that need delays or conditional output.
func WithRawModelScripts(trainerBody, predictorBody string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Model.PythonBinary = "/bin/sh"
		writeRawScript(b.t, b.cfg.Model.TrainerScript, trainerBody)
		writeRawScript(b.t, b.cfg.Model.PredictorScript, predictorBody)
	}
}

func writeRawScript(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
}

func writeScript(t testing.TB, path string, lines []string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	script := "#!/bin/sh\n"
	for _, line := range lines {
		script += fmt.Sprintf("echo '%s'\n", line)
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
}
