package mlproc_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"predictra/internal/config"
	"predictra/internal/mlproc"
	"predictra/internal/services"
	"predictra/internal/testsupport"
)

type stubExecutor struct {
	stdout   []string
	stderr   []string
	err      error
	block    bool
	lastArgs []string
	lastEnv  []string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args, env []string, onStdout, onStderr func(string)) error {
	s.lastArgs = append([]string{binary}, args...)
	s.lastEnv = env
	for _, line := range s.stdout {
		onStdout(line)
	}
	for _, line := range s.stderr {
		onStderr(line)
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func newRunnerConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, testsupport.WithModelScripts(nil, nil))
}

func writeCSV(t *testing.T) string {
	t.Helper()
	return testsupport.WriteCSV(t, testsupport.SampleCSV)
}

func TestRunnerTrainHappyPath(t *testing.T) {
	stub := &stubExecutor{
		stdout: []string{
			"loading tensorflow...",
			`PROGRESS:{"type": "progress", "progress": 10, "message": "Loading data"}`,
			`DETAILED:{"type": "message", "message": "Found 2 sensor columns", "message_type": "info"}`,
			`HEARTBEAT:{"type": "heartbeat"}`,
			`PROGRESS:{"type": "progress", "progress": 100, "message": "Training completed successfully!"}`,
			`SUCCESS:{"type": "success", "stats": {"threshold": 0.5, "training_samples": 120, "epochs_trained": 10, "sensor_columns": ["temp", "vibration"], "model_type": "simple_autoencoder"}}`,
		},
	}
	cfg := newRunnerConfig(t)
	runner := mlproc.NewRunner(cfg, nil, mlproc.WithExecutor(stub))

	var progress []int
	stats, err := runner.Train(context.Background(), mlproc.RunRequest{
		OwnerID:       "owner-1",
		MachineID:     "machine-1",
		CSVPath:       writeCSV(t),
		SensorColumns: []string{"temp", "vibration"},
		Threshold:     0.5,
	}, func(event mlproc.Event) {
		if event.Type == mlproc.EventProgress {
			progress = append(progress, event.Progress)
		}
	})
	if err != nil {
		t.Fatalf("Train returned error: %v", err)
	}
	if stats.Threshold != 0.5 || stats.TrainingSamples != 120 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(progress) != 2 || progress[0] != 10 || progress[1] != 100 {
		t.Fatalf("unexpected progress sequence: %v", progress)
	}

	if stub.lastArgs[0] != cfg.Model.PythonBinary {
		t.Fatalf("unexpected binary: %q", stub.lastArgs[0])
	}
	if stub.lastArgs[1] != cfg.Model.TrainerScript || stub.lastArgs[2] != "owner-1" || stub.lastArgs[3] != "machine-1" {
		t.Fatalf("unexpected args: %v", stub.lastArgs)
	}

	foundColumns := false
	for _, entry := range stub.lastEnv {
		if entry == `SENSOR_COLUMNS=["temp","vibration"]` {
			foundColumns = true
		}
	}
	if !foundColumns {
		t.Fatalf("expected SENSOR_COLUMNS in env, got %d entries", len(stub.lastEnv))
	}
}

func TestRunnerTrainCleanExitWithoutSuccessIsProtocolError(t *testing.T) {
	stub := &stubExecutor{
		stdout: []string{
			`PROGRESS:{"type": "progress", "progress": 50}`,
			"process finished",
		},
	}
	runner := mlproc.NewRunner(newRunnerConfig(t), nil, mlproc.WithExecutor(stub))

	_, err := runner.Train(context.Background(), mlproc.RunRequest{
		OwnerID:   "owner-1",
		MachineID: "machine-1",
		CSVPath:   writeCSV(t),
	}, nil)
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestRunnerTrainNonZeroExitUsesErrorPayload(t *testing.T) {
	stub := &stubExecutor{
		stdout: []string{
			`ERROR:{"type": "error", "message": "CSV file is empty"}`,
		},
		stderr: []string{"Traceback (most recent call last):", "ValueError: empty dataset"},
		err:    errors.New("exit status 1"),
	}
	runner := mlproc.NewRunner(newRunnerConfig(t), nil, mlproc.WithExecutor(stub))

	_, err := runner.Train(context.Background(), mlproc.RunRequest{
		OwnerID:   "owner-1",
		MachineID: "machine-1",
		CSVPath:   writeCSV(t),
	}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if want := "CSV file is empty"; err == nil || !strings.Contains(err.Error(), want) {
		t.Fatalf("expected error to include %q, got %v", want, err)
	}
}

func TestRunnerTrainNonZeroExitCarriesExitCode(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRawModelScripts("exit 3\n", "exit 3\n"))
	runner := mlproc.NewRunner(cfg, nil)

	_, err := runner.Train(context.Background(), mlproc.RunRequest{
		OwnerID:   "owner-1",
		MachineID: "machine-1",
		CSVPath:   writeCSV(t),
	}, nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}

	var exitErr *services.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit code in error chain, got %v", err)
	}
	if exitErr.Code != 3 {
		t.Fatalf("expected exit code 3, got %d", exitErr.Code)
	}
	if got := services.FailureMessage(err); got != "training process failed (exit code 3)" {
		t.Fatalf("unexpected failure message: %q", got)
	}
}

func TestRunnerTrainTimeout(t *testing.T) {
	stub := &stubExecutor{block: true}
	cfg := newRunnerConfig(t)
	cfg.Timeouts.Training = 1
	runner := mlproc.NewRunner(cfg, nil, mlproc.WithExecutor(stub))

	start := time.Now()
	_, err := runner.Train(context.Background(), mlproc.RunRequest{
		OwnerID:   "owner-1",
		MachineID: "machine-1",
		CSVPath:   writeCSV(t),
	}, nil)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestRunnerPredictHappyPath(t *testing.T) {
	stub := &stubExecutor{
		stdout: []string{
			`PROGRESS:{"type": "progress", "progress": 100, "message": "Prediction complete"}`,
			`SUCCESS:{"type": "success", "predictions": {"anomaly_score": 0.8, "is_anomaly": true, "confidence": 0.95, "processed_samples": 50, "anomaly_count": 12, "anomaly_percentage": 24.0, "threshold_used": 0.5}}`,
		},
	}
	runner := mlproc.NewRunner(newRunnerConfig(t), nil, mlproc.WithExecutor(stub))

	predictions, err := runner.Predict(context.Background(), mlproc.RunRequest{
		OwnerID:   "owner-1",
		MachineID: "machine-1",
		CSVPath:   writeCSV(t),
		Threshold: 0.5,
	}, nil)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if predictions.AnomalyScore != 0.8 || !predictions.IsAnomaly || predictions.AnomalyCount != 12 {
		t.Fatalf("unexpected predictions: %+v", predictions)
	}
}

func TestRunnerPreflightRejections(t *testing.T) {
	cfg := newRunnerConfig(t)
	runner := mlproc.NewRunner(cfg, nil, mlproc.WithExecutor(&stubExecutor{}))

	t.Run("missing csv", func(t *testing.T) {
		_, err := runner.Train(context.Background(), mlproc.RunRequest{
			OwnerID:   "owner-1",
			MachineID: "machine-1",
			CSVPath:   filepath.Join(t.TempDir(), "missing.csv"),
		}, nil)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("missing owner", func(t *testing.T) {
		_, err := runner.Train(context.Background(), mlproc.RunRequest{
			MachineID: "machine-1",
			CSVPath:   writeCSV(t),
		}, nil)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("too many columns", func(t *testing.T) {
		columns := make([]string, cfg.Model.MaxSensorColumns+1)
		for i := range columns {
			columns[i] = "col"
		}
		_, err := runner.Train(context.Background(), mlproc.RunRequest{
			OwnerID:       "owner-1",
			MachineID:     "machine-1",
			CSVPath:       writeCSV(t),
			SensorColumns: columns,
		}, nil)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("missing script", func(t *testing.T) {
		broken := *cfg
		broken.Model.TrainerScript = filepath.Join(t.TempDir(), "nope.py")
		brokenRunner := mlproc.NewRunner(&broken, nil, mlproc.WithExecutor(&stubExecutor{}))
		_, err := brokenRunner.Train(context.Background(), mlproc.RunRequest{
			OwnerID:   "owner-1",
			MachineID: "machine-1",
			CSVPath:   writeCSV(t),
		}, nil)
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}
