package mlproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"predictra/internal/config"
	"predictra/internal/logging"
	"predictra/internal/services"
)

// stderrTailLines bounds how much process stderr is kept for diagnostics.
const stderrTailLines = 20

// RunRequest carries the resolved inputs for one training or prediction
// invocation. Resolution (column precedence, threshold fallback) happens
// before this struct is built; the runner only launches what it is given.
type RunRequest struct {
	OwnerID       string
	MachineID     string
	CSVPath       string
	SensorColumns []string
	Threshold     float64
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(e Executor) Option {
	return func(r *Runner) {
		if e != nil {
			r.exec = e
		}
	}
}

// Runner launches the external model scripts and decodes their output
// protocol into typed results.
type Runner struct {
	cfg    *config.Config
	exec   Executor
	logger *slog.Logger
}

// NewRunner constructs a model runner.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	runner := &Runner{
		cfg:    cfg,
		exec:   commandExecutor{},
		logger: logging.NewComponentLogger(logger, "mlproc"),
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Train runs one training invocation to completion. Protocol events are
// forwarded to onEvent as they arrive; the returned stats come from the first
// success payload on the stream.
func (r *Runner) Train(ctx context.Context, req RunRequest, onEvent func(Event)) (*TrainingStats, error) {
	timeout := time.Duration(r.cfg.Timeouts.Training) * time.Second
	event, err := r.run(ctx, r.cfg.Model.TrainerScript, "train", req, timeout, onEvent)
	if err != nil {
		return nil, err
	}
	if event.Stats == nil {
		return nil, services.Wrap(services.ErrProtocol, "mlproc", "train", "success payload missing stats", nil)
	}
	return event.Stats, nil
}

// Predict runs one prediction invocation to completion.
func (r *Runner) Predict(ctx context.Context, req RunRequest, onEvent func(Event)) (*PredictionStats, error) {
	timeout := time.Duration(r.cfg.Timeouts.Prediction) * time.Second
	event, err := r.run(ctx, r.cfg.Model.PredictorScript, "predict", req, timeout, onEvent)
	if err != nil {
		return nil, err
	}
	if event.Predictions == nil {
		return nil, services.Wrap(services.ErrProtocol, "mlproc", "predict", "success payload missing predictions", nil)
	}
	return event.Predictions, nil
}

func (r *Runner) run(ctx context.Context, script, operation string, req RunRequest, timeout time.Duration, onEvent func(Event)) (*Event, error) {
	if err := r.preflight(script, operation, req); err != nil {
		return nil, err
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	env, err := buildEnv(req)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "mlproc", operation, "encode environment", err)
	}
	args := []string{script, req.OwnerID, req.MachineID, req.CSVPath}

	parser := NewParser()
	stderrTail := make([]string, 0, stderrTailLines)

	logger := r.logger.With(
		logging.String(logging.FieldMachineID, req.MachineID),
		logging.String("operation", operation),
	)
	logger.Info("launching model runner",
		logging.String("script", script),
		logging.Int("columns", len(req.SensorColumns)))

	runErr := r.exec.Run(runCtx, r.cfg.Model.PythonBinary, args, env,
		func(line string) {
			event, ok := parser.ParseLine(line)
			if !ok {
				logger.Debug("runner output", logging.String("line", line))
				return
			}
			if onEvent != nil {
				onEvent(event)
			}
		},
		func(line string) {
			if len(stderrTail) == stderrTailLines {
				stderrTail = stderrTail[1:]
			}
			stderrTail = append(stderrTail, line)
		},
	)

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("model runner timed out", logging.Duration("timeout", timeout))
			return nil, services.Wrap(services.ErrTimeout, "mlproc", operation,
				fmt.Sprintf("process exceeded %s deadline", timeout), nil)
		}
		detail := failureDetail(parser, stderrTail, runErr)
		logger.Error("model runner failed", logging.Error(runErr), logging.String("detail", detail))
		cause := runErr
		var procErr *exec.ExitError
		if errors.As(runErr, &procErr) {
			cause = &services.ExitError{Code: procErr.ExitCode(), Err: runErr}
		}
		return nil, services.Wrap(services.ErrExternalTool, "mlproc", operation, detail, cause)
	}

	success := parser.Success()
	if success == nil {
		logger.Error("model runner exited cleanly without a success payload")
		return nil, services.Wrap(services.ErrProtocol, "mlproc", operation, "no success payload on stream", nil)
	}
	logger.Info("model runner completed", logging.Int("progress", parser.Progress()))
	return success, nil
}

func (r *Runner) preflight(script, operation string, req RunRequest) error {
	if strings.TrimSpace(req.OwnerID) == "" || strings.TrimSpace(req.MachineID) == "" {
		return services.Wrap(services.ErrValidation, "mlproc", operation, "owner and machine identifiers required", nil)
	}
	if _, err := os.Stat(req.CSVPath); err != nil {
		return services.Wrap(services.ErrValidation, "mlproc", operation,
			fmt.Sprintf("input file %q not readable", req.CSVPath), err)
	}
	if err := unix.Access(script, unix.R_OK); err != nil {
		return services.Wrap(services.ErrConfiguration, "mlproc", operation,
			fmt.Sprintf("model script %q not accessible", script), err)
	}
	if len(req.SensorColumns) > r.cfg.Model.MaxSensorColumns {
		return services.Wrap(services.ErrValidation, "mlproc", operation,
			fmt.Sprintf("too many sensor columns: %d exceeds limit %d", len(req.SensorColumns), r.cfg.Model.MaxSensorColumns), nil)
	}
	return nil
}

func buildEnv(req RunRequest) ([]string, error) {
	env := os.Environ()
	if len(req.SensorColumns) > 0 {
		encoded, err := json.Marshal(req.SensorColumns)
		if err != nil {
			return nil, err
		}
		env = append(env, "SENSOR_COLUMNS="+string(encoded))
	}
	if req.Threshold > 0 {
		env = append(env, "MODEL_THRESHOLD="+strconv.FormatFloat(req.Threshold, 'g', -1, 64))
	}
	return env, nil
}

func failureDetail(parser *Parser, stderrTail []string, runErr error) string {
	if failure := parser.Failure(); failure != nil && strings.TrimSpace(failure.Message) != "" {
		return failure.Message
	}
	if len(stderrTail) > 0 {
		return strings.Join(stderrTail, "; ")
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return fmt.Sprintf("process exited with code %d", exitErr.ExitCode())
	}
	return "process exited with error"
}
