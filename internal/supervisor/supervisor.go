package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"predictra/internal/config"
	"predictra/internal/logging"
	"predictra/internal/machine"
	"predictra/internal/mlproc"
	"predictra/internal/risk"
	"predictra/internal/services"
)

// ErrRunActive is returned when a machine already has a live run. One run per
// machine at a time; concurrent runs for different machines are fine.
var ErrRunActive = errors.New("a run is already active for this machine")

// ModelRunner is the subset of the mlproc runner the supervisor needs.
type ModelRunner interface {
	Train(ctx context.Context, req mlproc.RunRequest, onEvent func(mlproc.Event)) (*mlproc.TrainingStats, error)
	Predict(ctx context.Context, req mlproc.RunRequest, onEvent func(mlproc.Event)) (*mlproc.PredictionStats, error)
}

// TrainRequest starts a training run for one machine.
type TrainRequest struct {
	OwnerID       string
	MachineID     string
	CSVPath       string
	SensorColumns []string
}

// PredictRequest runs one synchronous prediction for a trained machine.
type PredictRequest struct {
	OwnerID       string
	MachineID     string
	CSVPath       string
	SensorColumns []string
}

// runConfig is resolved once when a run starts and never re-read, so a
// concurrent machine update cannot change a run mid-flight.
type runConfig struct {
	columns   []string
	threshold float64
}

// Supervisor owns the lifecycle of training and prediction runs: mutual
// exclusion per machine, input staging, progress persistence, and result
// derivation.
type Supervisor struct {
	cfg    *config.Config
	store  *machine.Store
	runner ModelRunner
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	active map[string]*Run
}

// New constructs a supervisor. Training runs it launches outlive the request
// context; Shutdown stops them.
func New(cfg *config.Config, store *machine.Store, runner ModelRunner, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		logger:  logging.NewComponentLogger(logger, "supervisor"),
		baseCtx: baseCtx,
		cancel:  cancel,
		active:  make(map[string]*Run),
	}
}

// StartTraining validates the request, stages the input, and launches the
// training run in the background. The returned handle can be used to wait for
// completion; most callers poll TrainingStatus instead.
func (s *Supervisor) StartTraining(ctx context.Context, req TrainRequest) (*Run, error) {
	m, err := s.authorizedMachine(ctx, req.OwnerID, req.MachineID)
	if err != nil {
		return nil, err
	}
	if _, err := inspectCSV(req.CSVPath); err != nil {
		return nil, err
	}

	runCfg := runConfig{
		columns: m.EffectiveColumns(req.SensorColumns),
	}

	run, err := s.acquire(req.MachineID, KindTraining)
	if err != nil {
		return nil, err
	}

	staged, err := stageInput(s.cfg.Paths.ScratchDir, run.ID, req.CSVPath)
	if err != nil {
		s.release(req.MachineID)
		return nil, err
	}

	pending := machine.TrainingRunState{
		Status:    machine.RunPending,
		Progress:  0,
		Message:   "Training queued",
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.SetRunState(ctx, req.MachineID, pending); err != nil {
		s.release(req.MachineID)
		_ = os.Remove(staged)
		return nil, fmt.Errorf("persist pending state: %w", err)
	}
	run.setState(pending)

	go s.executeTraining(run, mlproc.RunRequest{
		OwnerID:       req.OwnerID,
		MachineID:     req.MachineID,
		CSVPath:       staged,
		SensorColumns: runCfg.columns,
	})

	return run, nil
}

func (s *Supervisor) executeTraining(run *Run, req mlproc.RunRequest) {
	defer s.release(run.MachineID)
	defer func() {
		if err := os.Remove(req.CSVPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove staged input",
				logging.String(logging.FieldRunID, run.ID),
				logging.Error(err))
		}
	}()

	logger := s.logger.With(
		logging.String(logging.FieldMachineID, run.MachineID),
		logging.String(logging.FieldRunID, run.ID),
	)
	logger.Info("training run starting", logging.Int("columns", len(req.SensorColumns)))

	s.persistProgress(run, machine.RunInProgress, 0, "Training started")

	stats, err := s.runner.Train(s.baseCtx, req, func(event mlproc.Event) {
		switch event.Type {
		case mlproc.EventProgress:
			run.touch()
			s.persistProgress(run, machine.RunInProgress, event.Progress, event.Message)
		case mlproc.EventHeartbeat:
			run.touch()
		case mlproc.EventMessage:
			logger.Debug("runner message",
				logging.String("message", event.Message),
				logging.String("message_type", event.MessageType))
		}
	})
	if err != nil {
		state := machine.TrainingRunState{
			Status:    services.FailureStatus(err),
			Progress:  run.Snapshot().Progress,
			Message:   services.FailureMessage(err),
			UpdatedAt: time.Now().UTC(),
		}
		if persistErr := s.store.SetRunState(s.baseCtx, run.MachineID, state); persistErr != nil {
			logger.Error("persist failed state", logging.Error(persistErr))
		}
		logger.Error("training run failed", logging.Error(err))
		run.finish(state, err)
		return
	}

	params := parametersFromStats(stats)
	if err := s.store.SaveParameters(s.baseCtx, run.MachineID, params); err != nil {
		state := machine.TrainingRunState{
			Status:    machine.RunFailed,
			Progress:  run.Snapshot().Progress,
			Message:   "failed to persist training result",
			UpdatedAt: time.Now().UTC(),
		}
		if persistErr := s.store.SetRunState(s.baseCtx, run.MachineID, state); persistErr != nil {
			logger.Error("persist failed state", logging.Error(persistErr))
		}
		logger.Error("persist training parameters", logging.Error(err))
		run.finish(state, err)
		return
	}

	state := machine.TrainingRunState{
		Status:    machine.RunCompleted,
		Progress:  100,
		Message:   "Training completed successfully",
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.SetRunState(s.baseCtx, run.MachineID, state); err != nil {
		logger.Error("persist completed state", logging.Error(err))
	}
	logger.Info("training run completed",
		logging.Float64("threshold", params.Threshold),
		logging.Int("samples", params.TrainingSamples))
	run.finish(state, nil)
}

// Predict runs one prediction to completion and persists the derived result.
func (s *Supervisor) Predict(ctx context.Context, req PredictRequest) (*machine.PredictionResult, error) {
	m, err := s.authorizedMachine(ctx, req.OwnerID, req.MachineID)
	if err != nil {
		return nil, err
	}
	if !m.IsTrained() {
		return nil, services.Wrap(services.ErrValidation, "supervisor", "predict",
			"machine has no trained model", nil)
	}
	header, err := inspectCSV(req.CSVPath)
	if err != nil {
		return nil, err
	}

	threshold := m.Parameters.Threshold
	if threshold <= 0 {
		threshold = s.cfg.Model.DefaultThreshold
	}
	runCfg := runConfig{
		columns:   m.EffectiveColumns(req.SensorColumns),
		threshold: threshold,
	}
	if missing := missingColumns(header, runCfg.columns); len(missing) > 0 {
		return nil, services.Wrap(services.ErrValidation, "supervisor", "predict",
			fmt.Sprintf("input is missing trained columns: %s", strings.Join(missing, ", ")), nil)
	}

	run, err := s.acquire(req.MachineID, KindPrediction)
	if err != nil {
		return nil, err
	}
	defer s.release(req.MachineID)

	staged, err := stageInput(s.cfg.Paths.ScratchDir, run.ID, req.CSVPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.Remove(staged)
	}()

	logger := s.logger.With(
		logging.String(logging.FieldMachineID, req.MachineID),
		logging.String(logging.FieldRunID, run.ID),
	)

	stats, err := s.runner.Predict(ctx, mlproc.RunRequest{
		OwnerID:       req.OwnerID,
		MachineID:     req.MachineID,
		CSVPath:       staged,
		SensorColumns: runCfg.columns,
		Threshold:     runCfg.threshold,
	}, nil)
	if err != nil {
		logger.Error("prediction run failed", logging.Error(err))
		return nil, err
	}

	assessment := risk.Assess(stats.AnomalyScore, runCfg.threshold, stats.IsAnomaly)
	result := &machine.PredictionResult{
		AnomalyScore:      stats.AnomalyScore,
		IsAnomaly:         stats.IsAnomaly,
		Confidence:        stats.Confidence,
		ProcessedSamples:  stats.ProcessedSamples,
		AnomalyCount:      stats.AnomalyCount,
		AnomalyPercentage: stats.AnomalyPercentage,
		HealthScore:       assessment.HealthScore,
		RULEstimate:       assessment.RULEstimate,
		RiskPercentage:    assessment.RiskPercentage,
		Status:            risk.Classify(assessment.HealthScore),
		PredictedAt:       time.Now().UTC(),
	}

	if err := s.store.SaveResult(ctx, req.MachineID, result); err != nil {
		return nil, fmt.Errorf("persist prediction result: %w", err)
	}
	logger.Info("prediction completed",
		logging.Float64("anomaly_score", result.AnomalyScore),
		logging.Int("health", result.HealthScore),
		logging.String("status", string(result.Status)))
	return result, nil
}

// TrainingStatus returns the persisted run state for a machine.
func (s *Supervisor) TrainingStatus(ctx context.Context, ownerID, machineID string) (machine.TrainingRunState, error) {
	if _, err := s.authorizedMachine(ctx, ownerID, machineID); err != nil {
		return machine.TrainingRunState{}, err
	}
	return s.store.RunState(ctx, machineID)
}

// ActiveRun returns the live run handle for a machine, or nil.
func (s *Supervisor) ActiveRun(machineID string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[machineID]
}

// Shutdown cancels in-flight runs and waits for them to settle.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.cancel()
	s.mu.Lock()
	runs := make([]*Run, 0, len(s.active))
	for _, run := range s.active {
		runs = append(runs, run)
	}
	s.mu.Unlock()

	for _, run := range runs {
		select {
		case <-run.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Supervisor) authorizedMachine(ctx context.Context, ownerID, machineID string) (*machine.Machine, error) {
	m, err := s.store.GetByID(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if m == nil || (ownerID != "" && m.OwnerID != ownerID) {
		return nil, services.Wrap(services.ErrNotFound, "supervisor", "lookup",
			fmt.Sprintf("machine %s not found", machineID), nil)
	}
	return m, nil
}

func (s *Supervisor) acquire(machineID string, kind RunKind) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.active[machineID]; exists {
		return nil, ErrRunActive
	}
	run := newRun(newRunID(), machineID, kind)
	s.active[machineID] = run
	return run, nil
}

func (s *Supervisor) release(machineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, machineID)
}

// persistProgress writes progress to the store on a best-effort basis. A
// persistence hiccup must not abort a healthy external process.
func (s *Supervisor) persistProgress(run *Run, status machine.RunStatus, progress int, message string) {
	state := machine.TrainingRunState{
		Status:    status,
		Progress:  progress,
		Message:   message,
		UpdatedAt: time.Now().UTC(),
	}
	run.setState(state)
	if err := s.store.SetRunState(s.baseCtx, run.MachineID, state); err != nil {
		s.logger.Warn("persist progress",
			logging.String(logging.FieldMachineID, run.MachineID),
			logging.Error(err))
	}
}

func parametersFromStats(stats *mlproc.TrainingStats) *machine.TrainingParameters {
	return &machine.TrainingParameters{
		Threshold:       stats.Threshold,
		MeanError:       stats.MeanError,
		StdError:        stats.StdError,
		MinError:        stats.MinError,
		MaxError:        stats.MaxError,
		Percentile90:    stats.Percentile90,
		Percentile95:    stats.Percentile95,
		Percentile99:    stats.Percentile99,
		TrainedColumns:  stats.SensorColumns,
		ModelType:       stats.ModelType,
		TrainingSamples: stats.TrainingSamples,
		EpochsTrained:   stats.EpochsTrained,
		FinalLoss:       stats.FinalLoss,
		TrainedAt:       time.Now().UTC(),
	}
}
