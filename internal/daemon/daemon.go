package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"predictra/internal/config"
	"predictra/internal/logging"
	"predictra/internal/machine"
	"predictra/internal/supervisor"
)

// Daemon coordinates the machine store and run supervisor and enforces
// single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *machine.Store
	sup     *supervisor.Supervisor
	logPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DBPath       string
	LockFilePath string
	SocketPath   string
	Machines     machine.HealthSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *machine.Store, sup *supervisor.Supervisor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || sup == nil {
		return nil, errors.New("daemon requires config, store, and supervisor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "predictrad.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		sup:      sup,
		logPath:  filepath.Join(cfg.Paths.LogDir, "predictra.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and recovers any runs a previous process
// left mid-flight.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another predictra daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	reset, err := d.store.ResetStuckRuns(d.ctx)
	if err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("reset stuck runs: %w", err)
	}
	if reset > 0 {
		d.logger.Warn("failed runs left by previous instance",
			logging.Int64("count", reset))
	}

	d.running.Store(true)
	d.logger.Info("predictra daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts run processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.sup.Shutdown(context.Background()); err != nil {
		d.logger.Warn("supervisor shutdown incomplete", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("predictra daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status summarizes runtime state for the status command.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.Paths.Socket,
	}
	if summary, err := d.store.Health(ctx); err == nil {
		status.Machines = summary
	} else {
		d.logger.Warn("machine health query failed", logging.Error(err))
	}
	return status
}

// CreateMachine registers a new machine.
func (d *Daemon) CreateMachine(ctx context.Context, ownerID, name, machineType string, sensorColumns []string) (*machine.Machine, error) {
	return d.store.Create(ctx, ownerID, name, machineType, sensorColumns)
}

// GetMachine fetches one machine, nil if absent.
func (d *Daemon) GetMachine(ctx context.Context, id string) (*machine.Machine, error) {
	return d.store.GetByID(ctx, id)
}

// ListMachines lists machines, optionally filtered by owner.
func (d *Daemon) ListMachines(ctx context.Context, ownerID string) ([]*machine.Machine, error) {
	return d.store.List(ctx, ownerID)
}

// DeleteMachine removes a machine. Machines with an active run cannot be
// removed.
func (d *Daemon) DeleteMachine(ctx context.Context, id string) (bool, error) {
	if run := d.sup.ActiveRun(id); run != nil {
		return false, supervisor.ErrRunActive
	}
	return d.store.Delete(ctx, id)
}

// StartTraining launches a background training run and returns its run ID.
func (d *Daemon) StartTraining(ctx context.Context, req supervisor.TrainRequest) (string, error) {
	run, err := d.sup.StartTraining(ctx, req)
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

// TrainingStatus reads the persisted run state for a machine.
func (d *Daemon) TrainingStatus(ctx context.Context, ownerID, machineID string) (machine.TrainingRunState, error) {
	return d.sup.TrainingStatus(ctx, ownerID, machineID)
}

// Predict runs a synchronous prediction.
func (d *Daemon) Predict(ctx context.Context, req supervisor.PredictRequest) (*machine.PredictionResult, error) {
	return d.sup.Predict(ctx, req)
}
