package daemon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"predictra/internal/daemon"
	"predictra/internal/logging"
	"predictra/internal/machine"
	"predictra/internal/mlproc"
	"predictra/internal/supervisor"
	"predictra/internal/testsupport"
)

func newDaemon(t *testing.T) (*daemon.Daemon, *machine.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithModelScripts(
		[]string{`SUCCESS:{"type": "success", "stats": {"threshold": 0.5}}`},
		[]string{`SUCCESS:{"type": "success", "predictions": {"anomaly_score": 0.1}}`},
	))
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	runner := mlproc.NewRunner(cfg, logger)
	sup := supervisor.New(cfg, store, runner, logger)
	d, err := daemon.New(cfg, store, sup, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newDaemon(t)
	ctx := context.Background()

	if d.Running() {
		t.Fatal("daemon must not run before Start")
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected running daemon")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start must fail")
	}

	status := d.Status(ctx)
	if !status.Running || status.PID == 0 || status.DBPath == "" {
		t.Fatalf("unexpected status: %+v", status)
	}

	d.Stop()
	if d.Running() {
		t.Fatal("expected stopped daemon")
	}
	// Stop is idempotent.
	d.Stop()
}

func TestDaemonStartRecoversStuckRuns(t *testing.T) {
	d, store := newDaemon(t)
	ctx := context.Background()

	m := testsupport.NewMachine(t, store, "owner-1", "Pump A", nil)
	if err := store.SetRunState(ctx, m.ID, machine.TrainingRunState{
		Status:   machine.RunInProgress,
		Progress: 55,
	}); err != nil {
		t.Fatalf("SetRunState failed: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	state, err := store.RunState(ctx, m.ID)
	if err != nil {
		t.Fatalf("RunState failed: %v", err)
	}
	if state.Status != machine.RunFailed {
		t.Fatalf("expected recovered run to fail, got %q", state.Status)
	}
}

func TestDaemonMachineLifecycle(t *testing.T) {
	d, _ := newDaemon(t)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	m, err := d.CreateMachine(ctx, "owner-1", "Pump A", "pump", []string{"temp"})
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}

	listed, err := d.ListMachines(ctx, "owner-1")
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListMachines = %v, %v", listed, err)
	}

	runID, err := d.StartTraining(ctx, supervisor.TrainRequest{
		OwnerID:   "owner-1",
		MachineID: m.ID,
		CSVPath:   testsupport.WriteCSV(t, testsupport.SampleCSV),
	})
	if err != nil {
		t.Fatalf("StartTraining failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected run id")
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		state, err := d.TrainingStatus(ctx, "owner-1", m.ID)
		if err != nil {
			t.Fatalf("TrainingStatus failed: %v", err)
		}
		if state.Status.IsTerminal() {
			if state.Status != machine.RunCompleted {
				t.Fatalf("expected completed run, got %+v", state)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("training did not finish")
		}
		time.Sleep(50 * time.Millisecond)
	}

	removed, err := d.DeleteMachine(ctx, m.ID)
	if err != nil {
		t.Fatalf("DeleteMachine failed: %v", err)
	}
	if !removed {
		t.Fatal("expected machine removed")
	}
}

func TestDeleteMachineRejectsActiveRun(t *testing.T) {
	trainerBody := "sleep 2\necho 'SUCCESS:{\"type\": \"success\", \"stats\": {\"threshold\": 0.5}}'\n"
	cfg := testsupport.NewConfig(t, testsupport.WithRawModelScripts(trainerBody, "exit 0\n"))
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	runner := mlproc.NewRunner(cfg, logger)
	sup := supervisor.New(cfg, store, runner, logger)
	d, err := daemon.New(cfg, store, sup, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	m := testsupport.NewMachine(t, store, "owner-1", "Pump A", nil)
	if _, err := d.StartTraining(ctx, supervisor.TrainRequest{
		OwnerID:   "owner-1",
		MachineID: m.ID,
		CSVPath:   testsupport.WriteCSV(t, testsupport.SampleCSV),
	}); err != nil {
		t.Fatalf("StartTraining failed: %v", err)
	}

	_, err = d.DeleteMachine(ctx, m.ID)
	if !errors.Is(err, supervisor.ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}
}
