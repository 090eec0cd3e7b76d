package supervisor

import (
	"context"
	"sync"
	"time"

	"predictra/internal/machine"
)

// RunKind distinguishes training from prediction runs.
type RunKind string

const (
	KindTraining   RunKind = "training"
	KindPrediction RunKind = "prediction"
)

// Run is the in-memory handle for one active or finished invocation. The
// durable run state lives on the machine record; the handle exists so callers
// in the same process can wait for completion without polling the store.
type Run struct {
	ID        string
	MachineID string
	Kind      RunKind
	StartedAt time.Time

	mu           sync.Mutex
	state        machine.TrainingRunState
	lastActivity time.Time
	err          error
	done         chan struct{}
}

func newRun(id, machineID string, kind RunKind) *Run {
	return &Run{
		ID:        id,
		MachineID: machineID,
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		state: machine.TrainingRunState{
			Status:    machine.RunPending,
			UpdatedAt: time.Now().UTC(),
		},
		lastActivity: time.Now().UTC(),
		done:         make(chan struct{}),
	}
}

// LastActivity reports when the external process last showed signs of life.
func (r *Run) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

func (r *Run) touch() {
	r.mu.Lock()
	r.lastActivity = time.Now().UTC()
	r.mu.Unlock()
}

// Snapshot returns a copy of the run's current state.
func (r *Run) Snapshot() machine.TrainingRunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the terminal error, valid once Wait has returned.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until the run reaches a terminal state or the context ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return r.Err()
	}
}

func (r *Run) setState(state machine.TrainingRunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

func (r *Run) finish(state machine.TrainingRunState, err error) {
	r.mu.Lock()
	r.state = state
	r.err = err
	r.mu.Unlock()
	close(r.done)
}
