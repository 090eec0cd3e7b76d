package testsupport

import (
	"context"
	"testing"

	"predictra/internal/config"
	"predictra/internal/machine"
)

// MustOpenStore opens a machine.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *machine.Store {
	t.Helper()

	store, err := machine.Open(cfg)
	if err != nil {
		t.Fatalf("machine.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewMachine creates a machine record for tests using the provided store.
func NewMachine(t testing.TB, store *machine.Store, ownerID, name string, columns []string) *machine.Machine {
	t.Helper()

	m, err := store.Create(context.Background(), ownerID, name, "", columns)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return m
}
