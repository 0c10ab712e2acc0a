package testsupport

import (
	"context"
	"testing"

	"archivist/internal/config"
	"archivist/internal/state"
)

// MustOpenStore opens a state.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *state.Store {
	t.Helper()
	store, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustOpenLedger opens the store and loads a ledger over it.
func MustOpenLedger(t testing.TB, cfg *config.Config) (*state.Ledger, *state.Store) {
	t.Helper()
	store := MustOpenStore(t, cfg)
	ledger, err := state.NewLedger(context.Background(), store)
	if err != nil {
		t.Fatalf("state.NewLedger: %v", err)
	}
	return ledger, store
}
