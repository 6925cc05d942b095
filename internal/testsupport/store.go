package testsupport

import (
	"context"
	"testing"

	"studypair/internal/config"
	"studypair/internal/history"
)

// MustOpenLedger opens the history ledger configured in cfg and registers
// cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// BeginRun inserts a running batch into the ledger.
func BeginRun(t testing.TB, store *history.Store, id string, inputs ...string) {
	t.Helper()

	if err := store.BeginRun(context.Background(), history.Run{ID: id, Inputs: inputs}); err != nil {
		t.Fatalf("store.BeginRun: %v", err)
	}
}
