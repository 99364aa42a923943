package testutil

import (
	"path/filepath"
	"testing"

	"github.com/oliveapp/olive-agents/internal/state"
)

// OpenTestDB opens a migrated SQLite database in a per-test directory. The
// returned func closes it early; it is also closed on cleanup.
func OpenTestDB(t *testing.T) (*state.DB, func()) {
	t.Helper()
	db, err := state.OpenSQLite(filepath.Join(t.TempDir(), "olive.db"))
	if err != nil {
		t.Fatalf("open olive db: %v", err)
	}
	closeFn := func() { _ = db.Close() }
	t.Cleanup(closeFn)
	return db, closeFn
}
