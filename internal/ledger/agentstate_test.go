package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/oliveapp/olive-agents/internal/testutil"
)

func TestStateStoreCompareAndSwap(t *testing.T) {
	db, closeFn := testutil.OpenTestDB(t)
	defer closeFn()
	ctx := context.Background()
	store := NewStateStore(db)

	snap, ok, err := store.Load(ctx, "u1", "sleep-optimization-coach")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if ok || snap.Version != 0 {
		t.Fatalf("expected no state, got %+v", snap)
	}

	v1, err := store.CompareAndSwap(ctx, 0, Snapshot{
		UserID: "u1", AgentID: "sleep-optimization-coach", SchemaVersion: 1,
		State: json.RawMessage(`{"sent_tips":["a"]}`), RunID: "r1",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if v1 != 1 {
		t.Fatalf("expected version 1, got %d", v1)
	}

	// A second writer that also read "no row" loses.
	if _, err := store.CompareAndSwap(ctx, 0, Snapshot{UserID: "u1", AgentID: "sleep-optimization-coach", SchemaVersion: 1}); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	v2, err := store.CompareAndSwap(ctx, v1, Snapshot{
		UserID: "u1", AgentID: "sleep-optimization-coach", SchemaVersion: 1,
		State: json.RawMessage(`{"sent_tips":["a","b"]}`), RunID: "r2",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if v2 != 2 {
		t.Fatalf("expected version 2, got %d", v2)
	}

	// Stale version loses.
	if _, err := store.CompareAndSwap(ctx, v1, Snapshot{UserID: "u1", AgentID: "sleep-optimization-coach", SchemaVersion: 1}); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}

	loaded, ok, err := store.Load(ctx, "u1", "sleep-optimization-coach")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.Version != 2 || loaded.RunID != "r2" || string(loaded.State) != `{"sent_tips":["a","b"]}` {
		t.Fatalf("unexpected snapshot: %+v", loaded)
	}
}
