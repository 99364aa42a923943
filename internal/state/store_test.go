package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/oliveapp/olive-agents/internal/state"
	"github.com/oliveapp/olive-agents/internal/testutil"
)

func TestStoreTasks(t *testing.T) {
	db, closeFn := testutil.OpenTestDB(t)
	defer closeFn()

	store := state.NewStore(db)
	ctx := context.Background()

	due := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	older := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	if _, err := store.CreateTask(ctx, state.Task{UserID: "u1", Summary: "Pay rent", Category: "finance", DueDate: &due}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := store.CreateTask(ctx, state.Task{UserID: "u1", Summary: "Clean garage", Completed: true, CreatedAt: older}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := store.CreateTask(ctx, state.Task{UserID: "u1"}); err == nil {
		t.Fatalf("expected error for missing summary")
	}

	tasks, err := store.ListTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Summary != "Clean garage" {
		t.Fatalf("expected oldest first, got %+v", tasks)
	}
	if !tasks[0].Completed || tasks[0].DueDate != nil {
		t.Fatalf("unexpected first task: %+v", tasks[0])
	}
	if tasks[1].DueDate == nil || !tasks[1].DueDate.Equal(due) || tasks[1].Category != "finance" {
		t.Fatalf("unexpected second task: %+v", tasks[1])
	}
}

func TestStoreCouplesAndProfiles(t *testing.T) {
	db, closeFn := testutil.OpenTestDB(t)
	defer closeFn()

	store := state.NewStore(db)
	ctx := context.Background()

	couple, err := store.CreateCouple(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("create couple: %v", err)
	}
	got, ok, err := store.CoupleForUser(ctx, "u2", "")
	if err != nil || !ok || got.ID != couple.ID {
		t.Fatalf("couple for partner: ok=%v err=%v got=%+v", ok, err, got)
	}
	if got.Partner("u2") != "u1" || got.Partner("u3") != "" {
		t.Fatalf("unexpected partner resolution")
	}
	if _, ok, _ := store.CoupleForUser(ctx, "u1", "other-couple"); ok {
		t.Fatalf("expected no match for foreign couple id")
	}
	if _, ok, _ := store.CoupleForUser(ctx, "u3", ""); ok {
		t.Fatalf("expected no couple for single user")
	}

	if err := store.UpsertProfile(ctx, state.Profile{UserID: "u1", DisplayName: "Sam", Timezone: "Europe/Amsterdam"}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	if err := store.UpsertProfile(ctx, state.Profile{UserID: "u1", DisplayName: "Sam", PhoneNumber: "+31600000000", Timezone: "Europe/Amsterdam"}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	profile, ok, err := store.Profile(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("load profile: ok=%v err=%v", ok, err)
	}
	if profile.PhoneNumber != "+31600000000" || profile.Timezone != "Europe/Amsterdam" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if _, ok, err := store.Profile(ctx, "nobody"); ok || err != nil {
		t.Fatalf("expected missing profile, ok=%v err=%v", ok, err)
	}
}

func TestStoreConnectionsAndHealth(t *testing.T) {
	db, closeFn := testutil.OpenTestDB(t)
	defer closeFn()

	store := state.NewStore(db)
	ctx := context.Background()

	if err := store.AddConnection(ctx, "u1", "Oura"); err != nil {
		t.Fatalf("add connection: %v", err)
	}
	if err := store.AddConnection(ctx, "u1", "oura"); err != nil {
		t.Fatalf("add connection twice: %v", err)
	}
	if ok, err := store.HasConnection(ctx, "u1", "OURA"); err != nil || !ok {
		t.Fatalf("expected oura connection, ok=%v err=%v", ok, err)
	}
	if ok, _ := store.HasConnection(ctx, "u2", "oura"); ok {
		t.Fatalf("unexpected connection for u2")
	}

	score := func(v float64) *float64 { return &v }
	for i := 0; i < 3; i++ {
		day := time.Date(2025, 3, 8+i, 0, 0, 0, 0, time.UTC)
		if err := store.PutHealthReading(ctx, state.HealthReading{UserID: "u1", Day: day, SleepScore: score(70 + float64(i))}); err != nil {
			t.Fatalf("put reading: %v", err)
		}
	}
	// Re-writing a day replaces the reading.
	if err := store.PutHealthReading(ctx, state.HealthReading{UserID: "u1", Day: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), SleepScore: score(90)}); err != nil {
		t.Fatalf("replace reading: %v", err)
	}

	readings, err := store.HealthReadings(ctx, "u1", time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("health readings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings since Mar 9, got %d", len(readings))
	}
	if readings[0].Day.Day() != 10 || readings[0].SleepScore == nil || *readings[0].SleepScore != 90 {
		t.Fatalf("expected newest replaced reading first, got %+v", readings[0])
	}
	if readings[0].ReadinessScore != nil {
		t.Fatalf("expected nil readiness, got %v", *readings[0].ReadinessScore)
	}
}

func TestStoreImportantDatesAndMemories(t *testing.T) {
	db, closeFn := testutil.OpenTestDB(t)
	defer closeFn()

	store := state.NewStore(db)
	ctx := context.Background()

	couple, err := store.CreateCouple(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("create couple: %v", err)
	}
	if _, err := store.AddImportantDate(ctx, state.ImportantDate{UserID: "u1", Title: "Mom's birthday", Kind: "birthday", Date: time.Date(1960, 6, 2, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("add date: %v", err)
	}
	if _, err := store.AddImportantDate(ctx, state.ImportantDate{UserID: "u2", CoupleID: couple.ID, Title: "Anniversary", Kind: "anniversary", Date: time.Date(2019, 4, 20, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("add date: %v", err)
	}
	if _, err := store.AddImportantDate(ctx, state.ImportantDate{UserID: "u3", Title: "Elsewhere", Date: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("add date: %v", err)
	}

	dates, err := store.ImportantDates(ctx, "u1", couple.ID)
	if err != nil {
		t.Fatalf("important dates: %v", err)
	}
	if len(dates) != 2 {
		t.Fatalf("expected own and shared dates, got %+v", dates)
	}
	own, err := store.ImportantDates(ctx, "u1", "")
	if err != nil || len(own) != 1 {
		t.Fatalf("expected only own date, got %+v err=%v", own, err)
	}

	for _, content := range []string{"Loves hiking", "Collects vinyl", "Allergic to lilies"} {
		if _, err := store.AddMemory(ctx, "u1", content); err != nil {
			t.Fatalf("add memory: %v", err)
		}
	}
	memories, err := store.Memories(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("memories: %v", err)
	}
	if len(memories) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(memories))
	}
}
