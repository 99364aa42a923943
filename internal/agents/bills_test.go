package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oliveapp/olive-agents/internal/schema"
	"github.com/oliveapp/olive-agents/internal/state"
)

func TestBucketForDays(t *testing.T) {
	assert.Equal(t, BucketOverdue, BucketForDays(-3))
	assert.Equal(t, BucketOverdue, BucketForDays(-1))
	assert.Equal(t, BucketDueToday, BucketForDays(0))
	assert.Equal(t, BucketDueSoon, BucketForDays(1))
	assert.Equal(t, BucketDueSoon, BucketForDays(3))
}

func TestBillReminderRentDueInTwoDays(t *testing.T) {
	store := newStore(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mustTask(t, store, state.Task{
		UserID:   "u1",
		Summary:  "Pay rent",
		Category: "finance",
		DueDate:  ptrTime(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)),
	})

	out, err := BillReminder{}.Run(context.Background(), newRunContext(store, nil, "u1", now, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, KindCompleted, out.Kind)
	assert.True(t, out.Success())
	assert.True(t, out.Notifies())
	assert.Equal(t, "Coming up:\n• Pay rent — Wed, Mar 12", out.Message)
	assert.Equal(t, 1, out.Data["due_soon"])
	assert.Equal(t, schema.MessageBillReminder, out.Notify.MessageType)
	assert.Equal(t, AudienceUser, out.Notify.Audience)
}

func TestBillReminderSections(t *testing.T) {
	store := newStore(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		return ptrTime(time.Date(2025, 3, 10+offset, 18, 0, 0, 0, time.UTC))
	}
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Electric bill", DueDate: day(-2)})
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Car insurance", DueDate: day(0)})
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Netflix", Category: "subscription", DueDate: day(1)})
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Water utility", DueDate: day(5)})
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Buy flowers", DueDate: day(1)})
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Pay loan", Completed: true, DueDate: day(1)})
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Tax paperwork"})

	out, err := BillReminder{}.Run(context.Background(), newRunContext(store, nil, "u1", now, nil, nil))
	require.NoError(t, err)
	require.Equal(t, KindCompleted, out.Kind)

	expected := "Overdue:\n• Electric bill — Sat, Mar 8\n\n" +
		"Due today:\n• Car insurance — Mon, Mar 10\n\n" +
		"Coming up:\n• Netflix — Tue, Mar 11"
	assert.Equal(t, expected, out.Message)
	assert.Equal(t, schema.PriorityHigh, out.Notify.Priority)

	// A wider window picks up the utility bill.
	wide, err := BillReminder{}.Run(context.Background(), newRunContext(store, nil, "u1", now, map[string]any{"days_ahead": float64(7)}, nil))
	require.NoError(t, err)
	assert.Contains(t, wide.Message, "• Water utility — Sat, Mar 15")
}

func TestBillReminderUsesProfileTimezone(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.UpsertProfile(context.Background(), state.Profile{UserID: "u1", Timezone: "America/Los_Angeles"}))
	// 03:00 UTC on Mar 11 is still Mar 10 in Los Angeles.
	now := time.Date(2025, 3, 11, 3, 0, 0, 0, time.UTC)
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Rent", DueDate: ptrTime(time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC))})

	out, err := BillReminder{}.Run(context.Background(), newRunContext(store, nil, "u1", now, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "Due today:\n• Rent — Mon, Mar 10", out.Message)
}

func TestBillReminderNothingDue(t *testing.T) {
	store := newStore(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mustTask(t, store, state.Task{UserID: "u1", Summary: "Walk the dog", DueDate: ptrTime(now)})

	out, err := BillReminder{}.Run(context.Background(), newRunContext(store, nil, "u1", now, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, KindSkipped, out.Kind)
	assert.Equal(t, "no upcoming bills", out.Message)
	assert.False(t, out.Notifies())
}

func TestBillReminderIgnoresLookalikeWords(t *testing.T) {
	store := newStore(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tomorrow := ptrTime(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC))
	for _, summary := range []string{"Buy coffee beans", "Book taxi to airport", "Water the plants", "Phone grandma", "Repaint the fence"} {
		mustTask(t, store, state.Task{UserID: "u1", Summary: summary, DueDate: tomorrow})
	}

	out, err := BillReminder{}.Run(context.Background(), newRunContext(store, nil, "u1", now, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, KindSkipped, out.Kind)
	assert.False(t, out.Notifies())
}

func TestIsBillWordMatching(t *testing.T) {
	cases := []struct {
		summary, category string
		want              bool
	}{
		{"Phone bill", "", true},
		{"Pay water", "", true},
		{"Parking fees", "", true},
		{"Taxes", "", true},
		{"Credit card statement", "", true},
		{"Card for mom", "", false},
		{"Call about credit", "", false},
		{"Netflix", "Subscriptions", true},
		{"Coffee", "", false},
		{"Taxi", "", false},
		{"Internet router reset", "home", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isBill(tc.summary, tc.category), "%q/%q", tc.summary, tc.category)
	}
}
