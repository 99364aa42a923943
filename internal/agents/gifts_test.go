package agents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oliveapp/olive-agents/internal/schema"
	"github.com/oliveapp/olive-agents/internal/state"
)

func TestMatchTier(t *testing.T) {
	tiers := []int{30, 14, 7}
	cases := []struct {
		days int
		tier int
		ok   bool
	}{
		{30, 30, true},
		{31, 30, true},
		{29, 30, true},
		{28, 0, false},
		{15, 14, true},
		{8, 7, true},
		{6, 7, true},
		{5, 0, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		tier, ok := matchTier(tc.days, tiers)
		assert.Equal(t, tc.ok, ok, "days=%d", tc.days)
		if tc.ok {
			assert.Equal(t, tc.tier, tier, "days=%d", tc.days)
		}
	}
	assert.Equal(t, []int{30, 14, 7}, normalizeTiers([]int{7, 30, 14, 14, -1}))
	assert.Equal(t, defaultGiftTiers, normalizeTiers(nil))
}

func TestNextOccurrence(t *testing.T) {
	today := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), nextOccurrence(time.Date(1990, 7, 1, 0, 0, 0, 0, time.UTC), today))
	assert.Equal(t, time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC), nextOccurrence(time.Date(1990, 6, 9, 0, 0, 0, 0, time.UTC), today))
	assert.Equal(t, today, nextOccurrence(time.Date(1990, 6, 10, 0, 0, 0, 0, time.UTC), today))
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), nextOccurrence(time.Date(1992, 2, 29, 0, 0, 0, 0, time.UTC), today))
}

func rerunState(t *testing.T, out Outcome) any {
	t.Helper()
	data, err := json.Marshal(out.State)
	require.NoError(t, err)
	var raw json.RawMessage = data
	return raw
}

func TestGiftAgentGeneratesSuggestionsOncePerKey(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, err := store.AddImportantDate(ctx, state.ImportantDate{UserID: "u1", Title: "Sam's birthday", Kind: "birthday", Date: time.Date(1992, 7, 10, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = store.AddMemory(ctx, "u1", "Sam loves pottery")
	require.NoError(t, err)

	llm := &scriptedLLM{replies: []string{`{"suggestions":["Pottery class","Glaze set","Ceramic mug","extra"]}`}}
	day0 := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) // 30 days out

	out, err := GiftAgent{}.Run(ctx, newRunContext(store, llm, "u1", day0, nil, nil))
	require.NoError(t, err)
	require.Equal(t, KindCompleted, out.Kind)
	assert.True(t, out.Notifies())
	assert.Equal(t, schema.MessageGiftReminder, out.Notify.MessageType)
	assert.Equal(t, "Sam's birthday is in 30 days (Thu, Jul 10). A few gift ideas:\n• Pottery class\n• Glaze set\n• Ceramic mug", out.Message)
	require.Equal(t, 1, llm.callCount())
	assert.True(t, llm.calls[0].JSON)
	assert.Contains(t, llm.calls[0].Prompt, "Sam loves pottery")

	st := out.State.(giftState)
	key := "Sam's birthday|2025-07-10"
	assert.Equal(t, []string{"Pottery class", "Glaze set", "Ceramic mug"}, st.Suggestions[key])
	assert.Contains(t, st.Sent, key+"#30")

	// The next daily run is still inside the ±1 window of the same tier.
	next, err := GiftAgent{}.Run(ctx, newRunContext(store, llm, "u1", day0.AddDate(0, 0, 1), nil, rerunState(t, out)))
	require.NoError(t, err)
	assert.Equal(t, KindSkipped, next.Kind)
	assert.Equal(t, "no upcoming dates", next.Message)
	assert.Equal(t, 1, llm.callCount())

	// The 14-day tier is reminder-only.
	closer, err := GiftAgent{}.Run(ctx, newRunContext(store, llm, "u1", day0.AddDate(0, 0, 16), nil, rerunState(t, out)))
	require.NoError(t, err)
	require.Equal(t, KindCompleted, closer.Kind)
	assert.Equal(t, "Reminder: Sam's birthday is in 14 days (Thu, Jul 10).", closer.Message)
	assert.Equal(t, 1, llm.callCount())
	closerState := closer.State.(giftState)
	assert.Contains(t, closerState.Sent, key+"#14")
	assert.Contains(t, closerState.Suggestions, key)
}

func TestGiftAgentReusesStoredSuggestions(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, err := store.AddImportantDate(ctx, state.ImportantDate{UserID: "u1", CoupleID: "c1", Title: "Anniversary", Kind: "anniversary", Date: time.Date(2019, 7, 10, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	prev := giftState{
		Suggestions: map[string][]string{
			"Anniversary|2025-07-10": {"Weekend away"},
			"Old party|2024-01-01":   {"stale"},
		},
		Sent: map[string]string{"Old party|2024-01-01#7": "2023-12-25"},
	}
	llm := &scriptedLLM{}
	rc := newRunContext(store, llm, "u1", time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC), nil, prev)
	rc.CoupleID = "c1"

	out, err := GiftAgent{}.Run(ctx, rc)
	require.NoError(t, err)
	require.Equal(t, KindCompleted, out.Kind)
	assert.Zero(t, llm.callCount())
	assert.Contains(t, out.Message, "• Weekend away")

	st := out.State.(giftState)
	assert.NotContains(t, st.Suggestions, "Old party|2024-01-01")
	assert.NotContains(t, st.Sent, "Old party|2024-01-01#7")
}

func TestGiftAgentNothingUpcoming(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, err := store.AddImportantDate(ctx, state.ImportantDate{UserID: "u1", Title: "Mom's birthday", Date: time.Date(1960, 12, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	out, err := GiftAgent{}.Run(ctx, newRunContext(store, &scriptedLLM{}, "u1", time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC), nil, nil))
	require.NoError(t, err)
	assert.Equal(t, KindSkipped, out.Kind)
	assert.Equal(t, "no upcoming dates", out.Message)
}
