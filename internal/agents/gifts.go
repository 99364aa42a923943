package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oliveapp/olive-agents/internal/ai"
	"github.com/oliveapp/olive-agents/internal/prompt"
	"github.com/oliveapp/olive-agents/internal/schema"
	"github.com/oliveapp/olive-agents/internal/state"
)

const (
	giftAgentID       = "birthday-gift-agent"
	giftSuggestions   = 3
	giftMemoryContext = 10
	giftTierSlack     = 1
)

var defaultGiftTiers = []int{30, 14, 7}

type GiftAgent struct{}

func (GiftAgent) Descriptor() Descriptor {
	return Descriptor{SkillID: giftAgentID, StateVersion: 1}
}

// giftState is keyed by "title|YYYY-MM-DD" of the upcoming occurrence.
// Sent entries are "key#tier" -> day sent.
type giftState struct {
	Suggestions map[string][]string `json:"suggestions,omitempty"`
	Sent        map[string]string   `json:"sent,omitempty"`
}

type dueDate struct {
	key   string
	date  state.ImportantDate
	next  time.Time
	days  int
	tier  int
	first bool
}

func (GiftAgent) Run(ctx context.Context, rc *RunContext) (Outcome, error) {
	tiers := normalizeTiers(rc.Ints("reminder_days", defaultGiftTiers))
	furthest := tiers[0]

	var st giftState
	if err := rc.DecodeState(&st); err != nil {
		rc.Logger.Warn().Err(err).Msg("ignoring unreadable gift state")
		st = giftState{}
	}
	if st.Suggestions == nil {
		st.Suggestions = map[string][]string{}
	}
	if st.Sent == nil {
		st.Sent = map[string]string{}
	}

	coupleID := rc.CoupleID
	if coupleID == "" {
		couple, ok, err := rc.Couple(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			coupleID = couple.ID
		}
	}
	dates, err := rc.Data.ImportantDates(ctx, rc.UserID, coupleID)
	if err != nil {
		return Outcome{}, upstream("load important dates", err)
	}

	today := rc.Today(ctx)
	pruneGiftState(&st, today)

	var due []dueDate
	for _, d := range dates {
		next := nextOccurrence(d.Date, today)
		days := daysBetween(today, next)
		tier, ok := matchTier(days, tiers)
		if !ok {
			continue
		}
		key := giftKey(d.Title, next)
		if _, sent := st.Sent[sentKey(key, tier)]; sent {
			continue
		}
		due = append(due, dueDate{key: key, date: d, next: next, days: days, tier: tier, first: tier == furthest})
	}
	if len(due) == 0 {
		return Skipped("no upcoming dates"), nil
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].days < due[j].days })

	var memories []string
	var sections []string
	var items []map[string]any
	priority := schema.PriorityNormal
	generated := 0
	for _, d := range due {
		when := d.next.Format(displayDate)
		var section string
		if d.first {
			ideas, ok := st.Suggestions[d.key]
			if !ok {
				if memories == nil {
					memories, err = giftMemories(ctx, rc)
					if err != nil {
						return Outcome{}, err
					}
				}
				ideas, err = suggestGifts(ctx, rc, d, memories)
				if err != nil {
					return Outcome{}, err
				}
				st.Suggestions[d.key] = ideas
				generated++
			}
			section = fmt.Sprintf("%s is in %d days (%s). A few gift ideas:", d.date.Title, d.days, when)
			for _, idea := range ideas {
				section += "\n• " + idea
			}
		} else {
			section = fmt.Sprintf("Reminder: %s is in %d days (%s).", d.date.Title, d.days, when)
			if d.tier <= 7 {
				section += " Time to lock in plans and order anything you need."
				priority = schema.PriorityHigh
			}
		}
		sections = append(sections, section)
		st.Sent[sentKey(d.key, d.tier)] = today.Format(state.DayLayout)
		items = append(items, map[string]any{
			"title":      d.date.Title,
			"date":       d.next.Format(state.DayLayout),
			"days_until": d.days,
			"tier":       d.tier,
		})
	}

	return Completed(strings.Join(sections, "\n\n"), map[string]any{
		"dates":                 items,
		"suggestions_generated": generated,
	}).WithNotify(Notification{
		Title:       "Upcoming special dates",
		MessageType: schema.MessageGiftReminder,
		Priority:    priority,
	}).WithState(st), nil
}

func suggestGifts(ctx context.Context, rc *RunContext, d dueDate, memories []string) ([]string, error) {
	b := prompt.NewBuilder()
	b.Addf("instructions", prompt.PriorityInstructions,
		"Suggest exactly %d thoughtful, specific gift ideas for %q (%s) on %s. Each idea under 20 words.",
		giftSuggestions, d.date.Title, nonEmpty(d.date.Kind, "special date"), d.next.Format(displayDate))
	b.Section("memories", prompt.PriorityContext, "Things we know about them", memories)
	b.Add(prompt.Block{ID: "format", Priority: prompt.PriorityData, Content: `Respond with JSON: {"suggestions":["...","...","..."]}`})

	var reply struct {
		Suggestions []string `json:"suggestions"`
	}
	err := rc.generateJSON(ctx, ai.Request{
		System:      "You are a considerate gift advisor for couples.",
		Prompt:      b.Build(),
		Temperature: 0.8,
		MaxTokens:   500,
	}, &reply)
	if err != nil {
		return nil, err
	}
	var ideas []string
	for _, idea := range reply.Suggestions {
		idea = strings.TrimSpace(idea)
		if idea == "" {
			continue
		}
		ideas = append(ideas, idea)
		if len(ideas) == giftSuggestions {
			break
		}
	}
	return ideas, nil
}

func giftMemories(ctx context.Context, rc *RunContext) ([]string, error) {
	rows, err := rc.Data.Memories(ctx, rc.UserID, giftMemoryContext)
	if err != nil {
		return nil, upstream("load memories", err)
	}
	out := make([]string, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.Content)
	}
	return out, nil
}

// matchTier returns the tier closest to days within the slack window.
func matchTier(days int, tiers []int) (int, bool) {
	best, bestDist := 0, giftTierSlack+1
	for _, tier := range tiers {
		dist := days - tier
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = tier, dist
		}
	}
	return best, bestDist <= giftTierSlack
}

// normalizeTiers sorts tiers descending and drops non-positive and
// duplicate values.
func normalizeTiers(tiers []int) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, t := range tiers {
		if t <= 0 {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		out = append(out, defaultGiftTiers...)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func giftKey(title string, next time.Time) string {
	return strings.TrimSpace(title) + "|" + next.Format(state.DayLayout)
}

func sentKey(key string, tier int) string {
	return fmt.Sprintf("%s#%d", key, tier)
}

// pruneGiftState drops entries for occurrences that are already past.
func pruneGiftState(st *giftState, today time.Time) {
	past := func(key string) bool {
		if i := strings.LastIndex(key, "#"); i >= 0 {
			key = key[:i]
		}
		i := strings.LastIndex(key, "|")
		if i < 0 {
			return true
		}
		day, err := time.Parse(state.DayLayout, key[i+1:])
		return err != nil || day.Before(today)
	}
	for key := range st.Suggestions {
		if past(key) {
			delete(st.Suggestions, key)
		}
	}
	for key := range st.Sent {
		if past(key) {
			delete(st.Sent, key)
		}
	}
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
