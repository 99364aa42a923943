package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/oliveapp/olive-agents/internal/schema"
)

const (
	billReminderID       = "smart-bill-reminder"
	defaultBillDaysAhead = 3
)

// billKeywords match whole words, with an optional plural. Service names
// such as water or phone are not keywords on their own: "Phone bill" matches
// through "bill" while "Phone grandma" stays a chore.
var billKeywords = []string{
	"bill", "rent", "invoice", "payment", "pay", "utility", "utilities",
	"insurance", "subscription", "mortgage", "loan", "credit card", "tax",
	"fee", "finance",
}

type BillBucket string

const (
	BucketOverdue  BillBucket = "overdue"
	BucketDueToday BillBucket = "due_today"
	BucketDueSoon  BillBucket = "due_soon"
)

var billSections = []struct {
	bucket  BillBucket
	heading string
}{
	{BucketOverdue, "Overdue"},
	{BucketDueToday, "Due today"},
	{BucketDueSoon, "Coming up"},
}

// BucketForDays classifies a signed calendar-day distance to the due date.
func BucketForDays(daysUntil int) BillBucket {
	switch {
	case daysUntil < 0:
		return BucketOverdue
	case daysUntil == 0:
		return BucketDueToday
	default:
		return BucketDueSoon
	}
}

func isBill(summary, category string) bool {
	words := strings.FieldsFunc(strings.ToLower(summary+" "+category), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return containsPhrase(words, billKeywords)
}

func containsPhrase(words, phrases []string) bool {
	for _, phrase := range phrases {
		parts := strings.Fields(phrase)
		for i := 0; i+len(parts) <= len(words); i++ {
			if matchesWords(words[i:i+len(parts)], parts) {
				return true
			}
		}
	}
	return false
}

// matchesWords compares word by word, allowing a plural on the last one.
func matchesWords(words, parts []string) bool {
	last := len(parts) - 1
	for i, part := range parts {
		w := words[i]
		if w == part {
			continue
		}
		if i == last && (w == part+"s" || w == part+"es") {
			continue
		}
		return false
	}
	return true
}

type BillReminder struct{}

func (BillReminder) Descriptor() Descriptor {
	return Descriptor{SkillID: billReminderID, StateVersion: 1}
}

type billLine struct {
	taskID    string
	summary   string
	due       string
	daysUntil int
	bucket    BillBucket
}

func (BillReminder) Run(ctx context.Context, rc *RunContext) (Outcome, error) {
	daysAhead := rc.Int("days_ahead", defaultBillDaysAhead)
	if daysAhead < 0 {
		daysAhead = defaultBillDaysAhead
	}
	tasks, err := rc.Data.ListTasks(ctx, rc.UserID)
	if err != nil {
		return Outcome{}, upstream("load tasks", err)
	}
	loc := rc.Location(ctx)
	today := rc.Today(ctx)

	var bills []billLine
	for _, task := range tasks {
		if task.Completed || task.DueDate == nil {
			continue
		}
		if !isBill(task.Summary, task.Category) {
			continue
		}
		dueDay := civilDay(*task.DueDate, loc)
		days := daysBetween(today, dueDay)
		if days > daysAhead {
			continue
		}
		bills = append(bills, billLine{
			taskID:    task.ID,
			summary:   task.Summary,
			due:       dueDay.Format(displayDate),
			daysUntil: days,
			bucket:    BucketForDays(days),
		})
	}
	if len(bills) == 0 {
		return Skipped("no upcoming bills"), nil
	}
	sort.SliceStable(bills, func(i, j int) bool {
		if bills[i].daysUntil != bills[j].daysUntil {
			return bills[i].daysUntil < bills[j].daysUntil
		}
		return bills[i].summary < bills[j].summary
	})

	counts := map[BillBucket]int{}
	var sections []string
	for _, section := range billSections {
		var lines []string
		for _, bill := range bills {
			if bill.bucket != section.bucket {
				continue
			}
			lines = append(lines, fmt.Sprintf("• %s — %s", bill.summary, bill.due))
		}
		if len(lines) == 0 {
			continue
		}
		counts[section.bucket] = len(lines)
		sections = append(sections, section.heading+":\n"+strings.Join(lines, "\n"))
	}

	items := make([]map[string]any, 0, len(bills))
	for _, bill := range bills {
		items = append(items, map[string]any{
			"task_id":    bill.taskID,
			"summary":    bill.summary,
			"due":        bill.due,
			"days_until": bill.daysUntil,
			"bucket":     string(bill.bucket),
		})
	}

	priority := schema.PriorityNormal
	if counts[BucketOverdue] > 0 || counts[BucketDueToday] > 0 {
		priority = schema.PriorityHigh
	}
	return Completed(strings.Join(sections, "\n\n"), map[string]any{
		"overdue":   counts[BucketOverdue],
		"due_today": counts[BucketDueToday],
		"due_soon":  counts[BucketDueSoon],
		"bills":     items,
	}).WithNotify(Notification{
		Title:       "Bill reminder",
		MessageType: schema.MessageBillReminder,
		Priority:    priority,
	}), nil
}
