package idgen_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/oliveapp/olive-agents/internal/idgen"
)

func TestNewIsUUIDv7(t *testing.T) {
	id, err := uuid.Parse(idgen.New())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Version() != 7 {
		t.Fatalf("expected v7, got %d", id.Version())
	}
}

func TestSortableIncreases(t *testing.T) {
	a := idgen.Sortable()
	b := idgen.Sortable()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected ulid lengths %d %d", len(a), len(b))
	}
	if a > b {
		t.Fatalf("expected %s <= %s", a, b)
	}
}

func TestValidateSkillID(t *testing.T) {
	valid := []string{
		"a",
		"stale-task-strategist",
		"smart-bill-reminder",
		"weekly-couple-sync",
		"a1",
		"a-b-c",
	}
	for _, id := range valid {
		if err := idgen.ValidateSkillID(id); err != nil {
			t.Errorf("expected %q to be valid, got error: %v", id, err)
		}
	}

	invalid := []string{
		"",
		"-start-dash",
		"end-dash-",
		"1starts-with-digit",
		"UPPERCASE",
		"has spaces",
		"has_underscore",
		"has.dot",
		strings.Repeat("a", 65),
	}
	for _, id := range invalid {
		if err := idgen.ValidateSkillID(id); err == nil {
			t.Errorf("expected %q to be invalid, got nil error", id)
		}
	}
}
