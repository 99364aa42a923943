package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityUrgent, ParsePriority(" URGENT "))
	assert.Equal(t, PriorityNormal, ParsePriority("medium"))
	assert.Equal(t, PriorityNormal, ParsePriority("whatever"))
	assert.True(t, PriorityHigh.Pushes())
	assert.False(t, PriorityLow.Pushes())
	assert.Less(t, PriorityUrgent.Rank(), PriorityLow.Rank())
}

func TestGetters(t *testing.T) {
	m := map[string]any{
		"yaml":   14,
		"json":   float64(7),
		"number": json.Number("3"),
		"text":   "5",
		"flag":   "true",
		"name":   "all",
		"tiers":  []any{float64(30), 14, json.Number("7")},
		"bad":    []any{"x"},
	}
	assert.Equal(t, 14, GetInt(m, "yaml", 0))
	assert.Equal(t, 7, GetInt(m, "json", 0))
	assert.Equal(t, 3, GetInt(m, "number", 0))
	assert.Equal(t, 5, GetInt(m, "text", 0))
	assert.Equal(t, 9, GetInt(m, "missing", 9))
	assert.Equal(t, 9, GetInt(nil, "yaml", 9))
	assert.True(t, GetBool(m, "flag", false))
	assert.Equal(t, "all", GetString(m, "name"))
	assert.Equal(t, "", GetString(m, "yaml"))
	assert.Equal(t, []int{30, 14, 7}, GetIntSlice(m, "tiers", nil))
	assert.Equal(t, []int{1}, GetIntSlice(m, "bad", []int{1}))
	assert.Equal(t, []int{1}, GetIntSlice(m, "missing", []int{1}))
}
