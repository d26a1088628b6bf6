package learning

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_PlainJSON(t *testing.T) {
	t.Parallel()
	r := Extract(`{"insights": ["a solid observation here", " padded "], "gaps": ["", "one real gap"]}`)
	assert.Equal(t, []string{"a solid observation here", "padded"}, r.Insights)
	assert.Equal(t, []string{"one real gap"}, r.Gaps)
	assert.Equal(t, 3, r.InsightCount())
	assert.False(t, r.ShouldContinue)
}

func TestExtract_FencedJSON(t *testing.T) {
	t.Parallel()
	raw := "Here is my analysis:\n```json\n{\"shouldContinue\": true, \"insights\": [\"keep going\"]}\n```\nHope this helps!"
	r := Extract(raw)
	assert.True(t, r.ShouldContinue)
	assert.Equal(t, []string{"keep going"}, r.Insights)
}

func TestExtract_Pages(t *testing.T) {
	t.Parallel()
	raw := `{"generatedContent": [
		{"title": "Real Page", "blocks": ["body paragraph"]},
		{"title": "  ", "blocks": ["orphaned"]},
		{"title": "Empty Page", "blocks": []}
	], "synthPages": [{"title": "Synth", "blocks": ["tied together"]}]}`
	r := Extract(raw)
	assert.Len(t, r.Pages, 2)
	assert.Equal(t, "Real Page", r.Pages[0].Title)
	assert.Equal(t, []string{"body paragraph"}, r.Pages[0].Blocks)
	assert.Equal(t, "Synth", r.Pages[1].Title)
}

func TestExtract_HeuristicFallback(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"Here are my findings:",
		"- The first topic lacks any definitions at all",
		"* A second observation worth keeping around",
		"2) Numbered lines are also stripped of their markers",
		"- no", // too short
		"",
	}, "\n")
	r := Extract(raw)
	assert.Equal(t, []string{
		"Here are my findings:",
		"The first topic lacks any definitions at all",
		"A second observation worth keeping around",
		"Numbered lines are also stripped of their markers",
	}, r.Insights)
	assert.Empty(t, r.Pages)
}

func TestExtract_HeuristicBounded(t *testing.T) {
	t.Parallel()
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, "- a plausible insight line that is long enough to count")
	}
	r := Extract(strings.Join(lines, "\n"))
	assert.Len(t, r.Insights, maxHeuristic)
}

func TestExtract_Garbage(t *testing.T) {
	t.Parallel()
	assert.Zero(t, Extract("").InsightCount())
	assert.Zero(t, Extract("ok").InsightCount())
	r := Extract("{not json at all")
	assert.Empty(t, r.Pages)
	assert.False(t, r.ShouldContinue)
}
