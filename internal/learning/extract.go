package learning

import (
	"encoding/json"
	"strings"
)

// PageDraft is one generated page extracted from model output.
type PageDraft struct {
	Title  string
	Blocks []string
}

// Result is the structured content pulled out of one step's raw model
// response.
type Result struct {
	Insights       []string
	Gaps           []string
	Connections    []string
	Questions      []string
	Pages          []PageDraft
	ShouldContinue bool
}

// InsightCount totals every extracted insight-like item.
func (r Result) InsightCount() int {
	return len(r.Insights) + len(r.Gaps) + len(r.Connections) + len(r.Questions)
}

// Heuristic extraction bounds: a plausible single insight line.
const (
	minInsightLen = 20
	maxInsightLen = 300
	maxHeuristic  = 10
)

// rawResult mirrors the JSON shape the step prompts request. The model
// is not contractually obligated to return valid JSON, so every field
// is optional.
type rawResult struct {
	Insights         []string  `json:"insights"`
	Gaps             []string  `json:"gaps"`
	Connections      []string  `json:"connections"`
	Questions        []string  `json:"questions"`
	GeneratedContent []rawPage `json:"generatedContent"`
	SynthPages       []rawPage `json:"synthPages"`
	ShouldContinue   bool      `json:"shouldContinue"`
}

type rawPage struct {
	Title  string   `json:"title"`
	Blocks []string `json:"blocks"`
}

// Extract parses a raw model response: JSON object first, line-based
// heuristics on failure. It never fails; unusable input yields an empty
// result.
func Extract(raw string) Result {
	if r, ok := extractJSON(raw); ok {
		return r
	}
	return Result{Insights: extractLines(raw)}
}

// extractJSON finds the outermost JSON object in the response and
// decodes the well-known fields. Models often wrap JSON in prose or
// code fences, so the object is carved out by brace positions.
func extractJSON(raw string) (Result, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Result{}, false
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return Result{}, false
	}

	result := Result{
		Insights:       cleanList(parsed.Insights),
		Gaps:           cleanList(parsed.Gaps),
		Connections:    cleanList(parsed.Connections),
		Questions:      cleanList(parsed.Questions),
		ShouldContinue: parsed.ShouldContinue,
	}
	for _, p := range append(parsed.GeneratedContent, parsed.SynthPages...) {
		blocks := cleanList(p.Blocks)
		if strings.TrimSpace(p.Title) == "" || len(blocks) == 0 {
			continue
		}
		result.Pages = append(result.Pages, PageDraft{Title: strings.TrimSpace(p.Title), Blocks: blocks})
	}
	return result, true
}

// extractLines is the fallback: split on newlines, strip list markers,
// keep lines whose length looks like a single insight, bounded count.
func extractLines(raw string) []string {
	var insights []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•>0123456789.) ")
		line = strings.TrimSpace(line)
		if len(line) < minInsightLen || len(line) > maxInsightLen {
			continue
		}
		insights = append(insights, line)
		if len(insights) == maxHeuristic {
			break
		}
	}
	return insights
}

func cleanList(items []string) []string {
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}
