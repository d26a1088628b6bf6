package learning

import (
	"fmt"
	"strings"
)

// stepDeps maps each step to the earlier step whose output its prompt
// requires. A step whose prerequisite is absent from the output map is
// skipped for that iteration.
var stepDeps = map[StepType]StepType{
	StepGapAnalysis: StepInventory,
	StepDeepDive:    StepGapAnalysis,
	StepSynthesis:   StepCrossReference,
	StepQuestions:   StepInventory,
}

// iterateSnippetLen bounds each prior output's contribution to the
// iterate prompt.
const iterateSnippetLen = 600

// buildPrompt assembles the step's prompt from the note context and
// prior step outputs. ok is false when a prerequisite is missing.
func buildPrompt(step StepType, noteContext string, outputs map[StepType]string, depth Depth) (prompt string, ok bool) {
	if dep, hasDep := stepDeps[step]; hasDep {
		if outputs[dep] == "" {
			return "", false
		}
	}

	switch step {
	case StepInventory:
		return "Take inventory of the knowledge base below. List the main topics, how well each is covered, and notable clusters.\n\nRespond as JSON: {\"insights\": [\"...\"]}\n\n" + noteContext, true

	case StepGapAnalysis:
		return "Given this inventory of a knowledge base, identify the most important gaps: topics referenced but not explained, shallow areas, and missing connections.\n\nRespond as JSON: {\"gaps\": [\"...\"], \"insights\": [\"...\"]}\n\nINVENTORY:\n" + outputs[StepInventory], true

	case StepDeepDive:
		return fmt.Sprintf("Pick the most important gaps below and write %s explanatory content filling them. For each, produce a page.\n\nRespond as JSON: {\"generatedContent\": [{\"title\": \"...\", \"blocks\": [\"paragraph\", ...]}]}\n\nGAPS:\n%s", depthAdjective(depth), outputs[StepGapAnalysis]), true

	case StepCrossReference:
		return "Find non-obvious connections between separate topics in this knowledge base. List each as a relation with a short justification.\n\nRespond as JSON: {\"connections\": [\"...\"]}\n\n" + noteContext, true

	case StepSynthesis:
		return "Synthesize the cross-topic connections below into new unified insight pages that tie the threads together.\n\nRespond as JSON: {\"synthPages\": [{\"title\": \"...\", \"blocks\": [\"paragraph\", ...]}]}\n\nCONNECTIONS:\n" + outputs[StepCrossReference], true

	case StepQuestions:
		return "Based on this inventory, pose the open questions the knowledge base cannot yet answer, most important first.\n\nRespond as JSON: {\"questions\": [\"...\"]}\n\nINVENTORY:\n" + outputs[StepInventory], true

	case StepIterate:
		var b strings.Builder
		b.WriteString("Below are the results of one learning pass over a knowledge base. Decide whether another pass would add meaningful value.\n\nRespond as JSON: {\"shouldContinue\": true|false, \"insights\": [\"...\"]}\n")
		for _, prior := range StepOrder {
			if prior == StepIterate {
				continue
			}
			out := outputs[prior]
			if out == "" {
				continue
			}
			b.WriteString(fmt.Sprintf("\n--- %s ---\n%s\n", prior, truncateSnippet(out, iterateSnippetLen)))
		}
		return b.String(), true

	default:
		return "", false
	}
}

// stepSystem returns the system prompt for a step.
func stepSystem(step StepType) string {
	switch step {
	case StepDeepDive, StepSynthesis:
		return "You are a thoughtful writer expanding a personal knowledge base. Always respond with a single JSON object."
	default:
		return "You are an analyst studying a personal knowledge base. Always respond with a single JSON object."
	}
}

// stepTemperature returns the sampling temperature: low for analytical
// steps, high for content creation, mid for cross-referencing.
func stepTemperature(step StepType) float64 {
	switch step {
	case StepDeepDive, StepSynthesis:
		return 0.8
	case StepCrossReference:
		return 0.5
	default:
		return 0.2
	}
}

// stepBudget returns the output-token budget, scaled by depth and
// doubled for the content-creating steps.
func stepBudget(step StepType, depth Depth) int {
	base := 1024
	switch depth {
	case DepthShallow:
		base = 512
	case DepthDeep:
		base = 2048
	}
	if step == StepDeepDive || step == StepSynthesis {
		base *= 2
	}
	return base
}

func depthAdjective(depth Depth) string {
	switch depth {
	case DepthShallow:
		return "brief"
	case DepthDeep:
		return "thorough, detailed"
	default:
		return "solid"
	}
}

func truncateSnippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
