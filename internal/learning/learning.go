// Package learning implements the recursive learning protocol: a fixed
// seven-step pipeline run for one or more iterations over the note
// corpus, where later steps consume earlier steps' output and content
// produced in one iteration feeds the next iteration's context.
package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mindvault/internal/llm"
	"mindvault/internal/logging"
	"mindvault/internal/store"
)

// StepType is one stage of the protocol.
type StepType string

const (
	StepInventory      StepType = "inventory"
	StepGapAnalysis    StepType = "gap-analysis"
	StepDeepDive       StepType = "deep-dive"
	StepCrossReference StepType = "cross-reference"
	StepSynthesis      StepType = "synthesis"
	StepQuestions      StepType = "questions"
	StepIterate        StepType = "iterate"
)

// StepOrder is the fixed execution sequence within one iteration.
var StepOrder = []StepType{
	StepInventory,
	StepGapAnalysis,
	StepDeepDive,
	StepCrossReference,
	StepSynthesis,
	StepQuestions,
	StepIterate,
}

// Depth scales how much output each step may produce.
type Depth string

const (
	DepthShallow  Depth = "shallow"
	DepthModerate Depth = "moderate"
	DepthDeep     Depth = "deep"
)

// ParseDepth is lenient: anything unrecognized maps to moderate.
func ParseDepth(s string) Depth {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shallow":
		return DepthShallow
	case "deep":
		return DepthDeep
	default:
		return DepthModerate
	}
}

// NotesWriter is the slice of the data-access façade content-creating
// steps use. *store.Store satisfies it.
type NotesWriter interface {
	CreatePage(p *store.Page, blocks []store.Block) error
}

// Options configure one session.
type Options struct {
	Corpus        string
	MaxIterations int
	Depth         Depth
}

// Outcome summarizes one session.
type Outcome struct {
	Iterations   int
	Insights     int
	PagesCreated int
}

// Summary renders the human-readable task result line.
func (o Outcome) Summary() string {
	return fmt.Sprintf("completed %d iteration(s): %d insight(s), %d page(s) created",
		o.Iterations, o.Insights, o.PagesCreated)
}

// Runner executes learning sessions.
type Runner struct {
	client   llm.Client
	notes    NotesWriter
	events   *logging.EventLogger
	vaultID  string
	taskName string
}

// NewRunner builds a session runner.
func NewRunner(client llm.Client, notes NotesWriter, events *logging.EventLogger, vaultID, taskName string) *Runner {
	return &Runner{client: client, notes: notes, events: events, vaultID: vaultID, taskName: taskName}
}

// Run executes up to opts.MaxIterations full passes through the step
// sequence. A step's failure never ends the session; failures degrade to
// zero insights for that step and the loop moves on.
func (r *Runner) Run(ctx context.Context, opts Options) (Outcome, error) {
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	if opts.Depth == "" {
		opts.Depth = DepthModerate
	}

	var outcome Outcome
	// accumulator carries all generated content across iterations so
	// each pass can build on the previous one.
	var accumulator strings.Builder

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		outcome.Iterations = iteration

		noteContext := opts.Corpus
		if accumulator.Len() > 0 {
			noteContext += "\n\n=== CONTENT GENERATED IN PREVIOUS PASSES ===\n" + accumulator.String()
		}

		// Outputs reset per iteration so stale dependencies cannot
		// leak across passes.
		outputs := make(map[StepType]string, len(StepOrder))
		shouldContinue := false

		for _, step := range StepOrder {
			if err := ctx.Err(); err != nil {
				return outcome, err
			}

			prompt, ok := buildPrompt(step, noteContext, outputs, opts.Depth)
			if !ok {
				r.events.Zap().Debug("step skipped, prerequisite missing",
					zap.String("step", string(step)), zap.Int("iteration", iteration))
				continue
			}

			raw, err := r.client.CompleteWithOptions(ctx, llm.Request{
				System:      stepSystem(step),
				Prompt:      prompt,
				Temperature: stepTemperature(step),
				MaxTokens:   stepBudget(step, opts.Depth),
			})
			if err != nil {
				r.events.Error(logging.EventStepError, r.taskName, err, map[string]any{
					"step": string(step), "iteration": iteration,
				})
				continue
			}
			outputs[step] = raw

			result := Extract(raw)
			outcome.Insights += result.InsightCount()

			if step == StepDeepDive || step == StepSynthesis {
				created := r.persistPages(step, result.Pages, &accumulator)
				outcome.PagesCreated += created
			}
			if step == StepIterate {
				shouldContinue = result.ShouldContinue
			}

			r.events.Event(logging.EventStepComplete, r.taskName, map[string]any{
				"step":      string(step),
				"iteration": iteration,
				"insights":  result.InsightCount(),
				"pages":     len(result.Pages),
			})
		}

		if !shouldContinue || iteration >= opts.MaxIterations {
			return outcome, nil
		}
	}
}

// persistPages stores each extracted page with its blocks and appends
// the same content to the accumulator for the next iteration.
func (r *Runner) persistPages(step StepType, pages []PageDraft, accumulator *strings.Builder) int {
	created := 0
	for _, draft := range pages {
		if strings.TrimSpace(draft.Title) == "" || len(draft.Blocks) == 0 {
			continue
		}
		page := &store.Page{
			ID:      uuid.NewString(),
			VaultID: r.vaultID,
			Title:   draft.Title,
			Tags:    []string{"auto-generated", string(step)},
			Properties: map[string]string{
				"origin": string(step),
			},
		}
		blocks := make([]store.Block, 0, len(draft.Blocks))
		for i, text := range draft.Blocks {
			blocks = append(blocks, store.Block{
				ID:      uuid.NewString(),
				PageID:  page.ID,
				Type:    store.BlockParagraph,
				Content: text,
				SortKey: fmt.Sprintf("a%06d", i),
			})
		}
		if err := r.notes.CreatePage(page, blocks); err != nil {
			r.events.Error(logging.EventStepError, r.taskName, err, map[string]any{
				"step": string(step), "page": draft.Title,
			})
			continue
		}
		created++

		accumulator.WriteString("\n## " + draft.Title + "\n")
		for _, text := range draft.Blocks {
			accumulator.WriteString(text + "\n")
		}
	}
	return created
}
