package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindvault/internal/llm"
	"mindvault/internal/logging"
	"mindvault/internal/store"
)

// scriptedClient answers each step from a per-step script. A missing
// entry fails the call, exercising the degrade-and-continue path.
type scriptedClient struct {
	responses map[StepType]string
	calls     []StepType

	// iterate answers are consumed in order across iterations.
	iterateAnswers []string
	iterateIdx     int
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) CompleteWithOptions(ctx context.Context, req llm.Request) (string, error) {
	step := stepForRequest(req)
	c.calls = append(c.calls, step)
	if step == StepIterate && len(c.iterateAnswers) > 0 {
		answer := c.iterateAnswers[len(c.iterateAnswers)-1]
		if c.iterateIdx < len(c.iterateAnswers) {
			answer = c.iterateAnswers[c.iterateIdx]
		}
		c.iterateIdx++
		return answer, nil
	}
	resp, ok := c.responses[step]
	if !ok {
		return "", fmt.Errorf("no scripted response for %s", step)
	}
	return resp, nil
}

// stepForRequest reverse-maps a request to its step by prompt markers.
func stepForRequest(req llm.Request) StepType {
	markers := map[StepType]string{
		StepInventory:      "Take inventory",
		StepGapAnalysis:    "identify the most important gaps",
		StepDeepDive:       "Pick the most important gaps",
		StepCrossReference: "non-obvious connections",
		StepSynthesis:      "Synthesize the cross-topic connections",
		StepQuestions:      "pose the open questions",
		StepIterate:        "Decide whether another pass",
	}
	for step, marker := range markers {
		if strings.Contains(req.Prompt, marker) {
			return step
		}
	}
	return StepType("unknown")
}

type pageRecorder struct {
	pages []store.Page
	fail  bool
}

func (p *pageRecorder) CreatePage(page *store.Page, blocks []store.Block) error {
	if p.fail {
		return errors.New("store unavailable")
	}
	p.pages = append(p.pages, *page)
	return nil
}

func fullScript() map[StepType]string {
	return map[StepType]string{
		StepInventory:      `{"insights": ["topic A is well covered", "topic B appears in three notes"]}`,
		StepGapAnalysis:    `{"gaps": ["topic B is never defined precisely"], "insights": []}`,
		StepDeepDive:       `{"generatedContent": [{"title": "Topic B Fundamentals", "blocks": ["Topic B is the study of B.", "It relates to A."]}]}`,
		StepCrossReference: `{"connections": ["A and B share a common foundation in C"]}`,
		StepSynthesis:      `{"synthPages": [{"title": "Unifying A and B", "blocks": ["Both reduce to C."]}]}`,
		StepQuestions:      `{"questions": ["How does C generalize beyond A and B?"]}`,
	}
}

func newTestRunner(client llm.Client, notes NotesWriter) *Runner {
	return NewRunner(client, notes, logging.NewEventLogger(nil, nil), "default", "recursive-learning")
}

func TestRun_SinglePass(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		responses:      fullScript(),
		iterateAnswers: []string{`{"shouldContinue": false}`},
	}
	recorder := &pageRecorder{}
	runner := newTestRunner(client, recorder)

	outcome, err := runner.Run(context.Background(), Options{Corpus: "## Notes\ncontent", MaxIterations: 3})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Iterations)
	// 2 inventory + 1 gap + 1 connection + 1 question = 5.
	assert.Equal(t, 5, outcome.Insights)
	assert.Equal(t, 2, outcome.PagesCreated)

	require.Len(t, recorder.pages, 2)
	assert.Equal(t, "Topic B Fundamentals", recorder.pages[0].Title)
	assert.Contains(t, recorder.pages[0].Tags, "auto-generated")
	assert.Contains(t, recorder.pages[0].Tags, "deep-dive")
	assert.Equal(t, "Unifying A and B", recorder.pages[1].Title)

	// All seven steps ran, in order.
	assert.Equal(t, []StepType(StepOrder), client.calls)
}

func TestRun_StopsAtMaxIterations(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		responses: fullScript(),
		iterateAnswers: []string{
			`{"shouldContinue": true}`,
			`{"shouldContinue": true}`,
			`{"shouldContinue": true}`,
		},
	}
	runner := newTestRunner(client, &pageRecorder{})

	outcome, err := runner.Run(context.Background(), Options{Corpus: "notes", MaxIterations: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Iterations)
	assert.Equal(t, len(StepOrder)*3, len(client.calls))
}

func TestRun_ContinuesThenStops(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		responses: fullScript(),
		iterateAnswers: []string{
			`{"shouldContinue": true}`,
			`{"shouldContinue": false}`,
		},
	}
	runner := newTestRunner(client, &pageRecorder{})

	outcome, err := runner.Run(context.Background(), Options{Corpus: "notes", MaxIterations: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Iterations)
}

func TestRun_UnparseableIterateStops(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		responses:      fullScript(),
		iterateAnswers: []string{"I think we should definitely keep going!"},
	}
	runner := newTestRunner(client, &pageRecorder{})

	outcome, err := runner.Run(context.Background(), Options{Corpus: "notes", MaxIterations: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Iterations, "a continue signal that cannot be parsed must not extend the session")
}

func TestRun_DependentStepsSkippedOnFailure(t *testing.T) {
	t.Parallel()
	// No inventory response: the call fails, so gap-analysis, deep-dive,
	// and questions have no prerequisite and are skipped entirely.
	script := fullScript()
	delete(script, StepInventory)
	delete(script, StepGapAnalysis)
	delete(script, StepDeepDive)
	delete(script, StepQuestions)
	client := &scriptedClient{
		responses:      script,
		iterateAnswers: []string{`{"shouldContinue": false}`},
	}
	recorder := &pageRecorder{}
	runner := newTestRunner(client, recorder)

	outcome, err := runner.Run(context.Background(), Options{Corpus: "notes", MaxIterations: 1})
	require.NoError(t, err)

	// inventory (failed), cross-reference, synthesis, iterate.
	assert.Equal(t, []StepType{StepInventory, StepCrossReference, StepSynthesis, StepIterate}, client.calls)
	// 1 connection; the failed inventory contributes nothing.
	assert.Equal(t, 1, outcome.Insights)
	assert.Equal(t, 1, outcome.PagesCreated)
}

func TestRun_PageStoreFailureDoesNotEndSession(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		responses:      fullScript(),
		iterateAnswers: []string{`{"shouldContinue": false}`},
	}
	runner := newTestRunner(client, &pageRecorder{fail: true})

	outcome, err := runner.Run(context.Background(), Options{Corpus: "notes", MaxIterations: 1})
	require.NoError(t, err)
	assert.Zero(t, outcome.PagesCreated)
	assert.Equal(t, 1, outcome.Iterations)
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := newTestRunner(&scriptedClient{responses: fullScript()}, &pageRecorder{})

	_, err := runner.Run(ctx, Options{Corpus: "notes", MaxIterations: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_SecondIterationSeesAccumulatedContent(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		responses: fullScript(),
		iterateAnswers: []string{
			`{"shouldContinue": true}`,
			`{"shouldContinue": false}`,
		},
	}
	capture := &promptCapture{inner: client}
	runner := newTestRunner(capture, &pageRecorder{})

	_, err := runner.Run(context.Background(), Options{Corpus: "base corpus", MaxIterations: 2})
	require.NoError(t, err)

	first := capture.inventoryPrompts[0]
	second := capture.inventoryPrompts[1]
	assert.NotContains(t, first, "CONTENT GENERATED IN PREVIOUS PASSES")
	assert.Contains(t, second, "CONTENT GENERATED IN PREVIOUS PASSES")
	assert.Contains(t, second, "Topic B Fundamentals")
}

type promptCapture struct {
	inner            llm.Client
	inventoryPrompts []string
}

func (p *promptCapture) Complete(ctx context.Context, prompt string) (string, error) {
	return p.inner.Complete(ctx, prompt)
}

func (p *promptCapture) Name() string { return p.inner.Name() }

func (p *promptCapture) CompleteWithOptions(ctx context.Context, req llm.Request) (string, error) {
	if stepForRequest(req) == StepInventory {
		p.inventoryPrompts = append(p.inventoryPrompts, req.Prompt)
	}
	return p.inner.CompleteWithOptions(ctx, req)
}

func TestParseDepth(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DepthShallow, ParseDepth("shallow"))
	assert.Equal(t, DepthDeep, ParseDepth(" DEEP "))
	assert.Equal(t, DepthModerate, ParseDepth("moderate"))
	assert.Equal(t, DepthModerate, ParseDepth("bogus"))
	assert.Equal(t, DepthModerate, ParseDepth(""))
}

func TestStepBudget(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 512, stepBudget(StepInventory, DepthShallow))
	assert.Equal(t, 1024, stepBudget(StepInventory, DepthModerate))
	assert.Equal(t, 2048, stepBudget(StepInventory, DepthDeep))
	assert.Equal(t, 4096, stepBudget(StepDeepDive, DepthDeep))
	assert.Equal(t, 2048, stepBudget(StepSynthesis, DepthModerate))
}
