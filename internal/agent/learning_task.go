package agent

import (
	"context"

	"mindvault/internal/learning"
)

// learningCorpusBudget is larger than the thin tasks' budget because
// the protocol leans on the corpus for every analytical step.
const learningCorpusBudget = 48 * 1024

// NewLearningTask builds the recursive-learning task descriptor.
func NewLearningTask() *Task {
	return &Task{
		Name:        "recursive-learning",
		Description: "Multi-pass learning protocol over the knowledge base",
		Run:         runRecursiveLearning,
	}
}

func runRecursiveLearning(ctx context.Context, env *Context) (string, error) {
	corpus, err := env.BuildCorpus(learningCorpusBudget)
	if err != nil {
		return "", err
	}

	client, err := env.LLM(ctx)
	if err != nil {
		return "", err
	}

	runner := learning.NewRunner(client, env.Notes, env.Events, env.VaultID(), "recursive-learning")
	outcome, err := runner.Run(ctx, learning.Options{
		Corpus:        corpus,
		MaxIterations: env.Settings.GetInt("learning.max_iterations"),
		Depth:         learning.ParseDepth(env.Settings.GetString("learning.depth")),
	})
	if err != nil {
		return "", err
	}
	return outcome.Summary(), nil
}
