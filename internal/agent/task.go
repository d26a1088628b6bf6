package agent

import (
	"context"
	"time"
)

// RunResult is the recorded outcome of a task's most recent attempt.
type RunResult string

const (
	ResultPending RunResult = "pending"
	ResultSuccess RunResult = "success"
	ResultError   RunResult = "error"
)

// Task describes one registered background task. Descriptors are
// immutable once registered; execution order is registration order.
type Task struct {
	// Name keys the task's configuration: task.<name>.enabled,
	// task.<name>.interval and, for hour-of-day tasks, task.<name>.hour.
	Name        string
	Description string
	// HourOfDay marks a task that runs once per calendar day at its
	// configured local hour, rather than on a rolling interval.
	HourOfDay bool
	// Run performs the work and returns a one-line summary.
	Run func(ctx context.Context, env *Context) (string, error)
}

// RunState is the per-task scheduling state, mutated only by the
// scheduler after an attempt completes.
type RunState struct {
	LastRunAt time.Time `json:"lastRunAt"`
	Result    RunResult `json:"lastResult"`
	LastError string    `json:"lastError,omitempty"`
}

// TaskStatus is the externally visible state of one task.
type TaskStatus struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	LastRunAt   time.Time `json:"lastRunAt"`
	LastResult  RunResult `json:"lastResult"`
	LastError   string    `json:"lastError,omitempty"`
}
