package agent

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"mindvault/internal/logging"
	"mindvault/internal/store"
)

// Scheduler runs registered tasks strictly serially. Once per tick it
// finds at most one due task and runs it to completion; the shared
// language-model resource must never be contended, so tasks never
// overlap.
type Scheduler struct {
	env *Context

	mu      sync.Mutex
	tasks   []*Task
	states  map[string]*RunState
	current string
	inRun   bool
	running bool

	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	// now is a test seam.
	now func() time.Time
}

// NewScheduler builds a scheduler over the shared context.
func NewScheduler(env *Context) *Scheduler {
	return &Scheduler{
		env:    env,
		states: make(map[string]*RunState),
		now:    time.Now,
	}
}

// Register appends a task. Registration order is execution order.
// Registering after Start is not supported.
func (s *Scheduler) Register(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	s.states[t.Name] = &RunState{Result: ResultPending}
}

// Start launches the tick loop and fires one tick immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.startedAt = s.now()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.persistStatus(store.StateRunning, "")
	s.env.Events.Event(logging.EventDaemonStart, "", map[string]any{"pid": os.Getpid()})

	go s.loop(runCtx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.tick(ctx)

	interval := time.Duration(s.env.Settings.GetInt("scheduler.tick_seconds")) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop halts the tick loop, requests cancellation of in-flight work,
// and persists the stopped state. It waits up to the configured grace
// period for an in-flight task to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(s.env.Config.ShutdownGrace):
		s.env.Events.Zap().Warn("task did not stop within grace period")
	}

	s.persistStatus(store.StateStopped, "")
	s.env.Events.Event(logging.EventDaemonStop, "", nil)
}

// Running reports whether the tick loop is live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CurrentTask returns the name of the task executing now, or "".
func (s *Scheduler) CurrentTask() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// StartedAt returns when the scheduler started.
func (s *Scheduler) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Snapshot returns every task's externally visible state, in
// registration order.
func (s *Scheduler) Snapshot() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		st := s.states[t.Name]
		out = append(out, TaskStatus{
			Name:        t.Name,
			Description: t.Description,
			LastRunAt:   st.LastRunAt,
			LastResult:  st.Result,
			LastError:   st.LastError,
		})
	}
	return out
}

// tick runs at most one due task. A tick that arrives while a task is
// executing is a no-op.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.inRun {
		s.mu.Unlock()
		return
	}
	task := s.findDueLocked()
	if task == nil {
		s.mu.Unlock()
		return
	}
	s.inRun = true
	s.current = task.Name
	s.mu.Unlock()

	s.runTask(ctx, task)

	s.mu.Lock()
	s.inRun = false
	s.current = ""
	s.mu.Unlock()
	s.persistStatus(store.StateRunning, "")
}

// findDueLocked scans tasks in registration order and returns the first
// due one. Caller holds s.mu.
func (s *Scheduler) findDueLocked() *Task {
	now := s.now()
	for _, t := range s.tasks {
		if !s.env.Settings.GetBool("task." + t.Name + ".enabled") {
			continue
		}
		interval := s.env.Settings.GetMinutes("task." + t.Name + ".interval")
		if interval <= 0 {
			continue
		}
		st := s.states[t.Name]
		if !st.LastRunAt.IsZero() && now.Sub(st.LastRunAt) <= interval {
			continue
		}
		if t.HourOfDay {
			hour := s.env.Settings.GetInt("task." + t.Name + ".hour")
			if now.Hour() != hour {
				continue
			}
			if sameDay(st.LastRunAt, now) {
				continue
			}
		}
		return t
	}
	return nil
}

// runTask executes one task with crash isolation: a panic or error is
// recorded in the task's run state and never escapes to the scheduler.
func (s *Scheduler) runTask(ctx context.Context, t *Task) {
	s.persistStatus(store.StateRunning, t.Name)
	s.env.Events.Event(logging.EventTaskStart, t.Name, nil)
	start := s.now()

	summary, err := s.invoke(ctx, t)

	s.mu.Lock()
	st := s.states[t.Name]
	st.LastRunAt = s.now()
	if err != nil {
		st.Result = ResultError
		st.LastError = err.Error()
	} else {
		st.Result = ResultSuccess
		st.LastError = ""
	}
	s.mu.Unlock()

	duration := s.now().Sub(start)
	if err != nil {
		s.env.Events.Error(logging.EventTaskError, t.Name, err, map[string]any{
			"durationMs": duration.Milliseconds(),
		})
		return
	}
	s.env.Events.Event(logging.EventTaskComplete, t.Name, map[string]any{
		"summary":    summary,
		"durationMs": duration.Milliseconds(),
	})
}

// invoke calls the task body, converting panics into errors.
func (s *Scheduler) invoke(ctx context.Context, t *Task) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			s.env.Events.Zap().Error("task panic recovered",
				zap.String("task", t.Name), zap.Any("panic", r))
		}
	}()
	return t.Run(ctx, s.env)
}

func (s *Scheduler) persistStatus(state, currentTask string) {
	err := s.env.Status.UpsertStatus(store.DaemonStatus{
		PID:         os.Getpid(),
		State:       state,
		CurrentTask: currentTask,
		StartedAt:   s.StartedAt(),
	})
	if err != nil {
		s.env.Events.Zap().Warn("failed to persist daemon status", zap.Error(err))
	}
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
