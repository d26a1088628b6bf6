// Package logging provides the daemon's event logger: structured zap
// output plus an append-only durable copy of every event in the store's
// event_log table.
package logging

import (
	"go.uber.org/zap"
)

// Event types recorded by the daemon.
const (
	EventDaemonStart   = "daemon_start"
	EventDaemonStop    = "daemon_stop"
	EventTaskStart     = "task_start"
	EventTaskComplete  = "task_complete"
	EventTaskError     = "task_error"
	EventStepComplete  = "step_complete"
	EventStepError     = "step_error"
	EventFileOp        = "file_op"
	EventFileDenied    = "file_denied"
	EventShellExec     = "shell_exec"
	EventShellDenied   = "shell_denied"
	EventSyncExport    = "sync_export"
	EventSyncImport    = "sync_import"
	EventConfigChange  = "config_change"
	EventLLMFallback   = "llm_fallback"
	EventPanicRecovery = "panic_recovery"
)

// EventSink receives the durable copy of each event. *store.Store
// satisfies it.
type EventSink interface {
	AppendEvent(eventType, taskName string, payload any) error
}

// EventLogger writes each event twice: structured to zap and durably to
// the sink. Sink failures are logged but never propagate; losing a log
// row must not fail the operation being logged.
type EventLogger struct {
	log  *zap.Logger
	sink EventSink
}

// NewEventLogger builds an event logger. A nil sink disables the durable
// copy (used by tests).
func NewEventLogger(log *zap.Logger, sink EventSink) *EventLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventLogger{log: log, sink: sink}
}

// Zap exposes the underlying structured logger for plain log lines.
func (l *EventLogger) Zap() *zap.Logger { return l.log }

// Event records one event. The payload must be JSON-marshalable.
func (l *EventLogger) Event(eventType, taskName string, payload map[string]any) {
	fields := []zap.Field{zap.String("event", eventType)}
	if taskName != "" {
		fields = append(fields, zap.String("task", taskName))
	}
	if payload != nil {
		fields = append(fields, zap.Any("payload", payload))
	}
	l.log.Info("event", fields...)

	if l.sink == nil {
		return
	}
	if err := l.sink.AppendEvent(eventType, taskName, payload); err != nil {
		l.log.Warn("failed to persist event", zap.String("event", eventType), zap.Error(err))
	}
}

// Error records an error-carrying event.
func (l *EventLogger) Error(eventType, taskName string, err error, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	fields := []zap.Field{zap.String("event", eventType), zap.Error(err)}
	if taskName != "" {
		fields = append(fields, zap.String("task", taskName))
	}
	l.log.Warn("event", fields...)

	if l.sink == nil {
		return
	}
	if serr := l.sink.AppendEvent(eventType, taskName, payload); serr != nil {
		l.log.Warn("failed to persist event", zap.String("event", eventType), zap.Error(serr))
	}
}
