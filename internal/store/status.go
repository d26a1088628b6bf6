package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Daemon states persisted in the status row.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// DaemonStatus is the single durable status row external pollers read.
// It is never used for internal control decisions.
type DaemonStatus struct {
	PID         int
	State       string
	CurrentTask string
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertStatus writes the daemon status row on every state transition.
func (s *Store) UpsertStatus(st DaemonStatus) error {
	var current sql.NullString
	if st.CurrentTask != "" {
		current = sql.NullString{String: st.CurrentTask, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO daemon_status (id, pid, state, current_task, started_at, updated_at)
		VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			pid = excluded.pid,
			state = excluded.state,
			current_task = excluded.current_task,
			started_at = excluded.started_at,
			updated_at = CURRENT_TIMESTAMP`,
		st.PID, st.State, current, st.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert daemon status: %w", err)
	}
	return nil
}

// Status reads the daemon status row, or nil when none has been written.
func (s *Store) Status() (*DaemonStatus, error) {
	var st DaemonStatus
	var current sql.NullString
	err := s.db.QueryRow(`
		SELECT pid, state, current_task, started_at, updated_at
		FROM daemon_status WHERE id = 1`).
		Scan(&st.PID, &st.State, &current, &st.StartedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon status: %w", err)
	}
	st.CurrentTask = current.String
	return &st, nil
}
