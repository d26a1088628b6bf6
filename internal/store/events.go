package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one durable, append-only event log row.
type Event struct {
	ID        int64           `json:"id"`
	Type      string          `json:"eventType"`
	TaskName  string          `json:"taskName,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AppendEvent writes one event row. The payload is marshaled to JSON;
// a payload that cannot be marshaled degrades to an empty object rather
// than losing the event.
func (s *Store) AppendEvent(eventType, taskName string, payload any) error {
	raw := []byte("{}")
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	var task sql.NullString
	if taskName != "" {
		task = sql.NullString{String: taskName, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO event_log (event_type, task_name, payload, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		eventType, task, string(raw))
	if err != nil {
		return fmt.Errorf("failed to append event %q: %w", eventType, err)
	}
	return nil
}

// RecentEvents returns up to limit rows, newest first.
func (s *Store) RecentEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, event_type, task_name, payload, created_at
		FROM event_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var task sql.NullString
		var payload string
		if err := rows.Scan(&e.ID, &e.Type, &task, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.TaskName = task.String
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}
