package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AppendEvent records a timeline event for a request.
func (s *Store) AppendEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return errors.New("event is nil")
	}
	now := time.Now().UTC()
	event.CreatedAt = now

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO timeline_events (request_id, task_id, task_name, agent_role, event_type, message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.RequestID,
		nullableString(event.TaskID),
		nullableString(event.TaskName),
		nullableString(string(event.AgentRole)),
		event.EventType,
		nullableString(event.Message),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// EventsForRequest returns a request's timeline in insertion order.
func (s *Store) EventsForRequest(ctx context.Context, requestID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, request_id, task_id, task_name, agent_role, event_type, message, created_at
         FROM timeline_events WHERE request_id = ? ORDER BY id`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("events for request: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			event      Event
			taskID     sql.NullString
			taskName   sql.NullString
			agentRole  sql.NullString
			message    sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.RequestID, &taskID, &taskName, &agentRole, &event.EventType, &message, &createdRaw); err != nil {
			return nil, err
		}
		event.TaskID = taskID.String
		event.TaskName = taskName.String
		event.AgentRole = AgentRole(agentRole.String)
		event.Message = message.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			event.CreatedAt = created
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
