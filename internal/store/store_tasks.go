package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const taskColumns = `id, request_id, task_key, task_name, agent_role, status, sequence,
    depends_on_json, input_json, output_json, output_url, error_message, correlation_id,
    retry_count, next_retry_at, started_at, completed_at, created_at, updated_at`

// InsertTasks bulk-inserts the task set for a request inside one transaction,
// so intake either creates the full pipeline or nothing.
func (s *Store) InsertTasks(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tasks: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, task := range tasks {
		task.CreatedAt = now
		task.UpdatedAt = now
		dependsJSON, inputJSON, outputJSON, err := marshalTaskJSON(task)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO request_tasks (`+taskColumns+`)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID,
			task.RequestID,
			task.TaskKey,
			task.TaskName,
			string(task.AgentRole),
			string(task.Status),
			task.Sequence,
			dependsJSON,
			inputJSON,
			outputJSON,
			nullableString(task.OutputURL),
			nullableString(task.ErrorMessage),
			nullableString(task.CorrelationID),
			task.RetryCount,
			nullableTime(task.NextRetryAt),
			nullableTime(task.StartedAt),
			nullableTime(task.CompletedAt),
			formatTime(now),
			formatTime(now),
		); err != nil {
			return fmt.Errorf("insert task %s: %w", task.TaskKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert tasks: %w", err)
	}
	return nil
}

// GetTask fetches a task by identifier. Returns nil when missing.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM request_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// TasksForRequest returns a request's tasks ordered by sequence.
func (s *Store) TasksForRequest(ctx context.Context, requestID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+taskColumns+` FROM request_tasks WHERE request_id = ? ORDER BY sequence`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("tasks for request: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// TaskByCorrelation finds the task a dispatched engine execution belongs to.
func (s *Store) TaskByCorrelation(ctx context.Context, correlationID string) (*Task, error) {
	if correlationID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+taskColumns+` FROM request_tasks WHERE correlation_id = ? ORDER BY updated_at DESC LIMIT 1`,
		correlationID,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("task by correlation: %w", err)
	}
	return task, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()
	dependsJSON, inputJSON, outputJSON, err := marshalTaskJSON(task)
	if err != nil {
		return err
	}

	_, err = s.execWithRetry(
		ctx,
		`UPDATE request_tasks
         SET status = ?, depends_on_json = ?, input_json = ?, output_json = ?, output_url = ?,
             error_message = ?, correlation_id = ?, retry_count = ?, next_retry_at = ?,
             started_at = ?, completed_at = ?, updated_at = ?
         WHERE id = ?`,
		string(task.Status),
		dependsJSON,
		inputJSON,
		outputJSON,
		nullableString(task.OutputURL),
		nullableString(task.ErrorMessage),
		nullableString(task.CorrelationID),
		task.RetryCount,
		nullableTime(task.NextRetryAt),
		nullableTime(task.StartedAt),
		nullableTime(task.CompletedAt),
		formatTime(task.UpdatedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// StaleDispatched returns in-progress tasks with a correlation id whose last
// update predates the cutoff. These are dispatches whose callback never
// arrived; loom only surfaces them, an external supervisor decides.
func (s *Store) StaleDispatched(ctx context.Context, cutoff time.Time) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+taskColumns+` FROM request_tasks
         WHERE status = ? AND correlation_id IS NOT NULL AND updated_at < ?
         ORDER BY updated_at`,
		string(TaskInProgress),
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("stale dispatched: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func marshalTaskJSON(task *Task) (dependsJSON, inputJSON, outputJSON any, err error) {
	if len(task.DependsOn) > 0 {
		raw, merr := json.Marshal(task.DependsOn)
		if merr != nil {
			return nil, nil, nil, fmt.Errorf("marshal depends_on: %w", merr)
		}
		dependsJSON = string(raw)
	}
	if len(task.InputData) > 0 {
		raw, merr := json.Marshal(task.InputData)
		if merr != nil {
			return nil, nil, nil, fmt.Errorf("marshal input data: %w", merr)
		}
		inputJSON = string(raw)
	}
	if len(task.OutputData) > 0 {
		raw, merr := json.Marshal(task.OutputData)
		if merr != nil {
			return nil, nil, nil, fmt.Errorf("marshal output data: %w", merr)
		}
		outputJSON = string(raw)
	}
	return dependsJSON, inputJSON, outputJSON, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            string
		requestID     string
		taskKey       string
		taskName      string
		agentRole     string
		statusStr     string
		sequence      int
		dependsRaw    sql.NullString
		inputRaw      sql.NullString
		outputRaw     sql.NullString
		outputURL     sql.NullString
		errorMessage  sql.NullString
		correlationID sql.NullString
		retryCount    int
		nextRetryRaw  sql.NullString
		startedRaw    sql.NullString
		completedRaw  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&requestID,
		&taskKey,
		&taskName,
		&agentRole,
		&statusStr,
		&sequence,
		&dependsRaw,
		&inputRaw,
		&outputRaw,
		&outputURL,
		&errorMessage,
		&correlationID,
		&retryCount,
		&nextRetryRaw,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:            id,
		RequestID:     requestID,
		TaskKey:       taskKey,
		TaskName:      taskName,
		AgentRole:     AgentRole(agentRole),
		Status:        TaskStatus(statusStr),
		Sequence:      sequence,
		OutputURL:     outputURL.String,
		ErrorMessage:  errorMessage.String,
		CorrelationID: correlationID.String,
		RetryCount:    retryCount,
	}
	if dependsRaw.Valid && dependsRaw.String != "" {
		var deps []string
		if err := json.Unmarshal([]byte(dependsRaw.String), &deps); err == nil {
			task.DependsOn = deps
		}
	}
	if inputRaw.Valid && inputRaw.String != "" {
		input := make(map[string]any)
		if err := json.Unmarshal([]byte(inputRaw.String), &input); err == nil {
			task.InputData = input
		}
	}
	if outputRaw.Valid && outputRaw.String != "" {
		output := make(map[string]any)
		if err := json.Unmarshal([]byte(outputRaw.String), &output); err == nil {
			task.OutputData = output
		}
	}
	task.NextRetryAt = parseNullableTime(nextRetryRaw)
	task.StartedAt = parseNullableTime(startedRaw)
	task.CompletedAt = parseNullableTime(completedRaw)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}
