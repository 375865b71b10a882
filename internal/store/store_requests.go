package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const requestColumns = "id, request_type, status, title, metadata_json, created_at, updated_at"

// CreateRequest inserts a new content request. The caller supplies the
// identifier and initial status.
func (s *Store) CreateRequest(ctx context.Context, req *Request) error {
	if req == nil {
		return errors.New("request is nil")
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	var metadataJSON any
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = string(raw)
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO content_requests (id, request_type, status, title, metadata_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		string(req.RequestType),
		string(req.Status),
		nullableString(req.Title),
		metadataJSON,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetRequest fetches a content request by identifier. Returns nil when the
// request does not exist.
func (s *Store) GetRequest(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+requestColumns+` FROM content_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// ListRequests returns requests filtered by status set (or all requests when
// no status is provided), ordered by creation time.
func (s *Store) ListRequests(ctx context.Context, statuses ...RequestStatus) ([]*Request, error) {
	ctx = ensureContext(ctx)

	baseQuery := `SELECT ` + requestColumns + ` FROM content_requests`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = string(status)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateRequestStatus persists a status change for a request.
func (s *Store) UpdateRequestStatus(ctx context.Context, id string, status RequestStatus) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE content_requests SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("request %s not found", id)
	}
	return nil
}

// RequestStats returns request counts grouped by status.
func (s *Store) RequestStats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM content_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("request stats: %w", err)
	}
	defer rows.Close()

	stats := make(Stats)
	for rows.Next() {
		var status RequestStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// RemoveRequest deletes a request and, via foreign keys, its tasks.
func (s *Store) RemoveRequest(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM content_requests WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanRequest(scanner interface{ Scan(dest ...any) error }) (*Request, error) {
	var (
		id          string
		requestType string
		statusStr   string
		title       sql.NullString
		metadata    sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &requestType, &statusStr, &title, &metadata, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	req := &Request{
		ID:          id,
		RequestType: RequestType(requestType),
		Status:      RequestStatus(statusStr),
		Title:       title.String,
	}
	if metadata.Valid && metadata.String != "" {
		parsed := make(map[string]string)
		if err := json.Unmarshal([]byte(metadata.String), &parsed); err == nil {
			req.Metadata = parsed
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		req.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		req.UpdatedAt = updated
	}
	return req, nil
}
