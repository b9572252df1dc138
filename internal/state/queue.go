package state

import (
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/waypoint/pkg/models"
)

// SaveQueuedCall appends a call to the persisted replay queue.
func (db *DB) SaveQueuedCall(call models.QueuedCall) error {
	payload, err := json.Marshal(call.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO queued_calls (id, endpoint, payload, enqueued_at)
		VALUES (?, ?, ?, ?)
	`, call.ID, call.Endpoint, string(payload), formatTime(call.EnqueuedAt))
	if err != nil {
		return fmt.Errorf("insert queued call: %w", err)
	}
	return nil
}

// DeleteQueuedCall removes a call. Deleting an unknown id is not an error.
func (db *DB) DeleteQueuedCall(id string) error {
	if _, err := db.Exec("DELETE FROM queued_calls WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete queued call: %w", err)
	}
	return nil
}

// LoadQueuedCalls returns persisted calls in enqueue order.
func (db *DB) LoadQueuedCalls() ([]models.QueuedCall, error) {
	rows, err := db.Query(`
		SELECT id, endpoint, payload, enqueued_at
		FROM queued_calls ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query queued calls: %w", err)
	}
	defer rows.Close()

	var calls []models.QueuedCall
	for rows.Next() {
		var (
			call       models.QueuedCall
			payload    string
			enqueuedAt string
		)
		if err := rows.Scan(&call.ID, &call.Endpoint, &payload, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("scan queued call: %w", err)
		}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &call.Payload); err != nil {
				return nil, fmt.Errorf("decode payload of %s: %w", call.ID, err)
			}
		}
		if call.EnqueuedAt, err = parseTime(enqueuedAt); err != nil {
			return nil, fmt.Errorf("parse enqueued_at of %s: %w", call.ID, err)
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

// CountQueuedCalls returns the number of persisted calls.
func (db *DB) CountQueuedCalls() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM queued_calls").Scan(&n); err != nil {
		return 0, fmt.Errorf("count queued calls: %w", err)
	}
	return n, nil
}
