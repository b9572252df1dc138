package state

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/waypoint/pkg/models"
)

// DispatchRecord is one row of the dispatch history.
type DispatchRecord struct {
	RequestID   string
	RequestType string
	Capability  string
	AgentID     string
	Success     bool
	Error       string
	Latency     time.Duration
	CreatedAt   time.Time
}

// RecordDispatch appends a dispatch outcome to the history.
func (db *DB) RecordDispatch(req *models.Request, resp *models.Response) error {
	agentID := resp.AgentID
	if id, ok := resp.Metadata[models.MetaAgent].(string); ok && agentID == models.SystemAgentID {
		agentID = id
	}
	capability, _ := resp.Metadata[models.MetaCapability].(string)
	if capability == "" {
		capability = req.Capability
	}
	created := resp.Timestamp
	if created.IsZero() {
		created = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO dispatch_log (request_id, request_type, capability, agent_id, success, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.Type, capability, agentID, resp.Success, resp.Error, resp.Latency.Milliseconds(), formatTime(created))
	if err != nil {
		return fmt.Errorf("insert dispatch record: %w", err)
	}
	return nil
}

// RecentDispatches returns up to limit records, newest first.
func (db *DB) RecentDispatches(limit int) ([]DispatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT request_id, request_type, COALESCE(capability, ''), agent_id, success,
		       COALESCE(error, ''), latency_ms, created_at
		FROM dispatch_log ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatch log: %w", err)
	}
	defer rows.Close()

	var records []DispatchRecord
	for rows.Next() {
		var (
			r         DispatchRecord
			latencyMs int64
			createdAt string
		)
		if err := rows.Scan(&r.RequestID, &r.RequestType, &r.Capability, &r.AgentID, &r.Success,
			&r.Error, &latencyMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dispatch record: %w", err)
		}
		r.Latency = time.Duration(latencyMs) * time.Millisecond
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DispatchSummary counts history rows per agent.
type DispatchSummary struct {
	AgentID   string
	Total     int
	Succeeded int
}

// SummarizeDispatches aggregates the history per agent, busiest first.
func (db *DB) SummarizeDispatches() ([]DispatchSummary, error) {
	rows, err := db.Query(`
		SELECT agent_id, COUNT(*), SUM(success)
		FROM dispatch_log GROUP BY agent_id ORDER BY COUNT(*) DESC, agent_id
	`)
	if err != nil {
		return nil, fmt.Errorf("summarize dispatch log: %w", err)
	}
	defer rows.Close()

	var out []DispatchSummary
	for rows.Next() {
		var s DispatchSummary
		if err := rows.Scan(&s.AgentID, &s.Total, &s.Succeeded); err != nil {
			return nil, fmt.Errorf("scan dispatch summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PurgeDispatchLog deletes history older than the given duration and
// returns the number of rows removed.
func (db *DB) PurgeDispatchLog(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := db.Exec("DELETE FROM dispatch_log WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge dispatch log: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}
