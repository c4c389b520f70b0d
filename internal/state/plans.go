package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

var (
	// ErrNotFound indicates no archived plan has the requested id.
	ErrNotFound = errors.New("plan not found in archive")
	// ErrNotTerminal indicates an attempt to archive a plan that is still
	// pending or running.
	ErrNotTerminal = errors.New("plan is not terminal")
)

// PlanRecord is one archived plan.
type PlanRecord struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Status         models.PlanStatus `json:"status"`
	TaskCount      int               `json:"task_count"`
	CompletedCount int               `json:"completed_count"`
	FailedCount    int               `json:"failed_count"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at"`
	ArchivedAt     time.Time         `json:"archived_at"`
	// Snapshot is the JSON encoding of the plan at archive time.
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// Plan decodes the stored snapshot.
func (r *PlanRecord) Plan() (*models.ExecutionPlan, error) {
	var plan models.ExecutionPlan
	if err := json.Unmarshal(r.Snapshot, &plan); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", r.ID, err)
	}
	return &plan, nil
}

// AgentStats aggregates archived task outcomes for one agent type.
type AgentStats struct {
	AgentType     models.AgentType `json:"agent_type"`
	Completed     int              `json:"completed"`
	Failed        int              `json:"failed"`
	Pending       int              `json:"pending"`
	AvgDurationMS float64          `json:"avg_duration_ms"`
}

// SavePlan archives a terminal plan, replacing any earlier record with the
// same id.
func (db *DB) SavePlan(plan *models.ExecutionPlan) error {
	snap := plan.Snapshot()
	if !snap.Status.Terminal() {
		return fmt.Errorf("archive plan %s (%s): %w", snap.ID, snap.Status, ErrNotTerminal)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", snap.ID, err)
	}

	var completed, failed int
	for _, t := range snap.Tasks {
		switch t.Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		}
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO plans (id, name, description, status, task_count, completed_count, failed_count,
				created_at, started_at, completed_at, snapshot, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				status = excluded.status,
				task_count = excluded.task_count,
				completed_count = excluded.completed_count,
				failed_count = excluded.failed_count,
				created_at = excluded.created_at,
				started_at = excluded.started_at,
				completed_at = excluded.completed_at,
				snapshot = excluded.snapshot,
				archived_at = excluded.archived_at
		`, snap.ID, snap.Name, snap.Description, string(snap.Status), len(snap.Tasks), completed, failed,
			formatTime(snap.CreatedAt), formatNullableTime(snap.StartedAt), formatNullableTime(snap.CompletedAt),
			string(data), formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("save plan %s: %w", snap.ID, err)
		}

		if _, err := tx.Exec("DELETE FROM plan_tasks WHERE plan_id = ?", snap.ID); err != nil {
			return fmt.Errorf("clear tasks of plan %s: %w", snap.ID, err)
		}
		for _, t := range snap.Tasks {
			var errMsg sql.NullString
			if msg := t.Error(); msg != "" {
				errMsg = sql.NullString{String: msg, Valid: true}
			}
			var durationMS sql.NullInt64
			if d, ok := t.Duration(); ok {
				durationMS = sql.NullInt64{Int64: d.Milliseconds(), Valid: true}
			}
			_, err := tx.Exec(`
				INSERT INTO plan_tasks (plan_id, task_id, agent_type, status, error, duration_ms)
				VALUES (?, ?, ?, ?, ?, ?)
			`, snap.ID, t.ID, string(t.AgentType), string(t.Status), errMsg, durationMS)
			if err != nil {
				return fmt.Errorf("save task %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

const planColumns = `id, name, description, status, task_count, completed_count, failed_count,
	created_at, started_at, completed_at, archived_at`

// GetPlan returns the archived plan with the given id, snapshot included.
func (db *DB) GetPlan(id string) (*PlanRecord, error) {
	row := db.QueryRow("SELECT "+planColumns+", snapshot FROM plans WHERE id = ?", id)

	var snapshot string
	rec, err := scanPlan(row.Scan, &snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", id, err)
	}
	rec.Snapshot = json.RawMessage(snapshot)
	return rec, nil
}

// ListPlans returns archived plans, newest first, without snapshots.
// A limit of zero or less returns every plan.
func (db *DB) ListPlans(limit int) ([]PlanRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query("SELECT "+planColumns+" FROM plans ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var records []PlanRecord
	for rows.Next() {
		rec, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// AgentStats summarizes archived task outcomes per agent type.
func (db *DB) AgentStats() ([]AgentStats, error) {
	rows, err := db.Query(`
		SELECT agent_type,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status NOT IN ('completed', 'failed') THEN 1 ELSE 0 END),
			COALESCE(AVG(duration_ms), 0)
		FROM plan_tasks
		GROUP BY agent_type
		ORDER BY agent_type
	`)
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}
	defer rows.Close()

	var stats []AgentStats
	for rows.Next() {
		var s AgentStats
		var agentType string
		if err := rows.Scan(&agentType, &s.Completed, &s.Failed, &s.Pending, &s.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("scan agent stats: %w", err)
		}
		s.AgentType = models.AgentType(agentType)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// PurgeOldPlans deletes plans archived before the cutoff, along with their
// task rows. Returns the number of plans deleted.
func (db *DB) PurgeOldPlans(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	var count int64
	err := db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM plan_tasks WHERE plan_id IN
			(SELECT id FROM plans WHERE archived_at < ?)`, cutoff)
		if err != nil {
			return fmt.Errorf("purge plan tasks: %w", err)
		}

		result, err := tx.Exec("DELETE FROM plans WHERE archived_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("purge old plans: %w", err)
		}

		count, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// scanPlan reads the planColumns in order, followed by any extra targets.
func scanPlan(scan func(dest ...any) error, extra ...any) (*PlanRecord, error) {
	var (
		rec                           PlanRecord
		status, createdAt, archivedAt string
		startedAt, completedAt        sql.NullString
	)
	dest := []any{&rec.ID, &rec.Name, &rec.Description, &status, &rec.TaskCount, &rec.CompletedCount,
		&rec.FailedCount, &createdAt, &startedAt, &completedAt, &archivedAt}
	if err := scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	rec.Status = models.PlanStatus(status)
	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.ArchivedAt, err = parseTime(archivedAt); err != nil {
		return nil, fmt.Errorf("parse archived_at: %w", err)
	}
	rec.StartedAt = parseNullableTime(startedAt)
	rec.CompletedAt = parseNullableTime(completedAt)
	return &rec, nil
}
