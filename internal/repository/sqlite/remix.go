package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/model"
	"github.com/jardiel79162-commits/remixhub/internal/repository"
)

// compile-time check that *RemixRepo implements repository.RemixRepository
var _ repository.RemixRepository = (*RemixRepo)(nil)

const remixColumns = `id, user_id, source_repo, target_repo, status, logs, error_message, created_at, completed_at`

// RemixRepo implements repository.RemixRepository on top of the shared DB.
type RemixRepo struct {
	db *DB
}

// NewRemixRepo creates a RemixRepo backed by db.
func NewRemixRepo(db *DB) *RemixRepo {
	return &RemixRepo{db: db}
}

// Create inserts a new remix history record.
//
// The orchestrator calls this with status "processing" the moment admission
// passes — BEFORE the first GitHub call — so the quota window sees the job
// immediately. ID and CreatedAt are generated here.
func (r *RemixRepo) Create(ctx context.Context, job *model.RemixJob) error {
	job.ID = xid.New().String()
	job.CreatedAt = time.Now()
	if job.Status == "" {
		job.Status = model.RemixStatusPending
	}

	logsJSON, err := json.Marshal(job.Logs)
	if err != nil {
		return fmt.Errorf("sqlite: encoding logs: %w", err)
	}

	_, err = r.db.conn.ExecContext(ctx,
		`INSERT INTO remix_history (id, user_id, source_repo, target_repo, status, logs, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.UserID,
		job.SourceRepo,
		job.TargetRepo,
		job.Status,
		string(logsJSON),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting remix record: %w", err)
	}

	return nil
}

// GetByID retrieves a single history record, logs included.
func (r *RemixRepo) GetByID(ctx context.Context, id string) (*model.RemixJob, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+remixColumns+` FROM remix_history WHERE id = ?`, id,
	)

	job, err := scanRemix(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("remix", id)
		}
		return nil, fmt.Errorf("sqlite: getting remix %s: %w", id, err)
	}

	return job, nil
}

// ListByUser returns the user's history, newest first.
func (r *RemixRepo) ListByUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.RemixJob, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+remixColumns+` FROM remix_history
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing remixes: %w", err)
	}
	defer rows.Close()

	return collectRemixes(rows, limit)
}

// ListStartedSince returns jobs counted by the quota window: status
// processing or completed, created at or after `since`, oldest first.
// The oldest-first ordering lets the quota guard take element 0 directly
// when computing the wait time.
func (r *RemixRepo) ListStartedSince(ctx context.Context, userID string, since time.Time) ([]model.RemixJob, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+remixColumns+` FROM remix_history
		 WHERE user_id = ? AND created_at >= ? AND status IN (?, ?)
		 ORDER BY created_at ASC`,
		userID, since, model.RemixStatusProcessing, model.RemixStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing recent remixes: %w", err)
	}
	defer rows.Close()

	return collectRemixes(rows, 8)
}

// SaveLogs replaces the record's transcript with the given lines.
func (r *RemixRepo) SaveLogs(ctx context.Context, id string, logs []string) error {
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("sqlite: encoding logs: %w", err)
	}

	result, err := r.db.conn.ExecContext(ctx,
		`UPDATE remix_history SET logs = ? WHERE id = ?`,
		string(logsJSON), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving logs for remix %s: %w", id, err)
	}

	return requireRow(result, "remix", id)
}

// SetCompleted marks the job successful. Terminal — nothing updates the
// status after this.
func (r *RemixRepo) SetCompleted(ctx context.Context, id string, completedAt time.Time) error {
	result, err := r.db.conn.ExecContext(ctx,
		`UPDATE remix_history SET status = ?, completed_at = ? WHERE id = ?`,
		model.RemixStatusCompleted, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: completing remix %s: %w", id, err)
	}

	return requireRow(result, "remix", id)
}

// SetError marks the job failed with the given message. Terminal.
func (r *RemixRepo) SetError(ctx context.Context, id, message string) error {
	result, err := r.db.conn.ExecContext(ctx,
		`UPDATE remix_history SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		model.RemixStatusError, message, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failing remix %s: %w", id, err)
	}

	return requireRow(result, "remix", id)
}

// Delete removes a history record (user-initiated history management; the
// engine itself never deletes records).
func (r *RemixRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.conn.ExecContext(ctx,
		`DELETE FROM remix_history WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting remix %s: %w", id, err)
	}

	return requireRow(result, "remix", id)
}

// scanRemix reads one remix_history row. The scan func indirection lets it
// serve both QueryRow (Row.Scan) and Rows iteration (Rows.Scan).
func scanRemix(scan func(dest ...any) error) (*model.RemixJob, error) {
	var (
		job         model.RemixJob
		logsJSON    string
		completedAt sql.NullTime
	)

	err := scan(
		&job.ID,
		&job.UserID,
		&job.SourceRepo,
		&job.TargetRepo,
		&job.Status,
		&logsJSON,
		&job.ErrorMessage,
		&job.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(logsJSON), &job.Logs); err != nil {
		return nil, fmt.Errorf("decoding logs for remix %s: %w", job.ID, err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}

func collectRemixes(rows *sql.Rows, capacityHint int) ([]model.RemixJob, error) {
	jobs := make([]model.RemixJob, 0, capacityHint)
	for rows.Next() {
		job, err := scanRemix(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning remix row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating remixes: %w", err)
	}
	return jobs, nil
}

// requireRow converts "0 rows affected" into a NotFound error.
func requireRow(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
