package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tordrt/physgen/internal/report"
	"go.uber.org/zap"
)

// RunStatus summarizes a recorded run
type RunStatus string

// Run statuses
const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// DefaultLimit caps Runs when no limit is given
const DefaultLimit = 20

// Run is one recorded pipeline run
type Run struct {
	ID         string
	FileID     string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt time.Time
	OK         int
	Skipped    int
	Failed     int
	Warnings   []string
}

// StatusOf classifies a report
func StatusOf(rep *report.Report) RunStatus {
	switch {
	case !rep.Succeeded():
		return RunFailed
	case rep.Err() != nil:
		return RunPartial
	default:
		return RunSucceeded
	}
}

const (
	insertRun = `INSERT INTO runs (id, file_id, status, started_at, finished_at, ok_steps, skipped_steps, failed_steps, warnings)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertStep = `INSERT INTO run_steps (run_id, position, step, status, artifact, size, reason, error, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectRuns = `SELECT id, file_id, status, started_at, finished_at, ok_steps, skipped_steps, failed_steps, warnings
FROM runs WHERE file_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`
	selectSteps = `SELECT step, status, artifact, size, reason, error, duration_ms
FROM run_steps WHERE run_id = ? ORDER BY position`
)

// Record stores a report and its steps in one transaction
func (s *Store) Record(ctx context.Context, rep *report.Report) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	counts := rep.Counts()
	_, err = tx.ExecContext(ctx, s.rebind(insertRun),
		rep.RunID,
		rep.FileID,
		string(StatusOf(rep)),
		rep.StartedAt.UnixMilli(),
		rep.FinishedAt.UnixMilli(),
		counts[report.StatusOK],
		counts[report.StatusSkipped],
		counts[report.StatusFailed],
		strings.Join(rep.Warnings, "\n"),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, st := range rep.Steps {
		_, err = tx.ExecContext(ctx, s.rebind(insertStep),
			rep.RunID,
			i,
			st.Step,
			string(st.Status),
			st.Artifact,
			st.Size,
			st.Reason,
			st.Error,
			st.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", st.Step, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Debug("run recorded", zap.String("runId", rep.RunID), zap.String("fileId", rep.FileID))
	return nil
}

// Runs returns the most recent runs of a file id, newest first
func (s *Store) Runs(ctx context.Context, fileID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectRuns), fileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			status, warnings  string
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &r.FileID, &status, &started, &finished,
			&r.OK, &r.Skipped, &r.Failed, &warnings); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Status = RunStatus(status)
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		if warnings != "" {
			r.Warnings = strings.Split(warnings, "\n")
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Steps returns the step results of a run in execution order
func (s *Store) Steps(ctx context.Context, runID string) ([]report.StepResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectSteps), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []report.StepResult
	for rows.Next() {
		var (
			st         report.StepResult
			status     string
			durationMS int64
			artifact   sql.NullString
		)
		if err := rows.Scan(&st.Step, &status, &artifact, &st.Size, &st.Reason, &st.Error, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		st.Status = report.Status(status)
		st.Artifact = artifact.String
		st.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, st)
	}

	return steps, rows.Err()
}
