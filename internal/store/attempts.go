package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/journeys/internal/engine"
	"github.com/pavelanni/journeys/internal/model"
)

// maxRestartRetries bounds how often RestartAttempt retries after losing the
// one-active-attempt index to a concurrent start.
const maxRestartRetries = 3

const attemptColumns = `id, user_id, exam_id, started_at, finished_at, score, approved`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (model.ExamAttempt, error) {
	var (
		a          model.ExamAttempt
		startedAt  int64
		finishedAt sql.NullInt64
		score      sql.NullInt64
		approved   sql.NullBool
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &startedAt, &finishedAt, &score, &approved); err != nil {
		return model.ExamAttempt{}, err
	}
	a.StartedAt = fromMillis(startedAt)
	if finishedAt.Valid {
		t := fromMillis(finishedAt.Int64)
		a.FinishedAt = &t
	}
	if score.Valid {
		v := int(score.Int64)
		a.Score = &v
	}
	if approved.Valid {
		v := approved.Bool
		a.Approved = &v
	}
	return a, nil
}

func (s *Store) findAttempt(ctx context.Context, query string, args ...any) (*model.ExamAttempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindActiveAttempt returns the learner's unfinished attempt, or nil.
func (s *Store) FindActiveAttempt(ctx context.Context, userID, examID string) (*model.ExamAttempt, error) {
	return s.findAttempt(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2 AND finished_at IS NULL`, userID, examID)
}

// FindPassedAttempt returns the learner's earliest passed attempt, or nil.
func (s *Store) FindPassedAttempt(ctx context.Context, userID, examID string) (*model.ExamAttempt, error) {
	return s.findAttempt(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2 AND finished_at IS NOT NULL AND approved = $3
		 ORDER BY finished_at, id LIMIT 1`, userID, examID, true)
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(ctx context.Context, attemptID string) (model.ExamAttempt, error) {
	a, err := s.findAttempt(ctx, `SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, attemptID)
	if err != nil {
		return model.ExamAttempt{}, err
	}
	if a == nil {
		return model.ExamAttempt{}, engine.ErrRecordNotFound
	}
	return *a, nil
}

// ListAttempts returns every attempt of a learner at an exam, oldest first.
func (s *Store) ListAttempts(ctx context.Context, userID, examID string) ([]model.ExamAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2 ORDER BY started_at, id`, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListPassedExamIDs returns the subset of examIDs the learner passed.
func (s *Store) ListPassedExamIDs(ctx context.Context, userID string, examIDs []string) ([]string, error) {
	if len(examIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(examIDs)+2)
	args = append(args, userID, true)
	for _, id := range examIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT exam_id FROM exam_attempts
		 WHERE user_id = $1 AND finished_at IS NOT NULL AND approved = $2
		 AND exam_id IN (`+placeholders(3, len(examIDs))+`)
		 ORDER BY exam_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list passed exams: %w", err)
	}
	return scanIDs(rows)
}

// RestartAttempt force-fails any active attempt of the same learner and exam
// and inserts a as the new active attempt, all in one transaction. It returns
// how many attempts were force-failed, or engine.ErrAttemptPassed when the
// learner already passed.
func (s *Store) RestartAttempt(ctx context.Context, a model.ExamAttempt) (int64, error) {
	for try := 0; ; try++ {
		n, err := s.restartAttempt(ctx, a)
		if err == nil {
			return n, nil
		}
		if !isUniqueViolation(err) || try >= maxRestartRetries {
			return 0, err
		}
		slog.Debug("restart attempt lost race, retrying", "user_id", a.UserID, "exam_id", a.ExamID, "try", try+1)
	}
}

func (s *Store) restartAttempt(ctx context.Context, a model.ExamAttempt) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var passed int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exam_attempts
		 WHERE user_id = $1 AND exam_id = $2 AND finished_at IS NOT NULL AND approved = $3`,
		a.UserID, a.ExamID, true,
	).Scan(&passed); err != nil {
		return 0, fmt.Errorf("check passed attempt: %w", err)
	}
	if passed > 0 {
		return 0, engine.ErrAttemptPassed
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE exam_attempts SET finished_at = $1, score = 0, approved = $2
		 WHERE user_id = $3 AND exam_id = $4 AND finished_at IS NULL`,
		toMillis(a.StartedAt), false, a.UserID, a.ExamID,
	)
	if err != nil {
		return 0, fmt.Errorf("fail active attempt: %w", err)
	}
	discarded, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail active attempt: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exam_attempts (id, user_id, exam_id, started_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.UserID, a.ExamID, toMillis(a.StartedAt),
	); err != nil {
		return 0, fmt.Errorf("insert attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return discarded, nil
}

// FinishAttempt closes an active attempt. It fails with
// engine.ErrAttemptNotActive if the attempt was already finished.
func (s *Store) FinishAttempt(ctx context.Context, attemptID string, score int, approved bool, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exam_attempts SET finished_at = $1, score = $2, approved = $3
		 WHERE id = $4 AND finished_at IS NULL`,
		toMillis(finishedAt), score, approved, attemptID,
	)
	if err != nil {
		return fmt.Errorf("finish attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish attempt: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("attempt %s: %w", attemptID, engine.ErrAttemptNotActive)
	}
	return nil
}
