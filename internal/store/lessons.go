package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavelanni/journeys/internal/engine"
	"github.com/pavelanni/journeys/internal/model"
)

// FindLessonProgress returns nil when the learner has not completed the lesson.
func (s *Store) FindLessonProgress(ctx context.Context, userID, lessonID string) (*model.LessonProgress, error) {
	var completedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT completed_at FROM lesson_progress WHERE user_id = $1 AND lesson_id = $2`, userID, lessonID,
	).Scan(&completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.LessonProgress{UserID: userID, LessonID: lessonID, CompletedAt: fromMillis(completedAt)}, nil
}

// CreateLessonProgress inserts a completion record. A second record for the
// same learner and lesson fails with engine.ErrRecordExists.
func (s *Store) CreateLessonProgress(ctx context.Context, p model.LessonProgress) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lesson_progress (user_id, lesson_id, completed_at) VALUES ($1, $2, $3)`,
		p.UserID, p.LessonID, toMillis(p.CompletedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("lesson progress %s/%s: %w", p.UserID, p.LessonID, engine.ErrRecordExists)
	}
	return err
}

// ListCompletedLessonIDs returns the subset of lessonIDs the learner completed.
func (s *Store) ListCompletedLessonIDs(ctx context.Context, userID string, lessonIDs []string) ([]string, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(lessonIDs)+1)
	args = append(args, userID)
	for _, id := range lessonIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT lesson_id FROM lesson_progress
		 WHERE user_id = $1 AND lesson_id IN (`+placeholders(2, len(lessonIDs))+`)
		 ORDER BY lesson_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list completed lessons: %w", err)
	}
	return scanIDs(rows)
}
