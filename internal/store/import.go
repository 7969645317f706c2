package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/journeys/internal/model"
)

// ImportStats counts what ImportCatalog wrote.
type ImportStats struct {
	Journeys  int `json:"journeys"`
	Modules   int `json:"modules"`
	Lessons   int `json:"lessons"`
	Exams     int `json:"exams"`
	Questions int `json:"questions"`
}

// ImportCatalog validates c and loads it in one transaction. Journeys and
// modules are matched by slug, everything else by ID; records without an ID
// get a generated one. Content that a module already lists keeps its
// position, new content is appended after the module's last item.
func (s *Store) ImportCatalog(ctx context.Context, c model.Catalog) (ImportStats, error) {
	if err := c.Validate(); err != nil {
		return ImportStats{}, fmt.Errorf("invalid catalog: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportStats{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plants (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = $2`,
		c.Plant.ID, c.Plant.Name,
	); err != nil {
		return ImportStats{}, fmt.Errorf("upsert plant: %w", err)
	}

	var stats ImportStats
	for ji, cj := range c.Journeys {
		journeyID, err := upsertJourney(ctx, tx, c.Plant.ID, cj, ji+1)
		if err != nil {
			return ImportStats{}, err
		}
		stats.Journeys++

		for mi, cm := range cj.Modules {
			moduleID, err := upsertModule(ctx, tx, journeyID, cm, mi+1)
			if err != nil {
				return ImportStats{}, err
			}
			stats.Modules++

			for _, item := range cm.Items {
				switch item.Kind {
				case model.ContentLesson:
					if err := importLesson(ctx, tx, moduleID, item.Lesson); err != nil {
						return ImportStats{}, fmt.Errorf("module %s: %w", cm.Slug, err)
					}
					stats.Lessons++
				case model.ContentExam:
					n, err := importExam(ctx, tx, moduleID, item.Exam)
					if err != nil {
						return ImportStats{}, fmt.Errorf("module %s: %w", cm.Slug, err)
					}
					stats.Exams++
					stats.Questions += n
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return ImportStats{}, fmt.Errorf("commit: %w", err)
	}
	slog.Info("imported catalog", "plant_id", c.Plant.ID,
		"journeys", stats.Journeys, "modules", stats.Modules,
		"lessons", stats.Lessons, "exams", stats.Exams, "questions", stats.Questions)
	return stats, nil
}

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func upsertJourney(ctx context.Context, tx *sql.Tx, plantID string, cj model.CatalogJourney, position int) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM journeys WHERE plant_id = $1 AND slug = $2`, plantID, cj.Slug,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = orNewID(cj.ID)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journeys (id, plant_id, slug, title, position) VALUES ($1, $2, $3, $4, $5)`,
			id, plantID, cj.Slug, cj.Title, position,
		); err != nil {
			return "", fmt.Errorf("insert journey %s: %w", cj.Slug, err)
		}
	case err != nil:
		return "", fmt.Errorf("find journey %s: %w", cj.Slug, err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE journeys SET title = $1, position = $2 WHERE id = $3`, cj.Title, position, id,
		); err != nil {
			return "", fmt.Errorf("update journey %s: %w", cj.Slug, err)
		}
	}
	return id, nil
}

func upsertModule(ctx context.Context, tx *sql.Tx, journeyID string, cm model.CatalogModule, position int) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM modules WHERE journey_id = $1 AND slug = $2`, journeyID, cm.Slug,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = orNewID(cm.ID)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO modules (id, journey_id, slug, title, hours, position) VALUES ($1, $2, $3, $4, $5, $6)`,
			id, journeyID, cm.Slug, cm.Title, cm.Hours, position,
		); err != nil {
			return "", fmt.Errorf("insert module %s: %w", cm.Slug, err)
		}
	case err != nil:
		return "", fmt.Errorf("find module %s: %w", cm.Slug, err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE modules SET title = $1, hours = $2, position = $3 WHERE id = $4`,
			cm.Title, cm.Hours, position, id,
		); err != nil {
			return "", fmt.Errorf("update module %s: %w", cm.Slug, err)
		}
	}
	return id, nil
}

func importLesson(ctx context.Context, tx *sql.Tx, moduleID string, l *model.Lesson) error {
	id := l.ID
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lessons (id, title, body) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET title = $2, body = $3`,
		id, l.Title, l.Body,
	); err != nil {
		return fmt.Errorf("upsert lesson %s: %w", id, err)
	}
	return appendContentItem(ctx, tx, moduleID, model.ContentLesson, "lesson_id", id)
}

func importExam(ctx context.Context, tx *sql.Tx, moduleID string, e *model.CatalogExam) (int, error) {
	examID := e.ID
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exams (id, title) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET title = $2`,
		examID, e.Title,
	); err != nil {
		return 0, fmt.Errorf("upsert exam %s: %w", examID, err)
	}
	for qi, q := range e.Questions {
		questionID := q.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id, exam_id, text, position) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET text = $3, position = $4`,
			questionID, examID, q.Text, qi+1,
		); err != nil {
			return 0, fmt.Errorf("upsert question %s: %w", questionID, err)
		}
		for ai, a := range q.Answers {
			answerID := a.ID
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO answers (id, question_id, text, position, is_correct) VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (id) DO UPDATE SET text = $3, position = $4, is_correct = $5`,
				answerID, questionID, a.Text, ai+1, a.Correct,
			); err != nil {
				return 0, fmt.Errorf("upsert answer %s: %w", answerID, err)
			}
		}
	}
	if err := appendContentItem(ctx, tx, moduleID, model.ContentExam, "exam_id", examID); err != nil {
		return 0, err
	}
	return len(e.Questions), nil
}

// appendContentItem lists refID in the module unless it is already there.
// The position comes from max(position)+1 read inside the same transaction.
func appendContentItem(ctx context.Context, tx *sql.Tx, moduleID string, kind model.ContentKind, refColumn, refID string) error {
	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_items WHERE module_id = $1 AND `+refColumn+` = $2`, moduleID, refID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("find content item: %w", err)
	}
	if exists > 0 {
		return nil
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM content_items WHERE module_id = $1`, moduleID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next content position: %w", err)
	}

	var lessonID, examID sql.NullString
	switch kind {
	case model.ContentLesson:
		lessonID = sql.NullString{String: refID, Valid: true}
	case model.ContentExam:
		examID = sql.NullString{String: refID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO content_items (id, module_id, kind, lesson_id, exam_id, position) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), moduleID, string(kind), lessonID, examID, next,
	); err != nil {
		return fmt.Errorf("insert content item: %w", err)
	}
	return nil
}
