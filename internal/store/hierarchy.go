package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavelanni/journeys/internal/engine"
	"github.com/pavelanni/journeys/internal/model"
)

const journeyColumns = `id, plant_id, slug, title, position`

func scanJourney(row *sql.Row) (model.Journey, error) {
	var j model.Journey
	err := row.Scan(&j.ID, &j.PlantID, &j.Slug, &j.Title, &j.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Journey{}, engine.ErrRecordNotFound
	}
	return j, err
}

// GetJourneyBySlug returns the journey with the given slug in a plant.
func (s *Store) GetJourneyBySlug(ctx context.Context, plantID, slug string) (model.Journey, error) {
	return scanJourney(s.db.QueryRowContext(ctx,
		`SELECT `+journeyColumns+` FROM journeys WHERE plant_id = $1 AND slug = $2`, plantID, slug))
}

// GetJourney returns a journey by ID.
func (s *Store) GetJourney(ctx context.Context, journeyID string) (model.Journey, error) {
	return scanJourney(s.db.QueryRowContext(ctx,
		`SELECT `+journeyColumns+` FROM journeys WHERE id = $1`, journeyID))
}

// ListJourneys returns the journeys of a plant in display order.
func (s *Store) ListJourneys(ctx context.Context, plantID string) ([]model.Journey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+journeyColumns+` FROM journeys WHERE plant_id = $1 ORDER BY position, id`, plantID)
	if err != nil {
		return nil, fmt.Errorf("list journeys: %w", err)
	}
	defer rows.Close()
	var journeys []model.Journey
	for rows.Next() {
		var j model.Journey
		if err := rows.Scan(&j.ID, &j.PlantID, &j.Slug, &j.Title, &j.Position); err != nil {
			return nil, err
		}
		journeys = append(journeys, j)
	}
	return journeys, rows.Err()
}

const moduleColumns = `id, journey_id, slug, title, hours, position`

// GetModuleBySlug returns the module with the given slug in a journey.
func (s *Store) GetModuleBySlug(ctx context.Context, journeyID, slug string) (model.Module, error) {
	var m model.Module
	err := s.db.QueryRowContext(ctx,
		`SELECT `+moduleColumns+` FROM modules WHERE journey_id = $1 AND slug = $2`, journeyID, slug,
	).Scan(&m.ID, &m.JourneyID, &m.Slug, &m.Title, &m.Hours, &m.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Module{}, engine.ErrRecordNotFound
	}
	return m, err
}

// ListModules returns the modules of a journey in display order.
func (s *Store) ListModules(ctx context.Context, journeyID string) ([]model.Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+moduleColumns+` FROM modules WHERE journey_id = $1 ORDER BY position, id`, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()
	var modules []model.Module
	for rows.Next() {
		var m model.Module
		if err := rows.Scan(&m.ID, &m.JourneyID, &m.Slug, &m.Title, &m.Hours, &m.Position); err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// GetLesson returns a lesson only if the module lists it as content.
func (s *Store) GetLesson(ctx context.Context, moduleID, lessonID string) (model.Lesson, error) {
	var l model.Lesson
	err := s.db.QueryRowContext(ctx,
		`SELECT l.id, l.title, l.body
		 FROM lessons l
		 JOIN content_items ci ON ci.lesson_id = l.id
		 WHERE ci.module_id = $1 AND l.id = $2
		 LIMIT 1`, moduleID, lessonID,
	).Scan(&l.ID, &l.Title, &l.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lesson{}, engine.ErrRecordNotFound
	}
	return l, err
}

// GetExam returns an exam only if the module lists it as content.
func (s *Store) GetExam(ctx context.Context, moduleID, examID string) (model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRowContext(ctx,
		`SELECT e.id, e.title
		 FROM exams e
		 JOIN content_items ci ON ci.exam_id = e.id
		 WHERE ci.module_id = $1 AND e.id = $2
		 LIMIT 1`, moduleID, examID,
	).Scan(&e.ID, &e.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exam{}, engine.ErrRecordNotFound
	}
	return e, err
}

// ListContentItems returns a module's items ordered by position, then id.
func (s *Store) ListContentItems(ctx context.Context, moduleID string) ([]model.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, module_id, kind, lesson_id, exam_id, position
		 FROM content_items WHERE module_id = $1 ORDER BY position, id`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()
	var items []model.ContentItem
	for rows.Next() {
		var (
			it       model.ContentItem
			kind     string
			lessonID sql.NullString
			examID   sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.ModuleID, &kind, &lessonID, &examID, &it.Position); err != nil {
			return nil, err
		}
		it.Kind = model.ContentKind(kind)
		it.LessonID = lessonID.String
		it.ExamID = examID.String
		items = append(items, it)
	}
	return items, rows.Err()
}
