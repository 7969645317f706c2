package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/journeys/internal/model"
)

// LessonStatus describes whether a learner finished a lesson.
type LessonStatus struct {
	Lesson    model.Lesson          `json:"lesson"`
	Completed bool                  `json:"completed"`
	Progress  *model.LessonProgress `json:"progress,omitempty"`
}

// CompleteLesson records that userID finished the lesson. Completing the same
// lesson twice is rejected with LESSON_ALREADY_COMPLETED.
func (s *Service) CompleteLesson(ctx context.Context, ref LessonRef, userID string) (_ model.LessonProgress, err error) {
	ctx, span := tracer.Start(ctx, "engine.CompleteLesson", trace.WithAttributes(
		attribute.String("journey.slug", ref.JourneySlug),
		attribute.String("module.slug", ref.ModuleSlug),
		attribute.String("lesson.id", ref.LessonID),
	))
	defer func() { endSpan(span, err) }()

	m, l, err := s.resolveLesson(ctx, ref)
	if err != nil {
		return model.LessonProgress{}, err
	}
	if err := s.gate.Check(ctx, m.ID, model.ContentRef{Kind: model.ContentLesson, ID: l.ID}, userID); err != nil {
		return model.LessonProgress{}, err
	}

	existing, err := s.lessons.FindLessonProgress(ctx, userID, l.ID)
	if err != nil {
		return model.LessonProgress{}, fmt.Errorf("find lesson progress: %w", err)
	}
	if existing != nil {
		return model.LessonProgress{}, lessonAlreadyCompleted(l.ID, nil)
	}

	p := model.LessonProgress{UserID: userID, LessonID: l.ID, CompletedAt: s.now()}
	if err := s.lessons.CreateLessonProgress(ctx, p); err != nil {
		if errors.Is(err, ErrRecordExists) {
			return model.LessonProgress{}, lessonAlreadyCompleted(l.ID, err)
		}
		return model.LessonProgress{}, wrapError(CodePersistence, "create lesson progress", nil, err)
	}

	slog.Info("lesson completed", "user_id", userID, "lesson_id", l.ID, "module_id", m.ID)
	return p, nil
}

// LessonStatus reports whether userID completed the lesson.
func (s *Service) LessonStatus(ctx context.Context, ref LessonRef, userID string) (LessonStatus, error) {
	_, l, err := s.resolveLesson(ctx, ref)
	if err != nil {
		return LessonStatus{}, err
	}
	p, err := s.lessons.FindLessonProgress(ctx, userID, l.ID)
	if err != nil {
		return LessonStatus{}, fmt.Errorf("find lesson progress: %w", err)
	}
	return LessonStatus{Lesson: l, Completed: p != nil, Progress: p}, nil
}

func lessonAlreadyCompleted(lessonID string, cause error) error {
	return wrapError(CodeLessonAlreadyCompleted, "lesson already completed", map[string]string{"LessonID": lessonID}, cause)
}
