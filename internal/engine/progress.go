package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/journeys/internal/model"
)

// JourneyProgressBySlug resolves the journey within a plant and returns the
// learner's progress through it.
func (s *Service) JourneyProgressBySlug(ctx context.Context, plantID, journeySlug, userID string) (model.JourneyProgress, error) {
	j, err := s.hierarchy.GetJourneyBySlug(ctx, plantID, journeySlug)
	if err != nil {
		return model.JourneyProgress{}, translateLookup(err, CodeJourneyNotFound, "journey", journeySlug)
	}
	return s.journeyProgress(ctx, j, userID)
}

// JourneyProgress counts completed lessons and passed exams across every
// module of the journey. Order is ignored: it answers how much was done, not
// what may be opened next.
func (s *Service) JourneyProgress(ctx context.Context, userID, journeyID string) (model.JourneyProgress, error) {
	j, err := s.hierarchy.GetJourney(ctx, journeyID)
	if err != nil {
		return model.JourneyProgress{}, translateLookup(err, CodeJourneyNotFound, "journey", journeyID)
	}
	return s.journeyProgress(ctx, j, userID)
}

func (s *Service) journeyProgress(ctx context.Context, j model.Journey, userID string) (_ model.JourneyProgress, err error) {
	ctx, span := tracer.Start(ctx, "engine.JourneyProgress", trace.WithAttributes(
		attribute.String("journey.id", j.ID),
	))
	defer func() { endSpan(span, err) }()

	modules, err := s.hierarchy.ListModules(ctx, j.ID)
	if err != nil {
		return model.JourneyProgress{}, fmt.Errorf("list modules: %w", err)
	}

	out := model.JourneyProgress{
		JourneyID:    j.ID,
		Slug:         j.Slug,
		Title:        j.Title,
		UserID:       userID,
		TotalModules: len(modules),
		Modules:      make([]model.ModuleProgress, 0, len(modules)),
	}
	for _, m := range modules {
		mp, err := s.moduleProgress(ctx, m, userID)
		if err != nil {
			return model.JourneyProgress{}, err
		}
		out.Modules = append(out.Modules, mp)
		out.TotalHours += m.Hours
		out.TotalItems += mp.TotalItems
		out.CompletedItems += mp.CompletedItems
	}
	out.Progress = percent(out.CompletedItems, out.TotalItems)
	out.Completed = out.Progress == 100
	return out, nil
}

func (s *Service) moduleProgress(ctx context.Context, m model.Module, userID string) (model.ModuleProgress, error) {
	items, err := s.hierarchy.ListContentItems(ctx, m.ID)
	if err != nil {
		return model.ModuleProgress{}, fmt.Errorf("list content items of module %s: %w", m.ID, err)
	}

	var lessonIDs, examIDs []string
	for _, item := range items {
		switch item.Kind {
		case model.ContentLesson:
			lessonIDs = append(lessonIDs, item.LessonID)
		case model.ContentExam:
			examIDs = append(examIDs, item.ExamID)
		default:
			return model.ModuleProgress{}, fmt.Errorf("content item %s: unknown kind %q", item.ID, item.Kind)
		}
	}

	completed := 0
	if len(lessonIDs) > 0 {
		done, err := s.lessons.ListCompletedLessonIDs(ctx, userID, lessonIDs)
		if err != nil {
			return model.ModuleProgress{}, fmt.Errorf("list completed lessons: %w", err)
		}
		completed += len(done)
	}
	if len(examIDs) > 0 {
		passed, err := s.attempts.ListPassedExamIDs(ctx, userID, examIDs)
		if err != nil {
			return model.ModuleProgress{}, fmt.Errorf("list passed exams: %w", err)
		}
		completed += len(passed)
	}

	total := len(items)
	p := percent(completed, total)
	return model.ModuleProgress{
		ModuleID:       m.ID,
		Slug:           m.Slug,
		Title:          m.Title,
		Hours:          m.Hours,
		TotalItems:     total,
		CompletedItems: completed,
		Progress:       p,
		Completed:      p == 100,
	}, nil
}
