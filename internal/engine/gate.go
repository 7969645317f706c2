package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/pavelanni/journeys/internal/model"
)

// Gate enforces sequential unlocking of content items within a module.
type Gate struct {
	hierarchy HierarchyReader
	lessons   LessonProgressStore
	attempts  ExamAttemptStore
}

// NewGate creates a Gate over the given readers.
func NewGate(h HierarchyReader, l LessonProgressStore, a ExamAttemptStore) *Gate {
	return &Gate{hierarchy: h, lessons: l, attempts: a}
}

// Check returns nil when userID may attempt target now. The item right before
// target must be completed: a lesson needs a progress row, an exam needs a
// passed attempt. The first item of a module never locks.
func (g *Gate) Check(ctx context.Context, moduleID string, target model.ContentRef, userID string) error {
	items, err := g.hierarchy.ListContentItems(ctx, moduleID)
	if err != nil {
		return fmt.Errorf("list content items: %w", err)
	}
	sortContentItems(items)

	idx := -1
	for i, item := range items {
		if item.Ref() == target {
			idx = i
			break
		}
	}
	if idx == -1 {
		return notFoundForRef(target)
	}
	if idx == 0 {
		return nil
	}

	prev := items[idx-1]
	switch prev.Kind {
	case model.ContentLesson:
		p, err := g.lessons.FindLessonProgress(ctx, userID, prev.LessonID)
		if err != nil {
			return fmt.Errorf("find lesson progress: %w", err)
		}
		if p == nil {
			return newError(CodeLessonLocked, "previous lesson not completed", map[string]string{
				"LessonID": prev.LessonID,
			})
		}
	case model.ContentExam:
		a, err := g.attempts.FindPassedAttempt(ctx, userID, prev.ExamID)
		if err != nil {
			return fmt.Errorf("find passed attempt: %w", err)
		}
		if a == nil {
			return newError(CodeExamLocked, "previous exam not passed", map[string]string{
				"ExamID": prev.ExamID,
			})
		}
	default:
		return fmt.Errorf("content item %s: unknown kind %q", prev.ID, prev.Kind)
	}
	return nil
}

// sortContentItems orders items by position, breaking ties by id so that
// gaps or duplicate positions still give a stable sequence.
func sortContentItems(items []model.ContentItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].ID < items[j].ID
	})
}

func notFoundForRef(ref model.ContentRef) error {
	switch ref.Kind {
	case model.ContentLesson:
		return newError(CodeLessonNotFound, "lesson not in module", map[string]string{"LessonID": ref.ID})
	case model.ContentExam:
		return newError(CodeExamNotFound, "exam not in module", map[string]string{"ExamID": ref.ID})
	default:
		return newError(CodeContentItemNotFound, "content item not in module", map[string]string{"ID": ref.ID})
	}
}
