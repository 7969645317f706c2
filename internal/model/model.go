package model

import (
	"context"
	"fmt"
	"time"
)

// ApprovalThreshold is the minimum score (out of 100) that passes an exam.
const ApprovalThreshold = 80

// ContentKind discriminates what a content item points to.
type ContentKind string

const (
	// ContentLesson marks a content item that references a lesson.
	ContentLesson ContentKind = "lesson"
	// ContentExam marks a content item that references an exam.
	ContentExam ContentKind = "exam"
)

// ParseContentKind converts a raw string into a known ContentKind.
func ParseContentKind(s string) (ContentKind, error) {
	switch ContentKind(s) {
	case ContentLesson, ContentExam:
		return ContentKind(s), nil
	default:
		return "", fmt.Errorf("unknown content kind %q", s)
	}
}

// Plant is the tenant boundary. Every hierarchy lookup is scoped to one plant.
type Plant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Journey is a top-level training track made of ordered modules.
type Journey struct {
	ID       string `json:"id"`
	PlantID  string `json:"plant_id"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// Module is an ordered container of content items within a journey.
type Module struct {
	ID        string `json:"id"`
	JourneyID string `json:"journey_id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Hours     int    `json:"hours"`
	Position  int    `json:"position"`
}

// ContentRef identifies the lesson or exam behind a content item.
type ContentRef struct {
	Kind ContentKind `json:"kind"`
	ID   string      `json:"id"`
}

// ContentItem positions a lesson or an exam inside a module.
// Exactly one of LessonID and ExamID is set, matching Kind.
type ContentItem struct {
	ID       string      `json:"id"`
	ModuleID string      `json:"module_id"`
	Kind     ContentKind `json:"kind"`
	LessonID string      `json:"lesson_id,omitempty"`
	ExamID   string      `json:"exam_id,omitempty"`
	Position int         `json:"position"`
}

// Validate checks that the populated reference matches the kind.
func (c ContentItem) Validate() error {
	switch c.Kind {
	case ContentLesson:
		if c.LessonID == "" || c.ExamID != "" {
			return fmt.Errorf("content item %s: lesson item must reference only a lesson", c.ID)
		}
	case ContentExam:
		if c.ExamID == "" || c.LessonID != "" {
			return fmt.Errorf("content item %s: exam item must reference only an exam", c.ID)
		}
	default:
		return fmt.Errorf("content item %s: unknown kind %q", c.ID, c.Kind)
	}
	return nil
}

// Ref returns the lesson or exam reference of the item.
func (c ContentItem) Ref() ContentRef {
	if c.Kind == ContentExam {
		return ContentRef{Kind: ContentExam, ID: c.ExamID}
	}
	return ContentRef{Kind: ContentLesson, ID: c.LessonID}
}

// Lesson is a unit of reading material.
type Lesson struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// Exam is an ordered set of multiple-choice questions.
type Exam struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Question belongs to an exam.
type Question struct {
	ID       string `json:"id"`
	ExamID   string `json:"exam_id"`
	Text     string `json:"text"`
	Position int    `json:"position"`
}

// Answer is one option of a question. Exactly one answer per question is correct.
type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	Position   int    `json:"position"`
	IsCorrect  bool   `json:"is_correct"`
}

// LessonProgress records that a user finished a lesson.
type LessonProgress struct {
	UserID      string    `json:"user_id"`
	LessonID    string    `json:"lesson_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// AttemptState is derived from the finished_at and approved columns of an attempt.
type AttemptState string

const (
	AttemptActive         AttemptState = "active"
	AttemptFinishedFailed AttemptState = "finished_failed"
	AttemptFinishedPassed AttemptState = "finished_passed"
)

// ExamAttempt is one instance of a user attempting an exam.
type ExamAttempt struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	ExamID     string     `json:"exam_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Score      *int       `json:"score,omitempty"`
	Approved   *bool      `json:"approved,omitempty"`
}

// State reports the lifecycle state of the attempt.
func (a ExamAttempt) State() AttemptState {
	if a.FinishedAt == nil {
		return AttemptActive
	}
	if a.Approved != nil && *a.Approved {
		return AttemptFinishedPassed
	}
	return AttemptFinishedFailed
}

// Learner is the authenticated caller of the engine.
type Learner struct {
	ID      string
	PlantID string
}

type learnerCtxKey struct{}

// ContextWithLearner stores the authenticated learner in the request context.
func ContextWithLearner(ctx context.Context, l *Learner) context.Context {
	return context.WithValue(ctx, learnerCtxKey{}, l)
}

// LearnerFromContext retrieves the authenticated learner from context, or nil.
func LearnerFromContext(ctx context.Context) *Learner {
	l, _ := ctx.Value(learnerCtxKey{}).(*Learner)
	return l
}
