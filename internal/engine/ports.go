package engine

import (
	"context"
	"time"

	"github.com/pavelanni/journeys/internal/model"
)

// HierarchyReader resolves the plant → journey → module → content chain.
// Get* methods return ErrRecordNotFound when nothing matches.
type HierarchyReader interface {
	GetJourneyBySlug(ctx context.Context, plantID, slug string) (model.Journey, error)
	GetJourney(ctx context.Context, journeyID string) (model.Journey, error)
	GetModuleBySlug(ctx context.Context, journeyID, slug string) (model.Module, error)
	ListModules(ctx context.Context, journeyID string) ([]model.Module, error)
	// GetLesson and GetExam only match content placed in the given module.
	GetLesson(ctx context.Context, moduleID, lessonID string) (model.Lesson, error)
	GetExam(ctx context.Context, moduleID, examID string) (model.Exam, error)
	// ListContentItems returns the module's items ordered by position.
	ListContentItems(ctx context.Context, moduleID string) ([]model.ContentItem, error)
}

// LessonProgressStore tracks lesson completion per user.
type LessonProgressStore interface {
	// FindLessonProgress returns nil when the user has not completed the lesson.
	FindLessonProgress(ctx context.Context, userID, lessonID string) (*model.LessonProgress, error)
	// CreateLessonProgress returns ErrRecordExists when the pair is already recorded.
	CreateLessonProgress(ctx context.Context, p model.LessonProgress) error
	ListCompletedLessonIDs(ctx context.Context, userID string, lessonIDs []string) ([]string, error)
}

// ExamCatalogReader reads the authored questions and answers of an exam.
type ExamCatalogReader interface {
	// ListQuestions returns the exam's questions ordered by position.
	ListQuestions(ctx context.Context, examID string) ([]model.Question, error)
	// ListAnswers returns the answers of the given questions ordered by question, then position.
	ListAnswers(ctx context.Context, questionIDs []string) ([]model.Answer, error)
}

// ExamAttemptStore persists exam attempts and their transitions.
type ExamAttemptStore interface {
	// FindActiveAttempt returns nil when no attempt is active.
	FindActiveAttempt(ctx context.Context, userID, examID string) (*model.ExamAttempt, error)
	// FindPassedAttempt returns nil when the user has not passed the exam.
	FindPassedAttempt(ctx context.Context, userID, examID string) (*model.ExamAttempt, error)
	ListPassedExamIDs(ctx context.Context, userID string, examIDs []string) ([]string, error)
	// RestartAttempt force-fails any active attempt of (a.UserID, a.ExamID) and
	// inserts a as the new active attempt, atomically. It returns the number of
	// attempts that were force-failed, or ErrAttemptPassed if the user already
	// passed the exam.
	RestartAttempt(ctx context.Context, a model.ExamAttempt) (int64, error)
	// FinishAttempt moves an active attempt to a finished state. It returns
	// ErrAttemptNotActive if the attempt was already finished.
	FinishAttempt(ctx context.Context, attemptID string, score int, approved bool, finishedAt time.Time) error
}
