// Package engine decides whether a learner may open a content item, runs the
// exam attempt lifecycle, scores submissions and aggregates journey progress.
// Storage is reached only through the narrow ports declared in ports.go.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/journeys/internal/model"
)

var tracer = otel.Tracer("github.com/pavelanni/journeys/internal/engine")

// Service exposes the engine operations.
type Service struct {
	hierarchy HierarchyReader
	lessons   LessonProgressStore
	catalog   ExamCatalogReader
	attempts  ExamAttemptStore
	gate      *Gate

	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator overrides how attempt ids are generated.
func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

// New creates a Service over the four ports.
func New(h HierarchyReader, l LessonProgressStore, c ExamCatalogReader, a ExamAttemptStore, opts ...Option) *Service {
	s := &Service{
		hierarchy: h,
		lessons:   l,
		catalog:   c,
		attempts:  a,
		gate:      NewGate(h, l, a),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LessonRef addresses a lesson through the hierarchy of a plant.
type LessonRef struct {
	PlantID     string
	JourneySlug string
	ModuleSlug  string
	LessonID    string
}

// ExamRef addresses an exam through the hierarchy of a plant.
type ExamRef struct {
	PlantID     string
	JourneySlug string
	ModuleSlug  string
	ExamID      string
}

// CheckAccess reports whether userID may open the target item of a module.
func (s *Service) CheckAccess(ctx context.Context, moduleID string, target model.ContentRef, userID string) (err error) {
	ctx, span := tracer.Start(ctx, "engine.CheckAccess", trace.WithAttributes(
		attribute.String("module.id", moduleID),
		attribute.String("content.kind", string(target.Kind)),
		attribute.String("content.id", target.ID),
	))
	defer func() { endSpan(span, err) }()

	return s.gate.Check(ctx, moduleID, target, userID)
}

// ResolveModule looks up a journey and one of its modules by slug.
func (s *Service) ResolveModule(ctx context.Context, plantID, journeySlug, moduleSlug string) (model.Journey, model.Module, error) {
	j, err := s.hierarchy.GetJourneyBySlug(ctx, plantID, journeySlug)
	if err != nil {
		return model.Journey{}, model.Module{}, translateLookup(err, CodeJourneyNotFound, "journey", journeySlug)
	}
	m, err := s.hierarchy.GetModuleBySlug(ctx, j.ID, moduleSlug)
	if err != nil {
		return model.Journey{}, model.Module{}, translateLookup(err, CodeModuleNotFound, "module", moduleSlug)
	}
	return j, m, nil
}

func (s *Service) resolveExam(ctx context.Context, ref ExamRef) (model.Module, model.Exam, error) {
	_, m, err := s.ResolveModule(ctx, ref.PlantID, ref.JourneySlug, ref.ModuleSlug)
	if err != nil {
		return model.Module{}, model.Exam{}, err
	}
	e, err := s.hierarchy.GetExam(ctx, m.ID, ref.ExamID)
	if err != nil {
		return model.Module{}, model.Exam{}, translateLookup(err, CodeExamNotFound, "exam", ref.ExamID)
	}
	return m, e, nil
}

func (s *Service) resolveLesson(ctx context.Context, ref LessonRef) (model.Module, model.Lesson, error) {
	_, m, err := s.ResolveModule(ctx, ref.PlantID, ref.JourneySlug, ref.ModuleSlug)
	if err != nil {
		return model.Module{}, model.Lesson{}, err
	}
	l, err := s.hierarchy.GetLesson(ctx, m.ID, ref.LessonID)
	if err != nil {
		return model.Module{}, model.Lesson{}, translateLookup(err, CodeLessonNotFound, "lesson", ref.LessonID)
	}
	return m, l, nil
}

// translateLookup maps ErrRecordNotFound to the given not-found code and
// passes other failures through with context.
func translateLookup(err error, code Code, what, key string) error {
	if errors.Is(err, ErrRecordNotFound) {
		return wrapError(code, what+" not found", map[string]string{"Key": key}, err)
	}
	return fmt.Errorf("get %s %s: %w", what, key, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
