package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/journeys/internal/model"
)

// AnswerOption is an answer as shown to a learner taking the exam.
type AnswerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ExamQuestion is a question as shown to a learner taking the exam.
type ExamQuestion struct {
	ID      string         `json:"id"`
	Text    string         `json:"text"`
	Answers []AnswerOption `json:"answers"`
}

// StartedExam is returned by StartExam.
type StartedExam struct {
	AttemptID string         `json:"attempt_id"`
	ExamID    string         `json:"exam_id"`
	Questions []ExamQuestion `json:"questions"`
}

// ExamResult is returned by FinishExam. Results is only set when the attempt
// passed, so a failed attempt does not reveal the correct answers.
type ExamResult struct {
	AttemptID      string           `json:"attempt_id"`
	Score          int              `json:"score"`
	Approved       bool             `json:"approved"`
	TotalQuestions int              `json:"total_questions"`
	CorrectAnswers int              `json:"correct_answers"`
	Results        []QuestionResult `json:"results,omitempty"`
}

// StartExam opens a new attempt for userID. An attempt that is still active
// is finished as failed with score 0 before the new one is created.
func (s *Service) StartExam(ctx context.Context, ref ExamRef, userID string) (_ StartedExam, err error) {
	ctx, span := tracer.Start(ctx, "engine.StartExam", trace.WithAttributes(
		attribute.String("journey.slug", ref.JourneySlug),
		attribute.String("module.slug", ref.ModuleSlug),
		attribute.String("exam.id", ref.ExamID),
	))
	defer func() { endSpan(span, err) }()

	m, e, err := s.resolveExam(ctx, ref)
	if err != nil {
		return StartedExam{}, err
	}

	passed, err := s.attempts.FindPassedAttempt(ctx, userID, e.ID)
	if err != nil {
		return StartedExam{}, fmt.Errorf("find passed attempt: %w", err)
	}
	if passed != nil {
		return StartedExam{}, examAlreadyCompleted(e.ID, nil)
	}

	if err := s.gate.Check(ctx, m.ID, model.ContentRef{Kind: model.ContentExam, ID: e.ID}, userID); err != nil {
		return StartedExam{}, err
	}

	questions, answers, err := s.loadExam(ctx, e.ID)
	if err != nil {
		return StartedExam{}, err
	}

	attempt := model.ExamAttempt{
		ID:        s.newID(),
		UserID:    userID,
		ExamID:    e.ID,
		StartedAt: s.now(),
	}
	discarded, err := s.attempts.RestartAttempt(ctx, attempt)
	if err != nil {
		if errors.Is(err, ErrAttemptPassed) {
			return StartedExam{}, examAlreadyCompleted(e.ID, err)
		}
		return StartedExam{}, wrapError(CodePersistence, "start attempt", nil, err)
	}
	if discarded > 0 {
		// The learner's unfinished attempt is lost without confirmation.
		slog.Warn("active attempt force-failed on restart",
			"user_id", userID, "exam_id", e.ID, "discarded", discarded)
	}
	slog.Info("exam attempt started", "user_id", userID, "exam_id", e.ID, "attempt_id", attempt.ID)

	return StartedExam{
		AttemptID: attempt.ID,
		ExamID:    e.ID,
		Questions: presentQuestions(questions, answers),
	}, nil
}

// FinishExam scores the submission against the learner's active attempt and
// closes it.
func (s *Service) FinishExam(ctx context.Context, ref ExamRef, userID string, submitted []Submission) (_ ExamResult, err error) {
	ctx, span := tracer.Start(ctx, "engine.FinishExam", trace.WithAttributes(
		attribute.String("journey.slug", ref.JourneySlug),
		attribute.String("module.slug", ref.ModuleSlug),
		attribute.String("exam.id", ref.ExamID),
		attribute.Int("submitted", len(submitted)),
	))
	defer func() { endSpan(span, err) }()

	_, e, err := s.resolveExam(ctx, ref)
	if err != nil {
		return ExamResult{}, err
	}

	passed, err := s.attempts.FindPassedAttempt(ctx, userID, e.ID)
	if err != nil {
		return ExamResult{}, fmt.Errorf("find passed attempt: %w", err)
	}
	if passed != nil {
		return ExamResult{}, examAlreadyCompleted(e.ID, nil)
	}

	active, err := s.attempts.FindActiveAttempt(ctx, userID, e.ID)
	if err != nil {
		return ExamResult{}, fmt.Errorf("find active attempt: %w", err)
	}
	if active == nil {
		return ExamResult{}, newError(CodeExamNotStarted, "no active attempt", map[string]string{"ExamID": e.ID})
	}

	questions, answers, err := s.loadExam(ctx, e.ID)
	if err != nil {
		return ExamResult{}, err
	}

	card, err := Score(questions, answers, submitted)
	if err != nil {
		return ExamResult{}, err
	}

	if err := s.attempts.FinishAttempt(ctx, active.ID, card.Score, card.Approved, s.now()); err != nil {
		if errors.Is(err, ErrAttemptNotActive) {
			// Another finish won the compare-and-swap.
			return ExamResult{}, examAlreadyCompleted(e.ID, wrapError(CodePersistence, "finish attempt", nil, err))
		}
		return ExamResult{}, wrapError(CodePersistence, "finish attempt", nil, err)
	}
	slog.Info("exam attempt finished",
		"user_id", userID, "exam_id", e.ID, "attempt_id", active.ID,
		"score", card.Score, "approved", card.Approved)

	res := ExamResult{
		AttemptID:      active.ID,
		Score:          card.Score,
		Approved:       card.Approved,
		TotalQuestions: card.TotalQuestions,
		CorrectAnswers: card.CorrectAnswers,
	}
	if card.Approved {
		res.Results = card.Results
	}
	return res, nil
}

// loadExam returns the exam's questions and answers, failing when the exam
// has no questions.
func (s *Service) loadExam(ctx context.Context, examID string) ([]model.Question, []model.Answer, error) {
	questions, err := s.catalog.ListQuestions(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil, newError(CodeExamHasNoQuestions, "exam has no questions", map[string]string{"ExamID": examID})
	}
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	answers, err := s.catalog.ListAnswers(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("list answers: %w", err)
	}
	return questions, answers, nil
}

// presentQuestions orders questions and answers by position and strips the
// correctness flag.
func presentQuestions(questions []model.Question, answers []model.Answer) []ExamQuestion {
	qs := append([]model.Question(nil), questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Position < qs[j].Position })

	byQuestion := make(map[string][]model.Answer, len(qs))
	for _, a := range answers {
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a)
	}

	out := make([]ExamQuestion, 0, len(qs))
	for _, q := range qs {
		as := byQuestion[q.ID]
		sort.SliceStable(as, func(i, j int) bool { return as[i].Position < as[j].Position })
		opts := make([]AnswerOption, 0, len(as))
		for _, a := range as {
			opts = append(opts, AnswerOption{ID: a.ID, Text: a.Text})
		}
		out = append(out, ExamQuestion{ID: q.ID, Text: q.Text, Answers: opts})
	}
	return out
}

func examAlreadyCompleted(examID string, cause error) error {
	return wrapError(CodeExamAlreadyCompleted, "exam already completed", map[string]string{"ExamID": examID}, cause)
}
