package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/journeys/internal/model"
)

/* ---------------- In-memory fake that satisfies all four engine ports ---------------- */

type fakeStore struct {
	mu sync.Mutex

	journeys  map[string]model.Journey
	modules   map[string]model.Module
	lessons   map[string]model.Lesson
	exams     map[string]model.Exam
	items     map[string][]model.ContentItem // key: module id
	questions map[string][]model.Question    // key: exam id
	answers   map[string][]model.Answer      // key: question id
	progress  map[string]model.LessonProgress
	attempts  map[string]model.ExamAttempt
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		journeys:  map[string]model.Journey{},
		modules:   map[string]model.Module{},
		lessons:   map[string]model.Lesson{},
		exams:     map[string]model.Exam{},
		items:     map[string][]model.ContentItem{},
		questions: map[string][]model.Question{},
		answers:   map[string][]model.Answer{},
		progress:  map[string]model.LessonProgress{},
		attempts:  map[string]model.ExamAttempt{},
	}
}

func progressKey(userID, lessonID string) string { return userID + "|" + lessonID }

func (s *fakeStore) GetJourneyBySlug(_ context.Context, plantID, slug string) (model.Journey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.journeys {
		if j.PlantID == plantID && j.Slug == slug {
			return j, nil
		}
	}
	return model.Journey{}, ErrRecordNotFound
}

func (s *fakeStore) GetJourney(_ context.Context, journeyID string) (model.Journey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.journeys[journeyID]
	if !ok {
		return model.Journey{}, ErrRecordNotFound
	}
	return j, nil
}

func (s *fakeStore) GetModuleBySlug(_ context.Context, journeyID, slug string) (model.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.modules {
		if m.JourneyID == journeyID && m.Slug == slug {
			return m, nil
		}
	}
	return model.Module{}, ErrRecordNotFound
}

func (s *fakeStore) ListModules(_ context.Context, journeyID string) ([]model.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Module
	for _, m := range s.modules {
		if m.JourneyID == journeyID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *fakeStore) GetLesson(_ context.Context, moduleID, lessonID string) (model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[moduleID] {
		if it.Kind == model.ContentLesson && it.LessonID == lessonID {
			return s.lessons[lessonID], nil
		}
	}
	return model.Lesson{}, ErrRecordNotFound
}

func (s *fakeStore) GetExam(_ context.Context, moduleID, examID string) (model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[moduleID] {
		if it.Kind == model.ContentExam && it.ExamID == examID {
			return s.exams[examID], nil
		}
	}
	return model.Exam{}, ErrRecordNotFound
}

func (s *fakeStore) ListContentItems(_ context.Context, moduleID string) ([]model.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ContentItem(nil), s.items[moduleID]...), nil
}

func (s *fakeStore) FindLessonProgress(_ context.Context, userID, lessonID string) (*model.LessonProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[progressKey(userID, lessonID)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *fakeStore) CreateLessonProgress(_ context.Context, p model.LessonProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := progressKey(p.UserID, p.LessonID)
	if _, ok := s.progress[k]; ok {
		return ErrRecordExists
	}
	s.progress[k] = p
	return nil
}

func (s *fakeStore) ListCompletedLessonIDs(_ context.Context, userID string, lessonIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range lessonIDs {
		if _, ok := s.progress[progressKey(userID, id)]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeStore) ListQuestions(_ context.Context, examID string) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Question(nil), s.questions[examID]...), nil
}

func (s *fakeStore) ListAnswers(_ context.Context, questionIDs []string) ([]model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Answer
	for _, id := range questionIDs {
		out = append(out, s.answers[id]...)
	}
	return out, nil
}

func (s *fakeStore) findLocked(userID, examID string, state model.AttemptState) *model.ExamAttempt {
	for _, a := range s.attempts {
		if a.UserID == userID && a.ExamID == examID && a.State() == state {
			a := a
			return &a
		}
	}
	return nil
}

func (s *fakeStore) FindActiveAttempt(_ context.Context, userID, examID string) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(userID, examID, model.AttemptActive), nil
}

func (s *fakeStore) FindPassedAttempt(_ context.Context, userID, examID string) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(userID, examID, model.AttemptFinishedPassed), nil
}

func (s *fakeStore) ListPassedExamIDs(_ context.Context, userID string, examIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range examIDs {
		if s.findLocked(userID, id, model.AttemptFinishedPassed) != nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeStore) RestartAttempt(_ context.Context, a model.ExamAttempt) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(a.UserID, a.ExamID, model.AttemptFinishedPassed) != nil {
		return 0, ErrAttemptPassed
	}
	var n int64
	for id, old := range s.attempts {
		if old.UserID == a.UserID && old.ExamID == a.ExamID && old.FinishedAt == nil {
			finished, zero, no := a.StartedAt, 0, false
			old.FinishedAt, old.Score, old.Approved = &finished, &zero, &no
			s.attempts[id] = old
			n++
		}
	}
	s.attempts[a.ID] = a
	return n, nil
}

func (s *fakeStore) FinishAttempt(_ context.Context, attemptID string, score int, approved bool, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok || a.FinishedAt != nil {
		return ErrAttemptNotActive
	}
	a.FinishedAt, a.Score, a.Approved = &finishedAt, &score, &approved
	s.attempts[attemptID] = a
	return nil
}

/* ---------------- Fixture builders ---------------- */

const (
	testPlant   = "plant-1"
	testJourney = "safety"
	testUser    = "user-1"
)

// addModule registers a journey (if needed) and a module in it.
func (s *fakeStore) addModule(journeyID, moduleID string, position, hours int) {
	s.journeys[journeyID] = model.Journey{ID: journeyID, PlantID: testPlant, Slug: journeyID, Title: journeyID}
	s.modules[moduleID] = model.Module{
		ID: moduleID, JourneyID: journeyID, Slug: moduleID, Title: moduleID, Position: position, Hours: hours,
	}
}

func (s *fakeStore) addLesson(moduleID, lessonID string) {
	s.lessons[lessonID] = model.Lesson{ID: lessonID, Title: lessonID}
	items := s.items[moduleID]
	s.items[moduleID] = append(items, model.ContentItem{
		ID: "ci-" + lessonID, ModuleID: moduleID, Kind: model.ContentLesson, LessonID: lessonID, Position: len(items) + 1,
	})
}

// addExam registers an exam whose question i has answersPer[i] answers; the
// correct answer of each question is the one at index correct[i].
func (s *fakeStore) addExam(moduleID, examID string, answersPer []int, correct []int) {
	s.exams[examID] = model.Exam{ID: examID, Title: examID}
	items := s.items[moduleID]
	s.items[moduleID] = append(items, model.ContentItem{
		ID: "ci-" + examID, ModuleID: moduleID, Kind: model.ContentExam, ExamID: examID, Position: len(items) + 1,
	})
	for qi, n := range answersPer {
		qID := fmt.Sprintf("%s-q%d", examID, qi+1)
		s.questions[examID] = append(s.questions[examID], model.Question{
			ID: qID, ExamID: examID, Text: qID, Position: qi + 1,
		})
		for ai := 0; ai < n; ai++ {
			s.answers[qID] = append(s.answers[qID], model.Answer{
				ID:         fmt.Sprintf("%s-a%d", qID, ai+1),
				QuestionID: qID,
				Text:       fmt.Sprintf("answer %d", ai+1),
				Position:   ai + 1,
				IsCorrect:  ai == correct[qi],
			})
		}
	}
}

func (s *fakeStore) correctAnswer(questionID string) string {
	for _, a := range s.answers[questionID] {
		if a.IsCorrect {
			return a.ID
		}
	}
	return ""
}

func (s *fakeStore) wrongAnswer(questionID string) string {
	for _, a := range s.answers[questionID] {
		if !a.IsCorrect {
			return a.ID
		}
	}
	return ""
}

func newTestService(t *testing.T, s *fakeStore) *Service {
	t.Helper()
	var mu sync.Mutex
	clock := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	seq := 0
	return New(s, s, s, s,
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Minute)
			return clock
		}),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("attempt-%d", seq)
		}),
	)
}

func lessonRef(moduleID, lessonID string) LessonRef {
	return LessonRef{PlantID: testPlant, JourneySlug: testJourney, ModuleSlug: moduleID, LessonID: lessonID}
}

func examRef(moduleID, examID string) ExamRef {
	return ExamRef{PlantID: testPlant, JourneySlug: testJourney, ModuleSlug: moduleID, ExamID: examID}
}
