package model

import (
	"errors"
	"fmt"
)

const (
	minAnswersPerQuestion = 2
	maxAnswersPerQuestion = 5
)

// Catalog is the fixture format loaded by the import command.
type Catalog struct {
	Plant    Plant            `json:"plant"`
	Journeys []CatalogJourney `json:"journeys"`
}

// CatalogJourney is a journey with its modules.
type CatalogJourney struct {
	ID      string          `json:"id,omitempty"`
	Slug    string          `json:"slug"`
	Title   string          `json:"title"`
	Modules []CatalogModule `json:"modules"`
}

// CatalogModule is a module with its ordered content.
type CatalogModule struct {
	ID    string        `json:"id,omitempty"`
	Slug  string        `json:"slug"`
	Title string        `json:"title"`
	Hours int           `json:"hours"`
	Items []CatalogItem `json:"items"`
}

// CatalogItem carries either a lesson or an exam, as named by Kind.
type CatalogItem struct {
	Kind   ContentKind  `json:"kind"`
	Lesson *Lesson      `json:"lesson,omitempty"`
	Exam   *CatalogExam `json:"exam,omitempty"`
}

// CatalogExam is an exam with its questions.
type CatalogExam struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Questions []CatalogQuestion `json:"questions"`
}

// CatalogQuestion is a question with its answer options.
type CatalogQuestion struct {
	ID      string          `json:"id"`
	Text    string          `json:"text"`
	Answers []CatalogAnswer `json:"answers"`
}

// CatalogAnswer is one answer option.
type CatalogAnswer struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Validate enforces the authoring invariants the engine assumes as preconditions.
func (c Catalog) Validate() error {
	if c.Plant.ID == "" {
		return errors.New("plant id is required")
	}
	journeySlugs := map[string]bool{}
	for _, j := range c.Journeys {
		if j.Slug == "" {
			return errors.New("journey slug is required")
		}
		if journeySlugs[j.Slug] {
			return fmt.Errorf("duplicate journey slug %q", j.Slug)
		}
		journeySlugs[j.Slug] = true

		moduleSlugs := map[string]bool{}
		for _, m := range j.Modules {
			if m.Slug == "" {
				return fmt.Errorf("journey %s: module slug is required", j.Slug)
			}
			if moduleSlugs[m.Slug] {
				return fmt.Errorf("journey %s: duplicate module slug %q", j.Slug, m.Slug)
			}
			moduleSlugs[m.Slug] = true
			for i, item := range m.Items {
				if err := item.validate(); err != nil {
					return fmt.Errorf("journey %s, module %s, item %d: %w", j.Slug, m.Slug, i+1, err)
				}
			}
		}
	}
	return nil
}

func (it CatalogItem) validate() error {
	switch it.Kind {
	case ContentLesson:
		if it.Lesson == nil || it.Exam != nil {
			return errors.New("lesson item must carry only a lesson")
		}
		if it.Lesson.ID == "" {
			return errors.New("lesson id is required")
		}
		if it.Lesson.Title == "" {
			return errors.New("lesson title is required")
		}
	case ContentExam:
		if it.Exam == nil || it.Lesson != nil {
			return errors.New("exam item must carry only an exam")
		}
		if it.Exam.ID == "" {
			return errors.New("exam id is required")
		}
		for qi, q := range it.Exam.Questions {
			if err := q.validate(); err != nil {
				return fmt.Errorf("question %d: %w", qi+1, err)
			}
		}
	default:
		return fmt.Errorf("unknown kind %q", it.Kind)
	}
	return nil
}

// Exam content needs stable IDs: a re-import matches questions and answers by
// ID, and submissions reference them.
func (q CatalogQuestion) validate() error {
	if q.ID == "" {
		return errors.New("question id is required")
	}
	if q.Text == "" {
		return errors.New("question text is required")
	}
	if n := len(q.Answers); n < minAnswersPerQuestion || n > maxAnswersPerQuestion {
		return fmt.Errorf("question must have %d-%d answers, got %d", minAnswersPerQuestion, maxAnswersPerQuestion, n)
	}
	correct := 0
	for ai, a := range q.Answers {
		if a.ID == "" {
			return fmt.Errorf("answer %d: answer id is required", ai+1)
		}
		if a.Correct {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("question must have exactly one correct answer, got %d", correct)
	}
	return nil
}
