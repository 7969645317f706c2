package engine

import (
	"github.com/pavelanni/journeys/internal/model"
)

// Submission is one answer picked by the learner.
type Submission struct {
	QuestionID string `json:"question_id"`
	AnswerID   string `json:"answer_id"`
}

// QuestionResult is the per-question outcome of a scored submission.
type QuestionResult struct {
	QuestionID       string `json:"question_id"`
	SelectedAnswerID string `json:"selected_answer_id"`
	CorrectAnswerID  string `json:"correct_answer_id"`
	IsCorrect        bool   `json:"is_correct"`
}

// Scorecard is the outcome of Score.
type Scorecard struct {
	Score          int
	Approved       bool
	TotalQuestions int
	CorrectAnswers int
	Results        []QuestionResult
}

// Score validates submitted answers against the exam and grades them.
// Every question must be answered exactly once; nothing is scored otherwise.
func Score(questions []model.Question, answers []model.Answer, submitted []Submission) (Scorecard, error) {
	valid := make(map[string]bool, len(questions))
	for _, q := range questions {
		valid[q.ID] = true
	}
	correct := make(map[string]string, len(questions))
	for _, a := range answers {
		if a.IsCorrect && valid[a.QuestionID] {
			correct[a.QuestionID] = a.ID
		}
	}

	seen := make(map[string]bool, len(submitted))
	results := make([]QuestionResult, 0, len(submitted))
	correctCount := 0
	for _, s := range submitted {
		if !valid[s.QuestionID] {
			return Scorecard{}, newError(CodeExamQuestionNotFound, "question does not belong to exam", map[string]string{
				"QuestionID": s.QuestionID,
			})
		}
		if seen[s.QuestionID] {
			return Scorecard{}, newError(CodeDuplicateExamQuestionAnswer, "question answered more than once", map[string]string{
				"QuestionID": s.QuestionID,
			})
		}
		seen[s.QuestionID] = true

		key, hasKey := correct[s.QuestionID]
		ok := hasKey && s.AnswerID == key
		if ok {
			correctCount++
		}
		results = append(results, QuestionResult{
			QuestionID:       s.QuestionID,
			SelectedAnswerID: s.AnswerID,
			CorrectAnswerID:  key,
			IsCorrect:        ok,
		})
	}
	if len(seen) != len(questions) {
		return Scorecard{}, newError(CodeIncompleteExam, "not every question was answered", nil)
	}

	score := percent(correctCount, len(questions))
	return Scorecard{
		Score:          score,
		Approved:       score >= model.ApprovalThreshold,
		TotalQuestions: len(questions),
		CorrectAnswers: correctCount,
		Results:        results,
	}, nil
}

// percent returns done/total*100 rounded half up, or 0 when total is 0.
func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (done*200 + total) / (2 * total)
}
