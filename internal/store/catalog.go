package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/journeys/internal/model"
)

// ListQuestions returns an exam's questions in display order.
func (s *Store) ListQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exam_id, text, position FROM questions WHERE exam_id = $1 ORDER BY position, id`, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Position); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListAnswers returns the answers of the given questions, including the
// correctness flag.
func (s *Store) ListAnswers(ctx context.Context, questionIDs []string) ([]model.Answer, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(questionIDs))
	for i, id := range questionIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, text, position, is_correct FROM answers
		 WHERE question_id IN (`+placeholders(1, len(questionIDs))+`)
		 ORDER BY question_id, position, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Text, &a.Position, &a.IsCorrect); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
