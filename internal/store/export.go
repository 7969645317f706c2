package store

import (
	"context"
	"fmt"
)

// ListJourneyLearners returns every user with a completed lesson or an exam
// attempt anywhere in the journey.
func (s *Store) ListJourneyLearners(ctx context.Context, journeyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lp.user_id FROM lesson_progress lp
		 JOIN content_items ci ON ci.lesson_id = lp.lesson_id
		 JOIN modules m ON m.id = ci.module_id
		 WHERE m.journey_id = $1
		 UNION
		 SELECT ea.user_id FROM exam_attempts ea
		 JOIN content_items ci ON ci.exam_id = ea.exam_id
		 JOIN modules m ON m.id = ci.module_id
		 WHERE m.journey_id = $1
		 ORDER BY 1`, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list journey learners: %w", err)
	}
	return scanIDs(rows)
}
