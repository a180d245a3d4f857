package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

// 队列处理历史只保留最近若干条，避免无限增长
const queueOutcomeHistoryLimit = 100

func (r *Repository) RecordQueueOutcome(ctx context.Context, outcome *domain.QueueOutcome) error {
	query := `
		INSERT INTO queue_outcomes (schedule_id, due_slot, attempt, success, error, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	trim := `
		DELETE FROM queue_outcomes
		WHERE id NOT IN (SELECT id FROM queue_outcomes ORDER BY id DESC LIMIT $1)
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	args := []any{outcome.ScheduleID, outcome.DueSlot, outcome.Attempt, outcome.Success, outcome.Error, outcome.FinishedAt}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&outcome.ID); err != nil {
		return err
	}

	_, err := r.dbpool.ExecContext(ctx, trim, queueOutcomeHistoryLimit)
	return err
}

// GetRecentQueueOutcomes 返回最近的处理结果，新的在前
func (r *Repository) GetRecentQueueOutcomes(ctx context.Context, limit int) ([]*domain.QueueOutcome, error) {
	query := `
		SELECT id, schedule_id, due_slot, attempt, success, error, finished_at
		FROM queue_outcomes
		ORDER BY id DESC
		LIMIT $1
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := make([]*domain.QueueOutcome, 0)
	for rows.Next() {
		outcome := &domain.QueueOutcome{}
		if err := rows.Scan(
			&outcome.ID,
			&outcome.ScheduleID,
			&outcome.DueSlot,
			&outcome.Attempt,
			&outcome.Success,
			&outcome.Error,
			&outcome.FinishedAt,
		); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, rows.Err()
}
