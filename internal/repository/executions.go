package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

// CreateExecution 在流水线开始时插入一条 running 状态的台账记录
func (r *Repository) CreateExecution(ctx context.Context, execution *domain.Execution) error {
	query := `
		INSERT INTO executions (schedule_id, started_at, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	execution.Status = domain.ExecutionStatusRunning
	return r.dbpool.QueryRowContext(ctx, query, execution.ScheduleID, execution.StartedAt, execution.Status).Scan(&execution.ID)
}

// FinalizeExecution 写入最终状态，之后这条记录不再被修改
func (r *Repository) FinalizeExecution(ctx context.Context, execution *domain.Execution) error {
	query := `
		UPDATE executions
		SET completed_at = now(), status = $1, emails_sent = $2, emails_failed = $3, error_message = $4
		WHERE id = $5 AND status = 'running'
		RETURNING completed_at
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	args := []any{execution.Status, execution.EmailsSent, execution.EmailsFailed, execution.ErrorMessage, execution.ID}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(&execution.CompletedAt)
}

func (r *Repository) GetExecutionsByScheduleID(ctx context.Context, scheduleID int64, limit int) ([]*domain.Execution, error) {
	query := `
		SELECT id, started_at, completed_at, status, emails_sent, emails_failed, error_message
		FROM executions
		WHERE schedule_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, scheduleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	executions := make([]*domain.Execution, 0)
	for rows.Next() {
		execution := &domain.Execution{ScheduleID: scheduleID}
		dst := []any{&execution.ID, &execution.StartedAt, &execution.CompletedAt, &execution.Status, &execution.EmailsSent, &execution.EmailsFailed, &execution.ErrorMessage}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return executions, nil
}
