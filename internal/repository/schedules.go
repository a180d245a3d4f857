package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

// CreateSchedule 在一个事务中写入计划和收件人
func (r *Repository) CreateSchedule(ctx context.Context, schedule *domain.Schedule) error {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO schedules (tenant_id, report_id, user_id, name, frequency, time_of_day, day_of_week, day_of_month, next_run_at, enabled, created_by, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		RETURNING id, updated_at, created_at, version
	`

	args := []any{schedule.TenantID, schedule.ReportID, schedule.UserID, schedule.Name, schedule.Frequency, schedule.TimeOfDay, schedule.DayOfWeek, schedule.DayOfMonth, schedule.NextRunAt, schedule.Enabled, schedule.CreatedBy, schedule.UpdatedBy}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&schedule.ID, &schedule.UpdatedAt, &schedule.CreatedAt, &schedule.Version); err != nil {
		return err
	}

	if err := insertRecipients(ctx, tx, schedule.ID, schedule.Recipients); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) GetScheduleByID(ctx context.Context, id int64) (*domain.Schedule, error) {
	query := `
		SELECT tenant_id, report_id, user_id, name, frequency, time_of_day, day_of_week, day_of_month, next_run_at, enabled, deleted_at, created_by, updated_by, updated_at, created_at, version
		FROM schedules WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	schedule := &domain.Schedule{
		ID: id,
	}

	dst := []any{&schedule.TenantID, &schedule.ReportID, &schedule.UserID, &schedule.Name, &schedule.Frequency, &schedule.TimeOfDay, &schedule.DayOfWeek, &schedule.DayOfMonth, &schedule.NextRunAt, &schedule.Enabled, &schedule.DeletedAt, &schedule.CreatedBy, &schedule.UpdatedBy, &schedule.UpdatedAt, &schedule.CreatedAt, &schedule.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}

	recipients, err := r.GetRecipientsByScheduleID(ctx, id)
	if err != nil {
		return nil, err
	}
	schedule.Recipients = recipients

	return schedule, nil
}

// GetDueSchedules 返回所有已启用、未删除且 next_run_at 不晚于 now 的计划
func (r *Repository) GetDueSchedules(ctx context.Context, now time.Time) ([]*domain.Schedule, error) {
	query := `
		SELECT id, tenant_id, report_id, user_id, name, frequency, time_of_day, day_of_week, day_of_month, next_run_at, enabled, created_by, updated_by, updated_at, created_at, version
		FROM schedules
		WHERE enabled = true AND deleted_at IS NULL AND next_run_at <= $1
		ORDER BY next_run_at
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := make([]*domain.Schedule, 0)
	for rows.Next() {
		schedule := &domain.Schedule{}
		dst := []any{&schedule.ID, &schedule.TenantID, &schedule.ReportID, &schedule.UserID, &schedule.Name, &schedule.Frequency, &schedule.TimeOfDay, &schedule.DayOfWeek, &schedule.DayOfMonth, &schedule.NextRunAt, &schedule.Enabled, &schedule.CreatedBy, &schedule.UpdatedBy, &schedule.UpdatedAt, &schedule.CreatedAt, &schedule.Version}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return schedules, nil
}

func (r *Repository) GetSchedulesByTenant(ctx context.Context, tenantID int64) ([]*domain.Schedule, error) {
	query := `
		SELECT id, report_id, user_id, name, frequency, time_of_day, day_of_week, day_of_month, next_run_at, enabled, created_by, updated_by, updated_at, created_at, version
		FROM schedules
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY id
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := make([]*domain.Schedule, 0)
	for rows.Next() {
		schedule := &domain.Schedule{TenantID: tenantID}
		dst := []any{&schedule.ID, &schedule.ReportID, &schedule.UserID, &schedule.Name, &schedule.Frequency, &schedule.TimeOfDay, &schedule.DayOfWeek, &schedule.DayOfMonth, &schedule.NextRunAt, &schedule.Enabled, &schedule.CreatedBy, &schedule.UpdatedBy, &schedule.UpdatedAt, &schedule.CreatedAt, &schedule.Version}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return schedules, nil
}

// UpdateSchedule 更新计划本身并整体替换收件人列表
func (r *Repository) UpdateSchedule(ctx context.Context, schedule *domain.Schedule) error {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE schedules
		SET
			name = $1,
			frequency = $2,
			time_of_day = $3,
			day_of_week = $4,
			day_of_month = $5,
			next_run_at = $6,
			enabled = $7,
			updated_by = $8,
			updated_at = now(),
			version = version + 1
		WHERE id = $9 AND version = $10
		RETURNING updated_at, version
	`

	args := []any{schedule.Name, schedule.Frequency, schedule.TimeOfDay, schedule.DayOfWeek, schedule.DayOfMonth, schedule.NextRunAt, schedule.Enabled, schedule.UpdatedBy, schedule.ID, schedule.Version}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&schedule.UpdatedAt, &schedule.Version); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE schedule_id = $1`, schedule.ID); err != nil {
		return err
	}
	if err := insertRecipients(ctx, tx, schedule.ID, schedule.Recipients); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateScheduleNextRun 只推进 next_run_at，执行流水线的第五步是唯一的调用方
func (r *Repository) UpdateScheduleNextRun(ctx context.Context, id int64, nextRunAt time.Time) error {
	query := `
		UPDATE schedules SET next_run_at = $1, version = version + 1 WHERE id = $2
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, query, nextRunAt, id)
	return err
}

// SoftDeleteSchedule 软删除，之后扫描器不再扫到这个计划
func (r *Repository) SoftDeleteSchedule(ctx context.Context, id int64, deletedBy int64) error {
	query := `
		UPDATE schedules
		SET deleted_at = now(), enabled = false, updated_by = $1, updated_at = now(), version = version + 1
		WHERE id = $2 AND deleted_at IS NULL
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, query, deletedBy, id)
	return err
}

// CountEnabledSchedules 统计租户当前启用且未删除的计划数量，用于限流检查
func (r *Repository) CountEnabledSchedules(ctx context.Context, tenantID int64) (int, error) {
	query := `
		SELECT count(*) FROM schedules WHERE tenant_id = $1 AND enabled = true AND deleted_at IS NULL
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	count := 0
	if err := r.dbpool.QueryRowContext(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}
