package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

func TestRecordQueueOutcomeTrimsHistory(t *testing.T) {
	repo, mock := newTestRepository(t)

	finishedAt := time.Date(2025, 3, 17, 9, 1, 0, 0, time.UTC)
	dueSlot := time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO queue_outcomes").
		WithArgs(int64(42), dueSlot, 2, false, "渲染后端超时", finishedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	// 每次落库后把历史裁剪到最近 100 条
	mock.ExpectExec("DELETE FROM queue_outcomes").
		WithArgs(100).
		WillReturnResult(sqlmock.NewResult(0, 3))

	outcome := &domain.QueueOutcome{
		ScheduleID: 42,
		DueSlot:    dueSlot,
		Attempt:    2,
		Success:    false,
		Error:      "渲染后端超时",
		FinishedAt: finishedAt,
	}
	if err := repo.RecordQueueOutcome(context.Background(), outcome); err != nil {
		t.Fatalf("RecordQueueOutcome 返回错误: %v", err)
	}
	if outcome.ID != 7 {
		t.Errorf("落库后的 ID = %d, 期望 7", outcome.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetRecentQueueOutcomes(t *testing.T) {
	repo, mock := newTestRepository(t)

	finishedAt := time.Date(2025, 3, 17, 9, 1, 0, 0, time.UTC)
	dueSlot := time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)

	columns := []string{"id", "schedule_id", "due_slot", "attempt", "success", "error", "finished_at"}
	rows := sqlmock.NewRows(columns).
		AddRow(int64(8), int64(42), dueSlot, 1, true, "", finishedAt).
		AddRow(int64(7), int64(42), dueSlot, 2, false, "渲染后端超时", finishedAt)

	mock.ExpectQuery("SELECT (.+) FROM queue_outcomes").
		WithArgs(100).
		WillReturnRows(rows)

	outcomes, err := repo.GetRecentQueueOutcomes(context.Background(), 100)
	if err != nil {
		t.Fatalf("GetRecentQueueOutcomes 返回错误: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("历史记录数量 = %d, 期望 2", len(outcomes))
	}
	// 新的在前
	if outcomes[0].ID != 8 || !outcomes[0].Success {
		t.Errorf("首条记录不符: %+v", outcomes[0])
	}
	if outcomes[1].Error != "渲染后端超时" {
		t.Errorf("失败记录的错误信息不符: %+v", outcomes[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
