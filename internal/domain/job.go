package domain

import (
	"fmt"
	"time"
)

// JobDescriptor 描述一次到期的报表投递任务，由扫描器或手动触发生成。
// DueSlot 为入队时计划的 next_run 时间，用作幂等键的一部分，
// 保证同一个到期槽位不会被重复入队。
type JobDescriptor struct {
	ScheduleID  int64     `json:"scheduleID"`
	TenantID    int64     `json:"tenantID"`
	ReportID    int64     `json:"reportID"`
	TriggeredBy int64     `json:"triggeredBy"`
	DueSlot     time.Time `json:"dueSlot"`
	Attempt     int       `json:"attempt"`
}

func (j *JobDescriptor) IdempotencyKey() string {
	return fmt.Sprintf("report_job_claim_%d_%d", j.ScheduleID, j.DueSlot.UTC().Unix())
}

// QueueOutcome 记录一次任务处理的结果，供看板和排障使用
type QueueOutcome struct {
	ID         int64     `json:"id"`
	ScheduleID int64     `json:"scheduleID"`
	DueSlot    time.Time `json:"dueSlot"`
	Attempt    int       `json:"attempt"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}
