package domain

import "time"

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Execution 是执行台账中的一条记录，完成或失败后不再修改
type Execution struct {
	ID           int64           `json:"id"`
	ScheduleID   int64           `json:"scheduleID"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt"`
	Status       ExecutionStatus `json:"status"`
	EmailsSent   int             `json:"emailsSent"`
	EmailsFailed int             `json:"emailsFailed"`
	ErrorMessage *string         `json:"errorMessage"`
}
