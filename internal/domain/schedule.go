package domain

import "time"

type Frequency string

const (
	FrequencyDaily      Frequency = "daily"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiAnnual Frequency = "semi_annual"
	FrequencyAnnual     Frequency = "annual"
)

type Schedule struct {
	ID         int64      `json:"id"`
	TenantID   int64      `json:"tenantID"`
	ReportID   int64      `json:"reportID"`
	UserID     int64      `json:"userID"`
	Name       string     `json:"name"`
	Frequency  Frequency  `json:"frequency"`
	TimeOfDay  string     `json:"timeOfDay"` // HH:MM，已由调用方换算成 UTC
	DayOfWeek  *int       `json:"dayOfWeek"` // 0~6，仅 weekly 使用
	DayOfMonth *int       `json:"dayOfMonth"`
	NextRunAt  time.Time  `json:"nextRunAt"`
	Enabled    bool       `json:"enabled"`
	DeletedAt  *time.Time `json:"deletedAt"`
	CreatedBy  int64      `json:"createdBy"`
	UpdatedBy  int64      `json:"updatedBy"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
	Version    int32      `json:"-"`

	Recipients []Recipient `json:"recipients,omitempty"`
}
