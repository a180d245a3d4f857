package domain

import "time"

type AuditAction string

const (
	AuditActionScheduleCreated   AuditAction = "schedule_created"
	AuditActionScheduleUpdated   AuditAction = "schedule_updated"
	AuditActionScheduleDeleted   AuditAction = "schedule_deleted"
	AuditActionRecipientsChanged AuditAction = "recipients_changed"
	AuditActionRateLimitExceeded AuditAction = "rate_limit_exceeded"
	AuditActionSecurityViolation AuditAction = "security_violation"
)

type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "info"
	AuditSeverityWarning  AuditSeverity = "warning"
	AuditSeverityCritical AuditSeverity = "critical"
)

type AuditEntry struct {
	ID         int64         `json:"id"`
	Action     AuditAction   `json:"action"`
	Severity   AuditSeverity `json:"severity"`
	ActorID    int64         `json:"actorID"`
	TenantID   int64         `json:"tenantID"`
	ResourceID int64         `json:"resourceID"`
	Details    AuditDetails  `json:"details"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// AuditDetails 把各种动作的附加信息建模成一组封闭的类型，
// 避免在数据库里堆积随意拼出来的 JSON。
type AuditDetails interface {
	AuditAction() AuditAction
}

type ScheduleCreatedDetails struct {
	Name           string    `json:"name"`
	Frequency      Frequency `json:"frequency"`
	RecipientCount int       `json:"recipientCount"`
	ExternalCount  int       `json:"externalCount"`
}

func (ScheduleCreatedDetails) AuditAction() AuditAction { return AuditActionScheduleCreated }

type ScheduleUpdatedDetails struct {
	Name string `json:"name"`
}

func (ScheduleUpdatedDetails) AuditAction() AuditAction { return AuditActionScheduleUpdated }

type ScheduleDeletedDetails struct {
	Name string `json:"name"`
}

func (ScheduleDeletedDetails) AuditAction() AuditAction { return AuditActionScheduleDeleted }

// RecipientsChangedDetails 记录收件人变更前后的概况，外部收件人逐个列出
type RecipientsChangedDetails struct {
	BeforeCount     int      `json:"beforeCount"`
	AfterCount      int      `json:"afterCount"`
	AddedExternal   []string `json:"addedExternal"`
	RemovedExternal []string `json:"removedExternal"`
}

func (RecipientsChangedDetails) AuditAction() AuditAction { return AuditActionRecipientsChanged }

type RateLimitExceededDetails struct {
	Limit   int `json:"limit"`
	Current int `json:"current"`
}

func (RateLimitExceededDetails) AuditAction() AuditAction { return AuditActionRateLimitExceeded }

type SecurityViolationDetails struct {
	Reason    string `json:"reason"`
	Recipient string `json:"recipient,omitempty"`
}

func (SecurityViolationDetails) AuditAction() AuditAction { return AuditActionSecurityViolation }
