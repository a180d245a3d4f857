package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/audit"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/schedule"
)

var ErrPermissionDenied = errors.New("没有管理报表计划的权限")

type ServiceStore interface {
	CreateSchedule(ctx context.Context, sched *domain.Schedule) error
	UpdateSchedule(ctx context.Context, sched *domain.Schedule) error
	SoftDeleteSchedule(ctx context.Context, id int64, deletedBy int64) error
	GetScheduleByID(ctx context.Context, id int64) (*domain.Schedule, error)
	CountEnabledSchedules(ctx context.Context, tenantID int64) (int, error)
	GetTenantByID(ctx context.Context, id int64) (*domain.Tenant, error)
}

// PermissionOracle 是外部权限模型的是否断言，这里不关心它内部怎么判断
type PermissionOracle interface {
	CanScheduleReports(ctx context.Context, userID int64, tenantID int64) (bool, error)
}

// Service 承接计划的增删改和手动触发：权限校验、租户限额、
// 收件人分类落库、审计增量都在这一层
type Service struct {
	cfg     *config.Config
	store   ServiceStore
	oracle  PermissionOracle
	auditor *audit.Recorder
	queue   Enqueuer
	now     func() time.Time
}

func NewService(cfg *config.Config, store ServiceStore, oracle PermissionOracle, auditor *audit.Recorder, queue Enqueuer) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		oracle:  oracle,
		auditor: auditor,
		queue:   queue,
		now:     time.Now,
	}
}

type ScheduleInput struct {
	Name       string
	ReportID   int64
	Frequency  domain.Frequency
	TimeOfDay  string
	DayOfWeek  *int
	DayOfMonth *int
	Enabled    bool
	Recipients []string
}

func (s *Service) CreateSchedule(ctx context.Context, actorID int64, tenantID int64, input *ScheduleInput) (*domain.Schedule, error) {
	if err := s.authorize(ctx, actorID, tenantID); err != nil {
		return nil, err
	}

	if input.Enabled {
		if err := s.checkRateLimit(ctx, actorID, tenantID); err != nil {
			return nil, err
		}
	}

	tenant, err := s.store.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	classified := schedule.Classify(input.Recipients, tenant.AllowedDomains)

	nextRun, err := schedule.NextRun(input.Frequency, input.TimeOfDay, deref(input.DayOfWeek), deref(input.DayOfMonth), s.now().UTC())
	if err != nil {
		return nil, err
	}

	sched := &domain.Schedule{
		TenantID:   tenantID,
		ReportID:   input.ReportID,
		UserID:     actorID,
		Name:       input.Name,
		Frequency:  input.Frequency,
		TimeOfDay:  input.TimeOfDay,
		DayOfWeek:  input.DayOfWeek,
		DayOfMonth: input.DayOfMonth,
		NextRunAt:  nextRun,
		Enabled:    input.Enabled,
		CreatedBy:  actorID,
		UpdatedBy:  actorID,
		Recipients: toRecipients(classified),
	}

	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, domain.AuditSeverityInfo, actorID, tenantID, sched.ID, domain.ScheduleCreatedDetails{
		Name:           sched.Name,
		Frequency:      sched.Frequency,
		RecipientCount: len(classified),
		ExternalCount:  countExternal(classified),
	})

	// 新增的外部收件人单独记一条审计增量
	added, _ := schedule.Diff(nil, classified)
	if len(added) > 0 {
		s.auditor.Record(ctx, domain.AuditSeverityWarning, actorID, tenantID, sched.ID, domain.RecipientsChangedDetails{
			BeforeCount:     0,
			AfterCount:      len(classified),
			AddedExternal:   added,
			RemovedExternal: []string{},
		})
	}

	return sched, nil
}

func (s *Service) UpdateSchedule(ctx context.Context, actorID int64, tenantID int64, scheduleID int64, input *ScheduleInput) (*domain.Schedule, error) {
	if err := s.authorize(ctx, actorID, tenantID); err != nil {
		return nil, err
	}

	sched, err := s.getTenantSchedule(ctx, tenantID, scheduleID)
	if err != nil {
		return nil, err
	}

	// 从停用改为启用也要占用租户的限额
	if input.Enabled && !sched.Enabled {
		if err := s.checkRateLimit(ctx, actorID, tenantID); err != nil {
			return nil, err
		}
	}

	tenant, err := s.store.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	before := fromRecipients(sched.Recipients)
	after := schedule.Classify(input.Recipients, tenant.AllowedDomains)

	nextRun, err := schedule.NextRun(input.Frequency, input.TimeOfDay, deref(input.DayOfWeek), deref(input.DayOfMonth), s.now().UTC())
	if err != nil {
		return nil, err
	}

	sched.Name = input.Name
	sched.Frequency = input.Frequency
	sched.TimeOfDay = input.TimeOfDay
	sched.DayOfWeek = input.DayOfWeek
	sched.DayOfMonth = input.DayOfMonth
	sched.NextRunAt = nextRun
	sched.Enabled = input.Enabled
	sched.UpdatedBy = actorID
	sched.Recipients = toRecipients(after)

	if err := s.store.UpdateSchedule(ctx, sched); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, domain.AuditSeverityInfo, actorID, tenantID, sched.ID, domain.ScheduleUpdatedDetails{
		Name: sched.Name,
	})

	addedExternal, removedExternal := schedule.Diff(before, after)
	if len(addedExternal) > 0 || len(removedExternal) > 0 {
		s.auditor.Record(ctx, domain.AuditSeverityWarning, actorID, tenantID, sched.ID, domain.RecipientsChangedDetails{
			BeforeCount:     len(before),
			AfterCount:      len(after),
			AddedExternal:   addedExternal,
			RemovedExternal: removedExternal,
		})
	}

	return sched, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, actorID int64, tenantID int64, scheduleID int64) error {
	if err := s.authorize(ctx, actorID, tenantID); err != nil {
		return err
	}

	sched, err := s.getTenantSchedule(ctx, tenantID, scheduleID)
	if err != nil {
		return err
	}

	if err := s.store.SoftDeleteSchedule(ctx, sched.ID, actorID); err != nil {
		return err
	}

	s.auditor.Record(ctx, domain.AuditSeverityInfo, actorID, tenantID, sched.ID, domain.ScheduleDeletedDetails{
		Name: sched.Name,
	})

	return nil
}

// RunNow 手动触发一次投递：用计划当前的 next_run_at 作为到期槽位，
// 和扫描器走同一条幂等路径，两边同时抢一个槽位时只会有一个任务
func (s *Service) RunNow(ctx context.Context, actorID int64, tenantID int64, scheduleID int64) (bool, error) {
	if err := s.authorize(ctx, actorID, tenantID); err != nil {
		return false, err
	}

	sched, err := s.getTenantSchedule(ctx, tenantID, scheduleID)
	if err != nil {
		return false, err
	}
	if !sched.Enabled {
		return false, domain.NewValidationError("计划已停用，无法手动触发")
	}

	job := &domain.JobDescriptor{
		ScheduleID:  sched.ID,
		TenantID:    sched.TenantID,
		ReportID:    sched.ReportID,
		TriggeredBy: actorID,
		DueSlot:     sched.NextRunAt.UTC(),
	}

	return s.queue.Enqueue(ctx, job)
}

func (s *Service) authorize(ctx context.Context, actorID int64, tenantID int64) error {
	allowed, err := s.oracle.CanScheduleReports(ctx, actorID, tenantID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrPermissionDenied
	}
	return nil
}

func (s *Service) checkRateLimit(ctx context.Context, actorID int64, tenantID int64) error {
	count, err := s.store.CountEnabledSchedules(ctx, tenantID)
	if err != nil {
		return err
	}
	limit := s.cfg.Engine.MaxSchedulesPerTenant
	if count >= limit {
		s.auditor.Record(ctx, domain.AuditSeverityWarning, actorID, tenantID, 0, domain.RateLimitExceededDetails{
			Limit:   limit,
			Current: count,
		})
		return domain.NewRateLimitError(limit, count)
	}
	return nil
}

func (s *Service) getTenantSchedule(ctx context.Context, tenantID int64, scheduleID int64) (*domain.Schedule, error) {
	sched, err := s.store.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sched.TenantID != tenantID || sched.DeletedAt != nil {
		return nil, domain.NewValidationError("计划不存在")
	}
	return sched, nil
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func toRecipients(classified []schedule.ClassifiedRecipient) []domain.Recipient {
	recipients := make([]domain.Recipient, len(classified))
	for i, c := range classified {
		recipients[i] = domain.Recipient{
			Email:      c.Email,
			Domain:     c.Domain,
			IsExternal: c.IsExternal,
		}
	}
	return recipients
}

func fromRecipients(recipients []domain.Recipient) []schedule.ClassifiedRecipient {
	classified := make([]schedule.ClassifiedRecipient, len(recipients))
	for i, r := range recipients {
		classified[i] = schedule.ClassifiedRecipient{
			Email:      r.Email,
			Domain:     r.Domain,
			IsExternal: r.IsExternal,
		}
	}
	return classified
}

func countExternal(classified []schedule.ClassifiedRecipient) int {
	count := 0
	for _, c := range classified {
		if c.IsExternal {
			count++
		}
	}
	return count
}
