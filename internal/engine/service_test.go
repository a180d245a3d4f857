package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/audit"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

type fakeServiceStore struct {
	enabledCount int
	tenant       *domain.Tenant
	sched        *domain.Schedule
	created      []*domain.Schedule
	updated      []*domain.Schedule
	deleted      []int64
}

func (s *fakeServiceStore) CreateSchedule(ctx context.Context, sched *domain.Schedule) error {
	sched.ID = int64(len(s.created) + 1)
	s.created = append(s.created, sched)
	return nil
}

func (s *fakeServiceStore) UpdateSchedule(ctx context.Context, sched *domain.Schedule) error {
	s.updated = append(s.updated, sched)
	return nil
}

func (s *fakeServiceStore) SoftDeleteSchedule(ctx context.Context, id int64, deletedBy int64) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeServiceStore) GetScheduleByID(ctx context.Context, id int64) (*domain.Schedule, error) {
	return s.sched, nil
}

func (s *fakeServiceStore) CountEnabledSchedules(ctx context.Context, tenantID int64) (int, error) {
	return s.enabledCount, nil
}

func (s *fakeServiceStore) GetTenantByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	return s.tenant, nil
}

type fakeOracle struct {
	allowed bool
}

func (o *fakeOracle) CanScheduleReports(ctx context.Context, userID int64, tenantID int64) (bool, error) {
	return o.allowed, nil
}

type fakeAuditStore struct {
	entries []*domain.AuditEntry
}

func (s *fakeAuditStore) CreateAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeAuditStore) byAction(action domain.AuditAction) []*domain.AuditEntry {
	matched := make([]*domain.AuditEntry, 0)
	for _, entry := range s.entries {
		if entry.Action == action {
			matched = append(matched, entry)
		}
	}
	return matched
}

func newTestService(store *fakeServiceStore, oracle *fakeOracle) (*Service, *fakeAuditStore, *fakeEnqueuer) {
	cfg := &config.Config{}
	cfg.Engine.MaxSchedulesPerTenant = 10

	auditStore := &fakeAuditStore{}
	queue := &fakeEnqueuer{}
	service := NewService(cfg, store, oracle, audit.NewRecorder(auditStore), queue)
	service.now = func() time.Time { return time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC) } // 周三
	return service, auditStore, queue
}

func weeklyInput() *ScheduleInput {
	dayOfWeek := 1
	return &ScheduleInput{
		Name:       "周一晨报",
		ReportID:   3,
		Frequency:  domain.FrequencyWeekly,
		TimeOfDay:  "09:00",
		DayOfWeek:  &dayOfWeek,
		Enabled:    true,
		Recipients: []string{"alice@corp.com", "bob@out.com"},
	}
}

func TestCreateScheduleComputesNextRunAndClassifies(t *testing.T) {
	store := &fakeServiceStore{
		tenant: &domain.Tenant{ID: 1, AllowedDomains: []string{"corp.com"}},
	}
	service, auditStore, _ := newTestService(store, &fakeOracle{allowed: true})

	sched, err := service.CreateSchedule(context.Background(), 5, 1, weeklyInput())
	if err != nil {
		t.Fatalf("CreateSchedule 返回错误: %v", err)
	}

	// 周三创建的周一计划落到下周一，而不是本周
	want := time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)
	if !sched.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, 期望 %v", sched.NextRunAt, want)
	}

	// 内外部标记在落库时就已经算好
	if sched.Recipients[0].IsExternal || sched.Recipients[0].Domain != "corp.com" {
		t.Errorf("alice 应该是内部收件人: %+v", sched.Recipients[0])
	}
	if !sched.Recipients[1].IsExternal {
		t.Errorf("bob 应该是外部收件人: %+v", sched.Recipients[1])
	}

	if len(auditStore.byAction(domain.AuditActionScheduleCreated)) != 1 {
		t.Error("创建计划应该写一条审计")
	}
	changed := auditStore.byAction(domain.AuditActionRecipientsChanged)
	if len(changed) != 1 {
		t.Fatal("新增外部收件人应该写一条收件人变更审计")
	}
	details := changed[0].Details.(domain.RecipientsChangedDetails)
	if len(details.AddedExternal) != 1 || details.AddedExternal[0] != "bob@out.com" {
		t.Errorf("新增外部收件人 = %v, 期望 [bob@out.com]", details.AddedExternal)
	}
}

func TestCreateScheduleRateLimit(t *testing.T) {
	store := &fakeServiceStore{
		enabledCount: 10,
		tenant:       &domain.Tenant{ID: 1},
	}
	service, auditStore, _ := newTestService(store, &fakeOracle{allowed: true})

	_, err := service.CreateSchedule(context.Background(), 5, 1, weeklyInput())

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) || !validationErr.RateLimited {
		t.Fatalf("超过限额应该返回限流类 ValidationError, got %v", err)
	}
	if len(store.created) != 0 {
		t.Error("被限流时不应落库")
	}
	if len(auditStore.byAction(domain.AuditActionRateLimitExceeded)) != 1 {
		t.Error("限流应该单独写一条审计")
	}
}

func TestCreateSchedulePermissionDenied(t *testing.T) {
	store := &fakeServiceStore{tenant: &domain.Tenant{ID: 1}}
	service, _, _ := newTestService(store, &fakeOracle{allowed: false})

	if _, err := service.CreateSchedule(context.Background(), 5, 1, weeklyInput()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("权限不足应该返回 ErrPermissionDenied, got %v", err)
	}
	if len(store.created) != 0 {
		t.Error("权限不足时不应落库")
	}
}

func TestCreateScheduleFailClosedWithoutDomains(t *testing.T) {
	store := &fakeServiceStore{tenant: &domain.Tenant{ID: 1}} // 未配置域名单
	service, _, _ := newTestService(store, &fakeOracle{allowed: true})

	sched, err := service.CreateSchedule(context.Background(), 5, 1, weeklyInput())
	if err != nil {
		t.Fatalf("CreateSchedule 返回错误: %v", err)
	}

	for _, recipient := range sched.Recipients {
		if !recipient.IsExternal {
			t.Errorf("未配置域名单时 %s 应该是外部收件人", recipient.Email)
		}
	}
}

func TestUpdateScheduleAuditsExternalDiff(t *testing.T) {
	dayOfWeek := 1
	store := &fakeServiceStore{
		tenant: &domain.Tenant{ID: 1, AllowedDomains: []string{"corp.com"}},
		sched: &domain.Schedule{
			ID: 9, TenantID: 1, ReportID: 3, Enabled: true,
			Frequency: domain.FrequencyWeekly, TimeOfDay: "09:00", DayOfWeek: &dayOfWeek,
			Recipients: []domain.Recipient{
				{Email: "alice@corp.com", Domain: "corp.com"},
				{Email: "old@out.com", Domain: "out.com", IsExternal: true},
			},
		},
	}
	service, auditStore, _ := newTestService(store, &fakeOracle{allowed: true})

	input := weeklyInput()
	input.Recipients = []string{"alice@corp.com", "new@out.com"}

	if _, err := service.UpdateSchedule(context.Background(), 5, 1, 9, input); err != nil {
		t.Fatalf("UpdateSchedule 返回错误: %v", err)
	}

	changed := auditStore.byAction(domain.AuditActionRecipientsChanged)
	if len(changed) != 1 {
		t.Fatal("外部收件人变更应该写一条审计")
	}
	details := changed[0].Details.(domain.RecipientsChangedDetails)
	if len(details.AddedExternal) != 1 || details.AddedExternal[0] != "new@out.com" {
		t.Errorf("新增外部收件人 = %v, 期望 [new@out.com]", details.AddedExternal)
	}
	if len(details.RemovedExternal) != 1 || details.RemovedExternal[0] != "old@out.com" {
		t.Errorf("移除外部收件人 = %v, 期望 [old@out.com]", details.RemovedExternal)
	}
}

func TestRunNowSharesIdempotencyPath(t *testing.T) {
	dueSlot := time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)
	store := &fakeServiceStore{
		sched: &domain.Schedule{
			ID: 9, TenantID: 1, ReportID: 3, Enabled: true, NextRunAt: dueSlot,
		},
	}
	service, _, queue := newTestService(store, &fakeOracle{allowed: true})

	accepted, err := service.RunNow(context.Background(), 5, 1, 9)
	if err != nil || !accepted {
		t.Fatalf("第一次手动触发应该成功, accepted=%v err=%v", accepted, err)
	}
	if !queue.jobs[0].DueSlot.Equal(dueSlot) {
		t.Errorf("手动触发应该使用当前的 next_run_at 作为到期槽位, got %v", queue.jobs[0].DueSlot)
	}

	// 同一个槽位再触发一次会被幂等路径挡下
	accepted, err = service.RunNow(context.Background(), 5, 1, 9)
	if err != nil {
		t.Fatalf("重复触发不应报错: %v", err)
	}
	if accepted {
		t.Error("同一个到期槽位的重复触发应该被跳过")
	}
}

func TestRunNowRejectsDisabledSchedule(t *testing.T) {
	store := &fakeServiceStore{
		sched: &domain.Schedule{ID: 9, TenantID: 1, Enabled: false},
	}
	service, _, _ := newTestService(store, &fakeOracle{allowed: true})

	_, err := service.RunNow(context.Background(), 5, 1, 9)
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("停用的计划手动触发应该返回 ValidationError, got %v", err)
	}
}
