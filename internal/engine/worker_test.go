package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/render"
)

type fakeWorkerStore struct {
	sched           *domain.Schedule
	report          *domain.Report
	queryResult     json.RawMessage
	queryErr        error
	created         []*domain.Execution
	finalized       []*domain.Execution
	nextRunAt       *time.Time
	cachedWrites    []json.RawMessage
	lastRenderError *string
	renderErrorSet  bool
}

func (s *fakeWorkerStore) GetScheduleByID(ctx context.Context, id int64) (*domain.Schedule, error) {
	return s.sched, nil
}

func (s *fakeWorkerStore) UpdateScheduleNextRun(ctx context.Context, id int64, nextRunAt time.Time) error {
	s.nextRunAt = &nextRunAt
	return nil
}

func (s *fakeWorkerStore) GetReportByID(ctx context.Context, id int64) (*domain.Report, error) {
	return s.report, nil
}

func (s *fakeWorkerStore) ExecuteReportQuery(ctx context.Context, query string) (json.RawMessage, error) {
	return s.queryResult, s.queryErr
}

func (s *fakeWorkerStore) UpdateReportCache(ctx context.Context, id int64, data json.RawMessage) error {
	s.cachedWrites = append(s.cachedWrites, data)
	return nil
}

func (s *fakeWorkerStore) UpdateReportRenderError(ctx context.Context, id int64, message *string) error {
	s.lastRenderError = message
	s.renderErrorSet = true
	return nil
}

func (s *fakeWorkerStore) CreateExecution(ctx context.Context, execution *domain.Execution) error {
	execution.ID = int64(len(s.created) + 1)
	execution.Status = domain.ExecutionStatusRunning
	s.created = append(s.created, execution)
	return nil
}

func (s *fakeWorkerStore) FinalizeExecution(ctx context.Context, execution *domain.Execution) error {
	s.finalized = append(s.finalized, execution)
	return nil
}

type fakeRenderer struct {
	image []byte
	err   error
}

func (r *fakeRenderer) Render(ctx context.Context, req *render.Request) ([]byte, error) {
	return r.image, r.err
}

type allowAllGate struct {
	rejected map[string]bool
	sendErr  error
}

func (g *allowAllGate) ValidateSend(ctx context.Context, actorID int64, tenantID int64, recipients []domain.Recipient) error {
	return g.sendErr
}

func (g *allowAllGate) ValidateRecipient(ctx context.Context, actorID int64, tenantID int64, recipient domain.Recipient) error {
	if g.rejected[recipient.Email] {
		return &domain.SecurityViolation{Reason: "收件人不在许可名单中", Recipient: recipient.Email}
	}
	return nil
}

type fakeTransport struct {
	failFor map[string]bool
	sentTo  []string
}

func (t *fakeTransport) Send(ctx context.Context, to string, subject string, htmlBody string, image []byte) (string, error) {
	if t.failFor[to] {
		return "", errors.New("SMTP 连接被重置")
	}
	t.sentTo = append(t.sentTo, to)
	return "<msg@test>", nil
}

func testSchedule() *domain.Schedule {
	dayOfWeek := 1
	return &domain.Schedule{
		ID:        7,
		TenantID:  1,
		ReportID:  3,
		UserID:    5,
		Name:      "周报",
		Frequency: domain.FrequencyWeekly,
		TimeOfDay: "09:00",
		DayOfWeek: &dayOfWeek,
		NextRunAt: time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC),
		Enabled:   true,
		Recipients: []domain.Recipient{
			{Email: "a@corp.com", Domain: "corp.com"},
			{Email: "b@corp.com", Domain: "corp.com"},
			{Email: "c@out.com", Domain: "out.com", IsExternal: true},
		},
	}
}

func testReport() *domain.Report {
	query := "SELECT 1 AS n"
	return &domain.Report{
		ID:          3,
		TenantID:    1,
		Name:        "销售概览",
		Query:       &query,
		CachedData:  json.RawMessage(`[{"n":0}]`),
		ChartConfig: json.RawMessage(`{"type":"bar"}`),
	}
}

func testJob() *domain.JobDescriptor {
	return &domain.JobDescriptor{
		ScheduleID:  7,
		TenantID:    1,
		ReportID:    3,
		TriggeredBy: 5,
		DueSlot:     time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC),
		Attempt:     1,
	}
}

func newTestWorker(store *fakeWorkerStore, renderer *fakeRenderer, gate Gate, transport *fakeTransport) *Worker {
	cfg := &config.Config{}
	cfg.Engine.MaxRecipientsPerSend = 20

	w := NewWorker(cfg, store, renderer, gate, transport)
	w.now = func() time.Time { return time.Date(2025, 3, 17, 9, 5, 0, 0, time.UTC) }
	return w
}

func TestWorkerPartialDelivery(t *testing.T) {
	store := &fakeWorkerStore{
		sched:       testSchedule(),
		report:      testReport(),
		queryResult: json.RawMessage(`[{"n":1}]`),
	}
	transport := &fakeTransport{failFor: map[string]bool{"b@corp.com": true}}
	worker := newTestWorker(store, &fakeRenderer{image: []byte("图")}, &allowAllGate{}, transport)

	if err := worker.Handle(context.Background(), testJob()); err != nil {
		t.Fatalf("部分投递失败不应让任务整体报错: %v", err)
	}

	if len(store.finalized) != 1 {
		t.Fatalf("应该写入一条台账记录, got %d", len(store.finalized))
	}
	execution := store.finalized[0]
	if execution.Status != domain.ExecutionStatusCompleted {
		t.Errorf("部分失败时整体状态应该是 completed, got %s", execution.Status)
	}
	if execution.EmailsSent != 2 || execution.EmailsFailed != 1 {
		t.Errorf("计数 = sent %d / failed %d, 期望 2 / 1", execution.EmailsSent, execution.EmailsFailed)
	}

	// 下一次运行时间以当前时间为基准推进，而不是原定槽位
	if store.nextRunAt == nil {
		t.Fatal("next_run_at 应该被推进")
	}
	want := time.Date(2025, 3, 24, 9, 0, 0, 0, time.UTC)
	if !store.nextRunAt.Equal(want) {
		t.Errorf("next_run_at = %v, 期望 %v", store.nextRunAt, want)
	}
}

func TestWorkerAllRecipientsFailed(t *testing.T) {
	store := &fakeWorkerStore{
		sched:       testSchedule(),
		report:      testReport(),
		queryResult: json.RawMessage(`[{"n":1}]`),
	}
	transport := &fakeTransport{failFor: map[string]bool{
		"a@corp.com": true, "b@corp.com": true, "c@out.com": true,
	}}
	worker := newTestWorker(store, &fakeRenderer{image: []byte("图")}, &allowAllGate{}, transport)

	if err := worker.Handle(context.Background(), testJob()); err != nil {
		t.Fatalf("Handle 返回错误: %v", err)
	}

	execution := store.finalized[0]
	if execution.Status != domain.ExecutionStatusFailed {
		t.Errorf("所有收件人失败时整体状态应该是 failed, got %s", execution.Status)
	}
	if execution.EmailsSent != 0 || execution.EmailsFailed != 3 {
		t.Errorf("计数 = sent %d / failed %d, 期望 0 / 3", execution.EmailsSent, execution.EmailsFailed)
	}
}

func TestWorkerRenderFailureIsFatalButAdvancesNextRun(t *testing.T) {
	store := &fakeWorkerStore{
		sched:       testSchedule(),
		report:      testReport(),
		queryResult: json.RawMessage(`[{"n":1}]`),
	}
	transport := &fakeTransport{}
	worker := newTestWorker(store, &fakeRenderer{err: errors.New("渲染产物超过上限")}, &allowAllGate{}, transport)

	err := worker.Handle(context.Background(), testJob())
	if !domain.IsRetryable(err) {
		t.Fatalf("渲染失败应该返回可重试错误, got %v", err)
	}

	if len(transport.sentTo) != 0 {
		t.Error("渲染失败后不应发出任何邮件")
	}
	if store.lastRenderError == nil || !strings.Contains(*store.lastRenderError, "超过上限") {
		t.Errorf("渲染错误应该被记录到报表上, got %v", store.lastRenderError)
	}
	if store.finalized[0].Status != domain.ExecutionStatusFailed {
		t.Errorf("台账状态应该是 failed, got %s", store.finalized[0].Status)
	}
	// 失败也要推进 next_run_at，计划不能卡在每次扫描都触发的状态
	if store.nextRunAt == nil {
		t.Error("失败的任务也应该推进 next_run_at")
	}
}

func TestWorkerQueryFailureFallsBackToCache(t *testing.T) {
	store := &fakeWorkerStore{
		sched:    testSchedule(),
		report:   testReport(),
		queryErr: errors.New("查询超时"),
	}
	transport := &fakeTransport{}
	worker := newTestWorker(store, &fakeRenderer{image: []byte("图")}, &allowAllGate{}, transport)

	// 有旧缓存时宁可用旧数据也不要整单失败
	if err := worker.Handle(context.Background(), testJob()); err != nil {
		t.Fatalf("有缓存时查询失败不应让任务报错: %v", err)
	}
	if store.finalized[0].Status != domain.ExecutionStatusCompleted {
		t.Errorf("状态应该是 completed, got %s", store.finalized[0].Status)
	}
	if len(store.cachedWrites) != 0 {
		t.Error("查询失败时不应回写缓存")
	}
}

func TestWorkerQueryFailureWithoutCacheFailsJob(t *testing.T) {
	report := testReport()
	report.CachedData = nil
	store := &fakeWorkerStore{
		sched:    testSchedule(),
		report:   report,
		queryErr: errors.New("查询超时"),
	}
	worker := newTestWorker(store, &fakeRenderer{image: []byte("图")}, &allowAllGate{}, &fakeTransport{})

	err := worker.Handle(context.Background(), testJob())
	if !domain.IsRetryable(err) {
		t.Fatalf("没有缓存可回退时应该返回可重试错误, got %v", err)
	}
	if store.finalized[0].Status != domain.ExecutionStatusFailed {
		t.Errorf("台账状态应该是 failed, got %s", store.finalized[0].Status)
	}
}

func TestWorkerSkipsDisabledSchedule(t *testing.T) {
	sched := testSchedule()
	sched.Enabled = false
	store := &fakeWorkerStore{sched: sched, report: testReport()}
	worker := newTestWorker(store, &fakeRenderer{image: []byte("图")}, &allowAllGate{}, &fakeTransport{})

	if err := worker.Handle(context.Background(), testJob()); err != nil {
		t.Fatalf("停用的计划应该被静默跳过: %v", err)
	}
	if len(store.created) != 0 {
		t.Error("跳过的任务不应该写台账")
	}
	if store.nextRunAt != nil {
		t.Error("跳过的任务不应该推进 next_run_at")
	}
}

func TestWorkerGateViolationAbortsDelivery(t *testing.T) {
	store := &fakeWorkerStore{
		sched:       testSchedule(),
		report:      testReport(),
		queryResult: json.RawMessage(`[{"n":1}]`),
	}
	gate := &allowAllGate{sendErr: &domain.SecurityViolation{Reason: "生产环境的邮件通道指向测试中继"}}
	transport := &fakeTransport{}
	worker := newTestWorker(store, &fakeRenderer{image: []byte("图")}, gate, transport)

	err := worker.Handle(context.Background(), testJob())
	var violation *domain.SecurityViolation
	if !errors.As(err, &violation) {
		t.Fatalf("任务级安全违规应该原样返回, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Error("安全违规不应被当作可重试错误")
	}
	if len(transport.sentTo) != 0 {
		t.Error("安全违规后不应发出任何邮件")
	}
}

func TestWorkerRejectedRecipientDoesNotAbortOthers(t *testing.T) {
	store := &fakeWorkerStore{
		sched:       testSchedule(),
		report:      testReport(),
		queryResult: json.RawMessage(`[{"n":1}]`),
	}
	gate := &allowAllGate{rejected: map[string]bool{"c@out.com": true}}
	transport := &fakeTransport{}
	worker := newTestWorker(store, &fakeRenderer{image: []byte("图")}, gate, transport)

	if err := worker.Handle(context.Background(), testJob()); err != nil {
		t.Fatalf("单个收件人被拒不应让任务报错: %v", err)
	}

	execution := store.finalized[0]
	if execution.EmailsSent != 2 || execution.EmailsFailed != 1 {
		t.Errorf("计数 = sent %d / failed %d, 期望 2 / 1", execution.EmailsSent, execution.EmailsFailed)
	}
	if execution.Status != domain.ExecutionStatusCompleted {
		t.Errorf("状态应该是 completed, got %s", execution.Status)
	}
}
