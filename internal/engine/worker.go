package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/delivery"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/render"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/schedule"
)

type WorkerStore interface {
	GetScheduleByID(ctx context.Context, id int64) (*domain.Schedule, error)
	UpdateScheduleNextRun(ctx context.Context, id int64, nextRunAt time.Time) error
	GetReportByID(ctx context.Context, id int64) (*domain.Report, error)
	ExecuteReportQuery(ctx context.Context, query string) (json.RawMessage, error)
	UpdateReportCache(ctx context.Context, id int64, data json.RawMessage) error
	UpdateReportRenderError(ctx context.Context, id int64, message *string) error
	CreateExecution(ctx context.Context, execution *domain.Execution) error
	FinalizeExecution(ctx context.Context, execution *domain.Execution) error
}

type Renderer interface {
	Render(ctx context.Context, req *render.Request) ([]byte, error)
}

type Gate interface {
	ValidateSend(ctx context.Context, actorID int64, tenantID int64, recipients []domain.Recipient) error
	ValidateRecipient(ctx context.Context, actorID int64, tenantID int64, recipient domain.Recipient) error
}

// Worker 执行一个到期任务的完整流水线：
// 刷新数据 -> 渲染图表 -> 逐个收件人投递 -> 写台账 -> 推进 next_run_at
type Worker struct {
	cfg       *config.Config
	store     WorkerStore
	renderer  Renderer
	gate      Gate
	transport delivery.Transport
	now       func() time.Time
}

func NewWorker(cfg *config.Config, store WorkerStore, renderer Renderer, gate Gate, transport delivery.Transport) *Worker {
	return &Worker{
		cfg:       cfg,
		store:     store,
		renderer:  renderer,
		gate:      gate,
		transport: transport,
		now:       time.Now,
	}
}

func (w *Worker) Handle(ctx context.Context, job *domain.JobDescriptor) error {
	sched, err := w.store.GetScheduleByID(ctx, job.ScheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Warn("计划不存在，跳过任务", "scheduleID", job.ScheduleID)
			return nil
		}
		return domain.NewTransientError(domain.StageFetchingData, err)
	}
	if !sched.Enabled || sched.DeletedAt != nil {
		slog.Info("计划已停用或删除，跳过任务", "scheduleID", sched.ID)
		return nil
	}

	// 不论成败都推进 next_run_at，且以当前时间为基准而不是原定槽位：
	// 永久性的故障不会让计划卡在每次扫描都触发的状态，
	// 晚点执行的任务也不会引发一连串的补跑
	defer w.advanceNextRun(ctx, sched)

	execution := &domain.Execution{
		ScheduleID: sched.ID,
		StartedAt:  w.now().UTC(),
	}
	if err := w.store.CreateExecution(ctx, execution); err != nil {
		return domain.NewTransientError(domain.StageRecording, err)
	}

	// 第一步：刷新数据
	report, err := w.store.GetReportByID(ctx, job.ReportID)
	if err != nil {
		w.fail(ctx, execution, fmt.Sprintf("读取报表失败: %v", err))
		return domain.NewTransientError(domain.StageFetchingData, err)
	}

	data := report.CachedData
	if report.Query != nil {
		fresh, qerr := w.store.ExecuteReportQuery(ctx, *report.Query)
		switch {
		case qerr == nil:
			data = fresh
			if uerr := w.store.UpdateReportCache(ctx, report.ID, fresh); uerr != nil {
				slog.Warn("回写报表缓存失败", "reportID", report.ID, "error", uerr)
			}
		case len(data) > 0:
			// 有点旧的数据也好过整单失败
			slog.Warn("刷新报表数据失败，使用上一次缓存", "reportID", report.ID, "error", qerr)
		default:
			w.fail(ctx, execution, fmt.Sprintf("刷新报表数据失败且没有可用缓存: %v", qerr))
			return domain.NewTransientError(domain.StageFetchingData, qerr)
		}
	}
	if len(data) == 0 {
		err := errors.New("报表没有可用数据")
		w.fail(ctx, execution, err.Error())
		return domain.NewTransientError(domain.StageFetchingData, err)
	}

	// 第二步：渲染。渲染失败对任务是致命的：没有图就没有邮件
	image, rerr := w.renderer.Render(ctx, &render.Request{
		ReportID:    report.ID,
		Data:        data,
		ChartConfig: report.ChartConfig,
	})
	if rerr != nil {
		message := rerr.Error()
		if uerr := w.store.UpdateReportRenderError(ctx, report.ID, &message); uerr != nil {
			slog.Warn("记录渲染错误失败", "reportID", report.ID, "error", uerr)
		}
		w.fail(ctx, execution, "渲染失败: "+message)
		return domain.NewTransientError(domain.StageRendering, rerr)
	}
	if uerr := w.store.UpdateReportRenderError(ctx, report.ID, nil); uerr != nil {
		slog.Warn("清除渲染错误失败", "reportID", report.ID, "error", uerr)
	}

	// 第三步：投递。先做任务级校验，然后逐个收件人独立计数，
	// 单个收件人被拒不影响其他人
	if verr := w.gate.ValidateSend(ctx, job.TriggeredBy, job.TenantID, sched.Recipients); verr != nil {
		w.fail(ctx, execution, verr.Error())
		return verr
	}

	sent, failed := 0, 0
	for _, recipient := range sched.Recipients {
		if verr := w.gate.ValidateRecipient(ctx, job.TriggeredBy, job.TenantID, recipient); verr != nil {
			failed++
			continue
		}

		subject := fmt.Sprintf("定时报表: %s", sched.Name)
		if _, serr := w.transport.Send(ctx, recipient.Email, subject, w.htmlBody(sched, report), image); serr != nil {
			failed++
			slog.Warn("投递失败", "scheduleID", sched.ID, "recipient", recipient.Email, "error", serr)
			continue
		}
		sent++
	}

	// 第四步：写台账。只有所有收件人都失败才算整单失败
	execution.EmailsSent = sent
	execution.EmailsFailed = failed
	execution.Status = domain.ExecutionStatusCompleted
	if len(sched.Recipients) > 0 && sent == 0 {
		execution.Status = domain.ExecutionStatusFailed
		message := "所有收件人投递失败"
		execution.ErrorMessage = &message
	}
	if err := w.store.FinalizeExecution(ctx, execution); err != nil {
		slog.Error("写入执行台账失败", "scheduleID", sched.ID, "error", err)
	}

	slog.Info("任务执行完毕", "scheduleID", sched.ID, "status", execution.Status, "sent", sent, "failed", failed)
	return nil
}

func (w *Worker) fail(ctx context.Context, execution *domain.Execution, message string) {
	execution.Status = domain.ExecutionStatusFailed
	execution.ErrorMessage = &message
	if err := w.store.FinalizeExecution(ctx, execution); err != nil {
		slog.Error("写入执行台账失败", "scheduleID", execution.ScheduleID, "error", err)
	}
}

// advanceNextRun 是 next_run_at 的唯一写入点（流水线第五步）
func (w *Worker) advanceNextRun(ctx context.Context, sched *domain.Schedule) {
	dayOfWeek, dayOfMonth := 0, 0
	if sched.DayOfWeek != nil {
		dayOfWeek = *sched.DayOfWeek
	}
	if sched.DayOfMonth != nil {
		dayOfMonth = *sched.DayOfMonth
	}

	next, err := schedule.NextRun(sched.Frequency, sched.TimeOfDay, dayOfWeek, dayOfMonth, w.now().UTC())
	if err != nil {
		slog.Error("计算下一次运行时间失败", "scheduleID", sched.ID, "error", err)
		return
	}

	if err := w.store.UpdateScheduleNextRun(ctx, sched.ID, next); err != nil {
		slog.Error("推进下一次运行时间失败", "scheduleID", sched.ID, "error", err)
		return
	}

	slog.Info("已推进下一次运行时间", "scheduleID", sched.ID, "nextRunAt", next)
}

func (w *Worker) htmlBody(sched *domain.Schedule, report *domain.Report) string {
	return fmt.Sprintf(
		`<html><body><h2>%s</h2><p>报表「%s」的定时快照。</p><img src="cid:%s" alt="%s" /></body></html>`,
		sched.Name, report.Name, delivery.InlineImageCID, report.Name,
	)
}
