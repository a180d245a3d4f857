package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

type DueScheduleStore interface {
	GetDueSchedules(ctx context.Context, now time.Time) ([]*domain.Schedule, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.JobDescriptor) (bool, error)
}

// Scanner 周期性扫描到期的计划并转成任务描述符入队。
// 扫描本身是单线程的：上一轮还没结束时，下一轮直接跳过而不是排队
type Scanner struct {
	cfg     *config.Config
	store   DueScheduleStore
	queue   Enqueuer
	running atomic.Bool
	now     func() time.Time
}

func NewScanner(cfg *config.Config, store DueScheduleStore, queue Enqueuer) *Scanner {
	return &Scanner{
		cfg:   cfg,
		store: store,
		queue: queue,
		now:   time.Now,
	}
}

func (s *Scanner) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.Engine.ScanInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("扫描器已启动", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("扫描器已停止")
			return
		case <-ticker.C:
			s.ScanOnce(ctx)
		}
	}
}

// ScanOnce 执行一轮扫描，手动触发接口和测试也会直接调用它
func (s *Scanner) ScanOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("上一轮扫描尚未结束，跳过本轮")
		return
	}
	defer s.running.Store(false)

	now := s.now().UTC()
	schedules, err := s.store.GetDueSchedules(ctx, now)
	if err != nil {
		slog.Error("查询到期计划失败", "error", err)
		return
	}

	for _, sched := range schedules {
		job := &domain.JobDescriptor{
			ScheduleID:  sched.ID,
			TenantID:    sched.TenantID,
			ReportID:    sched.ReportID,
			TriggeredBy: sched.UserID,
			DueSlot:     sched.NextRunAt.UTC(),
		}

		accepted, err := s.queue.Enqueue(ctx, job)
		if err != nil {
			slog.Error("任务入队失败", "scheduleID", sched.ID, "error", err)
			continue
		}
		if !accepted {
			// 槽位已被认领（比如手动触发抢先了一步），不算错误
			slog.Debug("到期槽位已被认领，跳过", "scheduleID", sched.ID, "dueSlot", job.DueSlot)
			continue
		}

		slog.Info("到期计划已入队", "scheduleID", sched.ID, "dueSlot", job.DueSlot)
	}
}
