package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/repository"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/schedule"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// SeedTenant 创建一个演示租户和它的初始管理员
func SeedTenant(ctx context.Context, cfg *config.Config, repo *repository.Repository, name string) (*domain.Tenant, *domain.User, error) {
	tenant := &domain.Tenant{
		Name:           name,
		AllowedDomains: []string{cfg.Email.UserDomain},
	}
	if err := repo.CreateTenant(ctx, tenant); err != nil {
		return nil, nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(cfg.Seed.User.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	admin := &domain.User{
		TenantID:     tenant.ID,
		Username:     fmt.Sprintf("admin_%d", tenant.ID),
		PasswordHash: string(passwordHash),
		FullName:     "管理员",
		Email:        fmt.Sprintf("admin_%d@%s", tenant.ID, cfg.Email.UserDomain),
		Role:         domain.RoleAdmin,
	}
	if err := repo.CreateUser(ctx, admin); err != nil {
		return nil, nil, err
	}

	slog.Info("租户创建完成", "tenantID", tenant.ID, "admin", admin.Username)
	return tenant, admin, nil
}

// SeedUsers 为租户插入 n 个随机用户
func SeedUsers(ctx context.Context, cfg *config.Config, repo *repository.Repository, tenantID int64, n int) int {
	count := 0
	for i := 0; i < n; i++ {
		user, err := utils.GenerateRandomUser(tenantID, cfg.Seed.User.Password, cfg.Email.UserDomain)
		if err != nil {
			slog.Error("无法生成随机用户", "error", err)
			continue
		}
		if err := repo.CreateUser(ctx, user); err != nil {
			slog.Error("无法插入用户", "error", err)
			continue
		}
		count++
	}
	return count
}

// SeedReports 为租户插入 n 份带示例数据的报表，返回插入成功的报表 ID
func SeedReports(ctx context.Context, repo *repository.Repository, tenantID int64, n int) []int64 {
	reportIDs := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		report := utils.GenerateRandomReport(tenantID)
		if err := repo.CreateReport(ctx, report); err != nil {
			slog.Error("无法插入报表", "error", err)
			continue
		}
		reportIDs = append(reportIDs, report.ID)
	}
	return reportIDs
}

// SeedSchedules 为租户的每份报表创建一个计划，收件人内外部混合
func SeedSchedules(ctx context.Context, cfg *config.Config, repo *repository.Repository, tenant *domain.Tenant, reportIDs []int64, userID int64) int {
	count := 0
	for _, reportID := range reportIDs {
		frequency, timeOfDay, dayOfWeek, dayOfMonth := utils.GenerateRandomScheduleInput()

		nextRun, err := schedule.NextRun(frequency, timeOfDay, derefDay(dayOfWeek), derefDay(dayOfMonth), time.Now().UTC())
		if err != nil {
			slog.Error("无法计算下一次运行时间", "error", err)
			continue
		}

		emails := []string{
			fmt.Sprintf("team_%s@%s", utils.GenerateRandomID(3, 2), cfg.Email.UserDomain),
			fmt.Sprintf("partner_%s@outside.test", utils.GenerateRandomID(3, 2)),
		}
		classified := schedule.Classify(emails, tenant.AllowedDomains)

		recipients := make([]domain.Recipient, len(classified))
		for i, c := range classified {
			recipients[i] = domain.Recipient{Email: c.Email, Domain: c.Domain, IsExternal: c.IsExternal}
		}

		sched := &domain.Schedule{
			TenantID:   tenant.ID,
			ReportID:   reportID,
			UserID:     userID,
			Name:       "定时发送" + utils.GenerateRandomID(3, 3),
			Frequency:  frequency,
			TimeOfDay:  timeOfDay,
			DayOfWeek:  dayOfWeek,
			DayOfMonth: dayOfMonth,
			NextRunAt:  nextRun,
			Enabled:    rand.Intn(4) > 0, // 大部分计划默认启用
			CreatedBy:  userID,
			UpdatedBy:  userID,
			Recipients: recipients,
		}

		if err := repo.CreateSchedule(ctx, sched); err != nil {
			slog.Error("无法插入计划", "error", err)
			continue
		}
		count++
	}
	return count
}

func derefDay(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
