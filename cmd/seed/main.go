package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/repository"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/seed"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var tenantID int64
	var tenantName string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 创建租户和管理员, 2: 插入随机用户, 3: 插入随机报表, 4: 一键生成完整演示数据)")
	flag.IntVar(&n, "n", 5, "要插入的记录数量")
	flag.Int64Var(&tenantID, "tenant-id", 0, "目标租户 ID")
	flag.StringVar(&tenantName, "tenant-name", "演示租户", "创建租户时使用的名称")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// 创建 repository
	repo := repository.NewRepository(cfg, dbpool)

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		tenant, admin, err := seed.SeedTenant(context.Background(), cfg, repo, tenantName)
		if err != nil {
			slog.Error("无法创建租户", slog.String("error", err.Error()))
			return
		}
		slog.Info("创建租户成功", slog.Int64("tenantID", tenant.ID), slog.String("admin", admin.Username))
	case 2:
		if tenantID <= 0 {
			slog.Error("请输入合法的租户 ID")
			return
		}
		count := seed.SeedUsers(context.Background(), cfg, repo, tenantID, n)
		slog.Info("插入用户成功", slog.Int("count", count))
	case 3:
		if tenantID <= 0 {
			slog.Error("请输入合法的租户 ID")
			return
		}
		reportIDs := seed.SeedReports(context.Background(), repo, tenantID, n)
		slog.Info("插入报表成功", slog.Int("count", len(reportIDs)))
	case 4:
		tenant, admin, err := seed.SeedTenant(context.Background(), cfg, repo, tenantName)
		if err != nil {
			slog.Error("无法创建租户", slog.String("error", err.Error()))
			return
		}

		userCount := seed.SeedUsers(context.Background(), cfg, repo, tenant.ID, n)
		reportIDs := seed.SeedReports(context.Background(), repo, tenant.ID, n)
		scheduleCount := seed.SeedSchedules(context.Background(), cfg, repo, tenant, reportIDs, admin.ID)

		slog.Info("演示数据生成完成",
			slog.Int64("tenantID", tenant.ID),
			slog.Int("users", userCount),
			slog.Int("reports", len(reportIDs)),
			slog.Int("schedules", scheduleCount),
		)
	default:
		slog.Error("指定的操作非法")
	}
}
