package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/audit"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/delivery"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/engine"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/queue"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/render"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 加载配置
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法加载配置文件", "error", err)
		return
	}

	/**********************************************
	 * 连接数据库
	 **********************************************/
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

	/**********************************************
	 * 创建 repository
	 **********************************************/
	repo := repository.NewRepository(cfg, dbpool)

	/**********************************************
	 * 连接 rabbitmq
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("无法连接到 rabbitmq", "error", err)
		return
	}
	defer conn.Close()

	// 建立通道
	ch, err := conn.Channel()
	if err != nil {
		logger.Error("无法建立通道", "error", err)
		return
	}
	defer ch.Close()

	/**********************************************
	 * 连接 redis
	 **********************************************/
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	/**********************************************
	 * 创建任务队列
	 **********************************************/
	jobQueue, err := queue.New(cfg, ch, queue.NewRedisClaimer(rdb), repo)
	if err != nil {
		logger.Error("无法创建任务队列", "error", err)
		return
	}

	/**********************************************
	 * 创建渲染池
	 **********************************************/
	backend := render.NewHTTPBackend(
		cfg.Render.URL,
		time.Duration(cfg.Render.RequestTimeout)*time.Second,
		cfg.Render.MaxImageBytes,
	)
	pool := render.NewPool(backend, cfg.Render.Concurrency, cfg.Render.MaxImageBytes)

	/**********************************************
	 * 创建投递闸门和 SMTP 通道
	 **********************************************/
	auditor := audit.NewRecorder(repo)
	gate := delivery.NewGate(cfg, auditor)

	transport, err := delivery.NewSMTPTransport(cfg)
	if err != nil {
		logger.Error("无法创建 SMTP 客户端", "error", err)
		return
	}

	/**********************************************
	 * 启动 worker，消费任务直到收到退出信号
	 **********************************************/
	worker := engine.NewWorker(cfg, repo, pool, gate, transport)

	consumeCtx, stop := context.WithCancel(context.Background())
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- jobQueue.Consume(consumeCtx, cfg.Engine.WorkerConcurrency, worker.Handle)
	}()

	logger.Info("worker 已启动", "concurrency", cfg.Engine.WorkerConcurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-done:
		if err != nil {
			logger.Error("消费任务失败", "error", err)
		}
		return
	case <-quit:
	}

	logger.Info("正在关闭 worker，等待在途任务完成...")
	stop()

	// 在宽限期内等待排空，超时就放弃，未确认的消息会回到队列
	select {
	case <-done:
		logger.Info("worker 已成功关闭")
	case <-time.After(time.Duration(cfg.Engine.ShutdownGrace) * time.Second):
		logger.Warn("等待在途任务超时，强制退出")
	}
}
