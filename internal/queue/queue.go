package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

const (
	// 主任务队列
	JobsQueue = "report_jobs"
	// 重试队列，消息按退避时长过期后经由死信交换机回到主队列
	RetryQueue = "report_jobs_retry"
)

// Channel 是 amqp.Channel 中队列用到的那部分方法
type Channel interface {
	QueueDeclare(name string, durable bool, autoDelete bool, exclusive bool, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange string, key string, mandatory bool, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount int, prefetchSize int, global bool) error
	Consume(queue string, consumer string, autoAck bool, exclusive bool, noLocal bool, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Claimer 负责认领到期槽位，同一个键只有第一次认领会成功
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// OutcomeStore 持久化任务处理结果。消费者和查询端是两个进程，
// 结果必须落库才能被查询端看到
type OutcomeStore interface {
	RecordQueueOutcome(ctx context.Context, outcome *domain.QueueOutcome) error
}

type RedisClaimer struct {
	client *redis.Client
}

func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	return &RedisClaimer{client: client}
}

func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, 1, ttl).Result()
}

// Handler 处理一个任务。返回 TransientPipelineError 时由队列按退避策略重试
type Handler func(ctx context.Context, job *domain.JobDescriptor) error

type Queue struct {
	cfg      *config.Config
	ch       Channel
	claimer  Claimer
	outcomes OutcomeStore
}

func New(cfg *config.Config, ch Channel, claimer Claimer, outcomes OutcomeStore) (*Queue, error) {
	if _, err := ch.QueueDeclare(
		JobsQueue,
		true,  // 持久化
		false, // 不自动删除，避免没有消费者时队列消失
		false,
		false,
		nil,
	); err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		RetryQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": JobsQueue,
		},
	); err != nil {
		return nil, err
	}

	return &Queue{
		cfg:      cfg,
		ch:       ch,
		claimer:  claimer,
		outcomes: outcomes,
	}, nil
}

// Enqueue 先认领到期槽位再发布任务。槽位已被认领时返回 false，
// 调用方应当静默跳过，这不算错误——扫描器和手动触发同时抢一个槽位是正常现象
func (q *Queue) Enqueue(ctx context.Context, job *domain.JobDescriptor) (bool, error) {
	ttl := time.Duration(q.cfg.Redis.ClaimExpiration) * time.Second
	claimed, err := q.claimer.Claim(ctx, job.IdempotencyKey(), ttl)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	if job.Attempt == 0 {
		job.Attempt = 1
	}

	body, err := json.Marshal(job)
	if err != nil {
		return false, err
	}

	pubCtx, cancel := context.WithTimeout(ctx, time.Duration(q.cfg.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	if err := q.ch.PublishWithContext(
		pubCtx,
		"",
		JobsQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	); err != nil {
		return false, err
	}

	return true, nil
}

// Consume 以固定数量的 worker 消费任务，直到 ctx 取消或通道关闭。
// ctx 取消只切断取件，已取到的任务会在不受取消影响的 ctx 下跑完，
// 返回时所有在途任务都已处理完，调用方可以据此实现排空式关闭
func (q *Queue) Consume(ctx context.Context, concurrency int, handler Handler) error {
	if err := q.ch.Qos(concurrency, 0, false); err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		JobsQueue,
		"",
		false, // 手动确认
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	// 在途任务的数据库、渲染、SMTP 调用不能被关闭信号打断，
	// 否则剩余收件人会被记成失败且不再重试
	handleCtx := context.WithoutCancel(ctx)

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					q.handleDelivery(handleCtx, msg, handler)
				}
			}
		}()
	}

	wg.Wait()
	return nil
}

func (q *Queue) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	job := &domain.JobDescriptor{}
	if err := json.Unmarshal(msg.Body, job); err != nil {
		slog.Error("任务反序列化失败", "error", err)
		_ = msg.Nack(false, false)
		return
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}

	err := handler(ctx, job)

	outcome := &domain.QueueOutcome{
		ScheduleID: job.ScheduleID,
		DueSlot:    job.DueSlot,
		Attempt:    job.Attempt,
		Success:    err == nil,
		FinishedAt: time.Now().UTC(),
	}

	switch {
	case err == nil:
		slog.Info("任务执行成功", "scheduleID", job.ScheduleID, "dueSlot", job.DueSlot, "attempt", job.Attempt)
	case domain.IsRetryable(err) && job.Attempt < q.cfg.Engine.MaxAttempts:
		outcome.Error = err.Error()
		if rerr := q.publishRetry(ctx, job); rerr != nil {
			slog.Error("无法把任务放入重试队列", "scheduleID", job.ScheduleID, "error", rerr)
			q.recordOutcome(ctx, outcome)
			_ = msg.Nack(false, true) // 重新入队，至少不丢任务
			return
		}
		slog.Warn("任务执行失败，已安排重试", "scheduleID", job.ScheduleID, "attempt", job.Attempt, "backoff", q.Backoff(job.Attempt))
	default:
		outcome.Error = err.Error()
		slog.Error("任务最终失败", "scheduleID", job.ScheduleID, "attempt", job.Attempt, "error", err)
	}

	q.recordOutcome(ctx, outcome)
	_ = msg.Ack(false)
}

// recordOutcome 尽力落库处理结果，失败只记日志，不影响任务本身的确认
func (q *Queue) recordOutcome(ctx context.Context, outcome *domain.QueueOutcome) {
	if err := q.outcomes.RecordQueueOutcome(ctx, outcome); err != nil {
		slog.Error("无法记录任务处理结果", "scheduleID", outcome.ScheduleID, "error", err)
	}
}

// Backoff 返回第 attempt 次失败后的等待时长，从基准时长开始指数增长
func (q *Queue) Backoff(attempt int) time.Duration {
	base := time.Duration(q.cfg.Engine.RetryBackoffBase) * time.Second
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

func (q *Queue) publishRetry(ctx context.Context, job *domain.JobDescriptor) error {
	next := *job
	next.Attempt = job.Attempt + 1

	body, err := json.Marshal(&next)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, time.Duration(q.cfg.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	return q.ch.PublishWithContext(
		pubCtx,
		"",
		RetryQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			// 消息在重试队列里按退避时长过期，随后经死信路由回到主队列
			Expiration: strconv.FormatInt(q.Backoff(job.Attempt).Milliseconds(), 10),
			Body:       body,
		},
	)
}
