package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database struct {
		DSN            string `env:"DSN,required"`
		ConnectTimeout int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout   int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		MaxOpenConns   int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns   int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime    int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	JWT struct {
		Expiration int    `env:"EXPIRATION" envDefault:"1209600"` // 14 天
		Secret     string `env:"SECRET,required"`
	} `envPrefix:"JWT_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host           string `env:"HOST" envDefault:"localhost"`
		Port           int    `env:"PORT" envDefault:"6379"`
		Password       string `env:"PASSWORD,required"`
		ConnectTimeout int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		// 到期槽位占用记录的过期时间，过期后允许重新认领同一槽位
		ClaimExpiration int `env:"CLAIM_EXPIRATION" envDefault:"86400"`
	} `envPrefix:"REDIS_"`
	Email struct {
		SMTP struct {
			Username    string `env:"USERNAME,required"`
			Password    string `env:"PASSWORD,required"`
			Host        string `env:"HOST,required"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
		// 非生产环境下允许投递的收件人名单
		ApprovedRecipients []string `env:"APPROVED_RECIPIENTS" envSeparator:","`
		// 生成测试用户邮箱时使用的域名
		UserDomain string `env:"USER_DOMAIN" envDefault:"example.com"`
	} `envPrefix:"EMAIL_"`
	Render struct {
		URL            string `env:"URL,required"`
		RequestTimeout int    `env:"REQUEST_TIMEOUT" envDefault:"30"`
		Concurrency    int    `env:"CONCURRENCY" envDefault:"3"`
		MaxImageBytes  int64  `env:"MAX_IMAGE_BYTES" envDefault:"10485760"` // 10 MB
	} `envPrefix:"RENDER_"`
	Engine struct {
		ScanInterval      int `env:"SCAN_INTERVAL" envDefault:"60"`
		WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"5"`
		MaxAttempts       int `env:"MAX_ATTEMPTS" envDefault:"3"`
		RetryBackoffBase  int `env:"RETRY_BACKOFF_BASE" envDefault:"60"`
		ShutdownGrace     int `env:"SHUTDOWN_GRACE" envDefault:"30"`
		// 每个租户允许启用的计划数量上限
		MaxSchedulesPerTenant int `env:"MAX_SCHEDULES_PER_TENANT" envDefault:"10"`
		// 单次发送允许的收件人数量上限
		MaxRecipientsPerSend int `env:"MAX_RECIPIENTS_PER_SEND" envDefault:"20"`
	} `envPrefix:"ENGINE_"`
	Seed struct {
		User struct {
			Password string `env:"PASSWORD" envDefault:"password"`
		} `envPrefix:"USER_"`
	} `envPrefix:"SEED_"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// 只返回第一个错误使得日志更清晰
			return nil, aggErr.Errors[0]
		}
	}

	return cfg, nil
}
