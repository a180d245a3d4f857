package domain

import (
	"encoding/json"
	"time"
)

type Report struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenantID"`
	Name     string `json:"name"`
	// 实时查询定义，为空表示仅使用缓存数据。查询内容由上游的 SQL 校验器把关
	Query *string `json:"query"`
	// 上一次成功刷新得到的数据快照
	CachedData      json.RawMessage `json:"cachedData"`
	ChartConfig     json.RawMessage `json:"chartConfig"`
	LastRenderError *string         `json:"lastRenderError"`
	RefreshedAt     *time.Time      `json:"refreshedAt"`
	CreatedAt       time.Time       `json:"createdAt"`
	Version         int32           `json:"-"`
}
