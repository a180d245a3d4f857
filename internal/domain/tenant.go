package domain

import "time"

type Tenant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	// 租户的内部邮箱域名单，为空表示未配置，此时所有收件人都按外部处理
	AllowedDomains []string  `json:"allowedDomains"`
	CreatedAt      time.Time `json:"createdAt"`
	Version        int32     `json:"-"`
}
