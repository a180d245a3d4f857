package repository

import (
	"context"
	"encoding/json"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

func (r *Repository) GetTenantByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	query := `
		SELECT name, allowed_domains, created_at, version FROM tenants WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	tenant := &domain.Tenant{
		ID: id,
	}

	var allowedDomains []byte
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(&tenant.Name, &allowedDomains, &tenant.CreatedAt, &tenant.Version); err != nil {
		return nil, err
	}

	// 域名单是 jsonb 字段，解析失败按未配置处理，分类器会把所有收件人标为外部
	if len(allowedDomains) > 0 {
		if err := json.Unmarshal(allowedDomains, &tenant.AllowedDomains); err != nil {
			tenant.AllowedDomains = nil
		}
	}

	return tenant, nil
}

func (r *Repository) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (name, allowed_domains)
		VALUES ($1, $2)
		RETURNING id, created_at, version
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	allowedDomains, err := json.Marshal(tenant.AllowedDomains)
	if err != nil {
		return err
	}

	return r.dbpool.QueryRowContext(ctx, query, tenant.Name, allowedDomains).Scan(&tenant.ID, &tenant.CreatedAt, &tenant.Version)
}
