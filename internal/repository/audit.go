package repository

import (
	"context"
	"encoding/json"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

func (r *Repository) CreateAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (action, severity, actor_id, tenant_id, resource_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout())
	defer cancel()

	details, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}

	args := []any{entry.Action, entry.Severity, entry.ActorID, entry.TenantID, entry.ResourceID, details}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(&entry.ID, &entry.CreatedAt)
}
