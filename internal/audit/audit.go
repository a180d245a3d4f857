package audit

import (
	"context"
	"log/slog"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

type Store interface {
	CreateAuditEntry(ctx context.Context, entry *domain.AuditEntry) error
}

// Recorder 把结构化审计写入存储。写入是尽力而为的：
// 审计失败只记日志，绝不反过来中断业务操作
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Record(ctx context.Context, severity domain.AuditSeverity, actorID int64, tenantID int64, resourceID int64, details domain.AuditDetails) {
	entry := &domain.AuditEntry{
		Action:     details.AuditAction(),
		Severity:   severity,
		ActorID:    actorID,
		TenantID:   tenantID,
		ResourceID: resourceID,
		Details:    details,
	}

	if err := r.store.CreateAuditEntry(ctx, entry); err != nil {
		slog.Error("审计写入失败", "action", entry.Action, "tenantID", tenantID, "resourceID", resourceID, "error", err)
	}
}
