package delivery

import (
	"context"
	"log/slog"
	"net/mail"
	"slices"
	"strings"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/audit"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

// 已知的测试邮件中继，生产环境禁止把投递通道指向它们
var testRelayHosts = []string{
	"localhost",
	"127.0.0.1",
	"mailtrap",
	"mailhog",
	"papercut",
	"ethereal.email",
}

// Gate 在交给邮件通道之前校验每一次投递。
// 任何违规都是 SecurityViolation，在返回之前先以 critical 级别写入审计
type Gate struct {
	cfg     *config.Config
	auditor *audit.Recorder
}

func NewGate(cfg *config.Config, auditor *audit.Recorder) *Gate {
	return &Gate{
		cfg:     cfg,
		auditor: auditor,
	}
}

// ValidateSend 做任务级校验：收件人数量上限和投递通道本身
func (g *Gate) ValidateSend(ctx context.Context, actorID int64, tenantID int64, recipients []domain.Recipient) error {
	if len(recipients) > g.cfg.Engine.MaxRecipientsPerSend {
		return g.violation(ctx, actorID, tenantID, &domain.SecurityViolation{
			Reason: "单次发送的收件人数量超过上限",
		})
	}

	if g.cfg.Environment == "production" && isTestRelay(g.cfg.Email.SMTP.Host) {
		return g.violation(ctx, actorID, tenantID, &domain.SecurityViolation{
			Reason: "生产环境的邮件通道指向测试中继 " + g.cfg.Email.SMTP.Host,
		})
	}

	return nil
}

// ValidateRecipient 逐个校验收件人：地址语法，以及非生产环境下的许可名单
func (g *Gate) ValidateRecipient(ctx context.Context, actorID int64, tenantID int64, recipient domain.Recipient) error {
	if _, err := mail.ParseAddress(recipient.Email); err != nil {
		return g.violation(ctx, actorID, tenantID, &domain.SecurityViolation{
			Reason:    "收件人地址格式不合法",
			Recipient: recipient.Email,
		})
	}

	if g.cfg.Environment != "production" && !slices.Contains(g.cfg.Email.ApprovedRecipients, recipient.Email) {
		return g.violation(ctx, actorID, tenantID, &domain.SecurityViolation{
			Reason:    "收件人不在许可名单中",
			Recipient: recipient.Email,
		})
	}

	return nil
}

func (g *Gate) violation(ctx context.Context, actorID int64, tenantID int64, v *domain.SecurityViolation) error {
	slog.Error("投递安全校验失败", "tenantID", tenantID, "reason", v.Reason, "recipient", v.Recipient)
	g.auditor.Record(ctx, domain.AuditSeverityCritical, actorID, tenantID, 0, domain.SecurityViolationDetails{
		Reason:    v.Reason,
		Recipient: v.Recipient,
	})
	return v
}

func isTestRelay(host string) bool {
	host = strings.ToLower(host)
	for _, relay := range testRelayHosts {
		if strings.Contains(host, relay) {
			return true
		}
	}
	return false
}
