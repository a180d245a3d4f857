package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/audit"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
)

type fakeAuditStore struct {
	entries []*domain.AuditEntry
}

func (s *fakeAuditStore) CreateAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newTestGate(environment string, smtpHost string, approved []string) (*Gate, *fakeAuditStore) {
	cfg := &config.Config{Environment: environment}
	cfg.Engine.MaxRecipientsPerSend = 20
	cfg.Email.SMTP.Host = smtpHost
	cfg.Email.ApprovedRecipients = approved

	store := &fakeAuditStore{}
	return NewGate(cfg, audit.NewRecorder(store)), store
}

func recipients(n int) []domain.Recipient {
	list := make([]domain.Recipient, n)
	for i := range list {
		list[i] = domain.Recipient{Email: "user@corp.com"}
	}
	return list
}

func TestGateRecipientCountCeiling(t *testing.T) {
	gate, store := newTestGate("production", "smtp.corp.com", nil)

	if err := gate.ValidateSend(context.Background(), 1, 1, recipients(20)); err != nil {
		t.Errorf("20 个收件人应该通过: %v", err)
	}

	err := gate.ValidateSend(context.Background(), 1, 1, recipients(21))
	var violation *domain.SecurityViolation
	if !errors.As(err, &violation) {
		t.Fatalf("21 个收件人应该返回 SecurityViolation, got %v", err)
	}
	// 违规必须先写审计再返回
	if len(store.entries) != 1 || store.entries[0].Severity != domain.AuditSeverityCritical {
		t.Errorf("违规应该以 critical 级别写入审计, entries=%+v", store.entries)
	}
}

func TestGateTestRelayInProduction(t *testing.T) {
	gate, _ := newTestGate("production", "smtp.mailtrap.io", nil)

	err := gate.ValidateSend(context.Background(), 1, 1, recipients(1))
	var violation *domain.SecurityViolation
	if !errors.As(err, &violation) {
		t.Errorf("生产环境指向测试中继应该返回 SecurityViolation, got %v", err)
	}

	// 非生产环境允许使用测试中继
	gate, _ = newTestGate("development", "smtp.mailtrap.io", nil)
	if err := gate.ValidateSend(context.Background(), 1, 1, recipients(1)); err != nil {
		t.Errorf("开发环境使用测试中继不应违规: %v", err)
	}
}

func TestGateRecipientSyntax(t *testing.T) {
	gate, _ := newTestGate("production", "smtp.corp.com", nil)

	err := gate.ValidateRecipient(context.Background(), 1, 1, domain.Recipient{Email: "不是邮箱"})
	var violation *domain.SecurityViolation
	if !errors.As(err, &violation) {
		t.Errorf("非法地址应该返回 SecurityViolation, got %v", err)
	}

	if err := gate.ValidateRecipient(context.Background(), 1, 1, domain.Recipient{Email: "ok@corp.com"}); err != nil {
		t.Errorf("合法地址不应违规: %v", err)
	}
}

func TestGateApprovedListOutsideProduction(t *testing.T) {
	gate, _ := newTestGate("development", "smtp.corp.com", []string{"dev@corp.com"})

	if err := gate.ValidateRecipient(context.Background(), 1, 1, domain.Recipient{Email: "dev@corp.com"}); err != nil {
		t.Errorf("许可名单内的收件人不应违规: %v", err)
	}

	err := gate.ValidateRecipient(context.Background(), 1, 1, domain.Recipient{Email: "someone@else.com"})
	var violation *domain.SecurityViolation
	if !errors.As(err, &violation) {
		t.Errorf("名单外的收件人应该返回 SecurityViolation, got %v", err)
	}

	// 生产环境不启用许可名单
	gate, _ = newTestGate("production", "smtp.corp.com", nil)
	if err := gate.ValidateRecipient(context.Background(), 1, 1, domain.Recipient{Email: "anyone@else.com"}); err != nil {
		t.Errorf("生产环境不应校验许可名单: %v", err)
	}
}
