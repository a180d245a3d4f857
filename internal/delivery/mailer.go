package delivery

import (
	"bytes"
	"context"

	"github.com/sysu-ecnc-dev/report-engine/backend/internal/config"
	"github.com/wneessen/go-mail"
)

// InlineImageCID 是正文中引用内嵌图表的 content-id，
// 邮件正文用 cid:report-chart 引用它
const InlineImageCID = "report-chart"

// Transport 是邮件投递契约：发送成功时返回邮件服务商的消息标识
type Transport interface {
	Send(ctx context.Context, to string, subject string, htmlBody string, image []byte) (string, error)
}

type SMTPTransport struct {
	cfg    *config.Config
	client *mail.Client
}

func NewSMTPTransport(cfg *config.Config) (*SMTPTransport, error) {
	client, err := mail.NewClient(cfg.Email.SMTP.Host,
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithSSL(),
		mail.WithPort(cfg.Email.SMTP.Port),
		mail.WithUsername(cfg.Email.SMTP.Username),
		mail.WithPassword(cfg.Email.SMTP.Password),
	)
	if err != nil {
		return nil, err
	}

	return &SMTPTransport{
		cfg:    cfg,
		client: client,
	}, nil
}

func (t *SMTPTransport) Close() error {
	return t.client.Close()
}

func (t *SMTPTransport) Send(ctx context.Context, to string, subject string, htmlBody string, image []byte) (string, error) {
	msg := mail.NewMsg()
	if err := msg.From(t.cfg.Email.SMTP.Username); err != nil {
		return "", err
	}
	if err := msg.To(to); err != nil {
		return "", err
	}
	msg.Subject(subject)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if len(image) > 0 {
		if err := msg.EmbedReader("report.png", bytes.NewReader(image), mail.WithFileContentID(InlineImageCID)); err != nil {
			return "", err
		}
	}

	if err := t.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", err
	}

	messageIDs := msg.GetGenHeader(mail.HeaderMessageID)
	if len(messageIDs) > 0 {
		return messageIDs[0], nil
	}
	return "", nil
}
