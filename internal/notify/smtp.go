package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"coin-rebalancer/internal/config"
)

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier 通过 SMTP(SSL) 发送纯文本邮件。
type SMTPNotifier struct {
	from       string
	recipients []string
	sender     mailSender
	logger     *zap.Logger
}

// NewSMTPNotifier 创建邮件通知器。
func NewSMTPNotifier(cfg config.NotifyConfig, logger *zap.Logger) (*SMTPNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.From == "" {
		return nil, errors.New("notify: 发件人不能为空")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSSL(),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: 创建 SMTP 客户端失败: %w", err)
	}

	return newSMTPNotifier(cfg.From, cfg.Recipients, client, logger), nil
}

func newSMTPNotifier(from string, recipients []string, sender mailSender, logger *zap.Logger) *SMTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPNotifier{
		from:       from,
		recipients: recipients,
		sender:     sender,
		logger:     logger,
	}
}

// Notify 发送邮件，recipients 为空时使用配置的收件人。
func (n *SMTPNotifier) Notify(ctx context.Context, subject, body string, recipients []string) error {
	if len(recipients) == 0 {
		recipients = n.recipients
	}
	if len(recipients) == 0 {
		return errors.New("notify: 没有收件人")
	}

	msg, err := buildMessage(n.from, recipients, subject, body)
	if err != nil {
		return err
	}

	if err := n.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: 发送邮件失败: %w", err)
	}

	n.logger.Info("邮件通知已发送",
		zap.String("subject", subject),
		zap.Strings("recipients", recipients),
	)
	return nil
}

func buildMessage(from string, recipients []string, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("notify: 发件人地址无效: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("notify: 收件人地址无效: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
