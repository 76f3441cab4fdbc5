package notify

import (
	"context"

	"go.uber.org/zap"

	"coin-rebalancer/internal/config"
)

// Notifier 发送任务完成或失败的通知。
type Notifier interface {
	Notify(ctx context.Context, subject, body string, recipients []string) error
}

// New 根据配置返回邮件通知器，未启用时退化为日志通知。
func New(cfg config.NotifyConfig, logger *zap.Logger) (Notifier, error) {
	if !cfg.Enabled {
		return NewLogNotifier(logger), nil
	}
	return NewSMTPNotifier(cfg, logger)
}

// LogNotifier 只把通知写入日志。
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器。
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify 记录通知内容。
func (n *LogNotifier) Notify(_ context.Context, subject, body string, recipients []string) error {
	n.logger.Info("通知",
		zap.String("subject", subject),
		zap.String("body", body),
		zap.Strings("recipients", recipients),
	)
	return nil
}
