package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coin-rebalancer/internal/ingest"
	"coin-rebalancer/internal/metrics"
	"coin-rebalancer/internal/notify"
)

const (
	ingestSubject       = "Upload Market Data"
	ingestFailedSubject = "Upload Market Data Failed"
)

type ingestRunner interface {
	Run(ctx context.Context) (ingest.Summary, error)
}

// IngestJob 带重试地运行入库流水线，结束后发送通知。
type IngestJob struct {
	pipeline ingestRunner
	retry    RetryPolicy
	notifier notify.Notifier
	events   eventRecorder
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// NewIngestJob 创建入库任务，notifier、events 与 reg 可为 nil。
func NewIngestJob(
	pipeline ingestRunner,
	retry RetryPolicy,
	notifier notify.Notifier,
	events eventRecorder,
	reg *metrics.Registry,
	logger *zap.Logger,
) *IngestJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	if events == nil {
		events = nopRecorder{}
	}
	if retry.Logger == nil {
		retry.Logger = logger
	}
	return &IngestJob{
		pipeline: pipeline,
		retry:    retry,
		notifier: notifier,
		events:   events,
		metrics:  reg,
		logger:   logger,
	}
}

// Run 执行入库，耗时从第一次尝试开始计算。
func (j *IngestJob) Run(ctx context.Context) (ingest.Summary, error) {
	started := time.Now()

	var summary ingest.Summary
	attempts := 0
	err := j.retry.Do(ctx, "ingest", func(ctx context.Context) error {
		attempts++
		s, runErr := j.pipeline.Run(ctx)
		summary = s
		if j.metrics != nil {
			j.metrics.ObserveIngestion(s, runErr)
		}
		return runErr
	})
	elapsed := time.Since(started)
	summary.Elapsed = elapsed

	if j.metrics != nil {
		j.metrics.ObserveJob("ingest", elapsed, err)
	}
	j.events.RecordIngestion(ctx, summary)

	if err != nil {
		j.events.RecordError(ctx, "行情入库失败", err, map[string]interface{}{"attempts": attempts})
		body := fmt.Sprintf("Failed after %d attempts. Took: %s\n%v", attempts, notify.FormatElapsed(elapsed), err)
		j.send(ctx, ingestFailedSubject, body)
		return summary, err
	}

	j.send(ctx, ingestSubject, "Complete. Took: "+notify.FormatElapsed(elapsed))
	return summary, nil
}

func (j *IngestJob) send(ctx context.Context, subject, body string) {
	if err := j.notifier.Notify(ctx, subject, body, nil); err != nil {
		j.logger.Warn("发送通知失败", zap.String("subject", subject), zap.Error(err))
	}
}
