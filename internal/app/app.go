package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"coin-rebalancer/internal/config"
	"coin-rebalancer/internal/exchange"
	"coin-rebalancer/internal/execution"
	"coin-rebalancer/internal/indicator"
	"coin-rebalancer/internal/ingest"
	"coin-rebalancer/internal/metrics"
	"coin-rebalancer/internal/monitor"
	"coin-rebalancer/internal/notify"
	"coin-rebalancer/internal/portfolio"
	"coin-rebalancer/internal/rebalance"
	"coin-rebalancer/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store

	once     sync.Once
	services *Services
	buildErr error
}

// Services 为各命令共享的组件。
type Services struct {
	Client     *exchange.Client
	Candles    *store.CandleRepo
	Dataset    *store.Dataset
	Pipeline   *ingest.Pipeline
	Rebalancer *Rebalancer
	Ingest     *IngestJob
	Monitor    *monitor.Service
	Metrics    *metrics.Registry
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Config 返回当前配置。
func (a *App) Config() *config.Config {
	return a.cfg
}

// NormalizeOptions 返回行情归一化参数。
func (a *App) NormalizeOptions(normalize bool) indicator.Options {
	return indicator.Options{Window: a.cfg.Ingest.NormalizeWindow, Normalize: normalize}
}

// Services 按需构建组件，只构建一次。
func (a *App) Services() (*Services, error) {
	a.once.Do(func() {
		a.services, a.buildErr = a.build()
	})
	return a.services, a.buildErr
}

func (a *App) build() (*Services, error) {
	cfg := a.cfg
	logger := a.logger

	client, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(a.store, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化监控服务失败: %w", err)
	}

	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化通知失败: %w", err)
	}

	reg := metrics.New()
	candles := store.NewCandleRepo(a.store, cfg.Database, logger)
	pipeline := ingest.NewPipeline(client, candles, ingest.OptionsFromConfig(cfg), logger)

	var trader execution.Trader
	if cfg.Execution.DryRun {
		logger.Info("执行器处于模拟模式")
		trader = execution.NewSimulatedExecutor(client, logger)
	} else {
		trader = execution.NewExecutor(client, logger)
	}

	params := rebalance.Params{
		Reserve:       cfg.Rebalance.Reserve,
		TradeBasement: cfg.Rebalance.TradeBasement,
		MinReserve:    cfg.Rebalance.MinReserve,
		MinTradeValue: cfg.Rebalance.MinTradeValue,
	}
	rebalancer := NewRebalancer(
		portfolio.NewManager(client, logger),
		trader,
		cfg.Rebalance.Weights,
		params,
		monitorSvc,
		reg,
		logger,
	)

	return &Services{
		Client:     client,
		Candles:    candles,
		Dataset:    store.NewDataset(candles),
		Pipeline:   pipeline,
		Rebalancer: rebalancer,
		Ingest:     NewIngestJob(pipeline, NewRetryPolicy(cfg.Ingest.Retry, logger), notifier, monitorSvc, reg, logger),
		Monitor:    monitorSvc,
		Metrics:    reg,
	}, nil
}

// Run 以守护模式运行，按 cron 调度调仓与行情入库，直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	svc, err := a.Services()
	if err != nil {
		return err
	}

	a.logger.Info("调仓系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.String("reserve", a.cfg.Rebalance.Reserve),
		zap.Bool("dry_run", a.cfg.Execution.DryRun),
	)

	if a.cfg.Monitor.Enabled {
		if err := startMonitorServer(ctx, svc.Monitor, svc.Metrics, a.cfg.Monitor.Port, a.logger); err != nil {
			return fmt.Errorf("启动监控接口失败: %w", err)
		}
	}

	scheduler, err := a.schedule(ctx, svc)
	if err != nil {
		return err
	}
	scheduler.Start()

	<-ctx.Done()
	a.logger.Info("系统收到退出信号，等待运行中的任务结束")
	<-scheduler.Stop().Done()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	return nil
}

func (a *App) schedule(ctx context.Context, svc *Services) (*cron.Cron, error) {
	cronLog := cronLogger{logger: a.logger.Named("cron")}
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{
			name:     "rebalance",
			schedule: a.cfg.Scheduler.Rebalance,
			run: func(ctx context.Context) error {
				_, err := svc.Rebalancer.Rebalance(ctx)
				return err
			},
		},
		{
			name:     "ingest",
			schedule: a.cfg.Scheduler.Ingest,
			run: func(ctx context.Context) error {
				_, err := svc.Ingest.Run(ctx)
				return err
			},
		},
	}

	registered := 0
	for _, job := range jobs {
		if job.schedule == "" {
			a.logger.Info("任务未配置调度，跳过", zap.String("job", job.name))
			continue
		}
		if _, err := scheduler.AddFunc(job.schedule, func() {
			a.logger.Info("开始执行定时任务", zap.String("job", job.name))
			if err := job.run(ctx); err != nil {
				a.logger.Error("定时任务失败", zap.String("job", job.name), zap.Error(err))
				return
			}
			a.logger.Info("定时任务完成", zap.String("job", job.name))
		}); err != nil {
			return nil, fmt.Errorf("注册任务 %s 失败(schedule=%q): %w", job.name, job.schedule, err)
		}
		a.logger.Info("任务已注册", zap.String("job", job.name), zap.String("schedule", job.schedule))
		registered++
	}
	if registered == 0 {
		a.logger.Warn("没有任何定时任务，守护进程仅提供监控接口")
	}
	return scheduler, nil
}

// cronLogger 将 cron 日志转接到 zap。
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
