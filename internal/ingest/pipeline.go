package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coin-rebalancer/internal/candle"
	"coin-rebalancer/internal/config"
	"coin-rebalancer/internal/exchange"
	"coin-rebalancer/internal/portfolio"
)

const (
	defaultWorkers       = 4
	defaultWindowMinutes = 10000
)

// candleSource 描述行情来源，由 exchange.Client 实现。
type candleSource interface {
	Markets(ctx context.Context, quote string) ([]exchange.Market, error)
	Candles(ctx context.Context, market string, start, end int64) ([]candle.Candle, error)
}

// candleStore 描述K线存储，由 store.CandleRepo 实现。
type candleStore interface {
	LastOpenTime(ctx context.Context, coin string, fallback int64) (int64, error)
	Query(ctx context.Context, coin string, start, end int64) ([]candle.Candle, error)
	Append(ctx context.Context, coin string, candles []candle.Candle) (int, error)
}

// Options 控制入库流水线。
type Options struct {
	Reserve       string
	Coins         []string
	Workers       int
	StartEpoch    int64
	WindowMinutes int
}

// OptionsFromConfig 由配置构造流水线参数。
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Reserve:       cfg.Rebalance.Reserve,
		Coins:         cfg.Ingest.Coins,
		Workers:       cfg.Ingest.Workers,
		StartEpoch:    cfg.Ingest.DefaultStartEpoch,
		WindowMinutes: cfg.Ingest.WindowMinutes,
	}
}

// Summary 汇总一次入库结果。
type Summary struct {
	Coins   int            `json:"coins"`
	Rows    int            `json:"rows"`
	Failed  []string       `json:"failed,omitempty"`
	PerCoin map[string]int `json:"per_coin,omitempty"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Pipeline 将交易所一分钟K线增量写入存储。
type Pipeline struct {
	source candleSource
	store  candleStore
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewPipeline 创建入库流水线。
func NewPipeline(source candleSource, store candleStore, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.WindowMinutes <= 0 {
		opts.WindowMinutes = defaultWindowMinutes
	}
	return &Pipeline{
		source: source,
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Run 对所有币种执行一次增量入库。单个币种失败不会中断其他币种，错误合并后返回。
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	started := time.Now()

	coins, err := p.coins(ctx)
	if err != nil {
		return Summary{}, err
	}
	p.logger.Info("开始更新行情", zap.Int("coins", len(coins)), zap.Int("workers", p.opts.Workers))

	var (
		mu      sync.Mutex
		errs    error
		summary = Summary{Coins: len(coins), PerCoin: make(map[string]int, len(coins))}
	)

	var group errgroup.Group
	group.SetLimit(p.opts.Workers)
	for i, coin := range coins {
		group.Go(func() error {
			p.logger.Debug("更新币种行情",
				zap.String("coin", coin),
				zap.Int("index", i+1),
				zap.Int("total", len(coins)),
			)
			rows, err := p.updateCoin(ctx, coin)

			mu.Lock()
			defer mu.Unlock()
			summary.PerCoin[coin] = rows
			summary.Rows += rows
			if err != nil {
				summary.Failed = append(summary.Failed, coin)
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", coin, err))
			}
			return nil
		})
	}
	_ = group.Wait()

	sort.Strings(summary.Failed)
	summary.Elapsed = time.Since(started)

	if ctxErr := ctx.Err(); ctxErr != nil && errs == nil {
		errs = ctxErr
	}
	if errs != nil {
		p.logger.Warn("行情更新部分失败",
			zap.Strings("failed", summary.Failed),
			zap.Int("rows", summary.Rows),
			zap.Error(errs),
		)
		return summary, fmt.Errorf("ingest: 行情更新失败: %w", errs)
	}

	p.logger.Info("行情更新完成",
		zap.Int("coins", summary.Coins),
		zap.Int("rows", summary.Rows),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// coins 返回待更新币种，未配置时取所有以储备币计价的现货市场。
func (p *Pipeline) coins(ctx context.Context) ([]string, error) {
	if len(p.opts.Coins) > 0 {
		return p.opts.Coins, nil
	}
	markets, err := p.source.Markets(ctx, p.opts.Reserve)
	if err != nil {
		return nil, fmt.Errorf("ingest: 获取 %s 计价市场失败: %w", p.opts.Reserve, err)
	}
	coins := make([]string, 0, len(markets))
	for _, m := range markets {
		coins = append(coins, m.Base)
	}
	sort.Strings(coins)
	return coins, nil
}

// updateCoin 从库中最新开盘时间起按窗口拉取至最近一根已收盘K线，只写入更晚的数据。
func (p *Pipeline) updateCoin(ctx context.Context, coin string) (int, error) {
	last, err := p.store.LastOpenTime(ctx, coin, p.opts.StartEpoch)
	if err != nil {
		return 0, err
	}

	market := portfolio.MarketSymbol(coin, p.opts.Reserve)
	end := candle.Align(p.now().UnixMilli()) - candle.Interval
	span := int64(p.opts.WindowMinutes) * candle.Interval

	written := 0
	for start := last; start <= end; start += span {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		windowEnd := start + span - candle.Interval
		if windowEnd > end {
			windowEnd = end
		}

		fetched, err := p.source.Candles(ctx, market, start, windowEnd)
		if err != nil {
			return written, err
		}
		fresh := after(fetched, last)
		if len(fresh) == 0 {
			continue
		}
		for i := range fresh {
			fresh[i].Coin = coin
		}

		n, err := p.store.Append(ctx, coin, fresh)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// after 返回开盘时间严格晚于 last 的K线。
func after(candles []candle.Candle, last int64) []candle.Candle {
	out := make([]candle.Candle, 0, len(candles))
	for _, c := range candles {
		if c.OpenTime > last {
			out = append(out, c)
		}
	}
	return out
}
